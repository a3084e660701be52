package braille_test

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/FocuswithJustin/braille-lib/core/braille"
)

func TestEncodeSingleDots(t *testing.T) {
	for dot, bit := range []uint8{1, 2, 4, 8, 16, 32, 64, 128} {
		descriptor := string(rune('1' + dot))
		got := braille.Encode(descriptor)
		require.Equal(t, braille.Base+rune(bit), got, "dot %s", descriptor)
		require.Equal(t, bit, braille.DotBit(rune('1'+dot)))
	}
}

func TestEncodeRepresentationsAgree(t *testing.T) {
	want := rune(0x2803)
	require.Equal(t, want, braille.Encode("12"))
	require.Equal(t, want, braille.Encode("1-2"))
	require.Equal(t, want, braille.Encode("1", "2"))
	require.Equal(t, want, braille.Encode("21"), "digit order must not matter")
	require.Equal(t, want, braille.Encode("1 - 2"))
}

func TestEncodeBlankAndFull(t *testing.T) {
	require.Equal(t, rune(0x2800), braille.Encode())
	require.Equal(t, rune(0x2800), braille.Encode(""))
	require.Equal(t, rune(0x28FF), braille.Encode("12345678"))
	require.Equal(t, rune(0x28FF), braille.Encode("1-2-3-4-5-6-7-8"))
}

func TestEncodeIgnoresUnknownCharacters(t *testing.T) {
	require.Equal(t, rune(0x2801), braille.Encode("1x"))
	require.Equal(t, rune(0x2800), braille.Encode("09"))
	require.Equal(t, rune(0x2805), braille.Encode("dot 1, dot 3"))
}

func TestEncodeLetters(t *testing.T) {
	tests := []struct {
		letter string
		dots   string
		want   rune
	}{
		{"a", "1", 0x2801},
		{"b", "12", 0x2803},
		{"c", "14", 0x2809},
		{"d", "145", 0x2819},
		{"e", "15", 0x2811},
		{"k", "13", 0x2805},
		{"l", "123", 0x2807},
		{"y", "13456", 0x283D},
		{"z", "1356", 0x2835},
	}
	for _, tt := range tests {
		t.Run(tt.letter, func(t *testing.T) {
			require.Equal(t, tt.want, braille.Encode(tt.dots))
		})
	}
}

// Dot digits are bit weights, so "14" is 1+8 and "145" is 1+8+16 no matter
// what a worked example claims.
func TestEncodeScenarioValues(t *testing.T) {
	require.Equal(t, "⠁", string(braille.Encode("1")))
	require.Equal(t, rune(0x2800+1+8), braille.Encode("14"))
	require.Equal(t, rune(0x2800+1+8+16), braille.Encode("145"))
}

func TestEncodeCells(t *testing.T) {
	cells := braille.EncodeCells([]string{"4", "124"})
	require.Equal(t, []rune{0x2808, 0x280B}, cells)
	require.Equal(t, "⠈⠋", braille.Glyphs(cells))
	require.Equal(t, "U+2808 U+280B", braille.Codepoints(cells))

	require.Empty(t, braille.EncodeCells(nil))
	require.Equal(t, "", braille.Codepoints(nil))
}

func TestCodepointFormat(t *testing.T) {
	pattern := regexp.MustCompile(`^U\+[0-9A-F]{4,}$`)
	for mask := 0; mask <= 0xFF; mask++ {
		cp := braille.Codepoint(braille.Cell(uint8(mask)))
		require.Regexp(t, pattern, cp)
	}
	require.Equal(t, "U+28FF", braille.Codepoint(0x28FF))
	require.Equal(t, "U+0041", braille.Codepoint('A'))
}

func TestDotsInvertsMask(t *testing.T) {
	for mask := 0; mask <= 0xFF; mask++ {
		m := uint8(mask)
		require.Equal(t, m, braille.Mask(braille.Dots(m)))
	}
	require.Equal(t, "", braille.Dots(0))
	require.Equal(t, "1246", braille.Dots(braille.Mask("6421")))
}
