// Package braille encodes dot patterns as Unicode braille cells.
//
// A cell is one rune in the Braille Patterns block (U+2800..U+28FF). Each raised
// dot sets one bit of an 8-bit mask which is added to the base codepoint:
//
//	dot:  1  2  3  4   5   6   7   8
//	bit:  1  2  4  8  16  32  64 128
//
// Dot descriptors are strings such as "1246" or "1-2-4-6". Characters other than
// the digits 1 through 8 contribute no bits.
package braille

import (
	"fmt"
	"strings"
)

// Base is the codepoint of the blank braille cell.
const Base rune = 0x2800

// MaxDots is the number of dot positions in an eight-dot cell.
const MaxDots = 8

// dotBits maps a dot digit to its bit weight.
var dotBits = map[rune]uint8{
	'1': 1 << 0,
	'2': 1 << 1,
	'3': 1 << 2,
	'4': 1 << 3,
	'5': 1 << 4,
	'6': 1 << 5,
	'7': 1 << 6,
	'8': 1 << 7,
}

// DotBit returns the bit weight for a dot digit, or 0 if r is not '1'..'8'.
func DotBit(r rune) uint8 {
	return dotBits[r]
}

// Mask computes the bitmask of a single dot descriptor.
// Hyphenated descriptors are split on '-' and each part is trimmed; otherwise
// every character is looked up on its own.
func Mask(descriptor string) uint8 {
	var mask uint8
	if strings.Contains(descriptor, "-") {
		for _, part := range strings.Split(descriptor, "-") {
			for _, r := range strings.TrimSpace(part) {
				mask |= DotBit(r)
			}
		}
		return mask
	}
	for _, r := range descriptor {
		mask |= DotBit(r)
	}
	return mask
}

// MaskOf ORs the masks of all descriptors into one cell mask.
func MaskOf(descriptors ...string) uint8 {
	var mask uint8
	for _, d := range descriptors {
		mask |= Mask(d)
	}
	return mask
}

// Cell returns the braille rune for a mask.
func Cell(mask uint8) rune {
	return Base + rune(mask)
}

// Encode returns the single cell formed by the union of all descriptors.
// Encode() is the blank cell U+2800.
func Encode(descriptors ...string) rune {
	return Cell(MaskOf(descriptors...))
}

// EncodeCells returns one cell per descriptor, in input order.
func EncodeCells(descriptors []string) []rune {
	cells := make([]rune, 0, len(descriptors))
	for _, d := range descriptors {
		cells = append(cells, Cell(Mask(d)))
	}
	return cells
}

// Glyphs concatenates cells into a glyph string.
func Glyphs(cells []rune) string {
	return string(cells)
}

// Codepoint formats r as "U+XXXX" (uppercase, at least four hex digits).
func Codepoint(r rune) string {
	return fmt.Sprintf("U+%04X", r)
}

// Codepoints formats every rune of cells as a space separated codepoint list.
func Codepoints(cells []rune) string {
	parts := make([]string, len(cells))
	for i, c := range cells {
		parts[i] = Codepoint(c)
	}
	return strings.Join(parts, " ")
}

// Dots returns the canonical descriptor for a mask: raised dot digits in
// ascending order. The blank mask yields "".
func Dots(mask uint8) string {
	var b strings.Builder
	for i := 0; i < MaxDots; i++ {
		if mask&(1<<i) != 0 {
			b.WriteByte(byte('1' + i))
		}
	}
	return b.String()
}
