package table_test

import (
	"bytes"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/FocuswithJustin/braille-lib/core/errors"
	"github.com/FocuswithJustin/braille-lib/core/table"
)

const letters = `schema_version: "1.0"
system_id: ueb
system_name: Unified English Braille
version: 2024 rules
source: BANA/ICEB official
locale: en
braille_type: grade1
cell_size: 6
entries:
  - id: letter_a
    category: alphabet
    subcategory: basic
    print: a
    dots: ["1"]
    context:
      position: any
      requires_indicator: false
      priority: 100
    role: letter
    tags: [letter, alphabetic]
    note: "<a> & friends"
  - id: letter_c
    print: c
    dots: ["14"]
  - id: letter_d
    print: d
    dots: ["145"]
  - id: capital
    print: null
    dots: ["6"]
`

var fixedTime = time.Date(2026, 10, 14, 8, 30, 0, 0, time.FixedZone("JST", 9*3600))

func parse(t *testing.T, src string) *table.Source {
	t.Helper()
	s, err := table.Parse([]byte(src), "test.yaml")
	require.NoError(t, err)
	return s
}

func TestParseHeader(t *testing.T) {
	s := parse(t, letters)
	require.Equal(t, "1.0", s.SchemaVersion)
	require.Equal(t, "ueb", s.SystemID)
	require.Equal(t, "Unified English Braille", s.SystemName)
	require.Equal(t, "2024 rules", s.Version)
	require.Equal(t, "BANA/ICEB official", s.Source)
	require.Equal(t, "en", s.Locale)
	require.Equal(t, "grade1", s.BrailleType)
	require.Equal(t, 6, s.CellSize)
	require.Len(t, s.Entries, 4)
	require.Nil(t, s.Settings)
}

func TestParseDefaults(t *testing.T) {
	s := parse(t, "system_id: kana\nentries: []\n")
	require.Equal(t, table.DefaultSchemaVersion, s.SchemaVersion)
	require.Equal(t, table.DefaultCellSize, s.CellSize)
	require.Equal(t, "", s.SystemName)
	require.Equal(t, "", s.Locale)
	require.Empty(t, s.Entries)

	s = parse(t, "schema_version: 2.0\ncell_size: 8\n")
	require.Equal(t, "2.0", s.SchemaVersion, "numeric versions keep their literal text")
	require.Equal(t, 8, s.CellSize)
	require.NotNil(t, s.Entries)
	require.Empty(t, s.Entries)
}

func TestParseErrors(t *testing.T) {
	_, err := table.Parse([]byte("invalid: yaml: content:\n  - [unclosed"), "bad.yaml")
	require.Error(t, err)
	var pe *errors.ParseError
	require.True(t, errors.As(err, &pe))
	require.Equal(t, "bad.yaml", pe.Path)

	_, err = table.Parse([]byte(""), "empty.yaml")
	require.ErrorIs(t, err, errors.ErrEmpty)

	_, err = table.Parse([]byte("---\n~\n"), "null.yaml")
	require.ErrorIs(t, err, errors.ErrEmpty)

	_, err = table.Parse([]byte("- a\n- b\n"), "list.yaml")
	require.ErrorIs(t, err, errors.ErrInvalidInput)

	_, err = table.Parse([]byte("entries: [1, 2]\n"), "scalars.yaml")
	require.ErrorIs(t, err, errors.ErrInvalidInput)

	_, err = table.Parse([]byte("cell_size: six\n"), "cell.yaml")
	require.ErrorIs(t, err, errors.ErrInvalidInput)
}

func TestFieldsKeepSourceOrder(t *testing.T) {
	s := parse(t, letters)
	require.Equal(t,
		[]string{"id", "category", "subcategory", "print", "dots", "context", "role", "tags", "note"},
		s.Entries[0].Keys())

	ctx, ok := s.Entries[0].Get("context")
	require.True(t, ok)
	require.Equal(t, []string{"position", "requires_indicator", "priority"}, ctx.(table.Fields).Keys())
}

func TestFieldsMergeKeys(t *testing.T) {
	src := `entries:
  - &base
    category: alphabet
    role: letter
  - <<: *base
    id: letter_b
    role: override
`
	s := parse(t, src)
	require.Equal(t, []string{"category", "role", "id"}, s.Entries[1].Keys())
	role, _ := s.Entries[1].Get("role")
	require.Equal(t, "override", role)
}

func TestEnrich(t *testing.T) {
	s := parse(t, letters)
	tests := []struct {
		index   int
		glyph   string
		unicode string
	}{
		{0, "⠁", "U+2801"},
		{1, "⠉", "U+2809"},
		{2, "⠙", "U+2819"},
		{3, "⠠", "U+2820"},
	}
	for _, tt := range tests {
		e := table.Enrich(s.Entries[tt.index], table.ModeCells)
		glyph, _ := e.Get(table.FieldBraille)
		cp, _ := e.Get(table.FieldUnicode)
		require.Equal(t, tt.glyph, glyph)
		require.Equal(t, tt.unicode, cp)
		keys := e.Keys()
		require.Equal(t, []string{table.FieldBraille, table.FieldUnicode}, keys[len(keys)-2:])
	}
	require.False(t, s.Entries[0].Has(table.FieldBraille), "Enrich must not modify its input")
}

func TestEnrichModes(t *testing.T) {
	s := parse(t, `entries:
  - id: sequence
    dots: ["4", "124"]
  - id: split
    dots: ["1", "2"]
  - id: numeric
    dots: [1, 12]
  - id: blank
    dots: []
  - id: nulled
    dots: ~
  - id: scalar
    dots: "1-2"
`)
	cases := []struct {
		mode    table.Mode
		want    []string
		unicode []string
	}{
		{
			mode:    table.ModeCells,
			want:    []string{"⠈⠋", "⠁⠂", "⠁⠃", "⠀", "⠀", "⠃"},
			unicode: []string{"U+2808 U+280B", "U+2801 U+2802", "U+2801 U+2803", "U+2800", "U+2800", "U+2803"},
		},
		{
			mode:    table.ModeCombined,
			want:    []string{"⠋", "⠃", "⠃", "⠀", "⠀", "⠃"},
			unicode: []string{"U+280B", "U+2803", "U+2803", "U+2800", "U+2800", "U+2803"},
		},
	}
	for _, c := range cases {
		t.Run(string(c.mode), func(t *testing.T) {
			for i, entry := range s.Entries {
				e := table.Enrich(entry, c.mode)
				glyph, _ := e.Get(table.FieldBraille)
				cp, _ := e.Get(table.FieldUnicode)
				require.Equal(t, c.want[i], glyph, "entry %d", i)
				require.Equal(t, c.unicode[i], cp, "entry %d", i)
			}
		})
	}
}

func TestEnrichReplacesAuthoredFieldsInPlace(t *testing.T) {
	s := parse(t, "entries:\n  - id: a\n    braille: \"?\"\n    dots: [\"1\"]\n")
	e := table.Enrich(s.Entries[0], table.ModeCells)
	require.Equal(t, []string{"id", "braille", "dots", "unicode"}, e.Keys())
	glyph, _ := e.Get(table.FieldBraille)
	require.Equal(t, "⠁", glyph)
}

func TestEntriesWithoutDotsPassThrough(t *testing.T) {
	src := "entries:\n  - id: special\n    print: \"<tab> & co\"\n    priority: 7\n    ratio: 0.5\n    flag: true\n"
	s := parse(t, src)
	doc := table.Build(s, fixedTime, table.ModeCells)
	require.Len(t, doc.Entries, 1)
	require.False(t, doc.Entries[0].Has(table.FieldBraille))
	require.False(t, doc.Entries[0].Has(table.FieldUnicode))

	data, err := doc.Entries[0].MarshalJSON()
	require.NoError(t, err)
	require.Equal(t, `{"id":"special","print":"<tab> & co","priority":7,"ratio":0.5,"flag":true}`, string(data))
}

func TestNumbersKeepTheirLiteralText(t *testing.T) {
	src := "entries:\n  - id: x\n    weight: 1.0\n    big: 1e3\n    neg: -2.50\n    count: 12\n    hex: 0x1F\n    padded: 007\n"
	s := parse(t, src)
	doc := table.Build(s, fixedTime, table.ModeCells)

	data, err := doc.Entries[0].MarshalJSON()
	require.NoError(t, err)
	require.Equal(t, `{"id":"x","weight":1.0,"big":1e3,"neg":-2.50,"count":12,"hex":31,"padded":7}`, string(data))
}

func TestNumericDotsReadAsDescriptors(t *testing.T) {
	s := parse(t, "entries:\n  - id: b\n    dots: [12]\n")
	e := table.Enrich(s.Entries[0], table.ModeCells)
	glyph, _ := e.Get(table.FieldBraille)
	require.Equal(t, "⠃", glyph)
}

func TestBuildDocument(t *testing.T) {
	s := parse(t, letters)
	doc := table.Build(s, fixedTime, table.ModeCells)

	require.Equal(t, table.SchemaURI, doc.Schema)
	require.Equal(t, "ueb", doc.SystemID)
	require.Equal(t, "2026-10-13T23:30:00Z", doc.GeneratedAt)
	require.Len(t, doc.Entries, len(s.Entries))

	pattern := regexp.MustCompile(`^U\+[0-9A-F]{4,}( U\+[0-9A-F]{4,})*$`)
	for i, e := range doc.Entries {
		id, _ := e.Get("id")
		srcID, _ := s.Entries[i].Get("id")
		require.Equal(t, srcID, id, "entries stay in source order")

		glyph, _ := e.Get(table.FieldBraille)
		require.NotEmpty(t, glyph)
		cp, _ := e.Get(table.FieldUnicode)
		require.Regexp(t, pattern, cp)
	}
}

func TestDocumentEncoding(t *testing.T) {
	doc := table.Build(parse(t, letters), fixedTime, table.ModeCells)
	data, err := doc.Bytes()
	require.NoError(t, err)
	out := string(data)

	require.True(t, strings.HasPrefix(out, "{\n  \"$schema\": "))
	require.Contains(t, out, `"braille": "⠁"`)
	require.Contains(t, out, `"note": "<a> & friends"`)
	require.NotContains(t, out, `\u`)
	require.NotContains(t, out, `"settings"`)

	order := []string{`"$schema"`, `"schema_version"`, `"system_id"`, `"system_name"`, `"version"`,
		`"source"`, `"locale"`, `"braille_type"`, `"cell_size"`, `"generated_at"`, `"entries"`}
	last := -1
	for _, key := range order {
		idx := strings.Index(out, key)
		require.Greater(t, idx, last, "key %s out of order", key)
		last = idx
	}
}

func TestDocumentSettingsPassThrough(t *testing.T) {
	s := parse(t, "settings:\n  capital_indicator: \"6\"\n  number_sign: \"3456\"\nentries: []\n")
	doc := table.Build(s, fixedTime, table.ModeCells)
	data, err := doc.Bytes()
	require.NoError(t, err)
	require.Contains(t, string(data), `"settings": {`)
	require.Contains(t, string(data), `"entries": []`)
}

func TestDocumentRoundTripKeepsOrder(t *testing.T) {
	doc := table.Build(parse(t, letters), fixedTime, table.ModeCells)
	data, err := doc.Bytes()
	require.NoError(t, err)

	back, err := table.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	require.Equal(t, doc.Entries[0].Keys(), back.Entries[0].Keys())

	again, err := back.Bytes()
	require.NoError(t, err)
	require.Equal(t, string(data), string(again))
}

func TestBuildIsDeterministic(t *testing.T) {
	s := parse(t, letters)
	a, err := table.Build(s, fixedTime, table.ModeCells).Bytes()
	require.NoError(t, err)
	b, err := table.Build(parse(t, letters), fixedTime, table.ModeCells).Bytes()
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestParseMode(t *testing.T) {
	m, err := table.ParseMode("")
	require.NoError(t, err)
	require.Equal(t, table.ModeCells, m)

	m, err = table.ParseMode("Combined")
	require.NoError(t, err)
	require.Equal(t, table.ModeCombined, m)

	_, err = table.ParseMode("grade2")
	require.ErrorIs(t, err, errors.ErrInvalidInput)
}
