package table

import (
	"fmt"
	"strings"

	"github.com/FocuswithJustin/braille-lib/core/braille"
	"github.com/FocuswithJustin/braille-lib/core/errors"
)

// Entry field names the converter reads or writes.
const (
	FieldDots    = "dots"
	FieldBraille = "braille"
	FieldUnicode = "unicode"
)

// Mode selects how an entry's dots become cells.
type Mode string

const (
	// ModeCells encodes every descriptor as its own cell, so ["4", "124"]
	// renders as two cells.
	ModeCells Mode = "cells"
	// ModeCombined ORs all descriptors into a single cell.
	ModeCombined Mode = "combined"
)

// Modes lists the accepted encoding modes, default first.
var Modes = []Mode{ModeCells, ModeCombined}

// ParseMode validates a mode name. The empty string selects ModeCells.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeCells:
		return ModeCells, nil
	case ModeCombined:
		return ModeCombined, nil
	}
	return "", errors.NewValidation("mode", s, "must be one of cells, combined")
}

// Descriptors reads the dots field of an entry as descriptor strings.
// A scalar is one descriptor, a sequence yields one per item, null yields
// none. Non-string scalars use their printed form, so `dots: [1, 12]` reads
// as "1" and "12".
func Descriptors(v any) []string {
	switch d := v.(type) {
	case nil:
		return nil
	case []any:
		out := make([]string, 0, len(d))
		for _, item := range d {
			out = append(out, descriptorText(item))
		}
		return out
	case []string:
		return d
	default:
		return []string{descriptorText(d)}
	}
}

func descriptorText(v any) string {
	switch d := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(d)
	default:
		return fmt.Sprint(d)
	}
}

// Cells encodes descriptors according to mode. An empty list is one blank cell.
func (m Mode) Cells(descriptors []string) []rune {
	if len(descriptors) == 0 {
		return []rune{braille.Base}
	}
	if m == ModeCombined {
		return []rune{braille.Encode(descriptors...)}
	}
	return braille.EncodeCells(descriptors)
}

// Enrich returns a copy of entry with the derived braille and unicode fields
// when it has dots. Entries without dots come back unchanged.
func Enrich(entry Fields, mode Mode) Fields {
	v, ok := entry.Get(FieldDots)
	if !ok {
		return entry
	}
	cells := mode.Cells(Descriptors(v))
	out := entry.Clone()
	out = out.Set(FieldBraille, braille.Glyphs(cells))
	out = out.Set(FieldUnicode, braille.Codepoints(cells))
	return out
}
