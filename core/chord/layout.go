package chord

import (
	"fmt"
	"sort"
	"strings"

	"github.com/FocuswithJustin/braille-lib/core/braille"
)

// DefaultLayout is used when no layout, or an unknown one, is requested.
const DefaultLayout = "fds-jkl"

// SpaceKey is the key name the built-in layouts use for the blank cell.
const SpaceKey = "space"

// Layout assigns physical keys to dot positions.
type Layout struct {
	Name string
	// Dots maps a lower-case key name to a dot number (1..8).
	Dots map[string]int
	// Space, if set, is a tracked key that raises no dots. Pressing it on its
	// own produces the blank cell.
	Space string
}

var layouts = map[string]Layout{
	// Perkins style home row: s d f for dots 3 2 1, j k l for dots 4 5 6.
	"fds-jkl": {
		Name:  "fds-jkl",
		Dots:  map[string]int{"f": 1, "d": 2, "s": 3, "j": 4, "k": 5, "l": 6},
		Space: SpaceKey,
	},
	"dwq-kop": {
		Name:  "dwq-kop",
		Dots:  map[string]int{"d": 1, "w": 2, "q": 3, "k": 4, "o": 5, "p": 6},
		Space: SpaceKey,
	},
}

// LookupLayout returns the named built-in layout.
func LookupLayout(name string) (Layout, bool) {
	l, ok := layouts[strings.ToLower(strings.TrimSpace(name))]
	return l, ok
}

// LayoutByName returns the named layout, falling back to DefaultLayout.
func LayoutByName(name string) Layout {
	if l, ok := LookupLayout(name); ok {
		return l
	}
	return layouts[DefaultLayout]
}

// LayoutNames lists the built-in layouts in sorted order.
func LayoutNames() []string {
	names := make([]string, 0, len(layouts))
	for name := range layouts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewLayout builds a custom layout. Dot numbers must be 1..8 and keys unique.
func NewLayout(name string, dots map[string]int, space string) (Layout, error) {
	l := Layout{Name: name, Dots: make(map[string]int, len(dots)), Space: normalizeKey(space)}
	seen := make(map[int]string, len(dots))
	for key, dot := range dots {
		k := normalizeKey(key)
		if k == "" {
			return Layout{}, fmt.Errorf("layout %s: empty key name", name)
		}
		if dot < 1 || dot > braille.MaxDots {
			return Layout{}, fmt.Errorf("layout %s: key %q has dot %d, want 1..%d", name, key, dot, braille.MaxDots)
		}
		if prev, dup := seen[dot]; dup {
			return Layout{}, fmt.Errorf("layout %s: dot %d assigned to both %q and %q", name, dot, prev, k)
		}
		if k == l.Space {
			return Layout{}, fmt.Errorf("layout %s: key %q is both a dot and the space key", name, k)
		}
		seen[dot] = k
		l.Dots[k] = dot
	}
	return l, nil
}

// Tracked reports whether the layout intercepts key.
func (l Layout) Tracked(key string) bool {
	k := normalizeKey(key)
	if l.Space != "" && k == l.Space {
		return true
	}
	_, ok := l.Dots[k]
	return ok
}

// Bit returns the mask bit for key, 0 for the space key or untracked keys.
func (l Layout) Bit(key string) uint8 {
	dot, ok := l.Dots[normalizeKey(key)]
	if !ok {
		return 0
	}
	return braille.DotBit(rune('0' + dot))
}

// KeyFor returns the key assigned to dot, for display.
func (l Layout) KeyFor(dot int) (string, bool) {
	for k, d := range l.Dots {
		if d == dot {
			return k, true
		}
	}
	return "", false
}

// String renders the layout as "name: f=1 d=2 ...", ordered by dot.
func (l Layout) String() string {
	var b strings.Builder
	b.WriteString(l.Name)
	b.WriteString(":")
	for dot := 1; dot <= braille.MaxDots; dot++ {
		if k, ok := l.KeyFor(dot); ok {
			fmt.Fprintf(&b, " %s=%d", k, dot)
		}
	}
	if l.Space != "" {
		fmt.Fprintf(&b, " %s=blank", l.Space)
	}
	return b.String()
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}
