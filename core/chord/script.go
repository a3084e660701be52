package chord

import (
	"os"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/FocuswithJustin/braille-lib/core/errors"
)

// A key script lists events in either notation, separated by whitespace,
// commas or semicolons:
//
//	f+ d+ f- d-        # short form: key then + (down) or - (up)
//	down j, up j       # long form
//
// Key names are letters, digits and underscores starting with a letter.
//
//nolint:govet // participle grammar tags are not standard struct tags
type scriptGrammar struct {
	Events []*scriptEvent `@@*`
}

//nolint:govet // participle grammar tags are not standard struct tags
type scriptEvent struct {
	Long  *longEvent  `  @@`
	Short *shortEvent `| @@`
}

//nolint:govet // participle grammar tags are not standard struct tags
type longEvent struct {
	Dir string `@("down" | "up")`
	Key string `@Ident`
}

//nolint:govet // participle grammar tags are not standard struct tags
type shortEvent struct {
	Key string `@Ident`
	Dir string `@("+" | "-")`
}

var scriptLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Comment", Pattern: `#[^\n]*`},
	{Name: "Ident", Pattern: `[A-Za-z][A-Za-z0-9_]*`},
	{Name: "Punct", Pattern: `[+\-]`},
	{Name: "Whitespace", Pattern: `[\s,;]+`},
})

var scriptParser = participle.MustBuild[scriptGrammar](
	participle.Lexer(scriptLexer),
	participle.Elide("Whitespace", "Comment"),
	participle.CaseInsensitive("Ident"),
	participle.UseLookahead(2),
)

// ParseScript parses a key script. name is used in error messages.
func ParseScript(name, src string) ([]Event, error) {
	g, err := scriptParser.ParseString(name, src)
	if err != nil {
		return nil, errors.WrapParse("key script", name, err)
	}
	events := make([]Event, 0, len(g.Events))
	for _, e := range g.Events {
		var key, dir string
		if e.Long != nil {
			key, dir = e.Long.Key, e.Long.Dir
		} else {
			key, dir = e.Short.Key, e.Short.Dir
		}
		d, ok := ParseDirection(dir)
		if !ok {
			return nil, errors.NewParse("key script", name, "unknown direction "+dir)
		}
		events = append(events, Event{Key: normalizeKey(key), Dir: d})
	}
	return events, nil
}

// LoadScript reads and parses a key script file.
func LoadScript(path string) ([]Event, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &errors.NotFoundError{Resource: "key script", ID: path, Err: err}
		}
		return nil, errors.NewIO("read", path, err)
	}
	return ParseScript(path, string(data))
}

// ScriptSource parses src and returns a Source replaying it.
func ScriptSource(name, src string) (*SliceSource, error) {
	events, err := ParseScript(name, src)
	if err != nil {
		return nil, err
	}
	return NewSliceSource(events), nil
}
