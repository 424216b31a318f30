// Package props implements the keyed configuration loader shared by the
// chain generator and the solvers. Components register (key, description,
// parser) entries against a registry; the registry then populates them from
// a plain-text config file of whitespace-separated "key value..." records,
// or from a TOML file carrying the same keys.
package props

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	charmlog "github.com/charmbracelet/log"

	"github.com/lgerste/chainopt/pkg/errors"
)

// entry binds a registered key to its parser and a value formatter.
type entry struct {
	key    string
	desc   string
	arity  int // number of whitespace fields the key consumes
	parse  func(fields []string) error
	format func() string
}

// Properties is a registry of configuration entries. The zero value is not
// usable; use New.
type Properties struct {
	entries []*entry
	byKey   map[string]*entry
}

// New creates an empty registry.
func New() *Properties {
	return &Properties{byKey: make(map[string]*entry)}
}

// Register adds a raw entry. arity is the number of whitespace-separated
// fields the value occupies in the plain-text format. Registering a key twice
// panics: duplicate registrations are programmer errors.
func (p *Properties) Register(key, desc string, arity int, parse func(fields []string) error, format func() string) {
	if _, dup := p.byKey[key]; dup {
		panic("props: duplicate key " + key)
	}
	e := &entry{key: key, desc: desc, arity: arity, parse: parse, format: format}
	p.entries = append(p.entries, e)
	p.byKey[key] = e
}

// Int registers a single-integer key.
func (p *Properties) Int(target *int, key, desc string) {
	p.Register(key, desc, 1, func(fields []string) error {
		v, err := strconv.Atoi(fields[0])
		if err != nil {
			return err
		}
		*target = v
		return nil
	}, func() string { return strconv.Itoa(*target) })
}

// Uint64 registers a single non-negative integer key.
func (p *Properties) Uint64(target *uint64, key, desc string) {
	p.Register(key, desc, 1, func(fields []string) error {
		v, err := strconv.ParseUint(fields[0], 10, 64)
		if err != nil {
			return err
		}
		*target = v
		return nil
	}, func() string { return strconv.FormatUint(*target, 10) })
}

// Float registers a single-real key.
func (p *Properties) Float(target *float64, key, desc string) {
	p.Register(key, desc, 1, func(fields []string) error {
		v, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return err
		}
		*target = v
		return nil
	}, func() string { return strconv.FormatFloat(*target, 'g', -1, 64) })
}

// Bool registers a boolean key ("true"/"false"/"1"/"0").
func (p *Properties) Bool(target *bool, key, desc string) {
	p.Register(key, desc, 1, func(fields []string) error {
		v, err := strconv.ParseBool(fields[0])
		if err != nil {
			return err
		}
		*target = v
		return nil
	}, func() string { return strconv.FormatBool(*target) })
}

// IntList registers a comma-separated list of integers occupying one field.
func (p *Properties) IntList(target *[]int, key, desc string) {
	p.Register(key, desc, 1, func(fields []string) error {
		items := strings.Split(fields[0], ",")
		out := make([]int, 0, len(items))
		for _, item := range items {
			v, err := strconv.Atoi(strings.TrimSpace(item))
			if err != nil {
				return err
			}
			out = append(out, v)
		}
		*target = out
		return nil
	}, func() string {
		items := make([]string, len(*target))
		for i, v := range *target {
			items[i] = strconv.Itoa(v)
		}
		return strings.Join(items, ",")
	})
}

// IntPair registers a two-integer key ("lo hi").
func (p *Properties) IntPair(target *[2]int, key, desc string) {
	p.Register(key, desc, 2, func(fields []string) error {
		for i := 0; i < 2; i++ {
			v, err := strconv.Atoi(fields[i])
			if err != nil {
				return err
			}
			target[i] = v
		}
		return nil
	}, func() string { return fmt.Sprintf("%d %d", target[0], target[1]) })
}

// FloatPair registers a two-real key ("lo hi").
func (p *Properties) FloatPair(target *[2]float64, key, desc string) {
	p.Register(key, desc, 2, func(fields []string) error {
		for i := 0; i < 2; i++ {
			v, err := strconv.ParseFloat(fields[i], 64)
			if err != nil {
				return err
			}
			target[i] = v
		}
		return nil
	}, func() string { return fmt.Sprintf("%g %g", target[0], target[1]) })
}

// ParseFile reads the config at path and populates every registered entry it
// mentions. Keys may repeat; the last occurrence wins. Unknown keys return an
// error unless skipUnknown is set (callers sharing one file between several
// registries opt in). Files ending in ".toml" are parsed as TOML instead of
// the plain-text format.
func (p *Properties) ParseFile(path string, skipUnknown bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(errors.CodeFileNotFound, err, "config %s", path)
	}
	if strings.TrimSpace(string(data)) == "" {
		return errors.New(errors.CodeInvalidConfig, "config %s is empty", path)
	}
	if strings.HasSuffix(path, ".toml") {
		return p.parseTOML(data, skipUnknown)
	}
	return p.parseText(string(data), skipUnknown)
}

func (p *Properties) parseText(data string, skipUnknown bool) error {
	for _, line := range strings.Split(data, "\n") {
		if idx := strings.IndexByte(line, '#'); idx >= 0 {
			line = line[:idx]
		}
		fields := strings.Fields(line)

		for pos := 0; pos < len(fields); {
			key := fields[pos]
			pos++

			e, ok := p.byKey[key]
			if !ok {
				if skipUnknown {
					// The value shape of a foreign key is unknowable here,
					// so skip the rest of its line. Registries sharing one
					// file re-sync at the next record.
					pos = len(fields)
					continue
				}
				return errors.New(errors.CodeUnknownKey, "unknown key %q (known keys:\n%s)", key, p.Help())
			}

			if pos+e.arity > len(fields) {
				return errors.New(errors.CodeInvalidValue, "key %q: expected %d value field(s)", key, e.arity)
			}
			if err := e.parse(fields[pos : pos+e.arity]); err != nil {
				return errors.Wrap(errors.CodeInvalidValue, err, "key %q", key)
			}
			pos += e.arity
		}
	}
	return nil
}

func (p *Properties) parseTOML(data []byte, skipUnknown bool) error {
	var raw map[string]any
	if err := toml.Unmarshal(data, &raw); err != nil {
		return errors.Wrap(errors.CodeInvalidConfig, err, "parse TOML")
	}
	for key, value := range raw {
		e, ok := p.byKey[key]
		if !ok {
			if skipUnknown {
				continue
			}
			return errors.New(errors.CodeUnknownKey, "unknown key %q (known keys:\n%s)", key, p.Help())
		}
		fields := tomlFields(value)
		if len(fields) != e.arity {
			if e.arity == 1 {
				// List-valued keys take one comma-separated field.
				fields = []string{strings.Join(fields, ",")}
			} else {
				return errors.New(errors.CodeInvalidValue, "key %q: expected %d value field(s), got %d", key, e.arity, len(fields))
			}
		}
		if err := e.parse(fields); err != nil {
			return errors.Wrap(errors.CodeInvalidValue, err, "key %q", key)
		}
	}
	return nil
}

// tomlFields flattens a decoded TOML value into the whitespace fields the
// plain-text parsers expect: one field per array element, one field for a
// scalar. parseTOML joins the fields into the comma-separated list form for
// single-field keys.
func tomlFields(value any) []string {
	switch v := value.(type) {
	case []any:
		fields := make([]string, len(v))
		for i, item := range v {
			fields[i] = fmt.Sprint(item)
		}
		return fields
	case bool:
		return []string{strconv.FormatBool(v)}
	default:
		return []string{fmt.Sprint(v)}
	}
}

// Help returns a two-column table of every registered key and its
// description, for -h output.
func (p *Properties) Help() string {
	width := 0
	for _, e := range p.entries {
		if len(e.key) > width {
			width = len(e.key)
		}
	}
	var b strings.Builder
	for _, e := range p.entries {
		fmt.Fprintf(&b, "  %-*s  %s\n", width, e.key, e.desc)
	}
	return b.String()
}

// Echo logs every registered key with its current value at debug level.
func (p *Properties) Echo(logger *charmlog.Logger) {
	for _, e := range p.entries {
		logger.Debug("config", "key", e.key, "value", e.format())
	}
}
