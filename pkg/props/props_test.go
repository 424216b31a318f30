package props

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lgerste/chainopt/pkg/errors"
)

type target struct {
	amount  int
	memory  uint64
	factor  float64
	enabled bool
	lengths []int
	size    [2]int
	rng     [2]float64
}

func registerAll(p *Properties, tg *target) {
	p.Int(&tg.amount, "amount", "Amount of chains.")
	p.Uint64(&tg.memory, "available_memory", "Memory budget.")
	p.Float(&tg.factor, "factor", "A runtime factor.")
	p.Bool(&tg.enabled, "matrix_free", "Enable eliminations.")
	p.IntList(&tg.lengths, "length", "Chain lengths.")
	p.IntPair(&tg.size, "size_range", "Dimension range.")
	p.FloatPair(&tg.rng, "factor_range", "Factor range.")
}

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParseTextFormats(t *testing.T) {
	var tg target
	p := New()
	registerAll(p, &tg)

	config := strings.Join([]string{
		"amount 5",
		"available_memory 1024",
		"factor 2.5",
		"matrix_free true",
		"length 2,4,8",
		"size_range 1 10",
		"factor_range 0.5 1.5",
		"# a comment line",
		"amount 7", // repeated keys: last one wins
	}, "\n")

	if err := p.ParseFile(writeConfig(t, "config.txt", config), false); err != nil {
		t.Fatalf("ParseFile: %v", err)
	}

	if tg.amount != 7 {
		t.Errorf("amount = %d, want 7", tg.amount)
	}
	if tg.memory != 1024 {
		t.Errorf("memory = %d, want 1024", tg.memory)
	}
	if tg.factor != 2.5 {
		t.Errorf("factor = %g, want 2.5", tg.factor)
	}
	if !tg.enabled {
		t.Error("matrix_free not set")
	}
	if len(tg.lengths) != 3 || tg.lengths[2] != 8 {
		t.Errorf("lengths = %v", tg.lengths)
	}
	if tg.size != [2]int{1, 10} {
		t.Errorf("size = %v", tg.size)
	}
	if tg.rng != [2]float64{0.5, 1.5} {
		t.Errorf("rng = %v", tg.rng)
	}
}

func TestUnknownKey(t *testing.T) {
	var tg target
	p := New()
	registerAll(p, &tg)

	path := writeConfig(t, "config.txt", "bogus 1\namount 3\n")

	err := p.ParseFile(path, false)
	if !errors.Is(err, errors.CodeUnknownKey) {
		t.Fatalf("error = %v, want UNKNOWN_KEY", err)
	}

	// Skip mode ignores the foreign key and still reads the known one.
	if err := p.ParseFile(path, true); err != nil {
		t.Fatalf("skip mode: %v", err)
	}
	if tg.amount != 3 {
		t.Errorf("amount = %d, want 3", tg.amount)
	}
}

func TestEmptyConfig(t *testing.T) {
	p := New()
	err := p.ParseFile(writeConfig(t, "config.txt", "  \n\t\n"), false)
	if !errors.Is(err, errors.CodeInvalidConfig) {
		t.Errorf("error = %v, want INVALID_CONFIG", err)
	}
}

func TestMissingFile(t *testing.T) {
	p := New()
	err := p.ParseFile(filepath.Join(t.TempDir(), "nope.txt"), false)
	if !errors.Is(err, errors.CodeFileNotFound) {
		t.Errorf("error = %v, want FILE_NOT_FOUND", err)
	}
}

func TestMalformedValue(t *testing.T) {
	var tg target
	p := New()
	registerAll(p, &tg)

	err := p.ParseFile(writeConfig(t, "config.txt", "amount banana\n"), false)
	if !errors.Is(err, errors.CodeInvalidValue) {
		t.Errorf("error = %v, want INVALID_VALUE", err)
	}

	err = p.ParseFile(writeConfig(t, "short.txt", "size_range 1"), false)
	if !errors.Is(err, errors.CodeInvalidValue) {
		t.Errorf("truncated pair: error = %v, want INVALID_VALUE", err)
	}
}

func TestParseTOML(t *testing.T) {
	var tg target
	p := New()
	registerAll(p, &tg)

	config := strings.Join([]string{
		`amount = 4`,
		`matrix_free = true`,
		`length = [3, 5, 7]`,
		`size_range = [1, 10]`,
		`factor_range = [0.25, 0.75]`,
	}, "\n")

	if err := p.ParseFile(writeConfig(t, "config.toml", config), false); err != nil {
		t.Fatalf("ParseFile: %v", err)
	}

	if tg.amount != 4 {
		t.Errorf("amount = %d, want 4", tg.amount)
	}
	if !tg.enabled {
		t.Error("matrix_free not set")
	}
	if len(tg.lengths) != 3 || tg.lengths[1] != 5 {
		t.Errorf("lengths = %v", tg.lengths)
	}
	if tg.size != [2]int{1, 10} {
		t.Errorf("size = %v", tg.size)
	}
	if tg.rng != [2]float64{0.25, 0.75} {
		t.Errorf("rng = %v", tg.rng)
	}
}

func TestDuplicateRegistrationPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("duplicate registration did not panic")
		}
	}()
	var a, b int
	p := New()
	p.Int(&a, "amount", "first")
	p.Int(&b, "amount", "second")
}

func TestHelpListsAllKeys(t *testing.T) {
	var tg target
	p := New()
	registerAll(p, &tg)

	help := p.Help()
	for _, key := range []string{"amount", "available_memory", "length", "size_range"} {
		if !strings.Contains(help, key) {
			t.Errorf("help output misses key %q", key)
		}
	}
}
