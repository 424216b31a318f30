package export

import (
	"strings"
	"testing"

	"github.com/lgerste/chainopt/pkg/chain"
	"github.com/lgerste/chainopt/pkg/sequence"
)

func testSequence() *sequence.Sequence {
	s := sequence.New()
	s.Push(chain.Operation{Action: chain.ActionAccumulation, Mode: chain.ModeTangent, J: 0, K: 0, I: 0, FMA: 10})
	s.Push(chain.Operation{Action: chain.ActionAccumulation, Mode: chain.ModeAdjoint, J: 1, K: 1, I: 1, FMA: 20})
	s.Push(chain.Operation{Action: chain.ActionMultiplication, Mode: chain.ModeNone, J: 1, K: 0, I: 0, FMA: 5})
	return s
}

func TestSequenceToDOT(t *testing.T) {
	dot := SequenceToDOT(testSequence())

	if !strings.HasPrefix(dot, "digraph G {") {
		t.Error("missing digraph header")
	}
	for _, want := range []string{
		"0 [label=", "1 [label=", "2 [label=",
		"0 -> 2", "1 -> 2",
	} {
		if !strings.Contains(dot, want) {
			t.Errorf("DOT output misses %q", want)
		}
	}
	if strings.Contains(dot, "2 -> 0") || strings.Contains(dot, "2 -> 1") {
		t.Error("edge direction reversed: consumers must not point at producers")
	}
}

func TestWriteSequenceDOT(t *testing.T) {
	dir := t.TempDir()
	path, err := WriteSequenceDOT(dir, "2_0", testSequence())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(path, "sequence_2_0.dot") {
		t.Errorf("path = %s", path)
	}
}
