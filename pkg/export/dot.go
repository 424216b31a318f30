package export

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-graphviz"

	"github.com/lgerste/chainopt/pkg/errors"
	"github.com/lgerste/chainopt/pkg/sequence"
)

// SequenceToDOT converts an operation sequence to Graphviz DOT: one node per
// operation labelled with its listing form, one edge from every producer to
// its consumer.
func SequenceToDOT(seq *sequence.Sequence) string {
	var b strings.Builder
	b.WriteString("digraph G {\n")

	for idx := 0; idx < seq.Len(); idx++ {
		fmt.Fprintf(&b, "  %d [label=%q]\n", idx, seq.At(idx).String())
	}
	for producer := 0; producer < seq.Len(); producer++ {
		for consumer := 0; consumer < seq.Len(); consumer++ {
			if seq.At(consumer).DependsOn(seq.At(producer)) {
				fmt.Fprintf(&b, "  %d -> %d\n", producer, consumer)
			}
		}
	}

	b.WriteString("}\n")
	return b.String()
}

// WriteSequenceDOT writes the DOT form of seq as sequence_{name}.dot in dir.
func WriteSequenceDOT(dir, name string, seq *sequence.Sequence) (string, error) {
	path := filepath.Join(dir, fmt.Sprintf("sequence_%s.dot", name))
	if err := os.WriteFile(path, []byte(SequenceToDOT(seq)), 0o644); err != nil {
		return "", errors.Wrap(errors.CodeIO, err, "write %s", path)
	}
	return path, nil
}

// RenderSVG renders a DOT graph to SVG using Graphviz.
func RenderSVG(ctx context.Context, dot string) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, errors.Wrap(errors.CodeIO, err, "init graphviz")
	}
	defer gv.Close()

	g, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return nil, errors.Wrap(errors.CodeIO, err, "parse DOT")
	}
	defer g.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, graphviz.SVG, &buf); err != nil {
		return nil, errors.Wrap(errors.CodeIO, err, "render SVG")
	}
	return buf.Bytes(), nil
}

// RenderSVGFile reads a DOT file and writes the rendered SVG to w.
func RenderSVGFile(ctx context.Context, dotPath string, w io.Writer) error {
	dot, err := os.ReadFile(dotPath)
	if err != nil {
		return errors.Wrap(errors.CodeFileNotFound, err, "read %s", dotPath)
	}
	svg, err := RenderSVG(ctx, string(dot))
	if err != nil {
		return err
	}
	if _, err := w.Write(svg); err != nil {
		return errors.Wrap(errors.CodeIO, err, "write SVG")
	}
	return nil
}
