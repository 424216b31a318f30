// Package export emits the solver results: GraphML descriptions of the
// optimized chains, DOT graphs of the emitted operation sequences (with an
// optional SVG render), and the batch results CSV.
package export

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/lgerste/chainopt/pkg/chain"
	"github.com/lgerste/chainopt/pkg/errors"
)

// WriteGraphML emits the chain with its per-thread optimized costs. One node
// per chain endpoint, one directed edge per elemental carrying the single
// directional evaluation costs and the adjoint tape size.
func WriteGraphML(w io.Writer, c *chain.JacobianChain) error {
	var b strings.Builder

	b.WriteString("<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n")
	b.WriteString("<graphml xmlns=\"http://graphml.graphdrawing.org/xmlns\" " +
		"xmlns:xsi=\"http://www.w3.org/2001/XMLSchema-instance\" " +
		"xsi:schemaLocation=\"http://graphml.graphdrawing.org/xmlns " +
		"http://graphml.graphdrawing.org/xmlns/1.0/graphml.xsd\">\n")

	for t := 1; t < len(c.OptimizedCosts); t++ {
		fmt.Fprintf(&b, "  <key id=\"optimized_costs_%d\" for=\"graph\" "+
			"attr.name=\"optimized_costs_%d\" attr.type=\"long\" />\n", t, t)
	}
	b.WriteString("  <key id=\"index\" for=\"node\" attr.name=\"index\" attr.type=\"long\" />\n")
	b.WriteString("  <key id=\"size\" for=\"node\" attr.name=\"size\" attr.type=\"long\" />\n")
	b.WriteString("  <key id=\"adjoint_cost\" for=\"edge\" attr.name=\"adjoint_cost\" attr.type=\"long\" />\n")
	b.WriteString("  <key id=\"tangent_cost\" for=\"edge\" attr.name=\"tangent_cost\" attr.type=\"long\" />\n")
	b.WriteString("  <key id=\"adjoint_memory\" for=\"edge\" attr.name=\"adjoint_memory\" attr.type=\"long\" />\n")
	b.WriteString("  <key id=\"has_model\" for=\"edge\" attr.name=\"has_model\" attr.type=\"boolean\" />\n")

	b.WriteString("  <graph id=\"G\" edgedefault=\"directed\" " +
		"parse.nodeids=\"free\" parse.edgeids=\"canonical\" parse.order=\"nodesfirst\">\n")
	for t := 1; t < len(c.OptimizedCosts); t++ {
		fmt.Fprintf(&b, "    <data key=\"optimized_costs_%d\">%d</data>\n", t, c.OptimizedCosts[t])
	}

	if c.Length() > 0 {
		first := &c.Elementals[0]
		writeGraphMLNode(&b, first.I, first.N)
	}
	for idx := range c.Elementals {
		jac := &c.Elementals[idx]
		writeGraphMLNode(&b, jac.J, jac.M)
	}
	for idx := range c.Elementals {
		jac := &c.Elementals[idx]
		fmt.Fprintf(&b, "    <edge id=\"%d\" source=\"%d\" target=\"%d\">\n", jac.I, jac.I, jac.J)
		fmt.Fprintf(&b, "      <data key=\"adjoint_cost\">%d</data>\n", jac.AdjointEval)
		fmt.Fprintf(&b, "      <data key=\"tangent_cost\">%d</data>\n", jac.TangentEval)
		fmt.Fprintf(&b, "      <data key=\"adjoint_memory\">%d</data>\n", jac.EdgesInDAG)
		b.WriteString("      <data key=\"has_model\">1</data>\n")
		b.WriteString("    </edge>\n")
	}

	b.WriteString("  </graph>\n")
	b.WriteString("</graphml>\n")

	_, err := io.WriteString(w, b.String())
	return err
}

func writeGraphMLNode(b *strings.Builder, index, size int) {
	fmt.Fprintf(b, "    <node id=\"%d\">\n", index)
	fmt.Fprintf(b, "      <data key=\"index\">%d</data>\n", index)
	fmt.Fprintf(b, "      <data key=\"size\">%d</data>\n", size)
	b.WriteString("    </node>\n")
}

// GraphMLPath returns the output file name for a chain: chain_{L}_{id}.xml.
func GraphMLPath(dir string, c *chain.JacobianChain) string {
	return filepath.Join(dir, fmt.Sprintf("chain_%d_%d.xml", c.Length(), c.ID))
}

// WriteGraphMLFile writes the chain to its canonical path under dir.
func WriteGraphMLFile(dir string, c *chain.JacobianChain) (string, error) {
	path := GraphMLPath(dir, c)
	f, err := os.Create(path)
	if err != nil {
		return "", errors.Wrap(errors.CodeIO, err, "create %s", path)
	}
	defer f.Close()
	if err := WriteGraphML(f, c); err != nil {
		return "", errors.Wrap(errors.CodeIO, err, "write %s", path)
	}
	return path, nil
}

// graphmlDoc mirrors the subset of the format the writer emits, for ReadGraphML.
type graphmlDoc struct {
	Graph struct {
		Data  []graphmlData `xml:"data"`
		Nodes []struct {
			ID   string        `xml:"id,attr"`
			Data []graphmlData `xml:"data"`
		} `xml:"node"`
		Edges []struct {
			Source string        `xml:"source,attr"`
			Target string        `xml:"target,attr"`
			Data   []graphmlData `xml:"data"`
		} `xml:"edge"`
	} `xml:"graph"`
}

type graphmlData struct {
	Key   string `xml:"key,attr"`
	Value string `xml:",chardata"`
}

// ReadGraphML parses a file the writer produced back into a chain skeleton:
// elemental dimensions, evaluation costs, tape sizes and the optimized costs
// per thread count. Runtime factors are reconstructed as cost/edges.
func ReadGraphML(r io.Reader) (*chain.JacobianChain, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(errors.CodeIO, err, "read GraphML")
	}

	var doc graphmlDoc
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(errors.CodeIO, err, "parse GraphML")
	}

	sizes := make(map[int]int, len(doc.Graph.Nodes))
	for _, node := range doc.Graph.Nodes {
		index, err := strconv.Atoi(node.ID)
		if err != nil {
			return nil, errors.Wrap(errors.CodeIO, err, "node id %q", node.ID)
		}
		for _, d := range node.Data {
			if d.Key == "size" {
				size, err := strconv.Atoi(strings.TrimSpace(d.Value))
				if err != nil {
					return nil, errors.Wrap(errors.CodeIO, err, "node %d size", index)
				}
				sizes[index] = size
			}
		}
	}

	c := &chain.JacobianChain{Elementals: make([]chain.Jacobian, len(doc.Graph.Edges))}
	for _, edge := range doc.Graph.Edges {
		i, err := strconv.Atoi(edge.Source)
		if err != nil {
			return nil, errors.Wrap(errors.CodeIO, err, "edge source %q", edge.Source)
		}
		if i < 0 || i >= len(c.Elementals) {
			return nil, errors.New(errors.CodeIO, "edge source %d out of range", i)
		}

		jac := &c.Elementals[i]
		jac.I = i
		jac.J = i + 1
		jac.N = sizes[i]
		jac.M = sizes[i+1]
		for _, d := range edge.Data {
			value := strings.TrimSpace(d.Value)
			switch d.Key {
			case "tangent_cost":
				cost, err := strconv.ParseUint(value, 10, 64)
				if err != nil {
					return nil, errors.Wrap(errors.CodeIO, err, "edge %d tangent_cost", i)
				}
				jac.TangentEval = cost
			case "adjoint_cost":
				cost, err := strconv.ParseUint(value, 10, 64)
				if err != nil {
					return nil, errors.Wrap(errors.CodeIO, err, "edge %d adjoint_cost", i)
				}
				jac.AdjointEval = cost
			case "adjoint_memory":
				mem, err := strconv.Atoi(value)
				if err != nil {
					return nil, errors.Wrap(errors.CodeIO, err, "edge %d adjoint_memory", i)
				}
				jac.EdgesInDAG = mem
			}
		}
		if jac.EdgesInDAG > 0 {
			jac.TangentFactor = float64(jac.TangentEval) / float64(jac.EdgesInDAG)
			jac.AdjointFactor = float64(jac.AdjointEval) / float64(jac.EdgesInDAG)
		}
	}

	for _, d := range doc.Graph.Data {
		if !strings.HasPrefix(d.Key, "optimized_costs_") {
			continue
		}
		t, err := strconv.Atoi(strings.TrimPrefix(d.Key, "optimized_costs_"))
		if err != nil {
			continue
		}
		for len(c.OptimizedCosts) <= t {
			c.OptimizedCosts = append(c.OptimizedCosts, 0)
		}
		cost, err := strconv.ParseUint(strings.TrimSpace(d.Value), 10, 64)
		if err != nil {
			return nil, errors.Wrap(errors.CodeIO, err, "graph %s", d.Key)
		}
		c.OptimizedCosts[t] = cost
	}

	return c, nil
}
