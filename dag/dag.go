// Package dag renders the steps of a saga as a directed graph.
package dag

import (
	"fmt"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/encoding"
	"gonum.org/v1/gonum/graph/encoding/dot"
	"gonum.org/v1/gonum/graph/simple"
)

type Graph struct {
	*simple.DirectedGraph
	attrs encoding.Attributes
}

func New() *Graph {
	return &Graph{DirectedGraph: simple.NewDirectedGraph()}
}

// Chain builds a graph with one node per label, each node pointing at the next.
func Chain(labels ...string) (*Graph, error) {
	g := New()
	if err := g.SetAttribute(encoding.Attribute{Key: "rankdir", Value: "LR"}); err != nil {
		return nil, err
	}

	var prev *Node
	for _, label := range labels {
		node := g.NewNode()
		if err := node.SetAttribute(encoding.Attribute{Key: "label", Value: label}); err != nil {
			return nil, err
		}
		g.AddNode(node)

		if prev != nil {
			g.SetEdge(g.NewEdge(prev, node))
		}
		prev = node
	}
	return g, nil
}

func (g *Graph) NewNode() *Node {
	return &Node{Node: g.DirectedGraph.NewNode()}
}

func (g *Graph) DOTAttributers() (encoding.Attributer, encoding.Attributer, encoding.Attributer) {
	return g, &Node{}, &edge{}
}

func (g *Graph) Attributes() []encoding.Attribute {
	return g.attrs.Attributes()
}

func (g *Graph) SetAttribute(attr encoding.Attribute) error {
	return g.attrs.SetAttribute(attr)
}

// Label returns the label attribute of the node with the given ID.
func (g *Graph) Label(id int64) (string, bool) {
	node, ok := g.Node(id).(*Node)
	if !ok {
		return "", false
	}
	for _, attr := range node.Attributes() {
		if attr.Key == "label" {
			return attr.Value, true
		}
	}
	return "", false
}

type Node struct {
	graph.Node
	attrs encoding.Attributes
}

func (n *Node) Attributes() []encoding.Attribute {
	return n.attrs.Attributes()
}

func (n *Node) SetAttribute(attr encoding.Attribute) error {
	return n.attrs.SetAttribute(attr)
}

// ExportToDot exports the graph to Graphviz .dot format.
func (g *Graph) ExportToDot() (string, error) {
	data, err := dot.Marshal(g, "", "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to export graph to DOT format: %v", err)
	}
	return string(data), nil
}

func (g *Graph) NewEdge(from, to graph.Node) graph.Edge {
	return &edge{Edge: g.DirectedGraph.NewEdge(from, to)}
}

type edge struct {
	graph.Edge
	attrs encoding.Attributes
}

func (e *edge) Attributes() []encoding.Attribute {
	return e.attrs.Attributes()
}

func (e *edge) SetAttribute(attr encoding.Attribute) error {
	return e.attrs.SetAttribute(attr)
}
