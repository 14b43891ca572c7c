package sagachain

import (
	"fmt"

	"github.com/fortressi/sagachain/dag"
)

// Graph returns the saga's steps as a chain graph whose node labels are the
// step names, in execution order.
func (s *Saga) Graph() (*dag.Graph, error) {
	labels := make([]string, len(s.steps))
	for i, step := range s.steps {
		labels[i] = string(step.Name())
	}

	g, err := dag.Chain(labels...)
	if err != nil {
		return nil, fmt.Errorf("saga %s: building graph: %w", s.name, err)
	}
	return g, nil
}

// Dot renders the saga as a Graphviz digraph.
func (s *Saga) Dot() (string, error) {
	g, err := s.Graph()
	if err != nil {
		return "", err
	}
	return g.ExportToDot()
}
