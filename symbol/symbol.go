/*
 *	Copyright 2023 Jan Pfeifer
 *
 *	Licensed under the Apache License, Version 2.0 (the "License");
 *	you may not use this file except in compliance with the License.
 *	You may obtain a copy of the License at
 *
 *	http://www.apache.org/licenses/LICENSE-2.0
 *
 *	Unless required by applicable law or agreed to in writing, software
 *	distributed under the License is distributed on an "AS IS" BASIS,
 *	WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 *	See the License for the specific language governing permissions and
 *	limitations under the License.
 */

// Package symbol implements the symbolic computation graph: Symbol nodes,
// their composition into larger graphs, shape inference over the graph
// topology and structural reverse-mode gradient derivation.
//
// A Symbol is pure structure: it describes a computation before any numeric
// data is attached. The main elements are:
//
//   - Variable: a named leaf input that will require concrete storage at
//     execution time (an "argument").
//
//   - Create: instantiates an atomic operator (from an injected
//     operators.Registry) as a leaf node awaiting composition.
//
//   - Compose / Call: wire input Symbols into an operator node. Compose
//     mutates the node in place; Call first deep-copies, so the original
//     Symbol is never changed by invocation (copy-on-call). Unfilled operator
//     argument slots materialize as implicit variables named
//     "<node>_<arg>" -- this is how e.g. FullyConnected gets its
//     "fc0_weight" and "fc0_bias" arguments without the caller declaring
//     them.
//
//   - Group: aggregates the outputs of several Symbols, in order.
//
//   - Add, Sub, Mul, Div: arithmetic sugar over the corresponding builtin
//     elementwise operators.
//
// Shape inference (Symbol.InferShapes) and gradient derivation (Symbol.Grad)
// are documented in their own files.
//
// Symbols are not safe for concurrent composition: Compose mutates the node
// being composed (never its inputs). Use Call to reuse a node as a template
// across call sites -- each invocation deep-copies before mutating.
package symbol

import (
	"fmt"
	"strings"
	"sync"

	"github.com/gomlx/symgraph/operators"
	"github.com/gomlx/symgraph/types"
	"github.com/pkg/errors"
)

// node is the internal graph node. Symbols share nodes until composition
// forces a deep copy (see Symbol.Call and Symbol.Copy); once the last Symbol
// referencing a node is dropped, the garbage collector reclaims it -- there
// is no explicit graph teardown.
type node struct {
	// op is nil for variables.
	op *operators.Descriptor

	// registry the operator was created from. Used to resolve its backward
	// operator during gradient derivation. Nil for variables.
	registry operators.Registry

	name  string
	attrs map[string]string

	// inputs are the composed input edges, aligned with op.ArgNames (or of
	// arbitrary length for VarArgs operators). Nil until composed.
	inputs []edge

	// composed is set once inputs have been attached. A composed node's
	// inputs never change, except through free-argument rebinding (see
	// Compose on an already-composed graph).
	composed bool
}

// edge references one output of a node.
type edge struct {
	node   *node
	output int
}

// Symbol is a node (or subgraph reference) in a directed acyclic computation
// graph. See the package documentation for an overview.
//
// The zero value is not usable; create Symbols with Variable, Create, Group
// or the arithmetic sugar.
type Symbol struct {
	// heads are the outputs of the Symbol, in order.
	heads []edge
}

// Variable creates a leaf Symbol with the given name, no inputs and one
// output (itself). It requires concrete storage when the graph is bound for
// execution. An empty name fails with ErrInvalidArgument.
func Variable(name string) (*Symbol, error) {
	if name == "" {
		return nil, errors.Wrap(ErrInvalidArgument, "Variable requires a non-empty name")
	}
	n := &node{name: name}
	return &Symbol{heads: []edge{{node: n}}}, nil
}

// MustVariable is like Variable but panics on error. Convenient in tests and
// examples where the name is a literal.
func MustVariable(name string) *Symbol {
	s, err := Variable(name)
	if err != nil {
		panic(err)
	}
	return s
}

// Create instantiates the operator registered under opName in the given
// registry, as a leaf Symbol awaiting composition (see Compose and Call).
//
// name is the node name; when empty a name is generated from the operator
// name plus a process-wide counter ("fullyconnected0" style). attrs are the
// operator's static attributes (e.g. "num_hidden" for FullyConnected) and
// may be nil.
func Create(registry operators.Registry, opName, name string, attrs map[string]string) (*Symbol, error) {
	if registry == nil {
		return nil, errors.Wrap(ErrInvalidArgument, "Create requires a non-nil operator registry")
	}
	desc, err := registry.Lookup(opName)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidArgument, "Create: %v", err)
	}
	if name == "" {
		name = autoName(desc.Name)
	}
	attrsCopy := make(map[string]string, len(attrs))
	for k, v := range attrs {
		attrsCopy[k] = v
	}
	n := &node{op: desc, registry: registry, name: name, attrs: attrsCopy}
	s := &Symbol{heads: make([]edge, desc.NumOutputs)}
	for ii := range s.heads {
		s.heads[ii] = edge{node: n, output: ii}
	}
	return s, nil
}

// Group creates a Symbol whose outputs are the concatenation of each input's
// outputs, preserving order. A nil entry fails with ErrInvalidArgument.
func Group(symbols []*Symbol) (*Symbol, error) {
	heads := make([]edge, 0, len(symbols))
	for ii, sym := range symbols {
		if sym == nil {
			return nil, errors.Wrapf(ErrInvalidArgument, "Group: symbol #%d is nil", ii)
		}
		heads = append(heads, sym.heads...)
	}
	return &Symbol{heads: heads}, nil
}

// Copy returns a deep copy of the Symbol: an independent graph sharing no
// mutable state with the original.
func (s *Symbol) Copy() *Symbol {
	mapping := make(map[*node]*node)
	heads := make([]edge, len(s.heads))
	for ii, head := range s.heads {
		heads[ii] = edge{node: copyNode(head.node, mapping), output: head.output}
	}
	return &Symbol{heads: heads}
}

func copyNode(n *node, mapping map[*node]*node) *node {
	if copied, found := mapping[n]; found {
		return copied
	}
	copied := &node{
		op:       n.op,
		registry: n.registry,
		name:     n.name,
		composed: n.composed,
	}
	mapping[n] = copied // Before recursing: diamonds in the DAG map to diamonds.
	if len(n.attrs) > 0 {
		copied.attrs = make(map[string]string, len(n.attrs))
		for k, v := range n.attrs {
			copied.attrs[k] = v
		}
	}
	if n.inputs != nil {
		copied.inputs = make([]edge, len(n.inputs))
		for ii, input := range n.inputs {
			copied.inputs[ii] = edge{node: copyNode(input.node, mapping), output: input.output}
		}
	}
	return copied
}

// topoNodes returns the graph nodes in topological order: inputs before the
// nodes that consume them, deterministically (slot order). Each node appears
// once.
func (s *Symbol) topoNodes() []*node {
	var ordered []*node
	visited := types.MakeSet[*node]()
	var visit func(n *node)
	visit = func(n *node) {
		if visited.Has(n) {
			return
		}
		visited.Insert(n)
		for _, input := range n.inputs {
			visit(input.node)
		}
		ordered = append(ordered, n)
	}
	for _, head := range s.heads {
		visit(head.node)
	}
	return ordered
}

// ListArguments returns the names of all arguments of the graph: the inputs
// that require concrete storage at execution time. The order is the graph
// traversal order (topological, inputs before the node that consumes them)
// and is stable across calls on the same composed graph.
//
// Operator nodes created but not yet composed contribute their unfilled
// slots as "<node>_<arg>" names.
func (s *Symbol) ListArguments() []string {
	var names []string
	for _, n := range s.topoNodes() {
		switch {
		case n.op == nil:
			names = append(names, n.name)
		case !n.composed && !n.op.VarArgs:
			for _, argName := range n.op.ArgNames {
				names = append(names, implicitName(n.name, argName))
			}
		}
	}
	return names
}

// ListOutputs returns the names of the outputs of the graph, in order. A
// variable output is its own name; operator outputs are named
// "<node>_output" (with an index suffix for multi-output operators).
func (s *Symbol) ListOutputs() []string {
	names := make([]string, 0, len(s.heads))
	for _, head := range s.heads {
		names = append(names, outputName(head))
	}
	return names
}

// ListAuxiliaryStates returns the names of the auxiliary states of the
// graph, in graph traversal order: shapeful running state slots with no
// gradient, named "<node>_<state>".
func (s *Symbol) ListAuxiliaryStates() []string {
	var names []string
	for _, n := range s.topoNodes() {
		if n.op == nil {
			continue
		}
		for _, auxName := range n.op.AuxStates {
			names = append(names, implicitName(n.name, auxName))
		}
	}
	return names
}

// Outputs returns the number of outputs of the Symbol.
func (s *Symbol) Outputs() int { return len(s.heads) }

func outputName(head edge) string {
	n := head.node
	if n.op == nil {
		return n.name
	}
	if n.op.NumOutputs == 1 {
		return n.name + "_output"
	}
	return fmt.Sprintf("%s_output%d", n.name, head.output)
}

func implicitName(nodeName, slotName string) string {
	return nodeName + "_" + slotName
}

// DebugString returns a human-readable structural dump of the graph:
// nodes in topological order with their operators, attributes and inputs.
// The format is diagnostic only and may change.
func (s *Symbol) DebugString() string {
	var sb strings.Builder
	sb.WriteString("Symbol outputs:\n")
	for ii, head := range s.heads {
		fmt.Fprintf(&sb, "\toutput[%d]=%s\n", ii, outputName(head))
	}
	for _, n := range s.topoNodes() {
		if n.op == nil {
			fmt.Fprintf(&sb, "Variable:%s\n", n.name)
			continue
		}
		fmt.Fprintf(&sb, "--------------------\nOp:%s, Name=%s\n", n.op.Name, n.name)
		if len(n.attrs) > 0 {
			fmt.Fprintf(&sb, "Attrs:%v\n", n.attrs)
		}
		if !n.composed {
			sb.WriteString("(not composed)\n")
			continue
		}
		sb.WriteString("Inputs:\n")
		for ii, input := range n.inputs {
			fmt.Fprintf(&sb, "\targ[%d]=%s\n", ii, outputName(input))
		}
	}
	return sb.String()
}

// String implements fmt.Stringer with a short description; use DebugString
// for the full structural dump.
func (s *Symbol) String() string {
	return fmt.Sprintf("Symbol(outputs=%v)", s.ListOutputs())
}

var (
	muNameCounters sync.Mutex
	nameCounters   = make(map[string]int)
)

// autoName generates "<opname><counter>" default node names, mimicking the
// usual "fullyconnected0", "fullyconnected1", ... sequence.
func autoName(opName string) string {
	base := strings.ToLower(strings.TrimPrefix(opName, "_"))
	muNameCounters.Lock()
	defer muNameCounters.Unlock()
	count := nameCounters[base]
	nameCounters[base] = count + 1
	return fmt.Sprintf("%s%d", base, count)
}
