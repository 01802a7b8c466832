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

package symbol

import (
	"fmt"

	"github.com/gomlx/symgraph/types"
	"github.com/pkg/errors"
)

// Inputs is the payload of a composition: input Symbols wired either
// positionally or by argument name. Supplying both forms at once fails with
// ErrInvalidArgument.
type Inputs struct {
	Positional []*Symbol
	Named      map[string]*Symbol
}

// Positional is shorthand for Inputs{Positional: symbols}.
func Positional(symbols ...*Symbol) Inputs {
	return Inputs{Positional: symbols}
}

// Named is shorthand for Inputs{Named: symbols}.
func Named(symbols map[string]*Symbol) Inputs {
	return Inputs{Named: symbols}
}

// validate checks the payload form and that every entry is a usable,
// single-output Symbol, returning its head edge for each.
func (in Inputs) validate() (positional []edge, named map[string]edge, err error) {
	if len(in.Positional) > 0 && len(in.Named) > 0 {
		return nil, nil, errors.Wrap(ErrInvalidArgument,
			"compose accepts input Symbols either positionally or by name, not both")
	}
	singleHead := func(key string, sym *Symbol) (edge, error) {
		if sym == nil {
			return edge{}, errors.Wrapf(ErrInvalidArgument, "compose: input %s is nil", key)
		}
		if len(sym.heads) != 1 {
			return edge{}, errors.Wrapf(ErrInvalidArgument,
				"compose: input %s has %d outputs, only single-output Symbols can be wired into an argument",
				key, len(sym.heads))
		}
		return sym.heads[0], nil
	}
	for ii, sym := range in.Positional {
		head, err := singleHead(fmt.Sprintf("#%d", ii), sym)
		if err != nil {
			return nil, nil, err
		}
		positional = append(positional, head)
	}
	if len(in.Named) > 0 {
		named = make(map[string]edge, len(in.Named))
		for key, sym := range in.Named {
			head, err := singleHead(`"`+key+`"`, sym)
			if err != nil {
				return nil, nil, err
			}
			named[key] = head
		}
	}
	return positional, named, nil
}

// Call invokes the Symbol as a function on the given inputs: it produces a
// new independent deep copy and composes that copy (copy-on-call). The
// original Symbol is never mutated by invocation. name, when non-empty,
// renames the composed node.
func (s *Symbol) Call(name string, in Inputs) (*Symbol, error) {
	copied := s.Copy()
	if err := copied.Compose(name, in); err != nil {
		return nil, err
	}
	return copied, nil
}

// Compose wires the given inputs into the Symbol's node, mutating it in
// place. The Symbol must have a single operator-node output; the inputs are
// never mutated. Callers reusing a node as a template should prefer Call.
//
// For a node not yet composed, inputs fill the operator's argument slots;
// slots left unfilled materialize as implicit variables named
// "<node>_<arg>". For an already-composed graph, inputs rebind its free
// variables: by name, or positionally in ListArguments order.
func (s *Symbol) Compose(name string, in Inputs) error {
	positional, named, err := in.validate()
	if err != nil {
		return err
	}
	if len(s.heads) == 0 || s.heads[0].node.op == nil {
		return errors.Wrap(ErrInvalidArgument, "only operator nodes can be composed, not variables")
	}
	n := s.heads[0].node
	for ii := 1; ii < len(s.heads); ii++ {
		if s.heads[ii].node != n {
			return errors.Wrap(ErrInvalidArgument, "cannot compose a Group of multiple nodes")
		}
	}
	// Inputs must not (transitively) contain the node being composed.
	for _, input := range positional {
		if reaches(input.node, n) {
			return errors.Wrap(ErrInvalidArgument, "composition would create a cycle")
		}
	}
	for _, input := range named {
		if reaches(input.node, n) {
			return errors.Wrap(ErrInvalidArgument, "composition would create a cycle")
		}
	}
	if name != "" {
		n.name = name
	}
	if !n.composed {
		return composeSlots(n, positional, named)
	}
	return rebindFreeArguments(n, positional, named)
}

// composeSlots attaches inputs to an uncomposed operator node.
func composeSlots(n *node, positional []edge, named map[string]edge) error {
	if n.op.VarArgs {
		if len(named) > 0 {
			return errors.Wrapf(ErrInvalidArgument,
				"operator %s takes a variable number of inputs, pass them positionally", n.op.Name)
		}
		n.inputs = positional
		n.composed = true
		return nil
	}
	if len(positional) > len(n.op.ArgNames) {
		return errors.Wrapf(ErrInvalidArgument,
			"operator %s takes at most %d inputs (%v), got %d",
			n.op.Name, len(n.op.ArgNames), n.op.ArgNames, len(positional))
	}
	slots := make([]edge, len(n.op.ArgNames))
	filled := make([]bool, len(n.op.ArgNames))
	for ii, input := range positional {
		slots[ii] = input
		filled[ii] = true
	}
	for key, input := range named {
		slot := -1
		for ii, argName := range n.op.ArgNames {
			if argName == key {
				slot = ii
				break
			}
		}
		if slot < 0 {
			return errors.Wrapf(ErrInvalidArgument,
				"operator %s has no argument %q (arguments are %v)", n.op.Name, key, n.op.ArgNames)
		}
		slots[slot] = input
		filled[slot] = true
	}
	// Unfilled slots become implicit variables.
	for ii := range slots {
		if !filled[ii] {
			slots[ii] = edge{node: &node{name: implicitName(n.name, n.op.ArgNames[ii])}}
		}
	}
	n.inputs = slots
	n.composed = true
	return nil
}

// rebindFreeArguments replaces free variables of an already-composed graph:
// named inputs match variable names, positional inputs match the
// ListArguments order.
func rebindFreeArguments(n *node, positional []edge, named map[string]edge) error {
	freeVars := freeVariables(n)
	replacement := make(map[*node]edge)
	if len(positional) > 0 {
		if len(positional) > len(freeVars) {
			return errors.Wrapf(ErrInvalidArgument,
				"composed graph has %d free arguments, got %d inputs", len(freeVars), len(positional))
		}
		for ii, input := range positional {
			replacement[freeVars[ii]] = input
		}
	}
	for key, input := range named {
		var target *node
		for _, v := range freeVars {
			if v.name == key {
				target = v
				break
			}
		}
		if target == nil {
			return errors.Wrapf(ErrInvalidArgument, "composed graph has no free argument %q", key)
		}
		replacement[target] = input
	}
	for _, graphNode := range nodeTopo(n) {
		for ii, input := range graphNode.inputs {
			if newEdge, found := replacement[input.node]; found {
				graphNode.inputs[ii] = newEdge
			}
		}
	}
	return nil
}

// freeVariables returns the variable nodes reachable from n, in traversal
// order.
func freeVariables(n *node) []*node {
	var variables []*node
	for _, graphNode := range nodeTopo(n) {
		if graphNode.op == nil {
			variables = append(variables, graphNode)
		}
	}
	return variables
}

// nodeTopo is topoNodes starting from a single node.
func nodeTopo(n *node) []*node {
	return (&Symbol{heads: []edge{{node: n}}}).topoNodes()
}

// reaches reports whether target is reachable from n (inclusive).
func reaches(n, target *node) bool {
	visited := types.MakeSet[*node]()
	var visit func(n *node) bool
	visit = func(n *node) bool {
		if n == target {
			return true
		}
		if visited.Has(n) {
			return false
		}
		visited.Insert(n)
		for _, input := range n.inputs {
			if visit(input.node) {
				return true
			}
		}
		return false
	}
	return visit(n)
}
