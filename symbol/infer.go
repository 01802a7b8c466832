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
	"github.com/gomlx/symgraph/types/shapes"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// ShapesSpec is a partial assignment of argument shapes, either positional
// (aligned with ListArguments, missing/zero entries unknown) or by argument
// name. Supplying both forms at once fails with ErrInvalidArgument.
type ShapesSpec struct {
	Positional []shapes.Shape
	Named      map[string]shapes.Shape
}

// PositionalShapes is shorthand for ShapesSpec{Positional: known}.
func PositionalShapes(known ...shapes.Shape) ShapesSpec {
	return ShapesSpec{Positional: known}
}

// NamedShapes is shorthand for ShapesSpec{Named: known}.
func NamedShapes(known map[string]shapes.Shape) ShapesSpec {
	return ShapesSpec{Named: known}
}

// InferredShapes is the result of a completed shape inference. The three
// slices align with ListArguments, ListOutputs and ListAuxiliaryStates
// respectively, and every shape in them is fully known.
type InferredShapes struct {
	Arguments []shapes.Shape
	Outputs   []shapes.Shape
	AuxStates []shapes.Shape
}

// InferShapes propagates the known argument shapes forward and backward
// through the graph's operator constraints until a fixed point.
//
// If every argument, output and auxiliary-state shape is determined and
// consistent, it returns the full assignment. If there is not enough
// information, it returns (nil, nil) -- the incomplete sentinel is a normal
// outcome, not an error: callers probing interactively retry with more
// shapes. Mutually inconsistent shapes fail with ErrShapeMismatch, naming
// the conflicting shapes and the edge; a malformed spec fails with
// ErrInvalidArgument.
func (s *Symbol) InferShapes(known ShapesSpec) (*InferredShapes, error) {
	nodes := s.topoNodes()
	for _, n := range nodes {
		if n.op != nil && !n.composed {
			return nil, errors.Wrapf(ErrInvalidArgument,
				"cannot infer shapes: node %q (%s) has not been composed", n.name, n.op.Name)
		}
	}

	state := newShapeState(nodes)
	if err := state.seed(s, known); err != nil {
		return nil, err
	}
	if err := state.run(nodes); err != nil {
		return nil, err
	}
	return state.result(s, nodes), nil
}

// shapeState holds the per-node output and auxiliary shape slots during the
// fixed-point iteration.
type shapeState struct {
	outs map[*node][]shapes.Shape
	auxs map[*node][]shapes.Shape
}

func newShapeState(nodes []*node) *shapeState {
	state := &shapeState{
		outs: make(map[*node][]shapes.Shape, len(nodes)),
		auxs: make(map[*node][]shapes.Shape),
	}
	for _, n := range nodes {
		numOutputs := 1
		if n.op != nil {
			numOutputs = n.op.NumOutputs
		}
		state.outs[n] = make([]shapes.Shape, numOutputs)
		if n.op != nil && len(n.op.AuxStates) > 0 {
			state.auxs[n] = make([]shapes.Shape, len(n.op.AuxStates))
		}
	}
	return state
}

// seed resolves the ShapesSpec against the graph arguments and stores the
// known shapes into the corresponding variable slots.
func (state *shapeState) seed(s *Symbol, known ShapesSpec) error {
	if len(known.Positional) > 0 && len(known.Named) > 0 {
		return errors.Wrap(ErrInvalidArgument,
			"known shapes can be given either positionally or by name, not both")
	}
	argNodes := freeVariablesOf(s)
	validate := func(name string, shape shapes.Shape) error {
		for _, dim := range shape.Dimensions {
			if dim < 0 {
				return errors.Wrapf(ErrInvalidArgument,
					"shape %s given for argument %q has a negative dimension", shape, name)
			}
		}
		return nil
	}
	if len(known.Positional) > 0 {
		if len(known.Positional) > len(argNodes) {
			return errors.Wrapf(ErrInvalidArgument,
				"%d positional shapes given, graph has only %d arguments",
				len(known.Positional), len(argNodes))
		}
		for ii, shape := range known.Positional {
			if !shape.Ok() {
				continue
			}
			if err := validate(argNodes[ii].name, shape); err != nil {
				return err
			}
			state.outs[argNodes[ii]][0] = shape.Clone()
		}
		return nil
	}
	byName := make(map[string]*node, len(argNodes))
	for _, v := range argNodes {
		byName[v.name] = v
	}
	for name, shape := range known.Named {
		v, found := byName[name]
		if !found {
			return errors.Wrapf(ErrInvalidArgument,
				"graph has no argument %q (arguments are %v)", name, s.ListArguments())
		}
		if !shape.Ok() {
			continue
		}
		if err := validate(name, shape); err != nil {
			return err
		}
		state.outs[v][0] = shape.Clone()
	}
	return nil
}

// run sweeps the operator rules over the graph until no slot changes.
// Information flows forward within a sweep and backward across sweeps (the
// rules fill input slots too), so a fixed point is reached in at most a few
// passes over a DAG.
func (state *shapeState) run(nodes []*node) error {
	// Monotonic fill of a finite set of slots always terminates; the bound
	// only guards against a non-monotonic operator rule.
	maxPasses := 2*len(nodes) + 2
	for pass := 0; pass < maxPasses; pass++ {
		changed := false
		for _, n := range nodes {
			if n.op == nil {
				continue
			}
			nodeChanged, err := state.applyRule(n)
			if err != nil {
				return err
			}
			changed = changed || nodeChanged
		}
		klog.V(2).Infof("InferShapes: pass %d over %d nodes, changed=%v", pass, len(nodes), changed)
		if !changed {
			return nil
		}
	}
	return nil
}

// applyRule runs one operator's inference rule and writes any new
// information back into the graph slots, checking consistency at every
// shared edge.
func (state *shapeState) applyRule(n *node) (changed bool, err error) {
	in := make([]shapes.Shape, len(n.inputs))
	for ii, input := range n.inputs {
		in[ii] = state.outs[input.node][input.output].Clone()
	}
	out := make([]shapes.Shape, len(state.outs[n]))
	for ii, shape := range state.outs[n] {
		out[ii] = shape.Clone()
	}
	aux := make([]shapes.Shape, len(state.auxs[n]))
	for ii, shape := range state.auxs[n] {
		aux[ii] = shape.Clone()
	}

	if _, err := n.op.InferShape(n.attrs, in, out, aux); err != nil {
		return false, errors.Wrapf(ErrShapeMismatch, "operator %s (node %q): %v", n.op.Name, n.name, err)
	}

	writeBack := func(slot *shapes.Shape, inferred shapes.Shape, edgeName string) error {
		merged, slotChanged, err := shapes.Unify(*slot, inferred)
		if err != nil {
			return errors.Wrapf(ErrShapeMismatch,
				"conflicting shapes at %s of node %q: had %s, inferred %s",
				edgeName, n.name, *slot, inferred)
		}
		if slotChanged {
			*slot = merged
			changed = true
		}
		return nil
	}
	for ii, input := range n.inputs {
		slot := &state.outs[input.node][input.output]
		argName := "input"
		if !n.op.VarArgs && ii < len(n.op.ArgNames) {
			argName = n.op.ArgNames[ii]
		}
		if err := writeBack(slot, in[ii], argName); err != nil {
			return changed, err
		}
	}
	for ii := range out {
		if err := writeBack(&state.outs[n][ii], out[ii], "output"); err != nil {
			return changed, err
		}
	}
	for ii := range aux {
		if err := writeBack(&state.auxs[n][ii], aux[ii], n.op.AuxStates[ii]); err != nil {
			return changed, err
		}
	}
	return changed, nil
}

// result builds the InferredShapes if everything resolved, or nil (the
// incomplete sentinel) otherwise.
func (state *shapeState) result(s *Symbol, nodes []*node) *InferredShapes {
	inferred := &InferredShapes{}
	for _, v := range freeVariablesOf(s) {
		shape := state.outs[v][0]
		if !shape.IsKnown() {
			return nil
		}
		inferred.Arguments = append(inferred.Arguments, shape.Clone())
	}
	for _, head := range s.heads {
		shape := state.outs[head.node][head.output]
		if !shape.IsKnown() {
			return nil
		}
		inferred.Outputs = append(inferred.Outputs, shape.Clone())
	}
	for _, n := range nodes {
		for ii := range state.auxs[n] {
			shape := state.auxs[n][ii]
			if !shape.IsKnown() {
				return nil
			}
			inferred.AuxStates = append(inferred.AuxStates, shape.Clone())
		}
	}
	return inferred
}

// freeVariablesOf returns the variable nodes of the Symbol's graph in
// ListArguments order.
func freeVariablesOf(s *Symbol) []*node {
	var variables []*node
	for _, n := range s.topoNodes() {
		if n.op == nil {
			variables = append(variables, n)
		}
	}
	return variables
}
