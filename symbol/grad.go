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
	"github.com/gomlx/symgraph/operators"
	"github.com/gomlx/symgraph/types"
	"github.com/pkg/errors"
)

// This file implements reverse-mode differentiation over the graph topology.
// The derivation is purely structural: it builds a new graph of
// differentiation operators (each operator's BackwardOp), it does not compute
// numeric gradients.
//
// Conventions:
//
//   - The adjoint of a node output is the accumulated gradient of the graph
//     outputs with respect to that output. Adjoints are generated in reverse
//     topological order, from the outputs back to the selected arguments.
//   - Each graph output is seeded with a _OnesLike node. For non-scalar
//     outputs this yields the vector-Jacobian product against an all-ones
//     vector; the graph is normally a loss-like scalar-reducing computation,
//     otherwise interpreting the result is the caller's responsibility.
//   - A node output consumed by several nodes accumulates one adjoint
//     contribution per consumer; they are summed with ElementwiseSum.

// Grad constructs a new Symbol whose outputs are the gradients of the
// graph's outputs with respect to each argument named in wrt, in wrt order.
//
// Every name in wrt must be present in ListArguments, otherwise it fails
// with ErrInvalidArgument; so does a non-differentiable operator (one with
// no backward operator) on the path between an output and a wrt argument.
// Arguments unreachable from the outputs get a _ZerosLike gradient.
func (s *Symbol) Grad(wrt []string) (*Symbol, error) {
	if len(wrt) == 0 {
		return nil, errors.Wrap(ErrInvalidArgument, "Grad requires at least one argument name")
	}
	argNames := types.SetWith(s.ListArguments()...)
	wrtSet := types.MakeSet[string](len(wrt))
	for _, name := range wrt {
		if !argNames.Has(name) {
			return nil, errors.Wrapf(ErrInvalidArgument,
				"Grad: %q is not an argument of the graph (arguments are %v)", name, s.ListArguments())
		}
		wrtSet.Insert(name)
	}

	// Differentiate over a private copy: the gradient graph embeds the
	// forward graph, and must share no mutable state with the original.
	g := s.Copy()
	nodes := g.topoNodes()
	for _, n := range nodes {
		if n.op != nil && !n.composed {
			return nil, errors.Wrapf(ErrInvalidArgument,
				"cannot differentiate: node %q (%s) has not been composed", n.name, n.op.Name)
		}
	}

	// needsGrad marks nodes on a path from a wrt argument to an output.
	// Nodes not marked never require an adjoint.
	needsGrad := make(map[*node]bool, len(nodes))
	for _, n := range nodes { // Topological order: inputs are resolved first.
		if n.op == nil {
			needsGrad[n] = wrtSet.Has(n.name)
			continue
		}
		for _, input := range n.inputs {
			if needsGrad[input.node] {
				needsGrad[n] = true
				break
			}
		}
	}

	// contributions accumulates adjoint edges per node output.
	contributions := make(map[*node][][]edge, len(nodes))
	addContribution := func(target edge, adjoint edge) {
		perOutput := contributions[target.node]
		if perOutput == nil {
			numOutputs := 1
			if target.node.op != nil {
				numOutputs = target.node.op.NumOutputs
			}
			perOutput = make([][]edge, numOutputs)
			contributions[target.node] = perOutput
		}
		perOutput[target.output] = append(perOutput[target.output], adjoint)
	}

	// Seed each output with ones. The seed and accumulation operators are
	// resolved through the same registry the graph's nodes were created
	// from, so a graph built on an injected catalog never mixes in builtin
	// descriptors.
	registry := gradRegistry(nodes)
	onesLike, err := registry.Lookup(operators.OpOnesLike)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidArgument,
			"Grad: seed operator %s: %v", operators.OpOnesLike, err)
	}
	for _, head := range g.heads {
		if !needsGrad[head.node] {
			continue
		}
		seed := &node{
			op:       onesLike,
			registry: registry,
			name:     autoName(operators.OpOnesLike),
			inputs:   []edge{head},
			composed: true,
		}
		addContribution(head, edge{node: seed})
	}

	// Push adjoints backwards.
	for ii := len(nodes) - 1; ii >= 0; ii-- {
		n := nodes[ii]
		if n.op == nil || !needsGrad[n] {
			continue
		}
		perOutput := contributions[n]
		if perOutput == nil {
			continue // Not on any path from an output.
		}
		if n.op.NumOutputs != 1 {
			return nil, errors.Wrapf(ErrInvalidArgument,
				"Grad: differentiating through multi-output operator %s (node %q) is not supported",
				n.op.Name, n.name)
		}
		outputGrad, err := sumAdjoints(registry, perOutput[0])
		if err != nil {
			return nil, err
		}
		if outputGrad == nil {
			continue
		}
		if n.op.BackwardOp == "" {
			return nil, errors.Wrapf(ErrInvalidArgument,
				"Grad: operator %s (node %q) is not differentiable", n.op.Name, n.name)
		}
		backwardDesc, err := n.registry.Lookup(n.op.BackwardOp)
		if err != nil {
			return nil, errors.Wrapf(ErrInvalidArgument,
				"Grad: backward operator of %s (node %q): %v", n.op.Name, n.name, err)
		}
		backward := &node{
			op:       backwardDesc,
			registry: n.registry,
			name:     autoName(backwardDesc.Name),
			inputs:   append([]edge{*outputGrad}, n.inputs...),
			composed: true,
		}
		for slot, input := range n.inputs {
			if !needsGrad[input.node] || slot >= backwardDesc.NumOutputs {
				continue
			}
			addContribution(input, edge{node: backward, output: slot})
		}
	}

	// Collect the adjoints of the wrt arguments, in wrt order.
	variablesByName := make(map[string]*node)
	for _, v := range freeVariablesOf(g) {
		variablesByName[v.name] = v
	}
	zerosLike, err := registry.Lookup(operators.OpZerosLike)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidArgument,
			"Grad: zero-gradient operator %s: %v", operators.OpZerosLike, err)
	}
	heads := make([]edge, 0, len(wrt))
	for _, name := range wrt {
		v := variablesByName[name]
		var adjoints []edge
		if perOutput := contributions[v]; perOutput != nil {
			adjoints = perOutput[0]
		}
		total, err := sumAdjoints(registry, adjoints)
		if err != nil {
			return nil, err
		}
		if total == nil {
			// Argument unreachable from the outputs: its gradient is zero.
			zeros := &node{
				op:       zerosLike,
				registry: registry,
				name:     autoName(operators.OpZerosLike),
				inputs:   []edge{{node: v}},
				composed: true,
			}
			total = &edge{node: zeros}
		}
		heads = append(heads, *total)
	}
	return &Symbol{heads: heads}, nil
}

// gradRegistry returns the registry the graph's operator nodes were created
// from. A variable-only graph carries no registry and falls back to the
// builtin catalog.
func gradRegistry(nodes []*node) operators.Registry {
	for _, n := range nodes {
		if n.registry != nil {
			return n.registry
		}
	}
	return operators.Builtin()
}

// sumAdjoints collapses a list of adjoint contributions into a single edge:
// nil for none, the edge itself for one, an ElementwiseSum node otherwise.
func sumAdjoints(registry operators.Registry, adjoints []edge) (*edge, error) {
	switch len(adjoints) {
	case 0:
		return nil, nil
	case 1:
		return &adjoints[0], nil
	}
	desc, err := registry.Lookup(operators.OpElementwiseSum)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidArgument,
			"Grad: accumulation operator %s: %v", operators.OpElementwiseSum, err)
	}
	sum := &node{
		op:       desc,
		registry: registry,
		name:     autoName(operators.OpElementwiseSum),
		inputs:   adjoints,
		composed: true,
	}
	return &edge{node: sum}, nil
}
