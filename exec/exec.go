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

// Package exec binds a symbolic graph to a device context and concrete
// storage, producing an Executor: the materialized, execution-ready form of
// the graph.
//
// Bind validates argument completeness, per-argument gradient policies and
// storage shapes -- shape inference runs as a precondition, and unlike
// Symbol.InferShapes an incomplete result here is a hard error
// (ErrIncompleteBinding), because binding cannot proceed without fully
// determined shapes. SimpleBind is the convenience path that allocates
// whatever storage the caller did not supply.
//
// The actual compilation and kernel dispatch of the bound plan belong to the
// execution engine proper and are outside this package's contract.
package exec

import (
	"fmt"

	"github.com/gomlx/symgraph/devices"
	"github.com/gomlx/symgraph/symbol"
	"github.com/gomlx/symgraph/types/shapes"
	"github.com/gomlx/symgraph/types/tensors"
	"github.com/gomlx/symgraph/types/xslices"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Error kinds returned (wrapped) by this package, besides
// symbol.ErrInvalidArgument and symbol.ErrShapeMismatch. Check them with
// errors.Is.
var (
	// ErrArgumentCountMismatch indicates a positionally-supplied sequence
	// whose length does not match the graph's argument count.
	ErrArgumentCountMismatch = errors.New("argument count mismatch")

	// ErrMissingArgument indicates a name-to-storage mapping that does not
	// cover every argument: partial binding is not permitted for primary
	// arguments.
	ErrMissingArgument = errors.New("missing argument")

	// ErrMissingAuxiliaryState indicates auxiliary-state storage that does
	// not cover every auxiliary state.
	ErrMissingAuxiliaryState = errors.New("missing auxiliary state")

	// ErrIncompleteBinding indicates that shape inference could not resolve
	// all shapes from the supplied storage. There is no inconsistency, just
	// insufficient information -- but binding requires full shapes.
	ErrIncompleteBinding = errors.New("incomplete binding")
)

// Storage assigns tensors to named slots (arguments or auxiliary states),
// either positionally or by name. Supplying both forms at once fails with
// symbol.ErrInvalidArgument.
type Storage struct {
	List  []*tensors.Tensor
	Named map[string]*tensors.Tensor
}

// resolve aligns the storage with names. countErr and missingErr are the
// error kinds for a wrong-length List and an uncovered name respectively.
// With allowMissing, uncovered names resolve to nil instead of failing --
// the args_grad case.
func (st Storage) resolve(kind string, names []string, allowMissing bool, countErr, missingErr error) ([]*tensors.Tensor, error) {
	if len(st.List) > 0 && len(st.Named) > 0 {
		return nil, errors.Wrapf(symbol.ErrInvalidArgument,
			"%s storage can be given as a list or a mapping, not both", kind)
	}
	if st.Named == nil {
		if len(st.List) != len(names) {
			return nil, errors.Wrapf(countErr,
				"%d %s buffers given, graph requires %d (%v)", len(st.List), kind, len(names), names)
		}
		for ii, tensor := range st.List {
			if tensor == nil {
				return nil, errors.Wrapf(symbol.ErrInvalidArgument,
					"%s storage #%d (%q) is nil", kind, ii, names[ii])
			}
		}
		return xslices.Copy(st.List), nil
	}
	resolved := make([]*tensors.Tensor, len(names))
	for ii, name := range names {
		tensor, found := st.Named[name]
		if !found {
			if allowMissing {
				continue
			}
			return nil, errors.Wrapf(missingErr, "no %s storage for %q", kind, name)
		}
		if tensor == nil {
			return nil, errors.Wrapf(symbol.ErrInvalidArgument, "%s storage for %q is nil", kind, name)
		}
		resolved[ii] = tensor
	}
	for name := range st.Named {
		known := false
		for _, candidate := range names {
			if candidate == name {
				known = true
				break
			}
		}
		if !known {
			return nil, errors.Wrapf(symbol.ErrInvalidArgument,
				"%s storage given for %q, which the graph does not have", kind, name)
		}
	}
	return resolved, nil
}

// Executor is a graph bound to a device context and concrete storage: the
// execution-ready plan. It holds strong references to the graph and to every
// storage buffer for its whole lifetime; dropping the Executor releases
// them.
type Executor struct {
	graph        *symbol.Symbol
	ctx          devices.Context
	args         []*tensors.Tensor
	argsGrad     []*tensors.Tensor // Aligned with args; nil entries mean "no gradient requested".
	auxStates    []*tensors.Tensor
	gradReqs     []GradReq
	outputShapes []shapes.Shape
}

// Symbol returns the bound graph.
func (e *Executor) Symbol() *symbol.Symbol { return e.graph }

// Context returns the device context the plan is bound to.
func (e *Executor) Context() devices.Context { return e.ctx }

// ArgArrays returns the argument storage, aligned with
// Symbol().ListArguments().
func (e *Executor) ArgArrays() []*tensors.Tensor { return e.args }

// GradArrays returns the gradient storage, aligned with the arguments; nil
// if no backward pass was requested, with nil entries for arguments without
// gradient storage.
func (e *Executor) GradArrays() []*tensors.Tensor { return e.argsGrad }

// AuxArrays returns the auxiliary-state storage, aligned with
// Symbol().ListAuxiliaryStates().
func (e *Executor) AuxArrays() []*tensors.Tensor { return e.auxStates }

// GradReqs returns the per-argument gradient policies, aligned with the
// arguments.
func (e *Executor) GradReqs() []GradReq { return e.gradReqs }

// OutputShapes returns the inferred shapes of the graph outputs, aligned
// with Symbol().ListOutputs().
func (e *Executor) OutputShapes() []shapes.Shape { return e.outputShapes }

// String implements fmt.Stringer.
func (e *Executor) String() string {
	return fmt.Sprintf("Executor(%s, %d args, %d aux states, outputs=%v)",
		e.ctx, len(e.args), len(e.auxStates), e.outputShapes)
}

// Bind produces an Executor from the graph, a device context and concrete
// storage.
//
// args must fully cover ListArguments, positionally (exact length, else
// ErrArgumentCountMismatch) or by name (every argument present, else
// ErrMissingArgument). argsGrad is optional; a Named form may be partial --
// arguments it omits get no gradient storage. auxStates must fully cover
// ListAuxiliaryStates (else ErrMissingAuxiliaryState). gradReq assigns the
// gradient policies, see GradReqSpec.
//
// Shape inference from the shapes of the args storage runs as a
// precondition: inconsistent shapes fail with symbol.ErrShapeMismatch, and
// an incomplete inference fails with ErrIncompleteBinding.
func Bind(graph *symbol.Symbol, ctx devices.Context, args Storage, argsGrad *Storage,
	gradReq GradReqSpec, auxStates Storage) (*Executor, error) {
	if graph == nil {
		return nil, errors.Wrap(symbol.ErrInvalidArgument, "Bind requires a non-nil graph")
	}
	if !ctx.Ok() {
		return nil, errors.Wrapf(symbol.ErrInvalidArgument, "%s is not a valid device context", ctx)
	}
	argNames := graph.ListArguments()
	auxNames := graph.ListAuxiliaryStates()

	argArrays, err := args.resolve("argument", argNames, false, ErrArgumentCountMismatch, ErrMissingArgument)
	if err != nil {
		return nil, err
	}
	var gradArrays []*tensors.Tensor
	if argsGrad != nil {
		gradArrays, err = argsGrad.resolve("gradient", argNames, true,
			ErrArgumentCountMismatch, ErrMissingArgument)
		if err != nil {
			return nil, err
		}
	}
	auxArrays, err := auxStates.resolve("auxiliary-state", auxNames, false,
		ErrMissingAuxiliaryState, ErrMissingAuxiliaryState)
	if err != nil {
		return nil, err
	}
	gradReqs, err := gradReq.resolve(argNames)
	if err != nil {
		return nil, err
	}

	// Shape inference precondition: binding requires fully determined shapes.
	knownShapes := make(map[string]shapes.Shape, len(argNames))
	for ii, name := range argNames {
		knownShapes[name] = argArrays[ii].Shape()
	}
	inferred, err := graph.InferShapes(symbol.NamedShapes(knownShapes))
	if err != nil {
		return nil, err
	}
	if inferred == nil {
		return nil, errors.Wrapf(ErrIncompleteBinding,
			"shape inference could not resolve all shapes of graph with arguments %v", argNames)
	}
	for ii, name := range argNames {
		if !argArrays[ii].Shape().Equal(inferred.Arguments[ii]) {
			return nil, errors.Wrapf(symbol.ErrShapeMismatch,
				"storage for argument %q has shape %s, inferred %s",
				name, argArrays[ii].Shape(), inferred.Arguments[ii])
		}
		if gradArrays != nil && gradArrays[ii] != nil && !gradArrays[ii].Shape().Equal(inferred.Arguments[ii]) {
			return nil, errors.Wrapf(symbol.ErrShapeMismatch,
				"gradient storage for argument %q has shape %s, argument has shape %s",
				name, gradArrays[ii].Shape(), inferred.Arguments[ii])
		}
	}
	for ii, name := range auxNames {
		if !auxArrays[ii].Shape().Equal(inferred.AuxStates[ii]) {
			return nil, errors.Wrapf(symbol.ErrShapeMismatch,
				"storage for auxiliary state %q has shape %s, inferred %s",
				name, auxArrays[ii].Shape(), inferred.AuxStates[ii])
		}
	}

	klog.V(1).Infof("Bind: graph with %d arguments, %d auxiliary states bound to %s",
		len(argNames), len(auxNames), ctx)
	return &Executor{
		graph:        graph,
		ctx:          ctx,
		args:         argArrays,
		argsGrad:     gradArrays,
		auxStates:    auxArrays,
		gradReqs:     gradReqs,
		outputShapes: inferred.Outputs,
	}, nil
}

// SimpleBind is the convenience path to Bind: it infers shapes from the
// supplied named storage, allocates fresh zero-initialized storage for every
// argument not supplied, every gradient buffer and every auxiliary state,
// and then delegates to Bind with the uniform gradReq policy token.
//
// It fails with ErrIncompleteBinding if the supplied storage does not
// determine all shapes.
func SimpleBind(graph *symbol.Symbol, ctx devices.Context, gradReq string,
	named map[string]*tensors.Tensor) (*Executor, error) {
	if graph == nil {
		return nil, errors.Wrap(symbol.ErrInvalidArgument, "SimpleBind requires a non-nil graph")
	}
	knownShapes := make(map[string]shapes.Shape, len(named))
	for name, tensor := range named {
		if tensor == nil {
			return nil, errors.Wrapf(symbol.ErrInvalidArgument, "storage for %q is nil", name)
		}
		knownShapes[name] = tensor.Shape()
	}
	inferred, err := graph.InferShapes(symbol.NamedShapes(knownShapes))
	if err != nil {
		return nil, err
	}
	if inferred == nil {
		return nil, errors.Wrapf(ErrIncompleteBinding,
			"shapes of the supplied storage (%v) do not determine the full graph",
			xslices.SortedKeys(named))
	}

	argNames := graph.ListArguments()
	argArrays := make([]*tensors.Tensor, len(argNames))
	gradArrays := make([]*tensors.Tensor, len(argNames))
	for ii, name := range argNames {
		if tensor, found := named[name]; found {
			argArrays[ii] = tensor
		} else {
			argArrays[ii] = tensors.Zeros(inferred.Arguments[ii])
		}
		gradArrays[ii] = tensors.Zeros(inferred.Arguments[ii])
	}
	auxArrays := xslices.Map(inferred.AuxStates, tensors.Zeros)

	return Bind(graph, ctx, Storage{List: argArrays}, &Storage{List: gradArrays},
		GradReqSpec{All: gradReq}, Storage{List: auxArrays})
}
