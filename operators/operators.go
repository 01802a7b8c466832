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

// Package operators defines the catalog of atomic operators that can be
// composed into a symbolic computation graph (see package symbol).
//
// Each operator is described by a Descriptor: its argument names, its
// auxiliary states, its shape-inference rule and a reference to the operator
// that computes its gradient. The symbol package treats each Descriptor as an
// opaque capability: given a name, a Registry yields a Descriptor that can be
// composed into a graph node and drives shape inference through it.
//
// Registries are explicit values injected into graph construction -- there is
// no process-wide catalog populated at init time. Builtin returns the default
// catalog with the elementwise arithmetic operators, FullyConnected,
// BatchNorm and Activation.
package operators

import (
	"sync"

	"github.com/gomlx/symgraph/types/shapes"
	"github.com/gomlx/symgraph/types/xslices"
	"github.com/pkg/errors"
)

// InferShapeFn is the shape-inference rule of one operator.
//
// It receives the shapes currently known for the operator inputs (in), outputs
// (out) and auxiliary states (aux), and fills in (in place) whatever it can
// deduce. Slices entries may be partially or fully unknown (see
// shapes.Shape). It returns done=true when every entry is fully determined,
// and an error if the known shapes are mutually inconsistent.
//
// The rule must be monotonic: it only adds information, it never "unknowns" a
// dimension that was known.
type InferShapeFn func(attrs map[string]string, in, out, aux []shapes.Shape) (done bool, err error)

// Descriptor describes one atomic operator.
type Descriptor struct {
	// Name of the operator, unique within a Registry.
	Name string

	// Description is a short human-readable description, used by discovery
	// and diagnostics only.
	Description string

	// ArgNames are the named input slots, in composition order. For VarArgs
	// operators, it holds the single name used as prefix for the variable
	// number of inputs.
	ArgNames []string

	// VarArgs marks operators accepting a variable number of positional
	// inputs. VarArgs operators only compose positionally.
	VarArgs bool

	// AuxStates names the auxiliary states of the operator: shapeful running
	// state with no gradient (e.g. BatchNorm moving statistics).
	AuxStates []string

	// NumOutputs of the operator. Always >= 1.
	NumOutputs int

	// InferShape is the operator's shape-inference rule.
	InferShape InferShapeFn

	// BackwardOp names the operator that computes this operator's gradient
	// contributions: it takes the output gradient followed by the forward
	// inputs, and produces one gradient output per forward input. Empty for
	// non-differentiable operators.
	BackwardOp string
}

// Registry resolves operator names to descriptors. It is injected into graph
// construction and shape inference, its contents are external-collaborator
// data.
type Registry interface {
	// Lookup returns the Descriptor registered under name, or an error if
	// there is none.
	Lookup(name string) (*Descriptor, error)

	// Names lists the registered operator names, sorted.
	Names() []string
}

// MapRegistry is a simple map-backed Registry.
type MapRegistry struct {
	descriptors map[string]*Descriptor
}

// NewRegistry returns an empty MapRegistry.
func NewRegistry() *MapRegistry {
	return &MapRegistry{descriptors: make(map[string]*Descriptor)}
}

// Register adds the descriptor to the registry. It fails if the name is
// already taken or the descriptor is malformed.
func (r *MapRegistry) Register(desc *Descriptor) error {
	if desc == nil || desc.Name == "" {
		return errors.New("cannot register a nil or unnamed operator descriptor")
	}
	if desc.NumOutputs < 1 {
		return errors.Errorf("operator %q must have at least one output", desc.Name)
	}
	if desc.InferShape == nil {
		return errors.Errorf("operator %q has no shape-inference rule", desc.Name)
	}
	if _, found := r.descriptors[desc.Name]; found {
		return errors.Errorf("operator %q already registered", desc.Name)
	}
	r.descriptors[desc.Name] = desc
	return nil
}

// MustRegister is like Register but panics on error. Convenient when building
// a catalog of operators known at compile time.
func (r *MapRegistry) MustRegister(desc *Descriptor) {
	if err := r.Register(desc); err != nil {
		panic(err)
	}
}

// Lookup implements Registry.
func (r *MapRegistry) Lookup(name string) (*Descriptor, error) {
	desc, found := r.descriptors[name]
	if !found {
		return nil, errors.Errorf("operator %q not registered", name)
	}
	return desc, nil
}

// Names implements Registry.
func (r *MapRegistry) Names() []string {
	return xslices.SortedKeys(r.descriptors)
}

var (
	builtinOnce     sync.Once
	builtinRegistry *MapRegistry
)

// Builtin returns the default operator catalog. The returned registry is
// shared, callers must not register into it -- create a new registry and
// re-register the descriptors to extend it.
func Builtin() Registry {
	builtinOnce.Do(func() {
		builtinRegistry = NewRegistry()
		registerBuiltins(builtinRegistry)
	})
	return builtinRegistry
}
