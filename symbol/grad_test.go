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

package symbol_test

import (
	"testing"

	"github.com/gomlx/symgraph/operators"
	. "github.com/gomlx/symgraph/symbol"
	"github.com/gomlx/symgraph/types/shapes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGradSimple(t *testing.T) {
	a := MustVariable("a")
	b := MustVariable("b")
	c := Add(a, b)

	grads, err := c.Grad([]string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, 2, grads.Outputs())

	// The gradient graph is consumable by the same inference pipeline.
	inferred, err := grads.InferShapes(NamedShapes(map[string]shapes.Shape{"a": S(2, 3)}))
	require.NoError(t, err)
	require.NotNil(t, inferred)
	assert.Equal(t, []shapes.Shape{S(2, 3), S(2, 3)}, inferred.Outputs)
}

func TestGradWrtValidation(t *testing.T) {
	a := MustVariable("a")
	b := MustVariable("b")
	c := Add(a, b)

	_, err := c.Grad([]string{"nope"})
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = c.Grad(nil)
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestGradDoesNotMutateOriginal(t *testing.T) {
	a := MustVariable("a")
	b := MustVariable("b")
	c := Mul(a, b)
	wantArgs := c.ListArguments()
	wantOutputs := c.ListOutputs()

	_, err := c.Grad([]string{"a"})
	require.NoError(t, err)
	assert.Equal(t, wantArgs, c.ListArguments())
	assert.Equal(t, wantOutputs, c.ListOutputs())
}

func TestGradFanOutAccumulates(t *testing.T) {
	// a feeds two consumers; its adjoint is the sum of both contributions.
	a := MustVariable("a")
	b := MustVariable("b")
	c := Add(Mul(a, b), a)

	grads, err := c.Grad([]string{"a"})
	require.NoError(t, err)
	require.Equal(t, 1, grads.Outputs())
	assert.Contains(t, grads.DebugString(), operators.OpElementwiseSum)

	inferred, err := grads.InferShapes(NamedShapes(map[string]shapes.Shape{"a": S(4)}))
	require.NoError(t, err)
	require.NotNil(t, inferred)
	assert.Equal(t, []shapes.Shape{S(4)}, inferred.Outputs)
}

func TestGradOfGroupedOutputs(t *testing.T) {
	// A variable that is itself one of the grouped outputs gets the ones
	// seed as its gradient.
	a := MustVariable("a")
	b := MustVariable("b")
	act, err := Create(operators.Builtin(), operators.OpActivation, "act0",
		map[string]string{"act_type": "relu"})
	require.NoError(t, err)
	out, err := act.Call("", Positional(a))
	require.NoError(t, err)

	wide, err := Group([]*Symbol{out, b})
	require.NoError(t, err)
	grads, err := wide.Grad([]string{"b", "a"})
	require.NoError(t, err)
	require.Equal(t, 2, grads.Outputs())
	assert.Contains(t, grads.DebugString(), operators.OpOnesLike)
}

func TestGradThroughFullyConnected(t *testing.T) {
	data := MustVariable("data")
	fc, err := Create(operators.Builtin(), operators.OpFullyConnected, "fc1",
		map[string]string{"num_hidden": "5"})
	require.NoError(t, err)
	net, err := fc.Call("", Named(map[string]*Symbol{"data": data}))
	require.NoError(t, err)

	grads, err := net.Grad([]string{"fc1_weight", "fc1_bias"})
	require.NoError(t, err)
	require.Equal(t, 2, grads.Outputs())
	assert.Contains(t, grads.DebugString(), "_FullyConnectedBackward")

	inferred, err := grads.InferShapes(NamedShapes(map[string]shapes.Shape{"data": S(4, 3)}))
	require.NoError(t, err)
	require.NotNil(t, inferred)
	assert.Equal(t, []shapes.Shape{S(5, 3), S(5)}, inferred.Outputs)
}

// Gradient scaffolding (seed and accumulation nodes) must be resolved from
// the registry the graph was built against, not from the builtin catalog.
func TestGradUsesNodeRegistry(t *testing.T) {
	identity := func(attrs map[string]string, in, out, aux []shapes.Shape) (bool, error) {
		out[0] = in[0]
		return in[0].IsKnown(), nil
	}
	registry := operators.NewRegistry()
	registry.MustRegister(&operators.Descriptor{
		Name:        "Square",
		Description: "Elementwise square.",
		ArgNames:    []string{"data"},
		NumOutputs:  1,
		InferShape:  identity,
		BackwardOp:  "_SquareBackward",
	})
	registry.MustRegister(&operators.Descriptor{
		Name:        "_SquareBackward",
		Description: "Gradient of Square with respect to data.",
		ArgNames:    []string{"ograd", "data"},
		NumOutputs:  1,
		InferShape:  identity,
	})

	build := func() *Symbol {
		sq, err := Create(registry, "Square", "sq0", nil)
		require.NoError(t, err)
		out, err := sq.Call("", Positional(MustVariable("a")))
		require.NoError(t, err)
		return out
	}

	// Without a ones-like operator in the catalog the derivation cannot
	// seed its outputs; falling back to the builtin catalog would hide that.
	_, err := build().Grad([]string{"a"})
	require.ErrorIs(t, err, ErrInvalidArgument)

	registry.MustRegister(&operators.Descriptor{
		Name:        operators.OpOnesLike,
		Description: "Ones with the shape of the input.",
		ArgNames:    []string{"data"},
		NumOutputs:  1,
		InferShape:  identity,
	})
	grads, err := build().Grad([]string{"a"})
	require.NoError(t, err)
	require.Equal(t, 1, grads.Outputs())
	assert.Contains(t, grads.DebugString(), "_SquareBackward")
}

func TestGradNonDifferentiable(t *testing.T) {
	a := MustVariable("a")
	ones, err := Create(operators.Builtin(), operators.OpOnesLike, "", nil)
	require.NoError(t, err)
	out, err := ones.Call("", Positional(a))
	require.NoError(t, err)

	_, err = out.Grad([]string{"a"})
	require.ErrorIs(t, err, ErrInvalidArgument)
}
