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

var S = shapes.MustMake

func TestInferShapesElementwise(t *testing.T) {
	a := MustVariable("a")
	b := MustVariable("b")
	c := Add(a, b)

	// Knowing `a` resolves `b` and the output.
	inferred, err := c.InferShapes(NamedShapes(map[string]shapes.Shape{"a": S(2, 3)}))
	require.NoError(t, err)
	require.NotNil(t, inferred)
	assert.Equal(t, []shapes.Shape{S(2, 3), S(2, 3)}, inferred.Arguments)
	assert.Equal(t, []shapes.Shape{S(2, 3)}, inferred.Outputs)
	assert.Empty(t, inferred.AuxStates)
}

func TestInferShapesIncomplete(t *testing.T) {
	data := MustVariable("data")
	fc, err := Create(operators.Builtin(), operators.OpFullyConnected, "fc1",
		map[string]string{"num_hidden": "5"})
	require.NoError(t, err)
	net, err := fc.Call("", Named(map[string]*Symbol{"data": data}))
	require.NoError(t, err)

	// No shapes at all: incomplete sentinel, not an error.
	inferred, err := net.InferShapes(ShapesSpec{})
	require.NoError(t, err)
	assert.Nil(t, inferred)

	// weight alone leaves the batch dimension unknown: still incomplete.
	inferred, err = net.InferShapes(NamedShapes(map[string]shapes.Shape{"fc1_weight": S(5, 3)}))
	require.NoError(t, err)
	assert.Nil(t, inferred)

	// data resolves everything.
	inferred, err = net.InferShapes(NamedShapes(map[string]shapes.Shape{"data": S(4, 3)}))
	require.NoError(t, err)
	require.NotNil(t, inferred)
	assert.Equal(t, []shapes.Shape{S(4, 3), S(5, 3), S(5)}, inferred.Arguments)
	assert.Equal(t, []shapes.Shape{S(4, 5)}, inferred.Outputs)
}

func TestInferShapesIdempotence(t *testing.T) {
	a := MustVariable("a")
	b := MustVariable("b")
	c := Mul(Add(a, b), b)
	first, err := c.InferShapes(NamedShapes(map[string]shapes.Shape{"a": S(7)}))
	require.NoError(t, err)
	require.NotNil(t, first)

	// Re-supplying the inferred argument shapes reproduces identical results.
	second, err := c.InferShapes(PositionalShapes(first.Arguments...))
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, first, second)
}

func TestInferShapesMismatch(t *testing.T) {
	a := MustVariable("a")
	b := MustVariable("b")
	c := Add(a, b)
	_, err := c.InferShapes(NamedShapes(map[string]shapes.Shape{
		"a": S(2, 3),
		"b": S(2, 4),
	}))
	require.ErrorIs(t, err, ErrShapeMismatch)
}

func TestInferShapesSpecValidation(t *testing.T) {
	a := MustVariable("a")
	b := MustVariable("b")
	c := Add(a, b)

	// Both forms at once.
	_, err := c.InferShapes(ShapesSpec{
		Positional: []shapes.Shape{S(2)},
		Named:      map[string]shapes.Shape{"b": S(2)},
	})
	require.ErrorIs(t, err, ErrInvalidArgument)

	// Unknown argument name.
	_, err = c.InferShapes(NamedShapes(map[string]shapes.Shape{"z": S(2)}))
	require.ErrorIs(t, err, ErrInvalidArgument)

	// Too many positional shapes.
	_, err = c.InferShapes(PositionalShapes(S(2), S(2), S(2)))
	require.ErrorIs(t, err, ErrInvalidArgument)

	// Negative dimension smuggled into a hand-built shape.
	_, err = c.InferShapes(NamedShapes(map[string]shapes.Shape{
		"a": {Dimensions: []int{2, -3}},
	}))
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestInferShapesPositionalPartial(t *testing.T) {
	a := MustVariable("a")
	b := MustVariable("b")
	c := Add(a, b)

	// Positional entries may be the unknown shape; a prefix is allowed.
	inferred, err := c.InferShapes(PositionalShapes(shapes.Unknown(), S(3, 1)))
	require.NoError(t, err)
	require.NotNil(t, inferred)
	assert.Equal(t, []shapes.Shape{S(3, 1), S(3, 1)}, inferred.Arguments)

	inferred, err = c.InferShapes(PositionalShapes(S(3, 1)))
	require.NoError(t, err)
	require.NotNil(t, inferred)
}

func TestInferShapesBatchNormAux(t *testing.T) {
	data := MustVariable("data")
	bn, err := Create(operators.Builtin(), operators.OpBatchNorm, "bn0", nil)
	require.NoError(t, err)
	net, err := bn.Call("", Named(map[string]*Symbol{"data": data}))
	require.NoError(t, err)

	inferred, err := net.InferShapes(NamedShapes(map[string]shapes.Shape{"data": S(4, 8)}))
	require.NoError(t, err)
	require.NotNil(t, inferred)
	assert.Equal(t, []shapes.Shape{S(4, 8), S(8), S(8)}, inferred.Arguments)
	assert.Equal(t, []shapes.Shape{S(4, 8)}, inferred.Outputs)
	assert.Equal(t, []shapes.Shape{S(8), S(8)}, inferred.AuxStates)
}

func TestInferShapesDeepChain(t *testing.T) {
	// fc1 -> activation -> fc2: shape information crosses several nodes,
	// in both directions.
	data := MustVariable("data")
	fc1, err := Create(operators.Builtin(), operators.OpFullyConnected, "fc1",
		map[string]string{"num_hidden": "16"})
	require.NoError(t, err)
	hidden, err := fc1.Call("", Named(map[string]*Symbol{"data": data}))
	require.NoError(t, err)
	act, err := Create(operators.Builtin(), operators.OpActivation, "relu1",
		map[string]string{"act_type": "relu"})
	require.NoError(t, err)
	activated, err := act.Call("", Named(map[string]*Symbol{"data": hidden}))
	require.NoError(t, err)
	fc2, err := Create(operators.Builtin(), operators.OpFullyConnected, "fc2",
		map[string]string{"num_hidden": "2"})
	require.NoError(t, err)
	net, err := fc2.Call("", Named(map[string]*Symbol{"data": activated}))
	require.NoError(t, err)

	assert.Equal(t, []string{"data", "fc1_weight", "fc1_bias", "fc2_weight", "fc2_bias"},
		net.ListArguments())

	inferred, err := net.InferShapes(NamedShapes(map[string]shapes.Shape{"data": S(32, 10)}))
	require.NoError(t, err)
	require.NotNil(t, inferred)
	assert.Equal(t, []shapes.Shape{S(32, 10), S(16, 10), S(16), S(2, 16), S(2)},
		inferred.Arguments)
	assert.Equal(t, []shapes.Shape{S(32, 2)}, inferred.Outputs)
}

func TestInferShapesUncomposed(t *testing.T) {
	fc, err := Create(operators.Builtin(), operators.OpFullyConnected, "fc1",
		map[string]string{"num_hidden": "5"})
	require.NoError(t, err)
	_, err = fc.InferShapes(ShapesSpec{})
	require.ErrorIs(t, err, ErrInvalidArgument)
}
