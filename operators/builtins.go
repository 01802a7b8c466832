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

package operators

import (
	"strconv"

	"github.com/gomlx/symgraph/types/shapes"
	"github.com/pkg/errors"
)

// Names of the builtin operators. The underscore-prefixed ones back the
// arithmetic sugar and the gradient machinery, and are not meant to be
// created directly by name.
const (
	OpPlus      = "_Plus"
	OpMinus     = "_Minus"
	OpMul       = "_Mul"
	OpDiv       = "_Div"
	OpOnesLike  = "_OnesLike"
	OpZerosLike = "_ZerosLike"

	OpElementwiseSum = "ElementwiseSum"
	OpActivation     = "Activation"
	OpFullyConnected = "FullyConnected"
	OpBatchNorm      = "BatchNorm"
)

// unifySlots merges the shape information across all given slots: after it
// returns, every slot holds the unified shape. It returns done=true if the
// unified shape is fully known, and an error on inconsistency.
func unifySlots(slots ...*shapes.Shape) (done bool, err error) {
	merged := shapes.Unknown()
	for _, slot := range slots {
		merged, _, err = shapes.Unify(merged, *slot)
		if err != nil {
			return false, err
		}
	}
	if merged.Ok() {
		for _, slot := range slots {
			*slot = merged.Clone()
		}
	}
	return merged.IsKnown(), nil
}

// tie unifies slot with the given partial template, in place.
func tie(slot *shapes.Shape, template shapes.Shape) error {
	merged, _, err := shapes.Unify(*slot, template)
	if err != nil {
		return err
	}
	if merged.Ok() {
		*slot = merged
	}
	return nil
}

// dimOf returns the dimension of the given axis, or UnknownDim if the shape
// (or its rank) is not known.
func dimOf(s shapes.Shape, axis int) int {
	if !s.Ok() || axis >= s.Rank() {
		return shapes.UnknownDim
	}
	return s.Dimensions[axis]
}

// allKnown reports whether every shape in the given slices is fully known.
func allKnown(slices ...[]shapes.Shape) bool {
	for _, slice := range slices {
		for _, s := range slice {
			if !s.IsKnown() {
				return false
			}
		}
	}
	return true
}

// elementwiseInfer requires all inputs and outputs to share one shape.
func elementwiseInfer(_ map[string]string, in, out, aux []shapes.Shape) (bool, error) {
	slots := make([]*shapes.Shape, 0, len(in)+len(out))
	for ii := range in {
		slots = append(slots, &in[ii])
	}
	for ii := range out {
		slots = append(slots, &out[ii])
	}
	_ = aux
	return unifySlots(slots...)
}

// intAttr parses a required integer operator attribute.
func intAttr(attrs map[string]string, key string) (int, error) {
	raw, found := attrs[key]
	if !found {
		return 0, errors.Errorf("missing required attribute %q", key)
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return 0, errors.Errorf("attribute %q must be a positive integer, got %q", key, raw)
	}
	return value, nil
}

// fullyConnectedInfer ties data=(batch, in), weight=(hidden, in),
// bias=(hidden) and output=(batch, hidden), with hidden given by the
// `num_hidden` attribute. Information flows in both directions: a known
// output resolves the data batch, a known data resolves the weight columns.
func fullyConnectedInfer(attrs map[string]string, in, out, _ []shapes.Shape) (bool, error) {
	hidden, err := intAttr(attrs, "num_hidden")
	if err != nil {
		return false, err
	}
	data, weight, bias := &in[0], &in[1], &in[2]
	output := &out[0]

	// Two sweeps so information entering through any one slot reaches all
	// the others within a single call.
	for sweep := 0; sweep < 2; sweep++ {
		for _, step := range []struct {
			slot     *shapes.Shape
			template shapes.Shape
		}{
			{weight, shapes.Shape{Dimensions: []int{hidden, dimOf(*data, 1)}}},
			{bias, shapes.Shape{Dimensions: []int{hidden}}},
			{output, shapes.Shape{Dimensions: []int{dimOf(*data, 0), hidden}}},
			{data, shapes.Shape{Dimensions: []int{dimOf(*output, 0), dimOf(*weight, 1)}}},
		} {
			if err := tie(step.slot, step.template); err != nil {
				return false, err
			}
		}
	}
	return allKnown(in, out), nil
}

// batchNormInfer: output mirrors data; gamma, beta and the moving statistics
// are vectors over the channel axis (axis 1 of data).
func batchNormInfer(_ map[string]string, in, out, aux []shapes.Shape) (bool, error) {
	data, gamma, beta := &in[0], &in[1], &in[2]
	output := &out[0]
	if done, err := unifySlots(data, output); err != nil {
		return done, err
	}
	channel := shapes.Shape{Dimensions: []int{dimOf(*data, 1)}}
	channelSlots := []*shapes.Shape{gamma, beta, &aux[0], &aux[1]}
	for _, slot := range channelSlots {
		if err := tie(slot, channel); err != nil {
			return false, err
		}
	}
	if _, err := unifySlots(channelSlots...); err != nil {
		return false, err
	}
	// Channel information can also flow back into data axis 1.
	if data.Ok() && data.Rank() >= 2 {
		template := shapes.Shape{Dimensions: make([]int, data.Rank())}
		template.Dimensions[1] = dimOf(*gamma, 0)
		if err := tie(data, template); err != nil {
			return false, err
		}
		if err := tie(output, *data); err != nil {
			return false, err
		}
	}
	return allKnown(in, out, aux), nil
}

// backwardMirrorInfer is the rule shared by the backward operators: the
// gradient outputs mirror the shapes of the corresponding forward inputs
// (in[0] is the output gradient, in[1:] the forward inputs).
func backwardMirrorInfer(_ map[string]string, in, out, _ []shapes.Shape) (bool, error) {
	for ii := range out {
		if _, err := unifySlots(&out[ii], &in[ii+1]); err != nil {
			return false, err
		}
	}
	return allKnown(in, out), nil
}

func registerBuiltins(r *MapRegistry) {
	// Elementwise binary arithmetic, backing the +, -, *, / sugar.
	for _, op := range []struct{ name, description string }{
		{OpPlus, "Elementwise sum of lhs and rhs."},
		{OpMinus, "Elementwise difference of lhs and rhs."},
		{OpMul, "Elementwise product of lhs and rhs."},
		{OpDiv, "Elementwise division of lhs by rhs."},
	} {
		r.MustRegister(&Descriptor{
			Name:        op.name,
			Description: op.description,
			ArgNames:    []string{"lhs", "rhs"},
			NumOutputs:  1,
			InferShape:  elementwiseInfer,
			BackwardOp:  op.name + "Backward",
		})
		r.MustRegister(&Descriptor{
			Name:        op.name + "Backward",
			Description: "Gradient of " + op.name + " with respect to lhs and rhs.",
			ArgNames:    []string{"ograd", "lhs", "rhs"},
			NumOutputs:  2,
			InferShape:  backwardMirrorInfer,
		})
	}

	r.MustRegister(&Descriptor{
		Name:        OpElementwiseSum,
		Description: "Elementwise sum over a variable number of inputs.",
		ArgNames:    []string{"args"},
		VarArgs:     true,
		NumOutputs:  1,
		InferShape:  elementwiseInfer,
	})

	r.MustRegister(&Descriptor{
		Name:        OpActivation,
		Description: "Elementwise activation function; act_type selects which.",
		ArgNames:    []string{"data"},
		NumOutputs:  1,
		InferShape:  elementwiseInfer,
		BackwardOp:  "_ActivationBackward",
	})
	r.MustRegister(&Descriptor{
		Name:        "_ActivationBackward",
		Description: "Gradient of Activation with respect to data.",
		ArgNames:    []string{"ograd", "data"},
		NumOutputs:  1,
		InferShape:  backwardMirrorInfer,
	})

	r.MustRegister(&Descriptor{
		Name:        OpFullyConnected,
		Description: "Linear transformation with num_hidden outputs plus bias.",
		ArgNames:    []string{"data", "weight", "bias"},
		NumOutputs:  1,
		InferShape:  fullyConnectedInfer,
		BackwardOp:  "_FullyConnectedBackward",
	})
	r.MustRegister(&Descriptor{
		Name:        "_FullyConnectedBackward",
		Description: "Gradient of FullyConnected with respect to data, weight and bias.",
		ArgNames:    []string{"ograd", "data", "weight", "bias"},
		NumOutputs:  3,
		InferShape:  backwardMirrorInfer,
	})

	r.MustRegister(&Descriptor{
		Name:        OpBatchNorm,
		Description: "Batch normalization with learned scale and shift; keeps moving statistics as auxiliary state.",
		ArgNames:    []string{"data", "gamma", "beta"},
		AuxStates:   []string{"moving_mean", "moving_var"},
		NumOutputs:  1,
		InferShape:  batchNormInfer,
		BackwardOp:  "_BatchNormBackward",
	})
	r.MustRegister(&Descriptor{
		Name:        "_BatchNormBackward",
		Description: "Gradient of BatchNorm with respect to data, gamma and beta.",
		ArgNames:    []string{"ograd", "data", "gamma", "beta"},
		NumOutputs:  3,
		InferShape:  backwardMirrorInfer,
	})

	for _, op := range []struct{ name, description string }{
		{OpOnesLike, "Tensor of ones with the shape of its input."},
		{OpZerosLike, "Tensor of zeros with the shape of its input."},
	} {
		r.MustRegister(&Descriptor{
			Name:        op.name,
			Description: op.description,
			ArgNames:    []string{"data"},
			NumOutputs:  1,
			InferShape:  elementwiseInfer,
		})
	}
}
