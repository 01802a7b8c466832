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

// Package tensors implements the concrete storage buffers that the execution
// binder attaches to a symbolic graph.
//
// A Tensor here is deliberately minimal: a fully-known shape plus a flat
// float32 buffer. The symbolic layer only cares about the shape and the
// buffer identity -- two executors share storage only if handed the same
// *Tensor. Arithmetic kernels operating on the data belong to the execution
// engine, not to this layer.
package tensors

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/symgraph/types/shapes"
	"github.com/pkg/errors"
)

// Tensor is a storage buffer with a fully-known shape.
type Tensor struct {
	shape shapes.Shape
	data  []float32
}

// FromShape allocates a zero-initialized Tensor of the given shape. The
// shape must be fully known.
func FromShape(shape shapes.Shape) (*Tensor, error) {
	if !shape.IsKnown() {
		return nil, errors.Errorf("cannot allocate a tensor of partially unknown shape %s", shape)
	}
	return &Tensor{shape: shape.Clone(), data: make([]float32, shape.Size())}, nil
}

// Zeros is like FromShape but panics on a partially unknown shape.
// Convenient when the shape comes out of a completed shape inference.
func Zeros(shape shapes.Shape) *Tensor {
	t, err := FromShape(shape)
	if err != nil {
		panic(err)
	}
	return t
}

// Shape of the tensor.
func (t *Tensor) Shape() shapes.Shape { return t.shape.Clone() }

// Size returns the number of elements stored.
func (t *Tensor) Size() int { return len(t.data) }

// Data returns the flat underlying buffer. The caller may read and write it;
// the tensor retains ownership.
func (t *Tensor) Data() []float32 { return t.data }

// Memory returns the bytes used by the underlying buffer.
func (t *Tensor) Memory() uintptr { return t.shape.Memory() }

// String implements fmt.Stringer.
func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor%s (%s)", t.shape, humanize.Bytes(uint64(t.Memory())))
}
