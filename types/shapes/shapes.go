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

// Package shapes defines Shape and associated tools.
//
// Shape represents the expected dimensions of a value in a computation graph,
// before any data is attached to it. It is purely structural: there is no
// element type at this layer, only the per-axis dimensions.
//
// A dimension set to UnknownDim (0) represents an axis whose size has not yet
// been determined -- shape inference fills those in. The zero value of Shape
// (nil Dimensions) represents a fully unknown shape.
//
// ## Glossary
//
//   - Rank: number of axes (dimensions) of a tensor.
//   - Axis: the index of a dimension. We refer to a dimension index as "axis"
//     (plural axes), and to its size as its dimension.
//   - Dimension: the size of one axis.
package shapes

import (
	"fmt"
	"slices"
	"strings"

	"github.com/pkg/errors"
)

// UnknownDim marks an axis whose dimension has not been determined yet.
const UnknownDim = 0

// Shape represents the shape of a value in the computation graph, or of a
// concrete storage buffer bound to it.
//
// Use Make to create a new shape. The zero value is the fully unknown shape.
type Shape struct {
	Dimensions []int
}

// Make returns a Shape with the given dimensions. Dimensions set to
// UnknownDim (0) are axes yet to be inferred.
//
// It returns an error for negative dimensions.
func Make(dimensions ...int) (Shape, error) {
	for _, dim := range dimensions {
		if dim < 0 {
			return Shape{}, errors.Errorf("shapes.Make(%v): dimensions must be non-negative", dimensions)
		}
	}
	return Shape{Dimensions: slices.Clone(dimensions)}, nil
}

// MustMake is like Make, but panics on invalid dimensions. Useful for
// literals in tests and examples.
func MustMake(dimensions ...int) Shape {
	s, err := Make(dimensions...)
	if err != nil {
		panic(err)
	}
	return s
}

// Unknown returns the fully unknown shape, the same as the zero value.
func Unknown() Shape { return Shape{} }

// Ok returns whether the shape carries any information at all. The zero
// value ("fully unknown") returns false.
func (s Shape) Ok() bool { return s.Dimensions != nil }

// Rank of the shape, that is, the number of axes. The rank of a fully
// unknown shape is 0 and carries no meaning.
func (s Shape) Rank() int { return len(s.Dimensions) }

// IsKnown returns whether every axis of the shape has been determined.
// A fully unknown shape is not known.
func (s Shape) IsKnown() bool {
	if !s.Ok() {
		return false
	}
	for _, dim := range s.Dimensions {
		if dim == UnknownDim {
			return false
		}
	}
	return true
}

// Dim returns the dimension of the given axis. axis can take negative
// numbers, in which case it counts from the end -- so axis=-1 refers to the
// last axis. It panics for an out-of-bound axis, like slice indexing.
func (s Shape) Dim(axis int) int {
	adjustedAxis := axis
	if adjustedAxis < 0 {
		adjustedAxis += s.Rank()
	}
	if adjustedAxis < 0 || adjustedAxis >= s.Rank() {
		panic(errors.Errorf("Shape.Dim(%d) out-of-bounds for rank %d (shape=%s)", axis, s.Rank(), s))
	}
	return s.Dimensions[adjustedAxis]
}

// Size returns the number of elements needed for this shape, the product of
// all dimensions. Only meaningful if the shape is fully known.
func (s Shape) Size() (size int) {
	size = 1
	for _, d := range s.Dimensions {
		size *= d
	}
	return
}

// Memory returns the bytes needed to store a float32 buffer of this shape.
func (s Shape) Memory() uintptr {
	return 4 * uintptr(s.Size())
}

// Clone returns a deep copy of the shape.
func (s Shape) Clone() Shape {
	return Shape{Dimensions: slices.Clone(s.Dimensions)}
}

// Equal compares whether two shapes have the exact same dimensions.
// Two fully unknown shapes are equal.
func (s Shape) Equal(other Shape) bool {
	return slices.Equal(s.Dimensions, other.Dimensions)
}

// Shape returns a shallow copy of itself. It implements the HasShape interface.
func (s Shape) Shape() Shape { return s }

// HasShape is satisfied by anything that can report its own Shape.
type HasShape interface {
	Shape() Shape
}

// String implements fmt.Stringer, pretty-prints the shape.
func (s Shape) String() string {
	if !s.Ok() {
		return "(?)"
	}
	parts := make([]string, 0, s.Rank())
	for _, dim := range s.Dimensions {
		if dim == UnknownDim {
			parts = append(parts, "?")
		} else {
			parts = append(parts, fmt.Sprintf("%d", dim))
		}
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// Unify merges the information of two partially known shapes: unknown axes
// of one are filled with the known axes of the other. It returns the merged
// shape, whether any new information was gained over a, and an error if the
// shapes are inconsistent (different ranks or conflicting dimensions).
func Unify(a, b Shape) (merged Shape, changed bool, err error) {
	if !b.Ok() {
		return a, false, nil
	}
	if !a.Ok() {
		return b.Clone(), true, nil
	}
	if a.Rank() != b.Rank() {
		return Shape{}, false, errors.Errorf("shapes %s and %s have different ranks", a, b)
	}
	merged = a.Clone()
	for axis, dim := range b.Dimensions {
		if dim == UnknownDim {
			continue
		}
		if merged.Dimensions[axis] == UnknownDim {
			merged.Dimensions[axis] = dim
			changed = true
			continue
		}
		if merged.Dimensions[axis] != dim {
			return Shape{}, false, errors.Errorf("shapes %s and %s disagree on axis %d", a, b, axis)
		}
	}
	return merged, changed, nil
}
