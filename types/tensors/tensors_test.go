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

package tensors

import (
	"testing"

	"github.com/gomlx/symgraph/types/shapes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromShape(t *testing.T) {
	tensor, err := FromShape(shapes.MustMake(2, 3))
	require.NoError(t, err)
	assert.Equal(t, 6, tensor.Size())
	assert.Equal(t, shapes.MustMake(2, 3), tensor.Shape())
	assert.Equal(t, uintptr(24), tensor.Memory())
	for _, v := range tensor.Data() {
		assert.Zero(t, v)
	}

	_, err = FromShape(shapes.MustMake(2, shapes.UnknownDim))
	require.Error(t, err)
	_, err = FromShape(shapes.Unknown())
	require.Error(t, err)
}

func TestZeros(t *testing.T) {
	tensor := Zeros(shapes.MustMake(4))
	assert.Equal(t, 4, tensor.Size())
	assert.Panics(t, func() { Zeros(shapes.Unknown()) })
}

func TestString(t *testing.T) {
	tensor := Zeros(shapes.MustMake(2, 3))
	assert.Contains(t, tensor.String(), "[2 3]")
	assert.Contains(t, tensor.String(), "B") // Humanized byte size.
}
