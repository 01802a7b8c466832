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

package shapes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMake(t *testing.T) {
	s, err := Make(2, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Rank())
	assert.Equal(t, 6, s.Size())
	assert.True(t, s.IsKnown())
	assert.Equal(t, "[2 3]", s.String())

	s, err = Make(2, UnknownDim, 4)
	require.NoError(t, err)
	assert.False(t, s.IsKnown())
	assert.Equal(t, "[2 ? 4]", s.String())

	_, err = Make(2, -1)
	require.Error(t, err)
}

func TestDim(t *testing.T) {
	s := MustMake(2, 3, 5)
	assert.Equal(t, 2, s.Dim(0))
	assert.Equal(t, 5, s.Dim(-1))
	assert.Equal(t, 3, s.Dim(-2))
	assert.Panics(t, func() { s.Dim(3) })
}

func TestUnknown(t *testing.T) {
	var s Shape
	assert.False(t, s.Ok())
	assert.False(t, s.IsKnown())
	assert.Equal(t, "(?)", s.String())
	assert.True(t, s.Equal(Unknown()))
}

func TestEqualAndClone(t *testing.T) {
	s := MustMake(2, 3)
	s2 := s.Clone()
	assert.True(t, s.Equal(s2))
	s2.Dimensions[0] = 7
	assert.False(t, s.Equal(s2))
	assert.Equal(t, 2, s.Dimensions[0])
}

func TestUnify(t *testing.T) {
	// Unknown side contributes nothing.
	merged, changed, err := Unify(MustMake(2, 3), Unknown())
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, MustMake(2, 3), merged)

	// Fully unknown picks up the other side.
	merged, changed, err = Unify(Unknown(), MustMake(2, 3))
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, MustMake(2, 3), merged)

	// Axis-wise merge.
	merged, changed, err = Unify(MustMake(2, UnknownDim), MustMake(UnknownDim, 3))
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, MustMake(2, 3), merged)

	// Rank mismatch.
	_, _, err = Unify(MustMake(2, 3), MustMake(2))
	require.Error(t, err)

	// Conflicting dimension.
	_, _, err = Unify(MustMake(2, 3), MustMake(2, 4))
	require.Error(t, err)
}

func TestMemory(t *testing.T) {
	assert.Equal(t, uintptr(24), MustMake(2, 3).Memory())
}
