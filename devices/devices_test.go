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

package devices

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContext(t *testing.T) {
	ctx := CPU(0)
	assert.True(t, ctx.Ok())
	assert.Equal(t, "cpu(0)", ctx.String())

	ctx = GPU(1)
	assert.True(t, ctx.Ok())
	assert.Equal(t, "gpu(1)", ctx.String())

	assert.False(t, Context{}.Ok())
	assert.False(t, Context{Device: DeviceCPU, Index: -1}.Ok())
	assert.False(t, Context{Device: DeviceType(42)}.Ok())
}

func TestDeviceTypeString(t *testing.T) {
	dt, err := DeviceTypeString("gpu")
	require.NoError(t, err)
	assert.Equal(t, DeviceGPU, dt)

	_, err = DeviceTypeString("tpu")
	require.Error(t, err)
}

// The short lowercase names carry all the way into the Context notation, so
// the generated table must stay in sync with the trimprefix directive.
func TestDeviceTypeNames(t *testing.T) {
	assert.Equal(t, []string{"invalid", "cpu", "gpu"}, DeviceTypeStrings())
	assert.Equal(t, "invalid", DeviceInvalid.String())
	assert.Equal(t, "cpu", DeviceCPU.String())
	assert.Equal(t, "gpu", DeviceGPU.String())

	for _, dt := range DeviceTypeValues() {
		parsed, err := DeviceTypeString(dt.String())
		require.NoError(t, err)
		assert.Equal(t, dt, parsed)
	}
}
