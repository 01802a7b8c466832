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

// Package devices identifies where a bound computation will run.
//
// A Context names a device type (CPU, GPU) and a device index. At this layer
// it is purely an identifier validated by the execution binder -- kernel
// dispatch and memory placement belong to the execution engine proper.
package devices

import "fmt"

// DeviceType enumerates the supported device classes.
type DeviceType int

//go:generate go tool enumer -type=DeviceType -trimprefix=Device -transform=lower -output=gen_devicetype_enumer.go devices.go

const (
	// DeviceInvalid is the zero value, not a valid device.
	DeviceInvalid DeviceType = iota

	// DeviceCPU runs on the host CPU.
	DeviceCPU

	// DeviceGPU runs on an accelerator.
	DeviceGPU
)

// Context identifies one device: its type plus its index among devices of
// that type.
type Context struct {
	Device DeviceType
	Index  int
}

// CPU returns the Context of the index-th CPU device.
func CPU(index int) Context {
	return Context{Device: DeviceCPU, Index: index}
}

// GPU returns the Context of the index-th GPU device.
func GPU(index int) Context {
	return Context{Device: DeviceGPU, Index: index}
}

// Ok reports whether the Context identifies a valid device.
func (c Context) Ok() bool {
	return c.Device.IsADeviceType() && c.Device != DeviceInvalid && c.Index >= 0
}

// String implements fmt.Stringer, e.g. "cpu(0)".
func (c Context) String() string {
	return fmt.Sprintf("%s(%d)", c.Device, c.Index)
}
