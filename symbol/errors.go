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

package symbol

import (
	"github.com/pkg/errors"
)

// Error kinds returned (wrapped) by this package. Check them with errors.Is.
var (
	// ErrInvalidArgument indicates malformed caller-supplied data: a nil
	// Symbol, an unknown argument name, both positional and named payloads at
	// once. Never recoverable by retry.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrShapeMismatch indicates structurally inconsistent shapes discovered
	// during shape inference: the graph or the supplied shapes must change.
	ErrShapeMismatch = errors.New("shape mismatch")
)

// panicInvalid throws (panics) an error wrapping ErrInvalidArgument. Used by
// the operations that return only a *Symbol, like the arithmetic sugar.
func panicInvalid(format string, args ...any) {
	panic(errors.Wrapf(ErrInvalidArgument, format, args...))
}
