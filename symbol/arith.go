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
	"github.com/gomlx/symgraph/operators"
)

// This file implements the arithmetic sugar: Add, Sub, Mul and Div build a
// new composed node over the corresponding builtin elementwise operator.
// They are a thin convenience over Create+Compose; like other graph-building
// shortcuts that return only a *Symbol, they panic (with an error wrapping
// ErrInvalidArgument) on a nil operand. There is no implicit numeric-to-
// Symbol coercion: both operands must already be Symbols.

// Add returns a new Symbol computing the elementwise sum lhs+rhs.
func Add(lhs, rhs *Symbol) *Symbol { return binaryOp(operators.OpPlus, lhs, rhs) }

// Sub returns a new Symbol computing the elementwise difference lhs-rhs.
func Sub(lhs, rhs *Symbol) *Symbol { return binaryOp(operators.OpMinus, lhs, rhs) }

// Mul returns a new Symbol computing the elementwise product lhs*rhs.
func Mul(lhs, rhs *Symbol) *Symbol { return binaryOp(operators.OpMul, lhs, rhs) }

// Div returns a new Symbol computing the elementwise division lhs/rhs.
func Div(lhs, rhs *Symbol) *Symbol { return binaryOp(operators.OpDiv, lhs, rhs) }

func binaryOp(opName string, lhs, rhs *Symbol) *Symbol {
	if lhs == nil || rhs == nil {
		panicInvalid("%s requires two non-nil Symbol operands", opName)
	}
	s, err := Create(operators.Builtin(), opName, "", nil)
	if err != nil {
		panicInvalid("%s: %v", opName, err)
	}
	if err := s.Compose("", Positional(lhs, rhs)); err != nil {
		panicInvalid("%s: %v", opName, err)
	}
	return s
}
