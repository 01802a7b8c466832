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

package exec

import (
	"github.com/gomlx/symgraph/symbol"
	"github.com/pkg/errors"
)

// GradReq is the per-argument gradient-update policy of a bound plan.
type GradReq int

//go:generate go tool enumer -type=GradReq -trimprefix=GradReq -transform=lower -output=gen_gradreq_enumer.go gradreq.go

const (
	// GradReqNull skips gradient computation for the argument entirely.
	GradReqNull GradReq = iota

	// GradReqWrite overwrites the gradient storage on each backward pass.
	GradReqWrite

	// GradReqAdd accumulates into the existing gradient storage.
	GradReqAdd
)

// ParseGradReq parses a policy token: "null", "write" or "add". An
// unrecognized token fails with symbol.ErrInvalidArgument.
func ParseGradReq(token string) (GradReq, error) {
	req, err := GradReqString(token)
	if err != nil {
		return GradReqNull, errors.Wrapf(symbol.ErrInvalidArgument,
			"unrecognized gradient policy %q (valid policies are %v)", token, GradReqStrings())
	}
	return req, nil
}

// GradReqSpec assigns gradient policies to arguments in one of three forms:
// a single policy applied uniformly (All), an ordered per-argument list
// (List, length must equal the argument count), or a name-to-policy mapping
// (Named, omitted arguments default to "null"). Exactly one form may be
// set; the zero value means "null" for every argument.
type GradReqSpec struct {
	All   string
	List  []string
	Named map[string]string
}

// resolve returns the policy of each argument, aligned with argNames.
func (spec GradReqSpec) resolve(argNames []string) ([]GradReq, error) {
	forms := 0
	if spec.All != "" {
		forms++
	}
	if len(spec.List) > 0 {
		forms++
	}
	if len(spec.Named) > 0 {
		forms++
	}
	if forms > 1 {
		return nil, errors.Wrap(symbol.ErrInvalidArgument,
			"gradient policies can be given as a single token, a list or a mapping, not a combination")
	}

	reqs := make([]GradReq, len(argNames))
	switch {
	case spec.All != "":
		req, err := ParseGradReq(spec.All)
		if err != nil {
			return nil, err
		}
		for ii := range reqs {
			reqs[ii] = req
		}
	case len(spec.List) > 0:
		if len(spec.List) != len(argNames) {
			return nil, errors.Wrapf(ErrArgumentCountMismatch,
				"%d gradient policies given for %d arguments", len(spec.List), len(argNames))
		}
		for ii, token := range spec.List {
			req, err := ParseGradReq(token)
			if err != nil {
				return nil, err
			}
			reqs[ii] = req
		}
	case len(spec.Named) > 0:
		byName := make(map[string]GradReq, len(spec.Named))
		for name, token := range spec.Named {
			req, err := ParseGradReq(token)
			if err != nil {
				return nil, err
			}
			byName[name] = req
		}
		for name := range spec.Named {
			found := false
			for _, argName := range argNames {
				if argName == name {
					found = true
					break
				}
			}
			if !found {
				return nil, errors.Wrapf(symbol.ErrInvalidArgument,
					"gradient policy given for %q, which is not an argument of the graph", name)
			}
		}
		for ii, argName := range argNames {
			reqs[ii] = byName[argName] // Omitted arguments stay GradReqNull.
		}
	}
	return reqs, nil
}
