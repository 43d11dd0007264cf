/*
Copyright 2022 The Numaproj Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package expr

import (
	"fmt"

	"github.com/antonmedv/expr"
	"github.com/antonmedv/expr/vm"
)

// Predicate is a compiled boolean expression evaluated against errors.
type Predicate struct {
	expression string
	program    *vm.Program
}

// Compile compiles a boolean expression over the variables error, cause and errtype. For example
// `error contains "timeout"` or `sprig.contains("dial", cause)`.
func Compile(expression string) (*Predicate, error) {
	program, err := expr.Compile(expression, expr.Env(getFuncMap(errorEnv(nil))))
	if err != nil {
		return nil, fmt.Errorf("unable to compile expression '%s': %s", expression, err)
	}
	// sprig functions are untyped, so the result type is only known after a run. A run that fails on the
	// empty error is fine, a run that yields a non boolean is not.
	if result, runErr := expr.Run(program, getFuncMap(errorEnv(nil))); runErr == nil {
		if _, ok := result.(bool); !ok {
			return nil, fmt.Errorf("unable to compile expression '%s': expected bool, but got %T", expression, result)
		}
	}
	return &Predicate{expression: expression, program: program}, nil
}

// Eval runs the predicate against err.
func (p *Predicate) Eval(err error) (bool, error) {
	result, runErr := expr.Run(p.program, getFuncMap(errorEnv(err)))
	if runErr != nil {
		return false, fmt.Errorf("unable to execute compiled program '%s': %v", p.expression, runErr)
	}
	b, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("unable to cast expression result '%v' to bool", result)
	}
	return b, nil
}

// Match reports whether err satisfies the predicate. Evaluation failures never match.
func (p *Predicate) Match(err error) bool {
	ok, evalErr := p.Eval(err)
	return evalErr == nil && ok
}

func (p *Predicate) String() string {
	return p.expression
}
