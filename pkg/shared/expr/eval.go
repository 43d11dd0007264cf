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
	"errors"
	"fmt"
	"strconv"

	"github.com/Masterminds/sprig/v3"
	"github.com/antonmedv/expr"
	"github.com/goccy/go-json"
)

var sprigFuncMap = sprig.GenericFuncMap()

const (
	// root holds the message of the evaluated error
	root = "error"
	// rootCause holds the message of the innermost wrapped error
	rootCause = "cause"
	// rootType holds the Go type of the evaluated error
	rootType = "errtype"
)

// EvalBool evaluates the boolean expression against err.
func EvalBool(expression string, err error) (bool, error) {
	env := getFuncMap(errorEnv(err))
	result, evalErr := expr.Eval(expression, env)
	if evalErr != nil {
		return false, fmt.Errorf("unable to evaluate expression '%s': %s", expression, evalErr)
	}
	resultBool, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("unable to cast expression result '%v' to bool", result)
	}
	return resultBool, nil
}

func errorEnv(err error) map[string]interface{} {
	if err == nil {
		return map[string]interface{}{root: "", rootCause: "", rootType: ""}
	}
	cause := err
	for {
		next := errors.Unwrap(cause)
		if next == nil {
			break
		}
		cause = next
	}
	return map[string]interface{}{
		root:      err.Error(),
		rootCause: cause.Error(),
		rootType:  fmt.Sprintf("%T", err),
	}
}

func getFuncMap(m map[string]interface{}) map[string]interface{} {
	env := make(map[string]interface{}, len(m)+4)
	for k, v := range m {
		env[k] = v
	}
	env["sprig"] = sprigFuncMap
	env["json"] = _json
	env["int"] = _int
	env["string"] = _string
	return env
}

// _int converts a number, or its text, to an int.
func _int(v interface{}) int {
	switch w := v.(type) {
	case []byte, string:
		i, err := strconv.Atoi(_string(w))
		if err != nil {
			panic(fmt.Errorf("cannot convert %q to int", w))
		}
		return i
	case float64:
		return int(w)
	case int:
		return w
	default:
		panic(fmt.Errorf("cannot convert %v to int", v))
	}
}

func _string(v interface{}) string {
	switch w := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(w)
	case string:
		return w
	default:
		return fmt.Sprintf("%v", v)
	}
}

// _json decodes a json object, typically an error message that carries one.
func _json(v interface{}) map[string]interface{} {
	switch w := v.(type) {
	case nil:
		return nil
	case []byte, string:
		x := make(map[string]interface{})
		if err := json.Unmarshal([]byte(_string(w)), &x); err != nil {
			panic(fmt.Errorf("cannot convert %q to object: %v", w, err))
		}
		return x
	default:
		panic(fmt.Errorf("cannot convert %v to object", v))
	}
}
