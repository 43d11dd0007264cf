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

package util

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// lookupEnv parses the value of key, an unset or empty variable yields defaultValue.
// An unparsable value is a deployment error, it panics.
func lookupEnv[T any](key string, defaultValue T, parse func(string) (T, error)) T {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return defaultValue
	}
	val, err := parse(v)
	if err != nil {
		panic(fmt.Errorf("invalid value for env variable %q, value %q", key, v))
	}
	return val
}

func LookupEnvStringOr(key, defaultValue string) string {
	return lookupEnv(key, defaultValue, func(s string) (string, error) { return s, nil })
}

func LookupEnvIntOr(key string, defaultValue int) int {
	return lookupEnv(key, defaultValue, strconv.Atoi)
}

func LookupEnvBoolOr(key string, defaultValue bool) bool {
	return lookupEnv(key, defaultValue, strconv.ParseBool)
}

func LookupEnvDurationOr(key string, defaultValue time.Duration) time.Duration {
	return lookupEnv(key, defaultValue, time.ParseDuration)
}
