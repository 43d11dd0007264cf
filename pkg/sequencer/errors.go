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

package sequencer

import "errors"

var (
	// ErrDestroyed is returned by Next after the chain was destroyed without an error before it ended.
	ErrDestroyed = errors.New("multistream destroyed before end of data")
	// ErrPrematureClose is the cause a chain is destroyed with when a source closes before its end.
	ErrPrematureClose = errors.New("source closed before end of data")
)
