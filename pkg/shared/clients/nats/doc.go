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

// Package nats connects to NATS servers with a shared set of default options.
//
// Function NewConn(ctx context.Context, url string, natsOptions ...nats.Option) retries the initial connection
// with the default backoff, and keeps reconnecting forever once connected. Closing the connection is left to
// the caller.
//
// Package test runs embedded servers for tests.
package nats
