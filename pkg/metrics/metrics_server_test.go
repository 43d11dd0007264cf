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

package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gavv/httpexpect/v2"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
)

func Test_MetricsServer_WithPort(t *testing.T) {
	ms := NewMetricsServer(WithPort(9999))
	assert.Equal(t, 9999, ms.port)
	assert.Equal(t, DefaultMetricsPort, NewMetricsServer().port)
}

func Test_MetricsServer_WithHealthCheckExecutor(t *testing.T) {
	executed := false
	executor := func() error {
		executed = true
		return nil
	}
	ms := NewMetricsServer(WithHealthCheckExecutor(executor), nil)
	assert.Equal(t, 1, len(ms.healthCheckExecutors))
	err := ms.healthCheckExecutors[0]()
	assert.NoError(t, err)
	assert.True(t, executed)
}

func Test_MetricsServer_Handler(t *testing.T) {
	SourceReadCount.WithLabelValues("test").Add(3)
	ms := NewMetricsServer()
	server := httptest.NewServer(ms.Handler(context.Background()))
	defer server.Close()

	e := httpexpect.Default(t, server.URL)
	e.GET("/livez").Expect().Status(http.StatusNoContent)
	e.GET("/readyz").Expect().Status(http.StatusNoContent)
	e.GET("/metrics").Expect().Status(http.StatusOK).Body().Contains("source_read_total")
	e.GET("/debug/pprof/").Expect().Status(http.StatusNotFound)

	m := &dto.Metric{}
	assert.NoError(t, SourceReadCount.WithLabelValues("test").Write(m))
	assert.Equal(t, float64(3), m.GetCounter().GetValue())
}

func Test_MetricsServer_Unhealthy(t *testing.T) {
	ms := NewMetricsServer(WithHealthCheckExecutor(func() error {
		return errors.New("not connected")
	}))
	server := httptest.NewServer(ms.Handler(context.Background()))
	defer server.Close()

	e := httpexpect.Default(t, server.URL)
	e.GET("/readyz").Expect().Status(http.StatusInternalServerError).Body().IsEqual("not connected")
	e.GET("/livez").Expect().Status(http.StatusNoContent)
}
