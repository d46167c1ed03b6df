package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"CapIot.readings/internal/controller"
	"CapIot.readings/internal/observability"
	"CapIot.readings/internal/repository"
	"CapIot.readings/internal/routes"
	"CapIot.readings/internal/service"
	"CapIot.readings/internal/validation"
	"CapIot.readings/pkg/client"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newServer(t *testing.T) *httptest.Server {
	logger := zaptest.NewLogger(t)
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	svc := service.NewReadingService(repository.NewMemoryRepository(), nil, metrics, logger)
	c := controller.NewReadingController(svc, validation.New(func() time.Time { return time.Unix(1700000000, 0) }), logger)
	srv := httptest.NewServer(routes.NewRouter(c, metrics, logger))
	t.Cleanup(srv.Close)
	return srv
}

func run(t *testing.T, srv *httptest.Server, args ...string) (string, error) {
	var out bytes.Buffer
	argv := append([]string{"sensorctl", "--service-url", srv.URL}, args...)
	err := newApp(&out).Run(context.Background(), argv)
	return out.String(), err
}

func TestWriteThenList(t *testing.T) {
	srv := newServer(t)

	out, err := run(t, srv, "--output", "json-raw", "write", "--device", "d1", "--type", "temperature", "--value", "22", "--date-created", "5")
	require.NoError(t, err)
	assert.JSONEq(t, `{"device_uuid":"d1","type":"temperature","value":22,"date_created":5}`, out)

	out, err = run(t, srv, "--output", "json-raw", "write", "--device", "d1", "--type", "humidity", "--value", "40")
	require.NoError(t, err)
	assert.JSONEq(t, `{"device_uuid":"d1","type":"humidity","value":40,"date_created":1700000000}`, out)

	out, err = run(t, srv, "list", "--device", "d1", "--type", "temperature")
	require.NoError(t, err)
	assert.Contains(t, out, "DATE CREATED")
	assert.Contains(t, out, "temperature")
	assert.NotContains(t, out, "humidity")

	out, err = run(t, srv, "--output", "no-header", "list", "--device", "d1")
	require.NoError(t, err)
	assert.NotContains(t, out, "DEVICE")
	assert.Contains(t, out, "1700000000")
}

func TestMetricCommands(t *testing.T) {
	srv := newServer(t)
	for _, v := range []string{"10", "50", "100"} {
		_, err := run(t, srv, "write", "-d", "d1", "--type", "temperature", "--value", v, "--date-created", v)
		require.NoError(t, err)
	}

	out, err := run(t, srv, "--output", "json-raw", "max", "-d", "d1", "--type", "temperature")
	require.NoError(t, err)
	assert.JSONEq(t, `{"device_uuid":"d1","type":"temperature","value":100,"date_created":100}`, out)

	out, err = run(t, srv, "--output", "json-raw", "mean", "-d", "d1", "--type", "temperature", "--start", "50")
	require.NoError(t, err)
	assert.JSONEq(t, `{"value":75}`, out)

	out, err = run(t, srv, "--output", "json-raw", "quartiles", "-d", "d1", "--type", "temperature", "--start", "0", "--end", "100")
	require.NoError(t, err)
	assert.JSONEq(t, `{"quartile_1":10,"quartile_3":100}`, out)

	out, err = run(t, srv, "min", "-d", "d1", "--type", "humidity")
	require.NoError(t, err)
	assert.Equal(t, "no matching readings\n", out)

	out, err = run(t, srv, "summary")
	require.NoError(t, err)
	assert.Contains(t, out, "d1")
	assert.Contains(t, out, "READINGS")
}

func TestServerErrorsAreReturned(t *testing.T) {
	srv := newServer(t)

	_, err := run(t, srv, "write", "-d", "d1", "--type", "pressure", "--value", "1")
	var apiErr *client.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 422, apiErr.StatusCode)
}

func TestUnknownOutputFormat(t *testing.T) {
	srv := newServer(t)

	_, err := run(t, srv, "--output", "yaml", "list", "-d", "d1")
	assert.ErrorContains(t, err, "unknown --output option")
}
