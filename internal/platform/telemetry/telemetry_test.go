package telemetry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newRecorder() (*tracetest.SpanRecorder, *sdktrace.TracerProvider) {
	sr := tracetest.NewSpanRecorder()
	return sr, sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
}

func attrValue(attrs []attribute.KeyValue, key string) (attribute.Value, bool) {
	for _, kv := range attrs {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestSetup_NoEndpointIsNoop(t *testing.T) {
	shutdown, err := Setup(context.Background(), "hms", "test", "development", "")
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}

func TestMiddleware_RecordsSpan(t *testing.T) {
	sr, tp := newRecorder()
	e := echo.New()
	e.Use(Middleware(tp, metricnoop.NewMeterProvider()))
	e.GET("/api/v1/patients/:id", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/patients/123", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "GET /api/v1/patients/:id", spans[0].Name())

	status, ok := attrValue(spans[0].Attributes(), "http.status_code")
	require.True(t, ok)
	assert.Equal(t, int64(http.StatusOK), status.AsInt64())
}

func TestMiddleware_MarksErrors(t *testing.T) {
	sr, tp := newRecorder()
	e := echo.New()
	e.Use(Middleware(tp, metricnoop.NewMeterProvider()))
	e.GET("/boom", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusBadGateway, "upstream")
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	status, _ := attrValue(spans[0].Attributes(), "http.status_code")
	assert.Equal(t, int64(http.StatusBadGateway), status.AsInt64())
}

func TestRecordError_NilIsIgnored(t *testing.T) {
	sr, tp := newRecorder()
	_, span := tp.Tracer("test").Start(context.Background(), "op")
	RecordError(span, nil)
	span.End()

	require.Len(t, sr.Ended(), 1)
	assert.Equal(t, codes.Unset, sr.Ended()[0].Status().Code)
}

func TestRecordError_SetsStatus(t *testing.T) {
	sr, tp := newRecorder()
	_, span := tp.Tracer("test").Start(context.Background(), "op")
	RecordError(span, errors.New("failed"))
	span.End()

	assert.Equal(t, codes.Error, sr.Ended()[0].Status().Code)
	assert.Equal(t, "failed", sr.Ended()[0].Status().Description)
}
