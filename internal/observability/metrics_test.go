package observability

import (
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsPipelineCollectors(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()

	metrics.IncCallbackReceived("SES")
	metrics.IncStatusUpdate("ses", "delivered")
	metrics.IncDuplicateUpdate("ses")
	metrics.IncCallbackNoMatch("twilio")
	metrics.IncServiceCallback("delivery_status", "delivered")
	metrics.IncRetryScheduled("process-delivery-status")
	metrics.IncTechnicalFailure("process-delivery-status")
	metrics.IncComplaint("ses")

	if got := testutil.ToFloat64(metrics.callbacksReceivedTotal.WithLabelValues("ses")); got != 1 {
		t.Fatalf("callbacks_received_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.statusUpdatesTotal.WithLabelValues("ses", "delivered")); got != 1 {
		t.Fatalf("status_updates_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.duplicateUpdatesTotal.WithLabelValues("ses")); got != 1 {
		t.Fatalf("duplicate_updates_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.callbackNoMatchTotal.WithLabelValues("twilio")); got != 1 {
		t.Fatalf("callback_no_match_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.serviceCallbackTotal.WithLabelValues("delivery_status", "delivered")); got != 1 {
		t.Fatalf("service_callbacks_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.retryScheduledTotal.WithLabelValues("process-delivery-status")); got != 1 {
		t.Fatalf("retry_scheduled_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.technicalFailureTotal.WithLabelValues("process-delivery-status")); got != 1 {
		t.Fatalf("technical_failures_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.complaintsTotal.WithLabelValues("ses")); got != 1 {
		t.Fatalf("complaints_total = %v, want 1", got)
	}
}

func TestMetricsHTTPMiddlewareRecordsRequest(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()
	app := fiber.New()
	app.Use(metrics.HTTPMiddleware())
	app.Get("/livez", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	req := httptest.NewRequest("GET", "/livez", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	if got := testutil.ToFloat64(metrics.httpRequestsTotal.WithLabelValues("GET", "/livez", "200")); got != 1 {
		t.Fatalf("http_requests_total = %v, want 1", got)
	}
}

func TestMetricsHTTPMiddlewareRecordsErrorStatus(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()
	app := fiber.New()
	app.Use(metrics.HTTPMiddleware())
	app.Get("/boom", func(c *fiber.Ctx) error {
		return errors.New("boom")
	})

	req := httptest.NewRequest("GET", "/boom", nil)
	_, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}

	if got := testutil.ToFloat64(metrics.httpRequestsTotal.WithLabelValues("GET", "/boom", "500")); got != 1 {
		t.Fatalf("http_requests_total = %v, want 1", got)
	}
}
