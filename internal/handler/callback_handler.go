package handler

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/notifyhq/delivery-pipeline/internal/observability"
	"github.com/notifyhq/delivery-pipeline/internal/provider"
	"github.com/notifyhq/delivery-pipeline/internal/queue"
)

// CallbackHandler accepts raw provider callbacks, validates field presence,
// and enqueues them for asynchronous processing. Status mapping happens in
// the worker; the endpoint only guards against payloads that could never be
// processed.
type CallbackHandler struct {
	registry  *provider.Registry
	publisher queue.Publisher
	metrics   *observability.Metrics
	now       func() time.Time
}

func NewCallbackHandler(registry *provider.Registry, publisher queue.Publisher, metrics *observability.Metrics) (*CallbackHandler, error) {
	if registry == nil {
		return nil, fmt.Errorf("provider registry is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}

	return &CallbackHandler{
		registry:  registry,
		publisher: publisher,
		metrics:   metrics,
		now:       time.Now,
	}, nil
}

func RegisterCallbackRoutes(router fiber.Router, registry *provider.Registry, publisher queue.Publisher, metrics *observability.Metrics) error {
	h, err := NewCallbackHandler(registry, publisher, metrics)
	if err != nil {
		return err
	}

	notifications := router.Group("/notifications")
	notifications.Post("/email/ses", h.acceptCallback("ses"))
	notifications.Post("/sms/twilio", h.acceptCallback("twilio"))
	notifications.Post("/sms/mmg", h.acceptCallback("mmg"))
	notifications.Post("/sms/firetext", h.acceptCallback("firetext"))

	return nil
}

func (h *CallbackHandler) acceptCallback(providerName string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		adapter, err := h.registry.Get(providerName)
		if err != nil {
			return fiber.NewError(fiber.StatusNotFound, fmt.Sprintf("unknown provider %q", providerName))
		}

		payload, err := requestPayload(c)
		if err != nil {
			return validationResponse(c, providerName, []string{"body"})
		}

		if missing := missingFields(payload, adapter.RequiredFields()); len(missing) > 0 {
			return validationResponse(c, providerName, missing)
		}

		task := queue.DeliveryTask{
			Provider:   providerName,
			Payload:    payload,
			ReceivedAt: h.now().UTC(),
		}
		body, err := json.Marshal(task)
		if err != nil {
			return fmt.Errorf("failed to encode delivery task: %w", err)
		}
		if err := h.publisher.Publish(c.UserContext(), queue.QueueCallbacks, body); err != nil {
			return fmt.Errorf("failed to enqueue provider callback: %w", err)
		}

		if h.metrics != nil {
			h.metrics.IncCallbackReceived(providerName)
		}

		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"result": "success",
		})
	}
}

// requestPayload returns the callback body as JSON. Form-encoded bodies
// (Firetext, Twilio) are converted to a flat JSON object so the worker-side
// adapters see one format.
func requestPayload(c *fiber.Ctx) (json.RawMessage, error) {
	body := c.Body()
	if len(body) == 0 {
		return nil, fmt.Errorf("empty body")
	}

	contentType := strings.ToLower(c.Get(fiber.HeaderContentType))
	if !strings.Contains(contentType, fiber.MIMEApplicationForm) {
		if !json.Valid(body) {
			return nil, fmt.Errorf("invalid json")
		}
		return json.RawMessage(body), nil
	}

	values, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, fmt.Errorf("invalid form body: %w", err)
	}

	flat := make(map[string]string, len(values))
	for key := range values {
		flat[key] = values.Get(key)
	}
	return json.Marshal(flat)
}

// missingFields returns every required top-level field that is absent or
// blank, so the caller sees the full list in one response.
func missingFields(payload json.RawMessage, required []string) []string {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return []string{"body"}
	}

	var missing []string
	for _, name := range required {
		raw, ok := fields[name]
		if !ok {
			missing = append(missing, name)
			continue
		}

		var asString string
		if err := json.Unmarshal(raw, &asString); err == nil && strings.TrimSpace(asString) == "" {
			missing = append(missing, name)
		}
	}
	return missing
}

func validationResponse(c *fiber.Ctx, providerName string, missing []string) error {
	verr := &provider.ValidationError{Provider: providerName, Fields: missing}
	errs := make([]string, 0, len(missing))
	for _, field := range missing {
		errs = append(errs, fmt.Sprintf("%s is a required property", field))
	}

	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"result":  "error",
		"message": verr.Error(),
		"errors":  errs,
	})
}
