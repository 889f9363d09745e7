// Package provider normalizes heterogeneous delivery-provider callback
// payloads into the canonical status vocabulary. One adapter exists per
// provider, registered under the provider's name.
package provider

import (
	"fmt"
	"strings"
	"time"

	"github.com/notifyhq/delivery-pipeline/internal/domain"
)

// ComplaintEvent carries a provider-reported complaint against a delivered
// notification.
type ComplaintEvent struct {
	FeedbackID    string
	ComplaintType string
	ComplaintDate time.Time
}

// CallbackEvent is the normalized form of a provider callback.
type CallbackEvent struct {
	// Reference is the provider-assigned correlation key linking the
	// callback to an outstanding send.
	Reference string
	// Status is the canonical status the callback maps to. Empty for
	// pure complaint events, which do not mutate notification status.
	Status domain.Status
	// NotANotification marks callbacks for platform-internal mail
	// (verification codes, invites). They are acknowledged but produce no
	// status mutation.
	NotANotification bool
	// Complaint is set when the provider reported a complaint.
	Complaint *ComplaintEvent
	// ScrubbedPayload is the callback payload with recipient PII redacted,
	// safe to log or persist.
	ScrubbedPayload []byte
}

// Adapter converts one provider's raw callback payload into a CallbackEvent.
type Adapter interface {
	Name() string
	// RequiredFields lists the top-level fields the inbound endpoint must
	// see before the payload is accepted for asynchronous processing.
	RequiredFields() []string
	Normalize(payload []byte) (*CallbackEvent, error)
}

// ValidationError reports every missing or invalid field in a callback
// payload, not just the first.
type ValidationError struct {
	Provider string
	Fields   []string
}

func (e *ValidationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s callback failed: missing or invalid fields: %s",
		e.Provider, strings.Join(e.Fields, ", "))
}

// Registry holds the known provider adapters keyed by provider name.
type Registry struct {
	adapters map[string]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[strings.ToLower(a.Name())] = a
	}
	return r
}

func (r *Registry) Get(name string) (Adapter, error) {
	a, ok := r.adapters[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("%w: unknown provider %q", domain.ErrValidation, name)
	}
	return a, nil
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	return names
}
