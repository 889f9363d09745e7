package provider

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/notifyhq/delivery-pipeline/internal/domain"
	"github.com/notifyhq/delivery-pipeline/internal/taskerr"
)

const firetextProviderName = "firetext"

// Firetext reports 0 delivered, 1 declined, 2 undelivered (still pending).
var firetextStatusMap = map[string]domain.Status{
	"0": domain.StatusDelivered,
	"1": domain.StatusPermanentFailure,
	"2": domain.StatusPending,
}

type firetextCallback struct {
	Status    json.Number `json:"status"`
	Reference string      `json:"reference"`
}

// FiretextAdapter normalizes Firetext SMS delivery receipts, which arrive
// form-encoded and are converted to JSON at the inbound endpoint.
type FiretextAdapter struct{}

func NewFiretextAdapter() *FiretextAdapter { return &FiretextAdapter{} }

func (a *FiretextAdapter) Name() string { return firetextProviderName }

func (a *FiretextAdapter) RequiredFields() []string { return []string{"status", "reference"} }

func (a *FiretextAdapter) Normalize(payload []byte) (*CallbackEvent, error) {
	var cb firetextCallback
	if err := json.Unmarshal(payload, &cb); err != nil {
		return nil, &ValidationError{Provider: "Firetext", Fields: a.RequiredFields()}
	}

	missing := make([]string, 0, 2)
	if strings.TrimSpace(cb.Status.String()) == "" {
		missing = append(missing, "status")
	}
	if strings.TrimSpace(cb.Reference) == "" {
		missing = append(missing, "reference")
	}
	if len(missing) > 0 {
		return nil, &ValidationError{Provider: "Firetext", Fields: missing}
	}

	status, ok := firetextStatusMap[cb.Status.String()]
	if !ok {
		return nil, taskerr.Fatal(
			fmt.Sprintf("Firetext callback failed: status %s not found", cb.Status), nil)
	}

	return &CallbackEvent{
		Reference:       cb.Reference,
		Status:          status,
		ScrubbedPayload: payload,
	}, nil
}
