package provider

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/notifyhq/delivery-pipeline/internal/domain"
	"github.com/notifyhq/delivery-pipeline/internal/taskerr"
)

const mmgProviderName = "mmg"

// MMG reports numeric delivery codes: 3 delivered, 4 expired, 5 rejected.
var mmgStatusMap = map[string]domain.Status{
	"3": domain.StatusDelivered,
	"4": domain.StatusTemporaryFailure,
	"5": domain.StatusPermanentFailure,
}

type mmgCallback struct {
	Status json.Number `json:"status"`
	CID    string      `json:"CID"`
}

// MMGAdapter normalizes MMG SMS delivery receipts.
type MMGAdapter struct{}

func NewMMGAdapter() *MMGAdapter { return &MMGAdapter{} }

func (a *MMGAdapter) Name() string { return mmgProviderName }

func (a *MMGAdapter) RequiredFields() []string { return []string{"status", "CID"} }

func (a *MMGAdapter) Normalize(payload []byte) (*CallbackEvent, error) {
	var cb mmgCallback
	if err := json.Unmarshal(payload, &cb); err != nil {
		return nil, &ValidationError{Provider: "MMG", Fields: a.RequiredFields()}
	}

	missing := make([]string, 0, 2)
	if strings.TrimSpace(cb.Status.String()) == "" {
		missing = append(missing, "status")
	}
	if strings.TrimSpace(cb.CID) == "" {
		missing = append(missing, "CID")
	}
	if len(missing) > 0 {
		return nil, &ValidationError{Provider: "MMG", Fields: missing}
	}

	status, ok := mmgStatusMap[cb.Status.String()]
	if !ok {
		return nil, taskerr.Fatal(
			fmt.Sprintf("MMG callback failed: status %s not found", cb.Status), nil)
	}

	return &CallbackEvent{
		Reference:       cb.CID,
		Status:          status,
		ScrubbedPayload: payload,
	}, nil
}
