package provider

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/notifyhq/delivery-pipeline/internal/domain"
	"github.com/notifyhq/delivery-pipeline/internal/taskerr"
)

const twilioProviderName = "twilio"

var twilioStatusMap = map[string]domain.Status{
	"accepted":    domain.StatusSending,
	"queued":      domain.StatusSending,
	"sending":     domain.StatusSending,
	"sent":        domain.StatusSending,
	"delivered":   domain.StatusDelivered,
	"undelivered": domain.StatusPermanentFailure,
	"failed":      domain.StatusTechnicalFailure,
}

type twilioCallback struct {
	MessageSid    string `json:"MessageSid"`
	MessageStatus string `json:"MessageStatus"`
}

// TwilioAdapter normalizes Twilio SMS status callbacks.
type TwilioAdapter struct{}

func NewTwilioAdapter() *TwilioAdapter { return &TwilioAdapter{} }

func (a *TwilioAdapter) Name() string { return twilioProviderName }

func (a *TwilioAdapter) RequiredFields() []string {
	return []string{"MessageSid", "MessageStatus"}
}

func (a *TwilioAdapter) Normalize(payload []byte) (*CallbackEvent, error) {
	var cb twilioCallback
	if err := json.Unmarshal(payload, &cb); err != nil {
		return nil, &ValidationError{Provider: "Twilio", Fields: a.RequiredFields()}
	}

	missing := make([]string, 0, 2)
	if strings.TrimSpace(cb.MessageSid) == "" {
		missing = append(missing, "MessageSid")
	}
	if strings.TrimSpace(cb.MessageStatus) == "" {
		missing = append(missing, "MessageStatus")
	}
	if len(missing) > 0 {
		return nil, &ValidationError{Provider: "Twilio", Fields: missing}
	}

	status, ok := twilioStatusMap[strings.ToLower(cb.MessageStatus)]
	if !ok {
		return nil, taskerr.Fatal(
			fmt.Sprintf("Twilio callback failed: status %s not found", cb.MessageStatus), nil)
	}

	return &CallbackEvent{
		Reference:       cb.MessageSid,
		Status:          status,
		ScrubbedPayload: payload,
	}, nil
}
