package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/notifyhq/delivery-pipeline/internal/taskerr"
)

const defaultSendTimeout = 10 * time.Second

// Sender POSTs callback payloads to service-owned HTTPS endpoints. The
// response status class decides the failure classification: 5xx means the
// receiver may recover and the delivery is retryable, any other non-2xx
// means the receiver rejected the payload and retrying cannot help.
type Sender struct {
	client *resty.Client
}

func NewSender() *Sender {
	client := resty.New()
	client.SetTimeout(defaultSendTimeout)
	client.SetRetryCount(0)

	return &Sender{client: client}
}

func NewSenderWithClient(client *resty.Client) (*Sender, error) {
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}
	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultSendTimeout)
	}
	client.SetRetryCount(0)

	return &Sender{client: client}, nil
}

// Send POSTs body as JSON to url with the bearer token. It returns the HTTP
// status code observed (0 when the request never completed) alongside the
// classified error.
func (s *Sender) Send(ctx context.Context, url string, bearerToken string, body any) (int, error) {
	if s == nil || s.client == nil {
		return 0, fmt.Errorf("sender is not initialized")
	}
	if strings.TrimSpace(url) == "" {
		return 0, fmt.Errorf("callback url is required")
	}

	request := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body)
	if token := strings.TrimSpace(bearerToken); token != "" {
		request.SetHeader("Authorization", "Bearer "+token)
	}

	response, err := request.Post(url)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return 0, err
		}
		return 0, taskerr.Retryable("callback request failed", err)
	}
	if response == nil {
		return 0, taskerr.Retryable("callback returned empty response", nil)
	}

	statusCode := response.StatusCode()
	if statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices {
		return statusCode, nil
	}

	message := fmt.Sprintf("callback returned status %d", statusCode)
	if responseBody := strings.TrimSpace(response.String()); responseBody != "" {
		message = fmt.Sprintf("%s: %s", message, responseBody)
	}

	if statusCode >= http.StatusInternalServerError {
		return statusCode, taskerr.Retryable(message, nil)
	}
	return statusCode, taskerr.Fatal(message, nil)
}
