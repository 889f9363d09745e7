// Package identity resolves recipient identifiers to deliverable contact
// addresses through the external profile service. Failures follow the shared
// taxonomy: congestion and outages are retryable, a definitive answer about
// the person (unknown, deceased, no contact on file) is fatal.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/notifyhq/delivery-pipeline/internal/domain"
	"github.com/notifyhq/delivery-pipeline/internal/taskerr"
)

const defaultLookupTimeout = 15 * time.Second

// ContactLookup resolves the deliverable address for a recipient identifier.
type ContactLookup interface {
	ResolveContact(ctx context.Context, identifier string, notificationType domain.NotificationType) (string, error)
}

type lookupRequest struct {
	Identifier string `json:"identifier"`
	Channel    string `json:"channel"`
}

type lookupResponse struct {
	Contact  string `json:"contact"`
	Deceased bool   `json:"deceased"`
}

// ProfileClient is the HTTP implementation of ContactLookup.
type ProfileClient struct {
	client  *resty.Client
	baseURL string
	token   string
}

func NewProfileClient(baseURL string, token string) (*ProfileClient, error) {
	client := resty.New()
	client.SetTimeout(defaultLookupTimeout)
	client.SetRetryCount(0)

	return NewProfileClientWithClient(baseURL, token, client)
}

func NewProfileClientWithClient(baseURL string, token string, client *resty.Client) (*ProfileClient, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, fmt.Errorf("profile service base url is required")
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}
	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultLookupTimeout)
	}
	client.SetRetryCount(0)

	return &ProfileClient{
		client:  client,
		baseURL: trimmed,
		token:   strings.TrimSpace(token),
	}, nil
}

func (p *ProfileClient) ResolveContact(ctx context.Context, identifier string, notificationType domain.NotificationType) (string, error) {
	if p == nil || p.client == nil {
		return "", fmt.Errorf("profile client is not initialized")
	}
	if strings.TrimSpace(identifier) == "" {
		return "", taskerr.Fatal("recipient identifier is empty", nil)
	}

	request := p.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(lookupRequest{
			Identifier: identifier,
			Channel:    notificationType.String(),
		})
	if p.token != "" {
		request.SetHeader("Authorization", "Bearer "+p.token)
	}

	response, err := request.Post(p.baseURL + "/v1/contact-lookup")
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return "", err
		}
		return "", taskerr.Retryable("contact lookup request failed", err)
	}

	statusCode := response.StatusCode()
	switch {
	case statusCode == http.StatusTooManyRequests:
		return "", taskerr.Retryable("contact lookup rate limited", nil)
	case statusCode >= http.StatusInternalServerError:
		return "", taskerr.Retryable(fmt.Sprintf("profile service returned status %d", statusCode), nil)
	case statusCode == http.StatusNotFound:
		return "", taskerr.Fatal("no profile found for identifier", nil)
	case statusCode >= http.StatusBadRequest:
		return "", taskerr.Fatal(fmt.Sprintf("profile service rejected lookup with status %d", statusCode), nil)
	}

	var result lookupResponse
	if err := json.Unmarshal(response.Body(), &result); err != nil {
		return "", taskerr.Fatal("profile service returned malformed response", err)
	}

	if result.Deceased {
		return "", taskerr.Fatal("recipient is marked deceased", nil)
	}
	if strings.TrimSpace(result.Contact) == "" {
		return "", taskerr.Fatal("no contact address on file for channel "+notificationType.String(), nil)
	}

	return result.Contact, nil
}
