package target

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/beyondessential/alertd/internal/alertdef"
	sharederrors "github.com/beyondessential/alertd/internal/shared/errors"
	"github.com/beyondessential/alertd/internal/shared/httpclient"
)

// ZendeskSender creates a ticket via the Zendesk REST API's requests
// endpoint, authenticating with basic auth when credentials are configured
// or falling back to an anonymous requester email.
type ZendeskSender struct {
	Client *http.Client
}

// NewZendeskSender builds a ZendeskSender with the package's tuned HTTP
// client config.
func NewZendeskSender() *ZendeskSender {
	return &ZendeskSender{Client: httpclient.NewClient(httpclient.ZendeskClientConfig())}
}

type zendeskRequest struct {
	Request zendeskRequestBody `json:"request"`
}

type zendeskRequestBody struct {
	Subject      string                 `json:"subject"`
	Comment      zendeskComment         `json:"comment"`
	TicketFormID int64                  `json:"ticket_form_id,omitempty"`
	CustomFields map[string]interface{} `json:"custom_fields,omitempty"`
	Requester    *zendeskRequester      `json:"requester,omitempty"`
}

type zendeskComment struct {
	Body string `json:"body"`
}

type zendeskRequester struct {
	Email string `json:"email"`
}

// Send creates a Zendesk request/ticket with subject and body.
func (s *ZendeskSender) Send(ctx context.Context, target alertdef.ExternalTarget, subject, body string) error {
	if target.Zendesk == nil || target.Zendesk.Endpoint == "" {
		return fmt.Errorf("zendesk target %s has no endpoint", target.ID)
	}
	zd := target.Zendesk

	payload := zendeskRequest{Request: zendeskRequestBody{
		Subject:      subject,
		Comment:      zendeskComment{Body: body},
		TicketFormID: zd.FormID,
		CustomFields: zd.CustomFields,
	}}
	if zd.AuthUser == "" && zd.Requester != "" {
		payload.Request.Requester = &zendeskRequester{Email: zd.Requester}
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding zendesk request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, zd.Endpoint, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("building zendesk request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if zd.AuthUser != "" {
		req.SetBasicAuth(zd.AuthUser, zd.AuthPass)
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		return sharederrors.NetworkError("send zendesk request", target.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("zendesk request for target %s failed with status %d", target.ID, resp.StatusCode)
	}
	return nil
}
