package notifier

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// RelayTransport posts messages as JSON to an HTTP mail relay.
type RelayTransport struct {
	client *resty.Client
}

type relayAttachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Content     []byte `json:"content"`
}

type relayRequest struct {
	From        string            `json:"from"`
	To          []string          `json:"to"`
	ReplyTo     string            `json:"reply_to,omitempty"`
	Subject     string            `json:"subject"`
	Body        string            `json:"body"`
	Attachments []relayAttachment `json:"attachments,omitempty"`
}

type relayError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func NewRelayTransport(baseURL, apiKey string, timeout time.Duration) *RelayTransport {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(3).
		SetRetryWaitTime(500*time.Millisecond).
		SetRetryMaxWaitTime(5*time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if apiKey != "" {
		client.SetAuthToken(apiKey)
	}
	client.AddRetryCondition(func(r *resty.Response, err error) bool {
		return err != nil || r.StatusCode() >= 500
	})
	return &RelayTransport{client: client}
}

// Send encodes attachment content as base64 through encoding/json's []byte handling.
func (t *RelayTransport) Send(ctx context.Context, msg Message) error {
	req := relayRequest{
		From:    msg.Sender,
		To:      msg.To,
		ReplyTo: msg.ReplyTo,
		Subject: msg.Subject,
		Body:    msg.Body,
	}
	for _, a := range msg.Attachments {
		req.Attachments = append(req.Attachments, relayAttachment{
			Filename: a.Filename, ContentType: a.ContentType, Content: a.Data,
		})
	}

	var relayErr relayError
	resp, err := t.client.R().
		SetContext(ctx).
		SetBody(req).
		SetError(&relayErr).
		Post("/send")
	if err != nil {
		return fmt.Errorf("call mail relay: %w", err)
	}
	if resp.IsError() {
		detail := relayErr.Message
		if detail == "" {
			detail = relayErr.Error
		}
		return fmt.Errorf("mail relay returned %d: %s", resp.StatusCode(), detail)
	}
	return nil
}
