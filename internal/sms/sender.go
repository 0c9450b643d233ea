// Package sms is the boundary to the external SMS channel. Dispatch is the
// one blocking, failure-prone external call in the auth subsystem; callers
// gate their own commits on its success.
package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Sender delivers a text message to a phone number.
type Sender interface {
	Send(ctx context.Context, phone, message string) error
}

// HTTPSender posts messages to an SMS provider's JSON HTTP API.
type HTTPSender struct {
	url    string
	apiKey string
	client *http.Client
	log    zerolog.Logger
}

func NewHTTPSender(url, apiKey string, log zerolog.Logger) *HTTPSender {
	return &HTTPSender{
		url:    url,
		apiKey: apiKey,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    log,
	}
}

type sendPayload struct {
	To   string `json:"to"`
	Text string `json:"text"`
}

func (s *HTTPSender) Send(ctx context.Context, phone, message string) error {
	body, err := json.Marshal(sendPayload{To: phone, Text: message})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		s.log.Warn().Err(err).Str("phone", phone).Msg("sms dispatch failed")
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		s.log.Warn().Int("status", resp.StatusCode).Str("phone", phone).Msg("sms provider rejected message")
		return fmt.Errorf("sms provider returned %d", resp.StatusCode)
	}
	return nil
}

// LogSender writes the message to the log instead of dispatching it. Used in
// dev environments without provider credentials.
type LogSender struct{ Log zerolog.Logger }

func (s LogSender) Send(_ context.Context, phone, message string) error {
	s.Log.Info().Str("phone", phone).Str("message", message).Msg("sms (log only)")
	return nil
}
