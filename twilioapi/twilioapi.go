// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package twilioapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/twilio/twilio-go"
	"github.com/twilio/twilio-go/client"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/danielhkuo/helpline-router/relay"
)

// IdempotencyHeader makes Twilio drop a repeated create with the same token.
const IdempotencyHeader = "I-Twilio-Idempotency-Token"

var ErrNoSid = errors.New("twilio returned no message sid")

// MessageAPI is the part of the Twilio REST API the gateway uses.
type MessageAPI interface {
	CreateMessage(params *openapi.CreateMessageParams) (*openapi.ApiV2010Message, error)
}

// Gateway sends texts through Twilio.
type Gateway struct {
	accountSID string
	// api builds a REST client that stamps key on its requests.
	api func(key string) MessageAPI
}

var _ relay.SMS = (*Gateway)(nil)

// New creates a gateway for the account credentials.
func New(accountSID, authToken string) *Gateway {
	g := &Gateway{accountSID: accountSID}
	g.api = func(key string) MessageAPI {
		base := &client.Client{
			Credentials: client.NewCredentials(accountSID, authToken),
			HTTPClient: &http.Client{
				Timeout:   15 * time.Second,
				Transport: idempotentTransport{key: key, next: http.DefaultTransport},
			},
		}
		base.SetAccountSid(accountSID)
		return twilio.NewRestClientWithParams(twilio.ClientParams{Client: base}).Api
	}
	return g
}

// NewWithAPI creates a gateway around an existing message API. Idempotency
// keys are not forwarded.
func NewWithAPI(accountSID string, api MessageAPI) *Gateway {
	return &Gateway{accountSID: accountSID, api: func(string) MessageAPI { return api }}
}

type idempotentTransport struct {
	key  string
	next http.RoundTripper
}

func (t idempotentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.key == "" {
		return t.next.RoundTrip(req)
	}
	req = req.Clone(req.Context())
	req.Header.Set(IdempotencyHeader, t.key)
	return t.next.RoundTrip(req)
}

// Send texts body and returns the message sid. The Twilio client has no
// context support, so ctx is only checked before the request.
func (g *Gateway) Send(ctx context.Context, body string, p relay.SendParams) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	params := &openapi.CreateMessageParams{}
	params.SetPathAccountSid(g.accountSID)
	params.SetFrom(p.From)
	params.SetTo(p.To)
	params.SetBody(body)
	if p.CallbackURL != "" {
		params.SetStatusCallback(p.CallbackURL)
	}

	msg, err := g.api(p.IdempotencyKey).CreateMessage(params)
	if err != nil {
		return "", fmt.Errorf("create message: %w", err)
	}
	if msg == nil || msg.Sid == nil {
		return "", ErrNoSid
	}
	return *msg.Sid, nil
}
