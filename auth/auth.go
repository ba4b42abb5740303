// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package auth

import (
	"bytes"
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/slack-go/slack"
	"github.com/twilio/twilio-go/client"
)

var (
	ErrInvalidAdminKey  = errors.New("invalid admin key")
	ErrInvalidSignature = errors.New("invalid request signature")
)

// VoterID derives the stable pseudonymous voter id from a phone number.
// MD5 hex keeps ids compatible with threads and rows already in the log.
func VoterID(phoneNumber string) string {
	sum := md5.Sum([]byte(phoneNumber))
	return hex.EncodeToString(sum[:])
}

// MaskPhone hides all but the last four digits for logging.
func MaskPhone(phoneNumber string) string {
	if len(phoneNumber) <= 4 {
		return phoneNumber
	}
	return strings.Repeat("*", len(phoneNumber)-4) + phoneNumber[len(phoneNumber)-4:]
}

// GenerateAdminKey creates an HMAC-based key for an admin scope
// ("channel-weights", "stats", "push"). Deterministic and verifiable.
func GenerateAdminKey(scope, salt string) string {
	h := hmac.New(sha256.New, []byte(salt))
	h.Write([]byte(scope))
	sum := h.Sum(nil)
	// Use URL-safe base64 and trim padding for cleaner keys
	return strings.TrimRight(base64.URLEncoding.EncodeToString(sum), "=")
}

// ValidateAdminKey checks if the provided admin key is valid for the scope
func ValidateAdminKey(scope, adminKey, salt string) error {
	expected := GenerateAdminKey(scope, salt)
	if !hmac.Equal([]byte(adminKey), []byte(expected)) {
		return ErrInvalidAdminKey
	}
	return nil
}

// VerifySlackRequest checks the v0 signature Slack attaches to every
// webhook. It returns the raw body, which the caller must use instead of
// r.Body.
func VerifySlackRequest(r *http.Request, signingSecret string) ([]byte, error) {
	body, err := io.ReadAll(r.Body)
	r.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	verifier, err := slack.NewSecretsVerifier(r.Header, signingSecret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if _, err := verifier.Write(body); err != nil {
		return nil, fmt.Errorf("hash body: %w", err)
	}
	if err := verifier.Ensure(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return body, nil
}

// VerifyTwilioRequest checks the X-Twilio-Signature header over the public
// callback URL and the posted form. r.ParseForm must have been called.
func VerifyTwilioRequest(r *http.Request, publicURL, authToken string) error {
	params := make(map[string]string, len(r.PostForm))
	for k, v := range r.PostForm {
		if len(v) > 0 {
			params[k] = v[0]
		}
	}
	validator := client.NewRequestValidator(authToken)
	if !validator.Validate(publicURL, params, r.Header.Get("X-Twilio-Signature")) {
		return ErrInvalidSignature
	}
	return nil
}
