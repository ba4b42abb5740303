// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package testutil

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/danielhkuo/helpline-router/cliparse"
	"github.com/danielhkuo/helpline-router/db"
)

// Phone numbers used across tests
const (
	VoterPhone     = "+15555550100"
	GatewayPull    = "+15555550001"
	GatewayPush    = "+15555550002"
	GatewayDemo    = "+15555550003"
	TestAdminSalt  = "test-admin-salt"
	TestSigningKey = "test-signing-secret"
)

// SetupTestDB opens a fresh in-memory SQLite database with the full schema
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	conn, err := db.Open(context.Background(), "sqlite", "file::memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	if err := db.CreateSchema(conn); err != nil {
		conn.Close()
		t.Fatalf("Failed to create schema: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// GetTestConfig returns a standard test configuration
func GetTestConfig() cliparse.Config {
	return cliparse.Config{
		Mode:                "server",
		Port:                3318,
		DatabaseType:        "sqlite",
		DatabaseURL:         "file::memory:",
		AdminKeySalt:        TestAdminSalt,
		LogLevel:            "info",
		LogFormat:           "text",
		SlackSigningSecret:  TestSigningKey,
		SlackBotUserID:      "UBOT",
		SlackAdminChannelID: "CADMIN",
		TwilioAuthToken:     "test-twilio-token",
		PublicBaseURL:       "https://helpline.example",
		RequireDisclaimer:   true,
		DemoGatewayNumbers:  []string{GatewayDemo},
		PushNumberRegions:   map[string]string{GatewayPush: "Ohio"},
		PushInterval:        time.Millisecond,
	}
}

// MakeRequest creates an HTTP test request
func MakeRequest(method, path string, body interface{}, headers map[string]string) *http.Request {
	var req *http.Request
	if body != nil {
		jsonBody, _ := json.Marshal(body)
		req = httptest.NewRequest(method, path, bytes.NewReader(jsonBody))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return req
}

// MakeFormRequest creates a form-encoded HTTP test request
func MakeFormRequest(method, path string, form url.Values, headers map[string]string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return req
}

// AssertStatus checks that the response has the expected status code
func AssertStatus(t *testing.T, w *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if w.Code != expected {
		t.Errorf("Expected status %d, got %d. Body: %s", expected, w.Code, w.Body.String())
	}
}

// AssertJSON decodes the response body into the provided struct
func AssertJSON(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("Failed to decode JSON response: %v", err)
	}
}

// TwilioSignature computes X-Twilio-Signature for a form posted to fullURL
func TwilioSignature(authToken, fullURL string, form url.Values) string {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(fullURL)
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(form.Get(k))
	}
	h := hmac.New(sha1.New, []byte(authToken))
	h.Write([]byte(b.String()))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// MakeTwilioRequest creates a signed Twilio webhook request
func MakeTwilioRequest(cfg cliparse.Config, path string, form url.Values) *http.Request {
	sig := TwilioSignature(cfg.TwilioAuthToken, cfg.PublicBaseURL+path, form)
	return MakeFormRequest("POST", path, form, map[string]string{"X-Twilio-Signature": sig})
}

// MakeSlackRequest creates a Slack webhook request signed with the
// current time
func MakeSlackRequest(secret, path, contentType string, body []byte) *http.Request {
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte("v0:" + ts + ":" + string(body)))

	req := httptest.NewRequest("POST", path, bytes.NewReader(body))
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Slack-Request-Timestamp", ts)
	req.Header.Set("X-Slack-Signature", "v0="+hex.EncodeToString(h.Sum(nil)))
	return req
}
