// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package auth

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"testing"
	"time"
)

func TestVoterID(t *testing.T) {
	tests := []struct {
		name  string
		phone string
		want  string
	}{
		{"known fixture", "+15555550100", "3538218e2d157f1fe9ffd0ebaf8dd716"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := VoterID(tt.phone)
			if got != tt.want {
				t.Errorf("VoterID() = %s, want %s", got, tt.want)
			}
			if VoterID(tt.phone) != got {
				t.Error("VoterID() is not deterministic")
			}
		})
	}

	if VoterID("+15555550100") == VoterID("+15555550101") {
		t.Error("VoterID() produced same id for different numbers")
	}
}

func TestMaskPhone(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"+15555550100", "********0100"},
		{"123", "123"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := MaskPhone(tt.in); got != tt.want {
			t.Errorf("MaskPhone(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestGenerateAdminKey(t *testing.T) {
	tests := []struct {
		name  string
		scope string
		salt  string
	}{
		{"standard", "channel-weights", "secret-salt"},
		{"empty scope", "", "salt"},
		{"empty salt", "stats", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := GenerateAdminKey(tt.scope, tt.salt)
			if key == "" {
				t.Error("GenerateAdminKey() returned empty string")
			}
			if key != GenerateAdminKey(tt.scope, tt.salt) {
				t.Error("GenerateAdminKey() is not deterministic")
			}
			if tt.scope != "" && tt.salt != "" {
				if key == GenerateAdminKey(tt.scope+"x", tt.salt) {
					t.Error("GenerateAdminKey() produced same key for different scopes")
				}
			}
			if strings.Contains(key, "=") {
				t.Error("GenerateAdminKey() contains padding characters")
			}
		})
	}
}

func TestValidateAdminKey(t *testing.T) {
	scope := "push"
	salt := "test-salt"
	validKey := GenerateAdminKey(scope, salt)

	tests := []struct {
		name     string
		scope    string
		adminKey string
		salt     string
		wantErr  bool
	}{
		{"valid key", scope, validKey, salt, false},
		{"wrong key", scope, "wrong-key", salt, true},
		{"wrong scope", "stats", validKey, salt, true},
		{"wrong salt", scope, validKey, "different-salt", true},
		{"empty key", scope, "", salt, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAdminKey(tt.scope, tt.adminKey, tt.salt)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateAdminKey() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && err != ErrInvalidAdminKey {
				t.Errorf("ValidateAdminKey() error = %v, want %v", err, ErrInvalidAdminKey)
			}
		})
	}
}

func slackSignature(secret, ts, body string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte("v0:" + ts + ":" + body))
	return "v0=" + hex.EncodeToString(h.Sum(nil))
}

func TestVerifySlackRequest(t *testing.T) {
	const secret = "signing-secret"
	body := `{"type":"event_callback"}`
	now := strconv.FormatInt(time.Now().Unix(), 10)
	stale := strconv.FormatInt(time.Now().Add(-time.Hour).Unix(), 10)

	tests := []struct {
		name      string
		ts        string
		signature string
		wantErr   bool
	}{
		{"valid", now, slackSignature(secret, now, body), false},
		{"wrong secret", now, slackSignature("other", now, body), true},
		{"stale timestamp", stale, slackSignature(secret, stale, body), true},
		{"missing signature", now, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/slack", strings.NewReader(body))
			req.Header.Set("X-Slack-Request-Timestamp", tt.ts)
			if tt.signature != "" {
				req.Header.Set("X-Slack-Signature", tt.signature)
			}

			got, err := VerifySlackRequest(req, secret)
			if (err != nil) != tt.wantErr {
				t.Fatalf("VerifySlackRequest() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && string(got) != body {
				t.Errorf("VerifySlackRequest() body = %q, want %q", got, body)
			}
		})
	}
}

func twilioSignature(token, fullURL string, params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(fullURL)
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(params.Get(k))
	}
	h := hmac.New(sha1.New, []byte(token))
	h.Write([]byte(b.String()))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

func TestVerifyTwilioRequest(t *testing.T) {
	const token = "auth-token"
	const publicURL = "https://helpline.example.org/twilio-pull"
	form := url.Values{"From": {"+15555550100"}, "To": {"+15555550199"}, "Body": {"hi"}}

	tests := []struct {
		name      string
		signature string
		wantErr   bool
	}{
		{"valid", twilioSignature(token, publicURL, form), false},
		{"tampered", twilioSignature("other", publicURL, form), true},
		{"missing", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/twilio-pull", strings.NewReader(form.Encode()))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			req.Header.Set("X-Twilio-Signature", tt.signature)
			if err := req.ParseForm(); err != nil {
				t.Fatal(err)
			}

			err := VerifyTwilioRequest(req, publicURL, token)
			if (err != nil) != tt.wantErr {
				t.Errorf("VerifyTwilioRequest() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func BenchmarkVoterID(b *testing.B) {
	for i := 0; i < b.N; i++ {
		VoterID("+15555550100")
	}
}
