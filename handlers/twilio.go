// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/getsentry/sentry-go"

	"github.com/danielhkuo/helpline-router/auth"
	"github.com/danielhkuo/helpline-router/cliparse"
	"github.com/danielhkuo/helpline-router/middleware"
	"github.com/danielhkuo/helpline-router/models"
	"github.com/danielhkuo/helpline-router/relay"
)

// emptyTwiML acknowledges a webhook without replying to the voter.
const emptyTwiML = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`

// maxMedia caps the MediaUrlN fields read from one text.
const maxMedia = 10

// InboundHandler runs the voter state machine for an inbound text.
type InboundHandler interface {
	HandleInboundSMS(ctx context.Context, in relay.Inbound) error
}

// DeliveryRecorder applies gateway delivery callbacks.
type DeliveryRecorder interface {
	DeliveryStatus(ctx context.Context, sid, status string) error
}

type TwilioHandler struct {
	cfg      cliparse.Config
	inbound  InboundHandler
	delivery DeliveryRecorder
}

func NewTwilioHandler(cfg cliparse.Config, inbound InboundHandler, delivery DeliveryRecorder) *TwilioHandler {
	return &TwilioHandler{cfg: cfg, inbound: inbound, delivery: delivery}
}

// verify parses the form and checks the Twilio signature against the
// public URL of this endpoint.
func (h *TwilioHandler) verify(w http.ResponseWriter, r *http.Request) bool {
	if err := r.ParseForm(); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid form body")
		return false
	}
	publicURL := h.cfg.PublicBaseURL + r.URL.RequestURI()
	if err := auth.VerifyTwilioRequest(r, publicURL, h.cfg.TwilioAuthToken); err != nil {
		slog.Warn("rejected twilio webhook", "path", r.URL.Path, "error", err)
		middleware.ErrorResponse(w, http.StatusForbidden, "Invalid signature")
		return false
	}
	return true
}

func inboundFromForm(r *http.Request, ep models.EntryPoint) (relay.Inbound, error) {
	in := relay.Inbound{
		Sid:                r.PostForm.Get("MessageSid"),
		VoterPhoneNumber:   r.PostForm.Get("From"),
		GatewayPhoneNumber: r.PostForm.Get("To"),
		Body:               r.PostForm.Get("Body"),
		EntryPoint:         ep,
	}
	if in.Sid == "" || in.VoterPhoneNumber == "" || in.GatewayPhoneNumber == "" {
		return in, fmt.Errorf("MessageSid, From and To are required")
	}
	if n := r.PostForm.Get("NumMedia"); n != "" {
		count, err := strconv.Atoi(n)
		if err != nil || count < 0 {
			return in, fmt.Errorf("invalid NumMedia %q", n)
		}
		for i := 0; i < count && i < maxMedia; i++ {
			if u := r.PostForm.Get("MediaUrl" + strconv.Itoa(i)); u != "" {
				in.Attachments = append(in.Attachments, u)
			}
		}
	}
	return in, nil
}

func (h *TwilioHandler) receive(w http.ResponseWriter, r *http.Request, ep models.EntryPoint) {
	if !h.verify(w, r) {
		return
	}

	in, err := inboundFromForm(r, ep)
	if err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.inbound.HandleInboundSMS(r.Context(), in); err != nil {
		slog.Error("failed to handle inbound text",
			"sid", in.Sid,
			"voter", auth.MaskPhone(in.VoterPhoneNumber),
			"gateway", in.GatewayPhoneNumber,
			"error", err,
		)
		sentry.CaptureException(err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to handle message")
		return
	}

	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(emptyTwiML))
}

// Pull handles POST /twilio-pull, texts from voters who reached out.
func (h *TwilioHandler) Pull(w http.ResponseWriter, r *http.Request) {
	h.receive(w, r, models.EntryPointPull)
}

// Push handles POST /twilio-push, replies to outreach numbers.
func (h *TwilioHandler) Push(w http.ResponseWriter, r *http.Request) {
	h.receive(w, r, models.EntryPointPush)
}

// Callback handles POST /twilio-callback delivery status updates.
func (h *TwilioHandler) Callback(w http.ResponseWriter, r *http.Request) {
	if !h.verify(w, r) {
		return
	}

	sid := r.PostForm.Get("MessageSid")
	status := r.PostForm.Get("MessageStatus")
	if sid == "" || status == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "MessageSid and MessageStatus are required")
		return
	}

	if err := h.delivery.DeliveryStatus(r.Context(), sid, status); err != nil {
		slog.Error("failed to record delivery status", "sid", sid, "status", status, "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
