// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"

	"github.com/danielhkuo/helpline-router/auth"
	"github.com/danielhkuo/helpline-router/cliparse"
	"github.com/danielhkuo/helpline-router/dispatch"
	"github.com/danielhkuo/helpline-router/machine"
	"github.com/danielhkuo/helpline-router/middleware"
)

// SlackHandler acknowledges Slack webhooks and hands the work to the
// dispatcher. Slack expects an answer within three seconds.
type SlackHandler struct {
	cfg        cliparse.Config
	dispatcher dispatch.Dispatcher
}

func NewSlackHandler(cfg cliparse.Config, dispatcher dispatch.Dispatcher) *SlackHandler {
	return &SlackHandler{cfg: cfg, dispatcher: dispatcher}
}

func (h *SlackHandler) verify(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := auth.VerifySlackRequest(r, h.cfg.SlackSigningSecret)
	if err != nil {
		slog.Warn("rejected slack webhook", "path", r.URL.Path, "error", err)
		if errors.Is(err, auth.ErrInvalidSignature) {
			middleware.ErrorResponse(w, http.StatusUnauthorized, "Invalid signature")
		} else {
			middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid body")
		}
		return nil, false
	}
	return body, true
}

// Events handles POST /slack
func (h *SlackHandler) Events(w http.ResponseWriter, r *http.Request) {
	body, ok := h.verify(w, r)
	if !ok {
		return
	}

	ev, err := slackevents.ParseEvent(json.RawMessage(body), slackevents.OptionNoVerifyToken())
	if err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid event")
		return
	}

	if ev.Type == slackevents.URLVerification {
		var challenge slackevents.ChallengeResponse
		if err := json.Unmarshal(body, &challenge); err != nil {
			middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid challenge")
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte(challenge.Challenge))
		return
	}
	if ev.Type != slackevents.CallbackEvent {
		w.WriteHeader(http.StatusOK)
		return
	}

	retryNum, _ := strconv.Atoi(r.Header.Get("X-Slack-Retry-Num"))
	retryReason := r.Header.Get("X-Slack-Retry-Reason")

	switch inner := ev.InnerEvent.Data.(type) {
	case *slackevents.MessageEvent:
		if inner.BotID != "" || inner.SubType != "" || inner.User == "" || inner.User == h.cfg.SlackBotUserID {
			break
		}
		if retryNum > 0 {
			slog.Info("slack event redelivered", "retry_num", retryNum, "retry_reason", retryReason,
				"channel", inner.Channel, "ts", inner.TimeStamp)
		}
		h.enqueue(w, r, machine.TaskChatMessage, machine.ChatEvent{
			ChannelID:   inner.Channel,
			ThreadTs:    inner.ThreadTimeStamp,
			Ts:          inner.TimeStamp,
			UserID:      inner.User,
			Text:        inner.Text,
			RetryNum:    retryNum,
			RetryReason: retryReason,
		})
		return

	case *slackevents.AppMentionEvent:
		if retryNum > 0 || !h.addressedToBot(body) {
			break
		}
		h.enqueue(w, r, machine.TaskAdminMention, machine.AdminMention{
			ChannelID: inner.Channel,
			Ts:        inner.TimeStamp,
			UserID:    inner.User,
			Text:      inner.Text,
		})
		return
	}

	w.WriteHeader(http.StatusOK)
}

// addressedToBot reports whether this bot is the first authed user, so a
// mention seen by several installed apps is handled once.
func (h *SlackHandler) addressedToBot(body []byte) bool {
	var envelope struct {
		AuthedUsers []string `json:"authed_users"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return false
	}
	return len(envelope.AuthedUsers) > 0 && envelope.AuthedUsers[0] == h.cfg.SlackBotUserID
}

// Interactivity handles POST /slack-interactivity
func (h *SlackHandler) Interactivity(w http.ResponseWriter, r *http.Request) {
	body, ok := h.verify(w, r)
	if !ok {
		return
	}

	form, err := url.ParseQuery(string(body))
	if err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid form body")
		return
	}
	var cb slack.InteractionCallback
	if err := json.Unmarshal([]byte(form.Get("payload")), &cb); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid payload")
		return
	}
	if cb.Type != slack.InteractionTypeBlockActions {
		w.WriteHeader(http.StatusOK)
		return
	}

	for _, action := range cb.ActionCallback.BlockActions {
		value := action.Value
		switch {
		case action.SelectedOption.Value != "":
			value = action.SelectedOption.Value
		case action.SelectedUser != "":
			value = action.SelectedUser
		}
		err := h.dispatcher.Enqueue(r.Context(), machine.TaskInteraction, machine.Interaction{
			ActionID:  action.ActionID,
			Value:     value,
			UserID:    cb.User.ID,
			ChannelID: cb.Channel.ID,
			MessageTs: cb.Container.MessageTs,
		})
		if err != nil {
			slog.Error("failed to enqueue interaction", "action", action.ActionID, "error", err)
			middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to queue interaction")
			return
		}
	}
	w.WriteHeader(http.StatusOK)
}

func (h *SlackHandler) enqueue(w http.ResponseWriter, r *http.Request, task string, args any) {
	if err := h.dispatcher.Enqueue(r.Context(), task, args); err != nil {
		slog.Error("failed to enqueue slack event", "task", task, "error", err)
		middleware.ErrorResponse(w, http.StatusInternalServerError, "Failed to queue event")
		return
	}
	w.WriteHeader(http.StatusOK)
}
