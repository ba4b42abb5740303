// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package migration

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/danielhkuo/helpline-router/models"
	"github.com/danielhkuo/helpline-router/relay"
)

// MaxPageLength keeps each history post well under the chat platform's
// message size limit.
const MaxPageLength = 2000

const (
	historyHeader      = "Below is the voter's message history so far."
	emptyHistoryHeader = "This helpline session has no message history (yet)."
	noHistory          = "No history available"
)

func chatDate(t time.Time) string {
	return fmt.Sprintf("<!date^%d^{time} {date_short}|%s>", t.Unix(), t.UTC().Format(time.RFC3339))
}

func quote(msg string, attachments []string, wrap string) string {
	lines := strings.Split(msg, "\n")
	for i, line := range lines {
		if line != "" {
			line = wrap + line + wrap
		}
		lines[i] = ">" + line
	}
	if len(attachments) > 0 {
		links := make([]string, len(attachments))
		for i, url := range attachments {
			links[i] = fmt.Sprintf("<%s|Attachment %d>", url, i+1)
		}
		lines = append(lines, "*Attachments:* "+strings.Join(links, " "))
	}
	return strings.Join(lines, "\n")
}

// FormatHistory renders each logged message as a quoted chat block headed
// by its author and time.
func FormatHistory(msgs []models.HistoricalMessage, displayID string) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		stamp := chatDate(m.Timestamp)
		switch {
		case m.Direction == models.DirectionInbound:
			out = append(out, ":bust_in_silhouette: *Voter "+displayID+"*  "+stamp+"\n"+quote(m.Message, m.TwilioAttachments, "*"))
		case m.Automated:
			out = append(out, ":gear: *Helpline (Automated)*  "+stamp+"\n"+quote(m.Message, nil, "_"))
		default:
			out = append(out, ":adult: *"+m.SlackUserName+" (Volunteer)*  "+stamp+"\n"+quote(m.Message, nil, ""))
		}
	}
	return out
}

// Paginate groups formatted messages into posts of at most MaxPageLength
// characters. A single message longer than the limit gets its own page.
func Paginate(msgs []string) []string {
	var pages []string
	page := ""
	for _, msg := range msgs {
		switch {
		case page == "":
			page = msg
		case len(page)+2+len(msg) >= MaxPageLength:
			pages = append(pages, page)
			page = msg
		default:
			page += "\n\n" + msg
		}
	}
	if page != "" {
		return append(pages, page)
	}
	return append(pages, noHistory)
}

// pastSessionLines summarizes ended sessions, oldest first.
func (m *Migrator) pastSessionLines(ctx context.Context, s *models.SessionState) ([]string, error) {
	past, err := m.log.PastSessions(ctx, s.VoterID, s.GatewayPhoneNumber)
	if err != nil {
		return nil, fmt.Errorf("load past sessions: %w", err)
	}
	if len(past) == 0 {
		return nil, nil
	}
	names, err := m.sessions.ChannelNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("load channel names: %w", err)
	}

	lines := make([]string, 0, len(past))
	for _, p := range past {
		url, err := m.chat.Permalink(ctx, p.ChannelID, p.ThreadTs)
		if err != nil {
			slog.Warn("failed to get permalink for past session", "voter_id", s.VoterID, "channel", p.ChannelID, "error", err)
			url = ""
		}
		end := p.SessionEndAt.Unix()
		line := fmt.Sprintf("Past session in %s ended <!date^%d^{time} {date_short}|%d>",
			relay.ChannelLink(p.ChannelID, names[p.ChannelID]), end, end)
		if url != "" {
			line += " - <" + url + "|Open>"
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// PostHistory replays the voter's past sessions and the messages logged
// since `since` into a thread. It returns the ts of the history header.
func (m *Migrator) PostHistory(ctx context.Context, s *models.SessionState, channelID, threadTs string, since time.Time) (string, error) {
	msgs, err := m.log.MessageHistory(ctx, s.VoterID, s.GatewayPhoneNumber, since)
	if err != nil {
		return "", fmt.Errorf("load message history: %w", err)
	}
	past, err := m.pastSessionLines(ctx, s)
	if err != nil {
		return "", err
	}

	header := emptyHistoryHeader
	if len(msgs) > 0 {
		header = historyHeader
	}
	if len(past) > 0 {
		header = strings.Join(past, "\n") + "\n\n" + header
	}
	_, historyTs, err := m.chat.PostMessage(ctx, channelID, relay.ChatMessage{Text: header, ThreadTs: threadTs})
	if err != nil {
		return "", fmt.Errorf("post history header: %w", err)
	}
	if len(msgs) == 0 {
		return historyTs, nil
	}

	for _, page := range Paginate(FormatHistory(msgs, s.DisplayID())) {
		if _, _, err := m.chat.PostMessage(ctx, channelID, relay.ChatMessage{Text: page, ThreadTs: threadTs}); err != nil {
			return historyTs, fmt.Errorf("post history page: %w", err)
		}
	}
	return historyTs, nil
}
