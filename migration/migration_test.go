// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package migration_test

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielhkuo/helpline-router/auth"
	"github.com/danielhkuo/helpline-router/cache"
	"github.com/danielhkuo/helpline-router/migration"
	"github.com/danielhkuo/helpline-router/models"
	"github.com/danielhkuo/helpline-router/relay"
	"github.com/danielhkuo/helpline-router/testutil"
)

type fixture struct {
	sessions   *cache.Sessions
	log        *testutil.MemoryLog
	chat       *testutil.FakeChat
	sms        *testutil.FakeSMS
	dispatcher *testutil.RecordingDispatcher
	relay      *relay.Relay
	migrator   *migration.Migrator
}

func newFixture() *fixture {
	f := &fixture{
		sessions:   cache.NewSessions(cache.NewMemoryStore()),
		log:        testutil.NewMemoryLog(),
		chat:       testutil.NewFakeChat(),
		sms:        testutil.NewFakeSMS(),
		dispatcher: &testutil.RecordingDispatcher{},
	}
	f.chat.AddChannel("lobby", "C0LOBBY")
	f.chat.AddChannel("ohio-0", "C0OHIO")
	f.chat.AddChannel("admin", "C0ADMIN")
	f.relay = relay.New(f.sessions, f.log, f.chat, f.sms, "")
	f.migrator = migration.New(f.sessions, f.log, f.relay, f.dispatcher)
	return f
}

func newSession() *models.SessionState {
	return &models.SessionState{
		VoterID:            auth.VoterID(testutil.VoterPhone),
		VoterPhoneNumber:   testutil.VoterPhone,
		GatewayPhoneNumber: testutil.GatewayPull,
		EntryPoint:         models.EntryPointPull,
		SessionStartEpoch:  time.Now().Add(-time.Hour).Unix(),
	}
}

func (f *fixture) openInLobby(t *testing.T) *models.SessionState {
	t.Helper()
	s := newSession()
	_, err := f.migrator.Open(context.Background(), s, "lobby")
	require.NoError(t, err)
	return s
}

func TestOpen(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	s := newSession()

	threadTs, err := f.migrator.Open(ctx, s, "lobby")
	require.NoError(t, err)

	assert.Equal(t, "C0LOBBY", s.ActiveChannelID)
	assert.Equal(t, "lobby", s.ActiveChannelName)
	assert.Equal(t, threadTs, s.ActiveThreadTs())

	rec, ok := f.log.Thread("C0LOBBY", threadTs)
	require.True(t, ok)
	assert.True(t, rec.NeedsAttention)
	assert.True(t, rec.Active)

	ref, ok, err := f.sessions.ThreadOwner(ctx, "C0LOBBY", threadTs)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, testutil.VoterPhone, ref.VoterPhoneNumber)

	saved, err := f.sessions.Get(ctx, s.VoterID, s.GatewayPhoneNumber)
	require.NoError(t, err)
	assert.Equal(t, s, saved)
}

func TestOpen_UnknownChannel(t *testing.T) {
	f := newFixture()
	_, err := f.migrator.Open(context.Background(), newSession(), "nowhere")
	assert.ErrorIs(t, err, migration.ErrChannelNotFound)
	assert.Empty(t, f.chat.Posts)
}

func TestMigrate(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	s := f.openInLobby(t)
	oldTs := s.ActiveThreadTs()

	_, err := f.log.InsertMessage(ctx, &models.MessageLogEntry{
		Direction:          models.DirectionInbound,
		Message:            "Ohio",
		VoterID:            s.VoterID,
		GatewayPhoneNumber: s.GatewayPhoneNumber,
		SuccessfullySent:   true,
	})
	require.NoError(t, err)

	newTs, err := f.migrator.Migrate(ctx, s, "ohio-0", migration.Reason{})
	require.NoError(t, err)

	assert.Equal(t, "C0OHIO", s.ActiveChannelID)
	assert.Equal(t, "ohio-0", s.ActiveChannelName)
	assert.Equal(t, map[string]string{"C0LOBBY": oldTs, "C0OHIO": newTs}, s.Threads)

	// exactly one new thread record, carrying the old attention flag
	assert.Len(t, f.log.Threads(), 2)
	rec, ok := f.log.Thread("C0OHIO", newTs)
	require.True(t, ok)
	assert.True(t, rec.NeedsAttention)
	assert.NotEmpty(t, rec.HistoryTs)
	old, _ := f.log.Thread("C0LOBBY", oldTs)
	assert.False(t, old.Active)
	assert.False(t, old.NeedsAttention)

	assert.Equal(t, []string{"*Operator:* Routing voter to <#C0OHIO|ohio-0>."}, f.chat.Thread("C0LOBBY", oldTs))
	require.Len(t, f.chat.Updates, 1)
	assert.Equal(t, oldTs, f.chat.Updates[0].Ts)

	history := f.chat.Thread("C0OHIO", newTs)
	require.Len(t, history, 2)
	assert.Equal(t, "Below is the voter's message history so far.", history[0])
	assert.Contains(t, history[1], ">*Ohio*")

	ref, ok, err := f.sessions.ThreadOwner(ctx, "C0OHIO", newTs)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, s.GatewayPhoneNumber, ref.GatewayPhoneNumber)

	saved, err := f.sessions.Get(ctx, s.VoterID, s.GatewayPhoneNumber)
	require.NoError(t, err)
	assert.Equal(t, "C0OHIO", saved.ActiveChannelID)
}

func TestMigrate_AdminRoute(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	s := f.openInLobby(t)
	oldTs := s.ActiveThreadTs()
	require.NoError(t, f.log.SetThreadNeedsAttention(ctx, "C0LOBBY", oldTs, false))

	reason := migration.Reason{
		RoutedBy:            "alice",
		PreviousChannelName: "lobby",
		CommandChannelID:    "C0LOBBY",
		CommandThreadTs:     oldTs,
		CommandTs:           "1700000999.000001",
	}
	newTs, err := f.migrator.Migrate(ctx, s, "ohio-0", reason)
	require.NoError(t, err)

	assert.Equal(t, "routed from *lobby* by *alice*", s.PanelMessage)
	assert.Contains(t, f.chat.Thread("C0LOBBY", oldTs), "*Operator:* Voter is being routed to <#C0OHIO|ohio-0> by *alice*.")
	assert.Equal(t, []string{"heavy_check_mark"}, f.chat.ReactionsOn("C0LOBBY", "1700000999.000001"))

	rec, _ := f.log.Thread("C0OHIO", newTs)
	assert.False(t, rec.NeedsAttention)
	assert.Equal(t, []string{"This helpline session has no message history (yet)."}, f.chat.Thread("C0OHIO", newTs))
}

func TestMigrate_ChannelNotFound(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	s := f.openInLobby(t)
	before := *s
	postsBefore := len(f.chat.Posts)

	reason := migration.Reason{
		RoutedBy:         "alice",
		CommandChannelID: "C0LOBBY",
		CommandThreadTs:  s.ActiveThreadTs(),
		CommandTs:        "1700000999.000002",
	}
	_, err := f.migrator.Migrate(ctx, s, "atlantis-0", reason)
	assert.ErrorIs(t, err, migration.ErrChannelNotFound)

	assert.Equal(t, before, *s)
	assert.Len(t, f.log.Threads(), 1)
	require.Len(t, f.chat.Posts, postsBefore+1)
	assert.Equal(t, "*Operator:* Slack channel atlantis-0 not found.", f.chat.Posts[postsBefore].Msg.Text)
	assert.Equal(t, []string{"x"}, f.chat.ReactionsOn("C0LOBBY", "1700000999.000002"))
}

func TestMigrate_AutomatedChannelNotFound(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	s := f.openInLobby(t)
	before := *s

	_, err := f.migrator.Migrate(ctx, s, "atlantis-0", migration.Reason{})
	assert.ErrorIs(t, err, migration.ErrChannelNotFound)

	assert.Equal(t, before, *s)
	thread := f.chat.Thread("C0LOBBY", s.ActiveThreadTs())
	require.NotEmpty(t, thread)
	assert.Equal(t, "*Operator:* Slack channel atlantis-0 not found.", thread[len(thread)-1])
}

func TestResolveChannel_RefreshesDirectoryOnce(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	require.NoError(t, f.sessions.ReplaceChannelDirectory(ctx, map[string]string{"lobby": "C0LOBBY"}))

	id, err := f.migrator.ResolveChannel(ctx, "ohio-0")
	require.NoError(t, err)
	assert.Equal(t, "C0OHIO", id)

	dir, err := f.sessions.ChannelDirectory(ctx)
	require.NoError(t, err)
	assert.Equal(t, "C0OHIO", dir["ohio-0"])
}

func TestEndSession(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	s := f.openInLobby(t)
	threadTs := s.ActiveThreadTs()
	require.NoError(t, f.log.LogVolunteerClaim(ctx, models.VolunteerClaim{VoterID: s.VoterID, GatewayPhoneNumber: s.GatewayPhoneNumber, VolunteerID: "U0VOL"}))

	require.NoError(t, f.migrator.EndSession(ctx, s))

	saved, err := f.sessions.Get(ctx, s.VoterID, s.GatewayPhoneNumber)
	require.NoError(t, err)
	assert.Nil(t, saved)

	volunteer, err := f.log.CurrentVolunteer(ctx, s.VoterID, s.GatewayPhoneNumber)
	require.NoError(t, err)
	assert.Empty(t, volunteer)

	rec, _ := f.log.Thread("C0LOBBY", threadTs)
	assert.NotNil(t, rec.SessionEndAt)
	assert.False(t, rec.Active)

	require.Equal(t, []string{migration.TaskClosePanel}, f.dispatcher.Names())
	require.NoError(t, f.migrator.ClosePanelTask(ctx, f.dispatcher.Tasks[0].Args))
	require.Len(t, f.chat.Updates, 1)
	assert.Equal(t, threadTs, f.chat.Updates[0].Ts)

	var args migration.ClosePanelArgs
	require.NoError(t, json.Unmarshal(f.dispatcher.Tasks[0].Args, &args))
	assert.Equal(t, "This voter helpline session is closed", args.Note)
}

func TestReplay(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	s := f.openInLobby(t)
	_, err := f.log.InsertMessage(ctx, &models.MessageLogEntry{
		Direction:          models.DirectionInbound,
		Message:            "Hi",
		VoterID:            s.VoterID,
		GatewayPhoneNumber: s.GatewayPhoneNumber,
		SuccessfullySent:   true,
	})
	require.NoError(t, err)

	require.NoError(t, f.migrator.Replay(ctx, s, time.Unix(s.SessionStartEpoch, 0)))

	posts := f.chat.Thread("C0LOBBY", s.ActiveThreadTs())
	require.Len(t, posts, 2)
	assert.Equal(t, "Below is the voter's message history so far.", posts[0])
	rec, _ := f.log.Thread("C0LOBBY", s.ActiveThreadTs())
	assert.NotEmpty(t, rec.HistoryTs)
}

func TestPostHistory_PastSessions(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	s := f.openInLobby(t)
	require.NoError(t, f.sessions.ReplaceChannelDirectory(ctx, map[string]string{"lobby": "C0LOBBY", "ohio-0": "C0OHIO"}))
	require.NoError(t, f.log.SetSessionEnd(ctx, s.VoterID, s.GatewayPhoneNumber))

	_, threadTs, err := f.chat.PostMessage(ctx, "C0OHIO", relay.ChatMessage{Text: "panel"})
	require.NoError(t, err)
	_, err = f.migrator.PostHistory(ctx, s, "C0OHIO", threadTs, time.Now())
	require.NoError(t, err)

	posts := f.chat.Thread("C0OHIO", threadTs)
	require.Len(t, posts, 1)
	assert.True(t, strings.HasPrefix(posts[0], "Past session in <#C0LOBBY|lobby> ended <!date^"))
	assert.Contains(t, posts[0], "|Open>")
	assert.True(t, strings.HasSuffix(posts[0], "This helpline session has no message history (yet)."))
}

func TestFormatHistory(t *testing.T) {
	at := time.Unix(1700000000, 0)
	msgs := []models.HistoricalMessage{
		{Direction: models.DirectionInbound, Message: "hi\n\nthere", TwilioAttachments: []string{"https://m.example/1"}, Timestamp: at},
		{Direction: models.DirectionOutbound, Automated: true, Message: "Welcome", Timestamp: at},
		{Direction: models.DirectionOutbound, SlackUserName: "alice", Message: "Hello!", Timestamp: at},
	}
	stamp := "<!date^1700000000^{time} {date_short}|2023-11-14T22:13:20Z>"

	got := migration.FormatHistory(msgs, "35382")
	require.Len(t, got, 3)
	assert.Equal(t, ":bust_in_silhouette: *Voter 35382*  "+stamp+"\n>*hi*\n>\n>*there*\n*Attachments:* <https://m.example/1|Attachment 1>", got[0])
	assert.Equal(t, ":gear: *Helpline (Automated)*  "+stamp+"\n>_Welcome_", got[1])
	assert.Equal(t, ":adult: *alice (Volunteer)*  "+stamp+"\n>Hello!", got[2])
}

func TestPaginate(t *testing.T) {
	long := strings.Repeat("a", 1500)
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{"empty", nil, []string{"No history available"}},
		{"joined", []string{"one", "two"}, []string{"one\n\ntwo"}},
		{"split at limit", []string{long, long, "x"}, []string{long, long + "\n\nx"}},
		{"oversized message alone", []string{strings.Repeat("b", 2500)}, []string{strings.Repeat("b", 2500)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, migration.Paginate(tt.in))
		})
	}
}
