// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package machine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/danielhkuo/helpline-router/models"
)

func TestStateOf(t *testing.T) {
	base := func(mod func(s *models.SessionState)) *models.SessionState {
		s := &models.SessionState{
			EntryPoint:        models.EntryPointPull,
			ActiveChannelID:   "C0LOBBY",
			Threads:           map[string]string{"C0LOBBY": "1.1"},
			SessionStartEpoch: 1600000000,
		}
		mod(s)
		return s
	}

	tests := []struct {
		name              string
		session           *models.SessionState
		requireDisclaimer bool
		want              State
	}{
		{"no session", nil, true, StateNew},
		{"disclaimer pending", base(func(*models.SessionState) {}), true, StateDisclaimerPending},
		{"disclaimer not required", base(func(*models.SessionState) {}), false, StateRegionPending},
		{"region pending", base(func(s *models.SessionState) { s.ConfirmedDisclaimer = true }), true, StateRegionPending},
		{"region known", base(func(s *models.SessionState) {
			s.ConfirmedDisclaimer = true
			s.StateName = "Ohio"
		}), true, StateActive},
		{"attempts exhausted", base(func(s *models.SessionState) {
			s.ConfirmedDisclaimer = true
			s.NumRegionSelectionAttempts = RegionAttemptLimit
		}), true, StateActive},
		{"push skips questions", base(func(s *models.SessionState) { s.EntryPoint = models.EntryPointPush }), true, StateActive},
		{"engaged wins", base(func(s *models.SessionState) { s.VolunteerEngaged = true }), true, StateActive},
		{"stale", base(func(s *models.SessionState) {
			s.VolunteerEngaged = true
			s.SessionStartEpoch = 0
		}), true, StateStale},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StateOf(tt.session, tt.requireDisclaimer))
		})
	}
}

func TestCheckSession(t *testing.T) {
	ok := &models.SessionState{
		EntryPoint:          models.EntryPointPull,
		ConfirmedDisclaimer: true,
		StateName:           "Ohio",
		ActiveChannelID:     "C0OHIO",
		Threads:             map[string]string{"C0OHIO": "1.1"},
	}
	assert.Empty(t, CheckSession(ok, true))
	assert.Empty(t, CheckSession(nil, true))

	bad := &models.SessionState{
		EntryPoint:                 models.EntryPointPull,
		VolunteerEngaged:           true,
		NumRegionSelectionAttempts: 3,
		ActiveChannelID:            "C0OHIO",
	}
	assert.Len(t, CheckSession(bad, true), 4)
}

func TestKeywords(t *testing.T) {
	tests := []struct {
		text  string
		stop  bool
		agree bool
		voted bool
		cmd   bool
	}{
		{text: "STOP", stop: true},
		{text: "  stop ", stop: true},
		{text: "stop texting me"},
		{text: "Agree.", agree: true},
		{text: "I agree"},
		{text: "I voted!", voted: true},
		{text: "already voted", voted: true},
		{text: "voted for whom?"},
		{text: "!route ohio-0", cmd: true},
		{text: "!!!"},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.stop, IsStop(tt.text), "stop")
			assert.Equal(t, tt.agree, IsDisclaimerAccepted(tt.text), "agree")
			assert.Equal(t, tt.voted, IsVoted(tt.text), "voted")
			assert.Equal(t, tt.cmd, isCommand(tt.text), "command")
		})
	}
}

func TestMessagesFor(t *testing.T) {
	def := MessagesFor("")
	assert.Equal(t, def, MessagesFor(OrgVoterHelpLine))
	assert.Contains(t, def.StateConfirmation("Ohio"), "Ohio volunteer")

	va := MessagesFor(OrgVoteAmerica)
	assert.NotEqual(t, def.Welcome, va.Welcome)
	assert.Contains(t, va.StateConfirmation("Ohio"), "Thanks!")
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "REGION_PENDING", StateRegionPending.String())
	assert.Equal(t, "State(42)", State(42).String())
}
