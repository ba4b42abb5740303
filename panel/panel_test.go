// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package panel

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielhkuo/helpline-router/models"
)

func testSession() *models.SessionState {
	return &models.SessionState{
		VoterID:           "3538218e2d157f1fe9ffd0ebaf8dd716",
		EntryPoint:        models.EntryPointPull,
		StateName:         "Ohio",
		SessionStartEpoch: time.Date(2024, 10, 1, 12, 0, 0, 0, time.UTC).Unix(),
		PanelMessage:      "routed from *lobby* by *ana*",
	}
}

func TestFromSession(t *testing.T) {
	p := FromSession(testSession(), "", "U123")
	assert.Equal(t, "35382", p.DisplayID)
	assert.Equal(t, models.VoterStatusUnknown, p.Status)
	assert.Equal(t, "U123", p.VolunteerID)

	text := p.Text()
	assert.Contains(t, text, "*Voter 35382*")
	assert.Contains(t, text, "PULL, Ohio")
	assert.Contains(t, text, "Session started <!date^1727784000^")
	assert.Contains(t, text, "_routed from *lobby* by *ana*_")
}

func TestText_Stale(t *testing.T) {
	s := testSession()
	s.SessionStartEpoch = 0
	s.IsDemo = true
	text := FromSession(s, models.VoterStatusVoted, "").Text()
	assert.Contains(t, text, "DEMO")
	assert.Contains(t, text, "_Stale session_")
}

func TestBlocks(t *testing.T) {
	tests := []struct {
		name       string
		status     models.VoterStatus
		volunteer  string
		wantAction []string
		wantUndo   bool
	}{
		{
			name:       "open panel",
			status:     models.VoterStatusRegistered,
			wantAction: []string{ActionVolunteerSelect, ActionStatusSelect, ActionStatusRefused, ActionStatusSpam},
		},
		{
			name:       "claimed voter can be released",
			status:     models.VoterStatusUnknown,
			volunteer:  "U1",
			wantAction: []string{ActionVolunteerSelect, ActionVolunteerRelease, ActionStatusSelect},
		},
		{
			name:     "refused collapses",
			status:   models.VoterStatusRefused,
			wantUndo: true,
		},
		{
			name:     "spam collapses",
			status:   models.VoterStatusSpam,
			wantUndo: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blocks := FromSession(testSession(), tt.status, tt.volunteer).Blocks()
			require.Len(t, blocks, 3)

			raw, err := json.Marshal(slack.Blocks{BlockSet: blocks})
			require.NoError(t, err)
			for _, id := range tt.wantAction {
				assert.Contains(t, string(raw), `"action_id":"`+id+`"`)
			}
			if tt.wantUndo {
				assert.Contains(t, string(raw), `"action_id":"`+ActionStatusUndo+`"`)
				assert.NotContains(t, string(raw), ActionStatusSelect)
			}
		})
	}
}

func TestBlocks_InitialStatus(t *testing.T) {
	blocks := FromSession(testSession(), models.VoterStatusVoted, "").Blocks()
	actions, ok := blocks[2].(*slack.ActionBlock)
	require.True(t, ok)
	sel, ok := actions.Elements.ElementSet[0].(*slack.SelectBlockElement)
	require.True(t, ok)
	require.NotNil(t, sel.InitialOption)
	assert.Equal(t, string(models.VoterStatusVoted), sel.InitialOption.Value)
	for _, opt := range sel.Options {
		assert.NotEqual(t, string(models.VoterStatusSpam), opt.Value, "blocking statuses are buttons, not options")
	}
}

func TestClosedBlocks(t *testing.T) {
	blocks := FromSession(testSession(), models.VoterStatusUnknown, "").ClosedBlocks("Voter has been routed to <#C2|ohio-0>.")
	require.Len(t, blocks, 2)
	raw, err := json.Marshal(slack.Blocks{BlockSet: blocks})
	require.NoError(t, err)
	assert.Contains(t, string(raw), "Voter has been routed to")
	assert.NotContains(t, string(raw), "action_id")
}
