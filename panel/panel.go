// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package panel

import (
	"fmt"
	"strings"
	"time"

	"github.com/slack-go/slack"

	"github.com/danielhkuo/helpline-router/models"
)

// Action ids carried by panel interactions
const (
	ActionStatusSelect     = "voter_status_select"
	ActionStatusRefused    = "voter_status_refused"
	ActionStatusSpam       = "voter_status_spam"
	ActionStatusUndo       = "voter_status_undo"
	ActionVolunteerSelect  = "volunteer_select"
	ActionVolunteerRelease = "volunteer_release"
)

// UndoValue is the button value for restoring the previous status.
const UndoValue = "UNDO"

const (
	blockVoter     = "voter_info"
	blockVolunteer = "volunteer"
	blockStatus    = "voter_status"
)

var statusLabels = map[models.VoterStatus]string{
	models.VoterStatusUnknown:         "Unknown",
	models.VoterStatusUnregistered:    "Unregistered",
	models.VoterStatusRegistered:      "Registered",
	models.VoterStatusRequestedBallot: "Requested ballot",
	models.VoterStatusReceivedBallot:  "Received ballot",
	models.VoterStatusInPerson:        "Will vote in person",
	models.VoterStatusVoted:           "Voted",
	models.VoterStatusRefused:         "Refused",
	models.VoterStatusSpam:            "Spam",
}

// Label is the human name of a status.
func Label(s models.VoterStatus) string {
	if l, ok := statusLabels[s]; ok {
		return l
	}
	return string(s)
}

// Panel is what the thread's parent message shows about a voter.
type Panel struct {
	DisplayID    string
	EntryPoint   models.EntryPoint
	Region       string
	IsDemo       bool
	Returning    bool
	SessionStart time.Time
	Note         string
	Status       models.VoterStatus
	VolunteerID  string
}

// FromSession builds the panel for a session with its logged status and
// claimed volunteer.
func FromSession(s *models.SessionState, status models.VoterStatus, volunteerID string) Panel {
	p := Panel{
		DisplayID:   s.DisplayID(),
		EntryPoint:  s.EntryPoint,
		Region:      s.StateName,
		IsDemo:      s.IsDemo,
		Returning:   s.ReturningVoter,
		Note:        s.PanelMessage,
		Status:      status,
		VolunteerID: volunteerID,
	}
	if s.SessionStartEpoch > 0 {
		p.SessionStart = time.Unix(s.SessionStartEpoch, 0)
	}
	if p.Status == "" {
		p.Status = models.VoterStatusUnknown
	}
	return p
}

// Text is the notification text of the parent message.
func (p Panel) Text() string {
	var b strings.Builder
	b.WriteString(":bust_in_silhouette: *Voter " + p.DisplayID + "*")
	var tags []string
	if p.IsDemo {
		tags = append(tags, "DEMO")
	}
	if p.EntryPoint != "" {
		tags = append(tags, string(p.EntryPoint))
	}
	if p.Region != "" {
		tags = append(tags, p.Region)
	}
	if p.Returning {
		tags = append(tags, "returning voter")
	}
	if len(tags) > 0 {
		b.WriteString(" (" + strings.Join(tags, ", ") + ")")
	}
	if !p.SessionStart.IsZero() {
		epoch := p.SessionStart.Unix()
		fmt.Fprintf(&b, "\nSession started <!date^%d^{date_short} {time}|%d>", epoch, epoch)
	} else {
		b.WriteString("\n_Stale session_")
	}
	if p.Note != "" {
		b.WriteString("\n_" + p.Note + "_")
	}
	return b.String()
}

func markdown(text string) *slack.TextBlockObject {
	return slack.NewTextBlockObject(slack.MarkdownType, text, false, false)
}

func plain(text string) *slack.TextBlockObject {
	return slack.NewTextBlockObject(slack.PlainTextType, text, false, false)
}

func (p Panel) voterBlock() slack.Block {
	return slack.NewSectionBlock(markdown(p.Text()), nil, nil, slack.SectionBlockOptionBlockID(blockVoter))
}

func (p Panel) volunteerBlock() slack.Block {
	sel := slack.NewOptionsSelectBlockElement(slack.OptTypeUser, plain("Claim this voter"), ActionVolunteerSelect)
	sel.InitialUser = p.VolunteerID
	elements := []slack.BlockElement{sel}
	if p.VolunteerID != "" {
		elements = append(elements, slack.NewButtonBlockElement(ActionVolunteerRelease, "release", plain("Release")))
	}
	return slack.NewActionBlock(blockVolunteer, elements...)
}

func (p Panel) statusBlock() slack.Block {
	if p.Status.Blocking() {
		return slack.NewSectionBlock(
			markdown("Voter status: *"+Label(p.Status)+"*"),
			nil,
			slack.NewAccessory(slack.NewButtonBlockElement(ActionStatusUndo, UndoValue, plain("Undo"))),
			slack.SectionBlockOptionBlockID(blockStatus),
		)
	}

	var options []*slack.OptionBlockObject
	var initial *slack.OptionBlockObject
	for _, s := range models.AllVoterStatuses {
		if s.Blocking() {
			continue
		}
		opt := slack.NewOptionBlockObject(string(s), plain(Label(s)), nil)
		options = append(options, opt)
		if s == p.Status {
			initial = opt
		}
	}
	sel := slack.NewOptionsSelectBlockElement(slack.OptTypeStatic, plain("Voter status"), ActionStatusSelect, options...)
	sel.InitialOption = initial

	refused := slack.NewButtonBlockElement(ActionStatusRefused, string(models.VoterStatusRefused), plain("Refused")).
		WithStyle(slack.StyleDanger)
	spam := slack.NewButtonBlockElement(ActionStatusSpam, string(models.VoterStatusSpam), plain("Spam")).
		WithStyle(slack.StyleDanger)
	return slack.NewActionBlock(blockStatus, sel, refused, spam)
}

// Blocks renders the live panel. Refused and spam voters get a collapsed
// status with an undo button.
func (p Panel) Blocks() []slack.Block {
	return []slack.Block{p.voterBlock(), p.volunteerBlock(), p.statusBlock()}
}

// ClosedBlocks renders the panel of a thread that is no longer active.
func (p Panel) ClosedBlocks(note string) []slack.Block {
	return []slack.Block{
		p.voterBlock(),
		slack.NewContextBlock("", markdown(note)),
	}
}
