// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package machine

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/danielhkuo/helpline-router/models"
)

// State is where a voter stands in the helpline conversation. It is
// derived from the cached session, never stored.
type State int

const (
	StateNew State = iota
	StateDisclaimerPending
	StateRegionPending
	StateActive
	StateStale
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateDisclaimerPending:
		return "DISCLAIMER_PENDING"
	case StateRegionPending:
		return "REGION_PENDING"
	case StateActive:
		return "ACTIVE"
	case StateStale:
		return "STALE"
	case StateEnded:
		return "ENDED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

const (
	// RegionAttemptLimit is how many unparseable replies a voter gets
	// before the region falls back to National.
	RegionAttemptLimit = 2
	// ReengageAfter is the silence after which a returning voter gets a
	// welcome-back text.
	ReengageAfter = 1440 * time.Minute
)

// StateOf derives the state of a session. An engaged volunteer always
// wins; PUSH voters skip the disclaimer and region questions.
func StateOf(s *models.SessionState, requireDisclaimer bool) State {
	if s == nil {
		return StateNew
	}
	cleared := s.VolunteerEngaged || s.EntryPoint == models.EntryPointPush
	if !cleared {
		if requireDisclaimer && !s.ConfirmedDisclaimer {
			return StateDisclaimerPending
		}
		if s.StateName == "" && s.NumRegionSelectionAttempts < RegionAttemptLimit {
			return StateRegionPending
		}
	}
	if s.SessionStartEpoch == 0 {
		return StateStale
	}
	return StateActive
}

// CheckSession reports combinations of session fields that should not
// occur. The machine still handles such sessions by the precedence in
// StateOf.
func CheckSession(s *models.SessionState, requireDisclaimer bool) []string {
	if s == nil {
		return nil
	}
	var problems []string
	if s.VolunteerEngaged && s.EntryPoint == models.EntryPointPull {
		if requireDisclaimer && !s.ConfirmedDisclaimer {
			problems = append(problems, "volunteer engaged before disclaimer confirmed")
		}
	}
	if s.NumRegionSelectionAttempts > RegionAttemptLimit {
		problems = append(problems, fmt.Sprintf("region attempts %d above limit %d", s.NumRegionSelectionAttempts, RegionAttemptLimit))
	}
	if s.NumRegionSelectionAttempts >= RegionAttemptLimit && s.StateName == "" {
		problems = append(problems, "region attempts exhausted without fallback region")
	}
	if s.ActiveChannelID != "" && s.ActiveThreadTs() == "" {
		problems = append(problems, "active channel without thread")
	}
	if s.ActiveChannelID == "" && s.ActiveChannelName != "" {
		problems = append(problems, "active channel name without id")
	}
	return problems
}

var punctuation = regexp.MustCompile("[.,?/#!$%^&*;:{}=\\-_`~()]")

func normalize(text string) string {
	return strings.TrimSpace(strings.ToLower(punctuation.ReplaceAllString(text, "")))
}

// IsStop reports whether a text opts the voter out.
func IsStop(text string) bool {
	return strings.ToLower(strings.TrimSpace(text)) == "stop"
}

// IsDisclaimerAccepted reports whether a text accepts the disclaimer.
func IsDisclaimerAccepted(text string) bool {
	return normalize(text) == "agree"
}

var votedKeywords = map[string]bool{
	"voted":         true,
	"i voted":       true,
	"already voted": true,
}

// IsVoted reports whether a text says the voter already voted.
func IsVoted(text string) bool {
	return votedKeywords[normalize(text)]
}

// isCommand reports whether a thread message is an operator command.
// Messages made only of "!" are ordinary replies.
func isCommand(text string) bool {
	return strings.HasPrefix(text, "!") && strings.Trim(text, "!") != ""
}
