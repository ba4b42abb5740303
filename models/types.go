// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package models

import "time"

// Entry points
type EntryPoint string

const (
	EntryPointPull EntryPoint = "PULL"
	EntryPointPush EntryPoint = "PUSH"
)

func (e EntryPoint) Valid() bool {
	return e == EntryPointPull || e == EntryPointPush
}

// Channel types partition the weight table
type ChannelType string

const (
	ChannelTypeNormal ChannelType = "NORMAL"
	ChannelTypeDemo   ChannelType = "DEMO"
)

// Message directions
const (
	DirectionInbound  = "INBOUND"
	DirectionOutbound = "OUTBOUND"
)

// Voter status values shown on the panel and logged to voter_status_updates
type VoterStatus string

const (
	VoterStatusUnknown         VoterStatus = "UNKNOWN"
	VoterStatusUnregistered    VoterStatus = "UNREGISTERED"
	VoterStatusRegistered      VoterStatus = "REGISTERED"
	VoterStatusRequestedBallot VoterStatus = "REQUESTED_BALLOT"
	VoterStatusReceivedBallot  VoterStatus = "RECEIVED_BALLOT"
	VoterStatusInPerson        VoterStatus = "IN_PERSON"
	VoterStatusVoted           VoterStatus = "VOTED"
	VoterStatusSpam            VoterStatus = "SPAM"
	VoterStatusRefused         VoterStatus = "REFUSED"
)

// AllVoterStatuses lists statuses in panel order.
var AllVoterStatuses = []VoterStatus{
	VoterStatusUnknown,
	VoterStatusUnregistered,
	VoterStatusRegistered,
	VoterStatusRequestedBallot,
	VoterStatusReceivedBallot,
	VoterStatusInPerson,
	VoterStatusVoted,
	VoterStatusRefused,
	VoterStatusSpam,
}

// Blocking reports whether the status opts the voter out of further texts.
func (s VoterStatus) Blocking() bool {
	return s == VoterStatusRefused || s == VoterStatusSpam
}

// Sentinel channel id for sessions created before any lobby thread existed.
const NonexistentLobby = "NONEXISTENT_LOBBY"

// Fixed channel names
const (
	LobbyChannel            = "lobby"
	DemoLobbyChannel        = "demo-lobby"
	NationalChannel         = "national"
	DemoNationalChannel     = "demo-national"
	NationalZeroChannel     = "national-0"
	DemoNationalZeroChannel = "demo-national-0"
)

// NationalRegion is assigned when the voter never names a recognizable region.
const NationalRegion = "National"

// SessionState is the cached projection of a voter's conversation with the
// helpline. It is keyed by (VoterID, GatewayPhoneNumber).
type SessionState struct {
	VoterID                    string
	VoterPhoneNumber           string
	GatewayPhoneNumber         string
	EntryPoint                 EntryPoint
	IsDemo                     bool
	ConfirmedDisclaimer        bool
	StateName                  string
	NumRegionSelectionAttempts int
	VolunteerEngaged           bool
	ActiveChannelID            string
	ActiveChannelName          string
	// channel id -> thread ts
	Threads               map[string]string
	LastVoterMessageEpoch int64
	// zero means the session has no recorded start (stale)
	SessionStartEpoch int64
	ReturningVoter    bool
	PanelMessage      string
}

// ActiveThreadTs returns the thread id in the active channel, if any.
func (s *SessionState) ActiveThreadTs() string {
	if s.ActiveChannelID == "" || s.Threads == nil {
		return ""
	}
	return s.Threads[s.ActiveChannelID]
}

// SetThread records the voter's thread in a channel.
func (s *SessionState) SetThread(channelID, threadTs string) {
	if s.Threads == nil {
		s.Threads = make(map[string]string)
	}
	s.Threads[channelID] = threadTs
}

// DisplayID is the short voter id shown to volunteers.
func (s *SessionState) DisplayID() string {
	if len(s.VoterID) < 5 {
		return s.VoterID
	}
	return s.VoterID[:5]
}

// ThreadRef identifies a chat thread and the voter it belongs to.
type ThreadRef struct {
	VoterPhoneNumber   string
	GatewayPhoneNumber string
}

// ThreadRecord is the durable row for one thread.
type ThreadRecord struct {
	ThreadTs           string
	ChannelID          string
	VoterID            string
	VoterPhoneNumber   string
	GatewayPhoneNumber string
	NeedsAttention     bool
	Active             bool
	IsDemo             bool
	SessionStartEpoch  int64
	SessionEndAt       *time.Time
	HistoryTs          string
	UpdatedAt          time.Time
}

// MessageLogEntry is one row of the messages table.
type MessageLogEntry struct {
	ID                   string
	Direction            string
	Automated            bool
	Message              string
	UnprocessedMessage   string
	VoterID              string
	VoterPhoneNumber     string
	GatewayPhoneNumber   string
	EntryPoint           EntryPoint
	IsDemo               bool
	StateName            string
	OriginatingSlackUser string
	SlackUserName        string
	SlackChannel         string
	SlackParentMessageTs string
	SlackMessageTs       string
	TwilioMessageSid     string
	TwilioAttachments    []string
	IdempotencyKey       string
	SlackRetryNum        int
	SlackRetryReason     string
	TwilioReceiveAt      *time.Time
	TwilioSendAt         *time.Time
	SlackReceiveAt       *time.Time
	SlackSendAt          *time.Time
	SlackError           string
	TwilioError          string
	SuccessfullySent     bool
	DeliveryStatus       string
	DeliveryStatusAt     *time.Time
}

// HistoricalMessage is a message as replayed into a new thread.
type HistoricalMessage struct {
	Direction         string
	Automated         bool
	Message           string
	SlackUserName     string
	TwilioAttachments []string
	Timestamp         time.Time
}

// PastSession summarizes an ended session thread.
type PastSession struct {
	ChannelID         string
	ThreadTs          string
	HistoryTs         string
	SessionStartEpoch int64
	SessionEndAt      time.Time
	UpdatedAt         time.Time
}

// VoterStatusUpdate is one row of voter_status_updates.
type VoterStatusUpdate struct {
	VoterID            string
	VoterPhoneNumber   string
	GatewayPhoneNumber string
	Status             VoterStatus
	OriginatingUserID  string
	OriginatingUser    string
	IsDemo             bool
}

// VolunteerClaim is one row of volunteer_voter_claims. Empty VolunteerID
// releases the claim.
type VolunteerClaim struct {
	VoterID            string
	VoterPhoneNumber   string
	GatewayPhoneNumber string
	IsDemo             bool
	VolunteerID        string
	ClaimedByID        string
}

// CommandRecord is one row of the commands table.
type CommandRecord struct {
	VoterID        string
	GatewayPhone   string
	Command        string
	Args           string
	IssuedByUserID string
	ChannelID      string
	MessageTs      string
}

// ChannelWeight is one row of the load balancer weight table.
type ChannelWeight struct {
	Region      string      `json:"region"`
	ChannelType ChannelType `json:"channel_type"`
	EntryPoint  EntryPoint  `json:"entry_point"`
	ChannelName string      `json:"channel_name"`
	Weight      int         `json:"weight"`
}

// Reporting rows

type UnclaimedVoter struct {
	VoterID        string    `json:"voter_id"`
	ChannelID      string    `json:"channel_id"`
	ThreadTs       string    `json:"thread_ts"`
	LastUpdate     time.Time `json:"last_update"`
	NeedsAttention bool      `json:"needs_attention"`
}

type ChannelStat struct {
	ChannelID           string    `json:"channel_id"`
	Count               int       `json:"count"`
	OldestNeedingUpdate time.Time `json:"oldest"`
}

type VolunteerStat struct {
	VolunteerID string    `json:"volunteer_id"`
	Count       int       `json:"count"`
	Oldest      time.Time `json:"oldest"`
}

// Request types

type SetChannelWeightsRequest struct {
	Region      string          `json:"region"`
	ChannelType ChannelType     `json:"channel_type"`
	Weights     []ChannelWeight `json:"weights"`
	// DryRun validates and returns warnings without writing.
	DryRun bool `json:"dry_run,omitempty"`
}

type PushRequest struct {
	GatewayPhoneNumber string   `json:"gateway_phone_number"`
	VoterPhoneNumbers  []string `json:"voter_phone_numbers"`
	Message            string   `json:"message"`
}

// Response types

type SetChannelWeightsResponse struct {
	Applied  int      `json:"applied"`
	DryRun   bool     `json:"dry_run,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

type ChannelWeightsResponse struct {
	Weights []ChannelWeight `json:"weights"`
}

type PushResponse struct {
	Sent    int      `json:"sent"`
	Skipped int      `json:"skipped"`
	Failed  []string `json:"failed,omitempty"`
}

type StatsResponse struct {
	Unclaimed               []UnclaimedVoter `json:"unclaimed"`
	NeedsAttentionChannels  []ChannelStat    `json:"needs_attention_by_channel"`
	NeedsAttentionVolunteer []VolunteerStat  `json:"needs_attention_by_volunteer"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
