// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package machine

import "fmt"

// Client organizations with their own wording
const (
	OrgVoteAmerica      = "VOTE_AMERICA"
	OrgVoteFromHome2020 = "VOTE_FROM_HOME_2020"
	OrgVoterHelpLine    = "VOTER_HELP_LINE"
)

// Messages holds the automated texts sent to voters.
type Messages struct {
	Welcome                 string
	ClarifyDisclaimer       string
	StateQuestion           string
	ClarifyState            string
	NoStateFindingVolunteer string
	WelcomeBack             string
	VotedWelcome            string
	stateConfirmation       string
}

// StateConfirmation confirms the voter's region.
func (m Messages) StateConfirmation(region string) string {
	return fmt.Sprintf(m.stateConfirmation, region)
}

const (
	findingVolunteer  = "We are finding a volunteer. We try to reply within minutes but may take 24 hours. Meanwhile, please share more about how we can help."
	clarifyDisclaimer = "To continue, please reply “agree” to confirm that you understand."
	votedWelcome      = "Thank you for voting! Please remind your friends and family to vote too.\n\nReply HELPLINE if you have any questions, or STOP to opt out of texts. Msg&data rates may apply."
	welcomeBack       = "Welcome back! We are connecting you with a volunteer. We will try to reply within a matter of minutes, but depending on the time of day, you might hear back later. In the meantime, please feel free to share more information about your question and situation."

	voterHelpLineWelcome = "Welcome to Voter Help Line! We are excited to help you vote.\n\nPlease note that this is not an official or government-affiliated service. Volunteers will do their best to share official links that support their answers to your questions, but by using this service you release Voter Help Line of all liability for your personal voting experience.\n\nReply \"agree\" to confirm that you understand and would like to continue. (Msg & data rates may apply)."
)

var defaultMessages = Messages{
	Welcome:                 voterHelpLineWelcome,
	ClarifyDisclaimer:       clarifyDisclaimer,
	StateQuestion:           "Great! To match you with the most knowledgeable volunteer, in which U.S. state are you looking to vote? We currently service Florida, North Carolina and Ohio.",
	ClarifyState:            "I'm sorry I didn't understand. In which U.S. state are you looking to vote? We currently service FL, NC and OH.",
	NoStateFindingVolunteer: findingVolunteer,
	WelcomeBack:             welcomeBack + " (Msg & data rates may apply).",
	VotedWelcome:            votedWelcome,
	stateConfirmation:       "Great! We are finding a %s volunteer. We try to reply within minutes but may take 24 hours. Meanwhile, please share more about how we can help.",
}

// MessagesFor returns the wording of a client organization, falling back
// to the default helpline wording.
func MessagesFor(org string) Messages {
	m := defaultMessages
	switch org {
	case OrgVoteAmerica:
		m.Welcome = "Welcome to VoteAmerica! Msg&data rates may apply.\n\nReply HELPLINE to connect with a trained volunteer, VOTED if you've already voted, STOP to unsubscribe."
		m.StateQuestion = "Great! To match you with the most knowledgeable volunteer, in which U.S. state are you looking to vote?"
		m.ClarifyState = "I'm sorry I didn't understand. In which U.S. state are you looking to vote? Please use your state’s abbreviation."
		m.WelcomeBack = welcomeBack
		m.stateConfirmation = "Thanks! We are finding a %s volunteer. We try to reply within minutes but may take 24 hours. Meanwhile, please share more about how we can help."
	case OrgVoteFromHome2020:
		m.Welcome = "Vote From Home 2020 is excited to help you vote!\n\nPlease note this is not an official or government-affiliated service. Volunteers will do their best to share official links that support their answers to your questions, but by using this service you release Vote From Home 2020 of all liability for your personal voting experience.\n\nReply AGREE to confirm that you understand and would like to continue to receive automated text messages from this number with further information. (Msg & data rates may apply). Reply STOP to unsubscribe."
		m.StateQuestion = "Great! To match you with the most knowledgeable volunteer, in which U.S. state are you looking to vote? We currently service Michigan, North Carolina and Pennsylvania."
		m.ClarifyState = "I'm sorry I didn't understand. In which U.S. state are you looking to vote? We currently service MI, NC and PA."
	}
	return m
}
