// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package machine runs the voter conversation.

# States

A voter's state is derived from the cached session on every event:

	NEW → DISCLAIMER_PENDING → REGION_PENDING → ACTIVE → STALE → ENDED

DISCLAIMER_PENDING only applies when the deployment requires the
disclaimer. PUSH voters and voters with an engaged volunteer are always
ACTIVE. A session without a start time is STALE until an operator resumes
it or starts a new session. Opting out with STOP is a flag, not a state:
it blocks the number and stops every further text to the voter.

# Events

	HandleInboundSMS    voter texts from the SMS gateway
	HandleChatMessage   volunteer replies and ! commands in voter threads
	HandleInteraction   clicks on the voter panel
	HandleAdminMention  route and reset commands in the admin control room

Chat events are acknowledged before they are handled; RegisterTasks makes
the handlers runnable by a dispatch.Dispatcher.
*/
package machine
