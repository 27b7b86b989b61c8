package bot

// EventKind classifies an inbound update.
type EventKind int

const (
	EventUnknown EventKind = iota
	EventStart
	EventReset
	EventKeys
	EventHelp
	EventUpload
	EventCallback
)

func (k EventKind) String() string {
	switch k {
	case EventStart:
		return "start"
	case EventReset:
		return "reset"
	case EventKeys:
		return "keys"
	case EventHelp:
		return "help"
	case EventUpload:
		return "upload"
	case EventCallback:
		return "callback"
	default:
		return "unknown"
	}
}

// Policy decides what happens to an event from a chat outside the whitelist.
type Policy int

const (
	// Allow handles the event for every chat.
	Allow Policy = iota
	// Drop ignores the event without a reply.
	Drop
	// Reject answers with the not-whitelisted text.
	Reject
)

// policies applies to chats that are not whitelisted. Whitelisted chats
// always get Allow.
var policies = map[EventKind]Policy{
	EventStart:    Reject,
	EventHelp:     Reject,
	EventReset:    Drop,
	EventKeys:     Drop,
	EventUpload:   Drop,
	EventCallback: Drop,
	EventUnknown:  Drop,
}

// PolicyFor returns the policy for kind given the chat's whitelist status.
func PolicyFor(kind EventKind, whitelisted bool) Policy {
	if whitelisted {
		return Allow
	}
	if p, ok := policies[kind]; ok {
		return p
	}
	return Drop
}
