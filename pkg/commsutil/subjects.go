package commsutil

import (
	"fmt"
	"strings"
)

// Default COMMS subjects.
const (
	// SubjectHost receives every widget → host envelope. Replies go to the
	// requester's inbox.
	SubjectHost = "widget.host.v1"
	// SubjectEvents carries host → widget event envelopes for all widgets.
	SubjectEvents = "widget.events"
	// inboxPrefix is the root of per-channel reply inboxes.
	inboxPrefix = "widget.inbox"
)

// BuildInboxSubject builds the reply inbox for a widget-side channel.
func BuildInboxSubject(clientName, token string) string {
	return fmt.Sprintf("%s.%s.%s", inboxPrefix, sanitizeToken(clientName), token)
}

// BuildWidgetEventSubject builds an event subject addressed to a single widget.
// The scope tag inside the envelope still drives filtering; the subject only
// narrows fan-out on the broker.
func BuildWidgetEventSubject(eventSubject, widgetID string) string {
	return fmt.Sprintf("%s.%s", eventSubject, sanitizeToken(widgetID))
}

func sanitizeToken(s string) string {
	if s == "" {
		return "_"
	}
	r := strings.NewReplacer(".", "_", " ", "_", "*", "_", ">", "_")
	return r.Replace(s)
}
