// Package msg is the protocol between the worker and the pages it serves.
//
// Messages flow one way, worker to page. The set of kinds is closed; pages
// switch over it exhaustively.
package msg

import (
	"fmt"
	"strings"
)

// Kind identifies a message.
type Kind string

const (
	// KindSyncRequested asks the page to drain its offline queue.
	KindSyncRequested Kind = "sync_requested"
	// KindClaimed tells the page a new worker version now controls it.
	KindClaimed Kind = "claimed"
	// KindFocus asks the page to bring itself to the front.
	KindFocus Kind = "focus"
	// KindNotification carries a notification to display.
	KindNotification Kind = "notification"
)

// Kinds lists every message kind.
var Kinds = []Kind{KindSyncRequested, KindClaimed, KindFocus, KindNotification}

// wireNames maps the names older PocketBizz pages post to kinds.
var wireNames = map[string]Kind{
	"BACKGROUND_SYNC":   KindSyncRequested,
	"SYNC_OFFLINE_DATA": KindSyncRequested,
}

// Parse converts a wire name to a Kind. Both the current names and the legacy
// upper-case names are accepted.
func Parse(name string) (Kind, error) {
	if k, ok := wireNames[strings.TrimSpace(name)]; ok {
		return k, nil
	}
	k := Kind(strings.ToLower(strings.TrimSpace(name)))
	if k.Valid() {
		return k, nil
	}
	return "", fmt.Errorf("unknown message kind %q", name)
}

// Valid reports whether k is one of Kinds.
func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// Message is one worker-to-page message. Only the fields relevant to Kind are set.
type Message struct {
	Kind  Kind   `json:"kind"`
	Tag   string `json:"tag,omitempty"`
	Title string `json:"title,omitempty"`
	Body  string `json:"body,omitempty"`
	URL   string `json:"url,omitempty"`
}
