package netstate

import (
	"sync"
	"time"
)

// Banner texts.
const (
	OnlineText  = "Online"
	OfflineText = "Offline Mode"
)

// IndicatorState is a snapshot of the connectivity banner.
type IndicatorState struct {
	Visible    bool   `json:"visible"`
	Text       string `json:"text,omitempty"`
	Persistent bool   `json:"persistent"`
}

// Indicator models the connectivity banner: a persistent offline banner and a
// transient online banner that hides itself after a TTL.
//
// Thread-safety: Indicator is safe for concurrent use.
type Indicator struct {
	mu    sync.Mutex
	state IndicatorState
	ttl   time.Duration
	timer *time.Timer
	gen   uint64
}

// NewIndicator creates a hidden indicator whose online banner lasts ttl.
func NewIndicator(ttl time.Duration) *Indicator {
	return &Indicator{ttl: ttl}
}

// ShowOnline shows the transient banner.
func (i *Indicator) ShowOnline() {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.stopLocked()
	i.state = IndicatorState{Visible: true, Text: OnlineText}
	gen := i.gen
	i.timer = time.AfterFunc(i.ttl, func() { i.hide(gen) })
}

// ShowOffline shows the persistent banner until the next ShowOnline.
func (i *Indicator) ShowOffline() {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.stopLocked()
	i.state = IndicatorState{Visible: true, Text: OfflineText, Persistent: true}
}

// State returns the current banner.
func (i *Indicator) State() IndicatorState {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.state
}

func (i *Indicator) stopLocked() {
	if i.timer != nil {
		i.timer.Stop()
		i.timer = nil
	}
	i.gen++
}

// hide clears the banner unless it was replaced after the timer was armed.
func (i *Indicator) hide(gen uint64) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.gen != gen {
		return
	}
	i.state = IndicatorState{}
	i.timer = nil
}
