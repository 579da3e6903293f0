// Package ledger defines the accounting entries pocketsync queues while the
// PocketBizz server is unreachable.
package ledger

import (
	"net/url"
	"time"

	"github.com/shopspring/decimal"
)

// Type distinguishes money coming in from money going out.
type Type string

const (
	Income  Type = "income"
	Expense Type = "expense"
)

// Channel tags where a sale or purchase happened. The set is open: any
// lowercase tag is accepted, these are the ones the dashboard knows about.
type Channel string

const (
	ChannelShopee Channel = "shopee"
	ChannelTikTok Channel = "tiktok"
	ChannelWalkIn Channel = "walkin"
	ChannelAgent  Channel = "agent"
	ChannelOnline Channel = "online"
)

// Draft is a transaction captured from a form, before it is stored.
type Draft struct {
	Type        Type
	Amount      decimal.Decimal
	Description string
	Channel     Channel
	Category    string
}

// QueuedTransaction is one locally stored, not-yet-confirmed accounting entry.
//
// INVARIANTS:
//   - ID is assigned by the store and never changes
//   - Synced only ever moves from false to true
//   - Amount is strictly positive
type QueuedTransaction struct {
	ID             int64           `json:"id"`
	IdempotencyKey string          `json:"idempotency_key"`
	Type           Type            `json:"type"`
	Amount         decimal.Decimal `json:"amount"`
	Description    string          `json:"description"`
	Channel        Channel         `json:"channel"`
	Category       string          `json:"category,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	Synced         bool            `json:"synced"`
	SyncedAt       *time.Time      `json:"synced_at,omitempty"`
}

// Draft returns the user-entered part of the record.
func (t QueuedTransaction) Draft() Draft {
	return Draft{
		Type:        t.Type,
		Amount:      t.Amount,
		Description: t.Description,
		Channel:     t.Channel,
		Category:    t.Category,
	}
}

// FormValues encodes the record as the field set the submission endpoint accepts.
// The same encoding is used by live submissions and by replays.
func (d Draft) FormValues() url.Values {
	v := url.Values{}
	v.Set("type", string(d.Type))
	v.Set("amount", d.Amount.String())
	v.Set("description", d.Description)
	v.Set("channel", string(d.Channel))
	v.Set("category", d.Category)
	return v
}
