package models

import "time"

// WinnerType distinguishes winners counted toward NumWinners from backups.
type WinnerType string

const (
	WinnerTypePrimary   WinnerType = "primary"
	WinnerTypeAlternate WinnerType = "alternate"
)

// WinnerStatus is the claim lifecycle state machine:
// pending → notified → {claimed, forfeited, disqualified}.
type WinnerStatus string

const (
	WinnerStatusPending      WinnerStatus = "pending"
	WinnerStatusNotified     WinnerStatus = "notified"
	WinnerStatusClaimed      WinnerStatus = "claimed"
	WinnerStatusForfeited    WinnerStatus = "forfeited"
	WinnerStatusDisqualified WinnerStatus = "disqualified"
)

// IsTerminal reports whether no further transition is allowed from s.
func (s WinnerStatus) IsTerminal() bool {
	return s == WinnerStatusClaimed || s == WinnerStatusForfeited || s == WinnerStatusDisqualified
}

// Winner is one selected entry. The claim token is minted once at selection and
// survives re-notification so previously shared claim links stay valid.
type Winner struct {
	ID         string `gorm:"primaryKey;type:uuid" json:"id"`
	GiveawayID string `gorm:"index;not null" json:"giveaway_id"`
	EntryID    string `gorm:"index;not null" json:"entry_id"`

	WinnerType     WinnerType `gorm:"type:varchar(12);not null" json:"winner_type"`
	AlternateOrder *int       `json:"alternate_order,omitempty"` // 1..alternateCount by draw order; nil for primary

	Status       WinnerStatus `gorm:"type:varchar(16);not null;default:'pending'" json:"status"`
	StatusReason string       `json:"status_reason,omitempty"`

	ClaimToken    string    `gorm:"uniqueIndex;not null" json:"-"` // opaque secret, never serialized
	ClaimDeadline time.Time `gorm:"not null" json:"claim_deadline"`

	NotifiedAt       *time.Time `json:"notified_at,omitempty"`
	NotifiedChannels string     `gorm:"type:varchar(32)" json:"notified_channels,omitempty"` // comma list, e.g., "email,sms"
	ClaimedAt        *time.Time `json:"claimed_at,omitempty"`

	Entry *Entry `gorm:"foreignKey:EntryID" json:"entry,omitempty"`

	Timestamps
}
