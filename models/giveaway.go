package models

import (
	"time"

	"gorm.io/gorm"
)

// GiveawayStatus is the publishing lifecycle of a giveaway.
type GiveawayStatus string

const (
	GiveawayStatusDraft     GiveawayStatus = "draft"
	GiveawayStatusActive    GiveawayStatus = "active"
	GiveawayStatusEnded     GiveawayStatus = "ended" // set atomically with winner selection
	GiveawayStatusCancelled GiveawayStatus = "cancelled"
)

// AlternateMode controls what happens when a primary winner is forfeited/disqualified.
type AlternateMode string

const (
	AlternateModeAuto   AlternateMode = "auto"   // next pending alternate promoted automatically
	AlternateModeManual AlternateMode = "manual" // admin must promote explicitly
)

// ContactPolicy says which contact channel an entry must supply.
type ContactPolicy string

const (
	ContactPolicyEmail  ContactPolicy = "email"
	ContactPolicyPhone  ContactPolicy = "phone"
	ContactPolicyEither ContactPolicy = "either"
)

// DedupePolicy controls per-giveaway entry uniqueness.
// "strict": one entry per person, matched by normalized email OR phone.
// "per_channel": email and phone are deduped independently (an email entry and a
// phone entry from the same person are both accepted).
type DedupePolicy string

const (
	DedupePolicyStrict     DedupePolicy = "strict"
	DedupePolicyPerChannel DedupePolicy = "per_channel"
)

// Giveaway is a single contest with its entry, referral/bonus, and selection config.
type Giveaway struct {
	ID          string `gorm:"primaryKey;type:uuid" json:"id"`
	Title       string `gorm:"not null" json:"title"`
	Slug        string `gorm:"uniqueIndex;not null" json:"slug"`
	Description string `gorm:"type:text" json:"description,omitempty"`

	// Entry window: [StartTime, EndTime)
	StartTime       time.Time      `gorm:"not null" json:"start_time"`
	EndTime         time.Time      `gorm:"not null" json:"end_time"`
	Status          GiveawayStatus `gorm:"type:varchar(16);not null;default:'draft'" json:"status"`
	PublishSchedule *time.Time     `json:"publish_schedule,omitempty"` // auto-activate at this time

	// Selection config
	NumWinners             int           `gorm:"not null;default:1" json:"num_winners"`
	AlternateCount         int           `gorm:"default:0" json:"alternate_count"`
	AlternateSelectionMode AlternateMode `gorm:"type:varchar(8);not null;default:'auto'" json:"alternate_selection_mode"`
	WinnerSelected         bool          `gorm:"not null;default:false" json:"winner_selected"` // set-once, never cleared
	WinnersSelectedAt      *time.Time    `json:"winners_selected_at,omitempty"`

	// Claim / compliance config
	PrizeValue      float64 `json:"prize_value"`
	RequireW9       bool    `gorm:"default:false" json:"require_w9"`
	W9Threshold     float64 `gorm:"default:600" json:"w9_threshold"` // IRS reporting floor
	ClaimWindowDays int     `gorm:"default:7" json:"claim_window_days"`

	// Entry policy
	RestrictedStates string        `json:"restricted_states,omitempty"` // comma-separated 2-letter codes
	ContactPolicy    ContactPolicy `gorm:"type:varchar(8);not null;default:'either'" json:"contact_policy"`
	DedupePolicy     DedupePolicy  `gorm:"type:varchar(16);not null;default:'strict'" json:"dedupe_policy"`

	// Referral / bonus program
	ReferralEnabled      bool `gorm:"default:false" json:"referral_enabled"`
	ReferralBonusEntries int  `gorm:"default:1" json:"referral_bonus_entries"` // per conversion
	MaxReferralBonus     int  `gorm:"default:10" json:"max_referral_bonus"`    // conversions counted per referrer
	MaxReferralsPerIP    int  `gorm:"default:5" json:"max_referrals_per_ip"`
	BonusEnabled         bool `gorm:"default:false" json:"bonus_enabled"`
	BonusEntryCount      int  `gorm:"default:1" json:"bonus_entry_count"` // extra entries for a secondary contact

	Timestamps
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

// IsOpenAt reports whether the entry window is open at t and the giveaway is live.
func (g *Giveaway) IsOpenAt(t time.Time) bool {
	return g.Status == GiveawayStatusActive && !t.Before(g.StartTime) && t.Before(g.EndTime)
}
