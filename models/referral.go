package models

import "time"

// Referral tracks referral codes and conversions for a giveaway.
//
// The row created by getOrCreateReferralCode has a nil ReferredEntryID — a
// dangling invitation that merely holds the code. Each successful redemption is
// its own row sharing the same code, with ReferredEntryID/ConvertedAt set. Only
// converted rows count toward weight and the per-referrer cap.
type Referral struct {
	ID string `gorm:"primaryKey;type:uuid" json:"id"`

	// The partial unique index admits exactly one dangling invitation per
	// (giveaway, referrer); conversion rows are exempt.
	GiveawayID      string `gorm:"index;not null;uniqueIndex:uniq_referral_invite,where:referred_entry_id IS NULL" json:"giveaway_id"`
	ReferrerEntryID string `gorm:"index;not null;uniqueIndex:uniq_referral_invite,where:referred_entry_id IS NULL" json:"referrer_entry_id"`

	// Code is minted once per (giveaway, referrer) and reused on conversion rows,
	// so per-giveaway uniqueness is enforced by the mint path, not an index.
	Code string `gorm:"not null;index" json:"code"`

	ReferredEntryID     *string    `gorm:"uniqueIndex" json:"referred_entry_id,omitempty"`
	ConvertedAt         *time.Time `json:"converted_at,omitempty"`
	BonusEntriesAwarded int        `gorm:"default:0" json:"bonus_entries_awarded"`
	RedeemedIP          string     `gorm:"type:varchar(45);index" json:"redeemed_ip,omitempty"`

	Timestamps
}
