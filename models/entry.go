package models

// ContactType distinguishes the secondary contact channel used for bonus entries.
type ContactType string

const (
	ContactTypeEmail ContactType = "email"
	ContactTypePhone ContactType = "phone"
)

// Entry is one contest submission. Email/phone are stored normalized (lowercase
// email, 10-digit phone) so uniqueness checks and referral lookups compare
// canonical forms. Entries are never deleted; admins flip IsValid instead.
type Entry struct {
	ID         string `gorm:"primaryKey;type:uuid" json:"id"`
	GiveawayID string `gorm:"index;not null" json:"giveaway_id"`

	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Email     string `gorm:"index" json:"email,omitempty"`
	Phone     string `gorm:"index" json:"phone,omitempty"`
	State     string `gorm:"type:varchar(2)" json:"state,omitempty"`
	SMSOptIn  bool   `gorm:"default:false" json:"sms_opt_in"`

	// Validity is reversible and auditable; invalid entries never enter a draw.
	IsValid            bool   `gorm:"not null;default:true" json:"is_valid"`
	InvalidationReason string `json:"invalidation_reason,omitempty"`

	// Effective weight: 1 base + bonus + referral conversions.
	EntryCount int `gorm:"not null;default:1" json:"entry_count"`

	BonusClaimed         bool        `gorm:"not null;default:false" json:"bonus_claimed"`
	SecondaryContact     string      `json:"secondary_contact,omitempty"`
	SecondaryContactType ContactType `gorm:"type:varchar(8)" json:"secondary_contact_type,omitempty"`

	Source    string `gorm:"type:varchar(32)" json:"source,omitempty"` // e.g., "web", "qr", "social"
	IPAddress string `gorm:"type:varchar(45)" json:"ip_address,omitempty"`

	Timestamps
}

// PrimaryContact returns the channel the entrant signed up with, preferring email.
func (e *Entry) PrimaryContact() (string, ContactType) {
	if e.Email != "" {
		return e.Email, ContactTypeEmail
	}
	return e.Phone, ContactTypePhone
}
