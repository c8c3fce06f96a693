package models

// FulfillmentStatus tracks prize shipment after a verified claim.
type FulfillmentStatus string

const (
	FulfillmentStatusPending    FulfillmentStatus = "pending"
	FulfillmentStatusProcessing FulfillmentStatus = "processing"
	FulfillmentStatusShipped    FulfillmentStatus = "shipped"
	FulfillmentStatusDelivered  FulfillmentStatus = "delivered"
)

// PrizeClaim holds the claim form a winner submitted. 1:1 with Winner; created
// on first submission and upserted on resubmission before the deadline.
type PrizeClaim struct {
	ID         string `gorm:"primaryKey;type:uuid" json:"id"`
	WinnerID   string `gorm:"uniqueIndex;not null" json:"winner_id"`
	GiveawayID string `gorm:"index;not null" json:"giveaway_id"`

	FullName     string `gorm:"not null" json:"full_name"`
	AddressLine1 string `gorm:"not null" json:"address_line1"`
	AddressLine2 string `json:"address_line2,omitempty"`
	City         string `gorm:"not null" json:"city"`
	State        string `gorm:"type:varchar(2);not null" json:"state"`
	Zip          string `gorm:"type:varchar(10);not null" json:"zip"`
	Email        string `json:"email,omitempty"`
	Phone        string `json:"phone,omitempty"`

	// Document references (R2 object URLs), required per giveaway policy.
	W9DocumentURL string `gorm:"type:text" json:"w9_document_url,omitempty"`
	IDDocumentURL string `gorm:"type:text" json:"id_document_url,omitempty"`

	FulfillmentStatus FulfillmentStatus `gorm:"type:varchar(16);not null;default:'pending'" json:"fulfillment_status"`
	Verified          bool              `gorm:"default:false" json:"verified"`

	Timestamps
}
