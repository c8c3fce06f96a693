package services

import (
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"

	"giveaway-engine/models"
	"giveaway-engine/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ClaimService struct {
	DB *gorm.DB
}

func NewClaimService(db *gorm.DB) *ClaimService {
	return &ClaimService{DB: db}
}

// GetClaimForm handles GET /claims/:token. The token is the only credential a
// winner holds, so lookups by anything else are not offered.
func (s *ClaimService) GetClaimForm(c *fiber.Ctx) error {
	winner, giveaway, err := s.resolveToken(c.Params("token"))
	if err != nil {
		return failJSON(c, err)
	}

	var entry models.Entry
	if err := s.DB.First(&entry, "id = ?", winner.EntryID).Error; err != nil {
		return failJSON(c, err)
	}

	resp := fiber.Map{
		"giveaway_title": giveaway.Title,
		"prize_value":    giveaway.PrizeValue,
		"claim_deadline": winner.ClaimDeadline,
		"claimed":        winner.ClaimedAt != nil,
		"requires_w9":    requiresW9(giveaway),
		"prefill": fiber.Map{
			"full_name": strings.TrimSpace(entry.FirstName + " " + entry.LastName),
			"email":     entry.Email,
			"phone":     entry.Phone,
			"state":     entry.State,
		},
	}

	var claim models.PrizeClaim
	if err := s.DB.First(&claim, "winner_id = ?", winner.ID).Error; err == nil {
		resp["claim"] = claim
	}
	return c.JSON(resp)
}

// SubmitClaim handles POST /claims/:token as a multipart form. The winner row
// flips to claimed behind a guarded UPDATE on claimed_at, so concurrent
// submissions resolve to exactly one acceptance.
func (s *ClaimService) SubmitClaim(c *fiber.Ctx) error {
	winner, giveaway, err := s.resolveToken(c.Params("token"))
	if err != nil {
		return failJSON(c, err)
	}
	if winner.ClaimedAt != nil {
		return failJSON(c, ErrAlreadyClaimed)
	}

	claim := models.PrizeClaim{
		ID:           uuid.NewString(),
		WinnerID:     winner.ID,
		GiveawayID:   winner.GiveawayID,
		FullName:     strings.TrimSpace(c.FormValue("full_name")),
		AddressLine1: strings.TrimSpace(c.FormValue("address_line1")),
		AddressLine2: strings.TrimSpace(c.FormValue("address_line2")),
		City:         strings.TrimSpace(c.FormValue("city")),
		State:        utils.NormalizeState(c.FormValue("state")),
		Zip:          strings.TrimSpace(c.FormValue("zip")),
		Email:        utils.NormalizeEmail(c.FormValue("email")),
		Phone:        utils.NormalizePhone(c.FormValue("phone")),
	}
	if claim.FullName == "" || claim.AddressLine1 == "" || claim.City == "" || claim.State == "" || claim.Zip == "" {
		return c.Status(400).JSON(fiber.Map{"error": "full_name, address_line1, city, state and zip are required"})
	}
	if claim.Email == "" && claim.Phone == "" {
		return failJSON(c, fmt.Errorf("%w: a valid email or phone is required", ErrInvalidContact))
	}

	if fh, err := c.FormFile("w9_document"); err == nil && fh != nil {
		url, err := utils.UploadClaimDocument(fh, documentKey(winner.ID, "w9", fh.Filename))
		if err != nil {
			return c.Status(400).JSON(fiber.Map{"error": err.Error()})
		}
		claim.W9DocumentURL = url
	}
	if fh, err := c.FormFile("id_document"); err == nil && fh != nil {
		url, err := utils.UploadClaimDocument(fh, documentKey(winner.ID, "id", fh.Filename))
		if err != nil {
			return c.Status(400).JSON(fiber.Map{"error": err.Error()})
		}
		claim.IDDocumentURL = url
	}

	if err := s.submitClaim(winner, giveaway, &claim, time.Now()); err != nil {
		return failJSON(c, err)
	}

	log.Printf("[CLAIM] winner=%s giveaway=%s claimed", winner.ID, winner.GiveawayID)
	return c.Status(201).JSON(fiber.Map{"message": "prize claim submitted", "claim": claim})
}

// submitClaim persists the claim form and marks the winner claimed. The
// PrizeClaim upsert keyed by winner_id absorbs retries of submissions that
// failed before the claimed transition committed.
func (s *ClaimService) submitClaim(winner *models.Winner, giveaway *models.Giveaway, claim *models.PrizeClaim, now time.Time) error {
	if requiresW9(giveaway) && claim.W9DocumentURL == "" {
		var existing models.PrizeClaim
		if err := s.DB.First(&existing, "winner_id = ?", winner.ID).Error; err != nil || existing.W9DocumentURL == "" {
			return fmt.Errorf("%w: prize value $%.2f meets the $%.2f reporting threshold", ErrW9Required, giveaway.PrizeValue, giveaway.W9Threshold)
		}
		claim.W9DocumentURL = existing.W9DocumentURL
	}

	return s.DB.Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "winner_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"full_name", "address_line1", "address_line2", "city", "state", "zip",
				"email", "phone", "w9_document_url", "id_document_url", "updated_at",
			}),
		}).Create(claim).Error
		if err != nil {
			return err
		}

		result := tx.Model(&models.Winner{}).
			Where("id = ? AND claimed_at IS NULL", winner.ID).
			Updates(map[string]interface{}{
				"status":     models.WinnerStatusClaimed,
				"claimed_at": now,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrAlreadyClaimed
		}
		winner.ClaimedAt = &now
		winner.Status = models.WinnerStatusClaimed
		return nil
	})
}

// resolveToken maps a claim token to a live winner row, rejecting terminal
// statuses and expired deadlines.
func (s *ClaimService) resolveToken(token string) (*models.Winner, *models.Giveaway, error) {
	if token == "" {
		return nil, nil, gorm.ErrRecordNotFound
	}
	var winner models.Winner
	if err := s.DB.First(&winner, "claim_token = ?", token).Error; err != nil {
		return nil, nil, err
	}
	if winner.Status == models.WinnerStatusForfeited || winner.Status == models.WinnerStatusDisqualified {
		return nil, nil, fmt.Errorf("%w: this prize is no longer claimable", ErrNotEligible)
	}
	if time.Now().After(winner.ClaimDeadline) && winner.ClaimedAt == nil {
		return nil, nil, ErrDeadlinePassed
	}
	var giveaway models.Giveaway
	if err := s.DB.First(&giveaway, "id = ?", winner.GiveawayID).Error; err != nil {
		return nil, nil, err
	}
	return &winner, &giveaway, nil
}

// GetWinnerClaim handles GET /admin/winners/:id/claim.
func (s *ClaimService) GetWinnerClaim(c *fiber.Ctx) error {
	winnerID := c.Params("id")
	var claim models.PrizeClaim
	if err := s.DB.First(&claim, "winner_id = ?", winnerID).Error; err != nil {
		return failJSON(c, err)
	}
	return c.JSON(claim)
}

// UpdateClaim handles PATCH /admin/claims/:id for fulfillment tracking.
func (s *ClaimService) UpdateClaim(c *fiber.Ctx) error {
	claimID := c.Params("id")
	var req struct {
		Verified          *bool   `json:"verified"`
		FulfillmentStatus *string `json:"fulfillment_status"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON"})
	}

	updates := map[string]interface{}{}
	if req.Verified != nil {
		updates["verified"] = *req.Verified
	}
	if req.FulfillmentStatus != nil {
		fs := models.FulfillmentStatus(*req.FulfillmentStatus)
		switch fs {
		case models.FulfillmentStatusPending, models.FulfillmentStatusProcessing, models.FulfillmentStatusShipped, models.FulfillmentStatusDelivered:
			updates["fulfillment_status"] = fs
		default:
			return c.Status(400).JSON(fiber.Map{"error": "invalid fulfillment_status"})
		}
	}
	if len(updates) == 0 {
		return c.Status(400).JSON(fiber.Map{"error": "no fields to update"})
	}

	result := s.DB.Model(&models.PrizeClaim{}).Where("id = ?", claimID).Updates(updates)
	if result.Error != nil {
		log.Printf("ERROR updating claim %s: %v", claimID, result.Error)
		return c.Status(500).JSON(fiber.Map{"error": "failed to update claim"})
	}
	if result.RowsAffected == 0 {
		return c.Status(404).JSON(fiber.Map{"error": "claim not found"})
	}

	log.Printf("[AUDIT] claim=%s updated by admin %s", claimID, adminIDFromCtx(c))
	var claim models.PrizeClaim
	if err := s.DB.First(&claim, "id = ?", claimID).Error; err != nil {
		return failJSON(c, err)
	}
	return c.JSON(claim)
}

func requiresW9(g *models.Giveaway) bool {
	return g.RequireW9 && g.PrizeValue >= g.W9Threshold
}

func documentKey(winnerID, kind, filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		ext = ".bin"
	}
	return fmt.Sprintf("claims/%s/%s-%s%s", winnerID, kind, uuid.NewString()[:8], ext)
}
