package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"giveaway-engine/models"
	"giveaway-engine/utils"
	"giveaway-engine/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ReferralService struct {
	DB       *gorm.DB
	Notifier workers.Notifier
}

func NewReferralService(db *gorm.DB, notifier workers.Notifier) *ReferralService {
	return &ReferralService{DB: db, Notifier: notifier}
}

// GetReferralCode returns the entrant's share code, minting it on first call.
func (s *ReferralService) GetReferralCode(c *fiber.Ctx) error {
	entryID := c.Params("id")
	var entry models.Entry
	if err := s.DB.First(&entry, "id = ?", entryID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "entry not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "DB error"})
	}
	var giveaway models.Giveaway
	if err := s.DB.First(&giveaway, "id = ?", entry.GiveawayID).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "DB error"})
	}
	if !giveaway.ReferralEnabled {
		return failJSON(c, fmt.Errorf("%w: referral program is not enabled for this giveaway", ErrNotEligible))
	}

	code, err := s.getOrCreateCode(&giveaway, entry.ID)
	if err != nil {
		log.Printf("[REFERRAL] mint failed for entry %s: %v", entry.ID, err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to issue referral code"})
	}
	return c.JSON(fiber.Map{
		"referral_code": code,
		"giveaway_id":   giveaway.ID,
	})
}

// getOrCreateCode is idempotent per (giveaway, entry): repeat calls return the
// code minted first. Codes are 8 hex chars from crypto/rand, retried on the
// rare per-giveaway collision.
func (s *ReferralService) getOrCreateCode(giveaway *models.Giveaway, entryID string) (string, error) {
	var existing models.Referral
	err := s.DB.Where("giveaway_id = ? AND referrer_entry_id = ?", giveaway.ID, entryID).
		Order("created_at ASC").First(&existing).Error
	if err == nil {
		return existing.Code, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", err
	}

	for attempt := 0; attempt < 5; attempt++ {
		code, err := utils.NewReferralCode()
		if err != nil {
			return "", err
		}
		var n int64
		if err := s.DB.Model(&models.Referral{}).
			Where("giveaway_id = ? AND code = ?", giveaway.ID, code).
			Count(&n).Error; err != nil {
			return "", err
		}
		if n > 0 {
			continue
		}
		ref := &models.Referral{
			ID:              uuid.NewString(),
			GiveawayID:      giveaway.ID,
			ReferrerEntryID: entryID,
			Code:            code,
		}
		if err := s.DB.Create(ref).Error; err != nil {
			// The invitation index admits one dangling row per entrant; a
			// create that lost the race returns the row that beat us.
			var raced models.Referral
			if rerr := s.DB.Where("giveaway_id = ? AND referrer_entry_id = ? AND referred_entry_id IS NULL",
				giveaway.ID, entryID).First(&raced).Error; rerr == nil {
				return raced.Code, nil
			}
			return "", err
		}
		return code, nil
	}
	return "", errors.New("could not mint a unique referral code")
}

// redeemReferral converts a referral after a successful entry submission.
//
// Every failure path is silent: surfacing "unknown code" or "cap reached" to
// the referred entrant would leak code validity to anyone probing. Failures are
// logged for the audit trail and nothing else happens.
func (s *ReferralService) redeemReferral(giveaway *models.Giveaway, code, newEntryID, ip string) {
	awarded, err := s.convert(giveaway, code, newEntryID, ip)
	if err != nil {
		log.Printf("[REFERRAL] redemption of %q for entry %s skipped: %v", code, newEntryID, err)
		return
	}

	log.Printf("[REFERRAL] giveaway=%s code=%s referred=%s awarded=%d", giveaway.ID, code, newEntryID, awarded.BonusEntriesAwarded)

	// Best-effort heads-up to the referrer; never blocks the submission.
	var referrer models.Entry
	if err := s.DB.First(&referrer, "id = ?", awarded.ReferrerEntryID).Error; err == nil {
		go s.Notifier.NotifyBonusEvent(context.Background(), &referrer, giveaway, "referral_converted")
	}
}

func (s *ReferralService) convert(giveaway *models.Giveaway, code, newEntryID, ip string) (*models.Referral, error) {
	var conversion *models.Referral
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var invite models.Referral
		if err := tx.Where("giveaway_id = ? AND code = ?", giveaway.ID, code).
			Order("created_at ASC").First(&invite).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errors.New("unknown code")
			}
			return err
		}

		if invite.ReferrerEntryID == newEntryID {
			return errors.New("self-referral")
		}

		// Lock the referrer's entry row for the rest of the transaction.
		// Concurrent redemptions of the same code serialize here, so the cap
		// counts below cannot both read cap-1 and both insert.
		var referrer, referred models.Entry
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&referrer, "id = ?", invite.ReferrerEntryID).Error; err != nil {
			return err
		}
		if err := tx.First(&referred, "id = ?", newEntryID).Error; err != nil {
			return err
		}
		if sameEntrant(&referrer, &referred) {
			return errors.New("self-referral (matching contact)")
		}

		var converted int64
		if err := tx.Model(&models.Referral{}).
			Where("giveaway_id = ? AND referrer_entry_id = ? AND referred_entry_id IS NOT NULL",
				giveaway.ID, invite.ReferrerEntryID).
			Count(&converted).Error; err != nil {
			return err
		}
		if int(converted) >= giveaway.MaxReferralBonus {
			return fmt.Errorf("referrer cap reached (%d)", giveaway.MaxReferralBonus)
		}

		if ip != "" {
			var fromIP int64
			if err := tx.Model(&models.Referral{}).
				Where("giveaway_id = ? AND redeemed_ip = ? AND referred_entry_id IS NOT NULL", giveaway.ID, ip).
				Count(&fromIP).Error; err != nil {
				return err
			}
			if int(fromIP) >= giveaway.MaxReferralsPerIP {
				return fmt.Errorf("per-IP cap reached (%d)", giveaway.MaxReferralsPerIP)
			}
		}

		now := time.Now()
		if invite.ReferredEntryID == nil {
			// First conversion fills the dangling invitation row.
			result := tx.Model(&models.Referral{}).
				Where("id = ? AND referred_entry_id IS NULL", invite.ID).
				Updates(map[string]interface{}{
					"referred_entry_id":     newEntryID,
					"converted_at":          now,
					"bonus_entries_awarded": giveaway.ReferralBonusEntries,
					"redeemed_ip":           ip,
				})
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				// Lost the race for the invitation row; record a fresh conversion.
				if err := s.createConversionRow(tx, &invite, newEntryID, ip, giveaway.ReferralBonusEntries, now); err != nil {
					return err
				}
			} else {
				invite.ReferredEntryID = &newEntryID
				invite.ConvertedAt = &now
				invite.BonusEntriesAwarded = giveaway.ReferralBonusEntries
				conversion = &invite
			}
		} else {
			if err := s.createConversionRow(tx, &invite, newEntryID, ip, giveaway.ReferralBonusEntries, now); err != nil {
				return err
			}
		}
		if conversion == nil {
			var fresh models.Referral
			if err := tx.Where("referred_entry_id = ?", newEntryID).First(&fresh).Error; err != nil {
				return err
			}
			conversion = &fresh
		}

		// Credit the referrer in place; the expression keeps the increment atomic.
		return tx.Model(&models.Entry{}).
			Where("id = ?", invite.ReferrerEntryID).
			Update("entry_count", gorm.Expr("entry_count + ?", giveaway.ReferralBonusEntries)).Error
	})
	if err != nil {
		return nil, err
	}
	return conversion, nil
}

func (s *ReferralService) createConversionRow(tx *gorm.DB, invite *models.Referral, newEntryID, ip string, bonus int, now time.Time) error {
	return tx.Create(&models.Referral{
		ID:                  uuid.NewString(),
		GiveawayID:          invite.GiveawayID,
		ReferrerEntryID:     invite.ReferrerEntryID,
		Code:                invite.Code,
		ReferredEntryID:     &newEntryID,
		ConvertedAt:         &now,
		BonusEntriesAwarded: bonus,
		RedeemedIP:          ip,
	}).Error
}

// sameEntrant reports whether two entries share a normalized contact.
func sameEntrant(a, b *models.Entry) bool {
	if a.Email != "" && a.Email == b.Email {
		return true
	}
	if a.Phone != "" && a.Phone == b.Phone {
		return true
	}
	return false
}

// ClaimBonus handles POST /entries/:id/bonus — extra entries for supplying a
// secondary contact channel.
func (s *ReferralService) ClaimBonus(c *fiber.Ctx) error {
	entryID := c.Params("id")
	var req struct {
		SecondaryContact string `json:"secondary_contact"`
		ContactType      string `json:"contact_type" validate:"oneof=email phone"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON"})
	}

	entry, err := s.claimBonus(entryID, req.SecondaryContact, models.ContactType(req.ContactType), time.Now())
	if err != nil {
		return failJSON(c, err)
	}
	return c.JSON(fiber.Map{
		"message":     "bonus entries added",
		"entry_id":    entry.ID,
		"entry_count": entry.EntryCount,
	})
}

// claimBonus validates the secondary contact, then applies the credit with a
// guarded UPDATE on bonus_claimed so concurrent submissions credit exactly once.
func (s *ReferralService) claimBonus(entryID, secondaryContact string, contactType models.ContactType, now time.Time) (*models.Entry, error) {
	var entry models.Entry
	if err := s.DB.First(&entry, "id = ?", entryID).Error; err != nil {
		return nil, err
	}
	var giveaway models.Giveaway
	if err := s.DB.First(&giveaway, "id = ?", entry.GiveawayID).Error; err != nil {
		return nil, err
	}

	if !giveaway.BonusEnabled {
		return nil, fmt.Errorf("%w: bonus entries are not enabled for this giveaway", ErrNotEligible)
	}
	if !giveaway.IsOpenAt(now) {
		return nil, fmt.Errorf("%w: giveaway has ended", ErrNotEligible)
	}
	if entry.BonusClaimed {
		return nil, ErrAlreadyClaimed
	}

	var normalized string
	switch contactType {
	case models.ContactTypeEmail:
		normalized = utils.NormalizeEmail(secondaryContact)
	case models.ContactTypePhone:
		normalized = utils.NormalizePhone(secondaryContact)
	default:
		return nil, fmt.Errorf("%w: contact_type must be 'email' or 'phone'", ErrInvalidContact)
	}
	if normalized == "" {
		return nil, fmt.Errorf("%w: malformed %s", ErrInvalidContact, contactType)
	}
	if normalized == entry.Email || normalized == entry.Phone {
		return nil, fmt.Errorf("%w: secondary contact matches the primary contact", ErrInvalidContact)
	}

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Entry{}).
			Where("id = ? AND bonus_claimed = ?", entryID, false).
			Updates(map[string]interface{}{
				"bonus_claimed":          true,
				"secondary_contact":      normalized,
				"secondary_contact_type": contactType,
				"entry_count":            gorm.Expr("entry_count + ?", giveaway.BonusEntryCount),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrAlreadyClaimed
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.DB.First(&entry, "id = ?", entryID).Error; err != nil {
		return nil, err
	}
	log.Printf("[BONUS] entry=%s giveaway=%s +%d entries (secondary %s)", entry.ID, giveaway.ID, giveaway.BonusEntryCount, contactType)
	go s.Notifier.NotifyBonusEvent(context.Background(), &entry, &giveaway, "bonus_claimed")
	return &entry, nil
}
