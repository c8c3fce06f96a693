package services

import (
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
)

type EntryService struct {
	DB       *gorm.DB
	Notifier workers.Notifier
}

func NewEntryService(db *gorm.DB, notifier workers.Notifier) *EntryService {
	return &EntryService{DB: db, Notifier: notifier}
}

// entryInput is the normalized submission; Email/Phone/State are canonical forms.
type entryInput struct {
	FirstName    string
	LastName     string
	Email        string
	Phone        string
	State        string
	SMSOptIn     bool
	Source       string
	IPAddress    string
	ReferralCode string
}

// SubmitEntry handles POST /giveaways/:slug/entries.
func (s *EntryService) SubmitEntry(c *fiber.Ctx) error {
	var req struct {
		FirstName    string `json:"first_name"`
		LastName     string `json:"last_name"`
		Email        string `json:"email"`
		Phone        string `json:"phone"`
		State        string `json:"state"`
		SMSOptIn     bool   `json:"sms_opt_in"`
		Source       string `json:"source"`
		ReferralCode string `json:"referral_code"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
	}

	var giveaway models.Giveaway
	if err := s.DB.Where("slug = ?", c.Params("slug")).First(&giveaway).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "giveaway not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "DB error"})
	}

	// Email/phone are validated and canonicalized here, never downstream.
	in := entryInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		SMSOptIn:  req.SMSOptIn,
		Source:    req.Source,
		IPAddress: c.IP(),
	}
	if req.Email != "" {
		in.Email = utils.NormalizeEmail(req.Email)
		if in.Email == "" {
			return c.Status(400).JSON(fiber.Map{"error": "invalid email address"})
		}
	}
	if req.Phone != "" {
		in.Phone = utils.NormalizePhone(req.Phone)
		if in.Phone == "" {
			return c.Status(400).JSON(fiber.Map{"error": "invalid phone number (10-digit US numbers only)"})
		}
	}
	if req.State != "" {
		in.State = utils.NormalizeState(req.State)
		if in.State == "" {
			return c.Status(400).JSON(fiber.Map{"error": "state must be a 2-letter code"})
		}
	}
	in.ReferralCode = req.ReferralCode
	if in.ReferralCode == "" {
		in.ReferralCode = c.Query("ref")
	}

	entry, err := s.submit(&giveaway, in, time.Now())
	if err != nil {
		return failJSON(c, err)
	}

	resp := fiber.Map{
		"message": "entry received",
		"entry": fiber.Map{
			"id":          entry.ID,
			"giveaway_id": entry.GiveawayID,
			"entry_count": entry.EntryCount,
			"created_at":  entry.CreatedAt,
		},
	}

	// Entrants in a referral-enabled giveaway get their own share code up front.
	if giveaway.ReferralEnabled {
		refSvc := NewReferralService(s.DB, s.Notifier)
		if code, err := refSvc.getOrCreateCode(&giveaway, entry.ID); err == nil {
			resp["referral_code"] = code
		} else {
			log.Printf("[ENTRY] failed to mint referral code for entry %s: %v", entry.ID, err)
		}
	}

	return c.Status(201).JSON(resp)
}

// submit validates the giveaway window, policy, and uniqueness, then persists
// the entry. Referral redemption runs after the insert and fails silently: an
// invalid or abusive code never surfaces to the referred entrant.
func (s *EntryService) submit(giveaway *models.Giveaway, in entryInput, now time.Time) (*models.Entry, error) {
	if !giveaway.IsOpenAt(now) {
		return nil, ErrGiveawayClosed
	}
	if utils.StateRestricted(in.State, giveaway.RestrictedStates) {
		return nil, ErrRestrictedState
	}

	switch giveaway.ContactPolicy {
	case models.ContactPolicyEmail:
		if in.Email == "" {
			return nil, fmt.Errorf("%w: email is required for this giveaway", ErrInvalidContact)
		}
	case models.ContactPolicyPhone:
		if in.Phone == "" {
			return nil, fmt.Errorf("%w: phone is required for this giveaway", ErrInvalidContact)
		}
	default:
		if in.Email == "" && in.Phone == "" {
			return nil, fmt.Errorf("%w: email or phone is required", ErrInvalidContact)
		}
	}

	entry := &models.Entry{
		ID:         uuid.NewString(),
		GiveawayID: giveaway.ID,
		FirstName:  in.FirstName,
		LastName:   in.LastName,
		Email:      in.Email,
		Phone:      in.Phone,
		State:      in.State,
		SMSOptIn:   in.SMSOptIn,
		IsValid:    true,
		EntryCount: 1,
		Source:     in.Source,
		IPAddress:  in.IPAddress,
	}

	// Uniqueness check and insert share a transaction so two simultaneous
	// submissions for the same contact cannot both pass the check.
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		switch giveaway.DedupePolicy {
		case models.DedupePolicyPerChannel:
			// Each channel deduped independently.
			if in.Email != "" {
				var n int64
				if err := tx.Model(&models.Entry{}).
					Where("giveaway_id = ? AND email = ?", giveaway.ID, in.Email).
					Count(&n).Error; err != nil {
					return err
				}
				if n > 0 {
					return ErrDuplicateEntry
				}
			}
			if in.Phone != "" {
				var n int64
				if err := tx.Model(&models.Entry{}).
					Where("giveaway_id = ? AND phone = ?", giveaway.ID, in.Phone).
					Count(&n).Error; err != nil {
					return err
				}
				if n > 0 {
					return ErrDuplicateEntry
				}
			}
		default: // strict: one entry per person, either channel matches
			cond := tx.Where("1 = 0")
			if in.Email != "" {
				cond = cond.Or("email = ?", in.Email)
			}
			if in.Phone != "" {
				cond = cond.Or("phone = ?", in.Phone)
			}
			var n int64
			if err := tx.Model(&models.Entry{}).
				Where("giveaway_id = ?", giveaway.ID).
				Where(cond).
				Count(&n).Error; err != nil {
				return err
			}
			if n > 0 {
				return ErrDuplicateEntry
			}
		}
		return tx.Create(entry).Error
	})
	if err != nil {
		return nil, err
	}

	if in.ReferralCode != "" && giveaway.ReferralEnabled {
		refSvc := NewReferralService(s.DB, s.Notifier)
		refSvc.redeemReferral(giveaway, in.ReferralCode, entry.ID, in.IPAddress)
	}

	log.Printf("[ENTRY] giveaway=%s entry=%s source=%s ip=%s", giveaway.ID, entry.ID, entry.Source, entry.IPAddress)
	return entry, nil
}

// SetEntryValidity flips an entry's validity flag (Admin only). Entries are
// never deleted; the flip and its reason are kept for audit.
func (s *EntryService) SetEntryValidity(c *fiber.Ctx) error {
	id := c.Params("id")
	var req struct {
		IsValid bool   `json:"is_valid"`
		Reason  string `json:"reason"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON"})
	}
	if !req.IsValid && req.Reason == "" {
		return c.Status(400).JSON(fiber.Map{"error": "reason is required when invalidating an entry"})
	}

	entry, err := s.setValidity(id, req.IsValid, req.Reason, adminIDFromCtx(c))
	if err != nil {
		return failJSON(c, err)
	}
	return c.JSON(fiber.Map{"message": "entry validity updated", "entry": entry})
}

func (s *EntryService) setValidity(entryID string, isValid bool, reason, adminID string) (*models.Entry, error) {
	var entry models.Entry
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&entry, "id = ?", entryID).Error; err != nil {
			return err
		}
		updates := map[string]interface{}{
			"is_valid":            isValid,
			"invalidation_reason": reason,
		}
		if isValid {
			updates["invalidation_reason"] = ""
		}
		if err := tx.Model(&entry).Updates(updates).Error; err != nil {
			return err
		}
		entry.IsValid = isValid
		entry.InvalidationReason = updates["invalidation_reason"].(string)
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[AUDIT] entry %s validity -> %t by admin %s (reason: %q) at %s",
		entryID, isValid, adminID, reason, time.Now().Format(time.RFC3339))
	return &entry, nil
}

// GetEntriesForGiveaway lists entries, optionally filtered by validity (Admin only).
func (s *EntryService) GetEntriesForGiveaway(c *fiber.Ctx) error {
	giveawayID := c.Params("id")
	query := s.DB.Where("giveaway_id = ?", giveawayID).Order("created_at DESC")
	switch c.Query("valid") {
	case "true":
		query = query.Where("is_valid = ?", true)
	case "false":
		query = query.Where("is_valid = ?", false)
	}

	var entries []models.Entry
	if err := query.Find(&entries).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to fetch entries"})
	}
	return c.JSON(entries)
}

// EntryWeightRow is one line of the aggregation report: how an entrant's
// effective weight decomposes into base, bonus, and referral credit.
type EntryWeightRow struct {
	EntryID             string `json:"entry_id"`
	FirstName           string `json:"first_name"`
	LastName            string `json:"last_name"`
	Email               string `json:"email,omitempty"`
	Phone               string `json:"phone,omitempty"`
	IsValid             bool   `json:"is_valid"`
	BaseWeight          int    `json:"base_weight"`
	BonusWeight         int    `json:"bonus_weight"`
	ReferralConversions int    `json:"referral_conversions"`
	ReferralWeight      int    `json:"referral_weight"`
	TotalWeight         int    `json:"total_weight"`
}

// GetEntrySummary is the EntryAggregator report (Admin only): per-entrant
// weight breakdown plus pool totals, the same numbers the selector draws from.
func (s *EntryService) GetEntrySummary(c *fiber.Ctx) error {
	giveawayID := c.Params("id")
	var giveaway models.Giveaway
	if err := s.DB.First(&giveaway, "id = ?", giveawayID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "giveaway not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "DB error"})
	}

	rows, err := s.entrySummary(&giveaway)
	if err != nil {
		log.Printf("ERROR building entry summary for %s: %v", giveawayID, err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to build summary"})
	}

	validEntries := 0
	totalWeight := 0
	for _, r := range rows {
		if r.IsValid {
			validEntries++
			totalWeight += r.TotalWeight
		}
	}
	return c.JSON(fiber.Map{
		"giveaway_id":        giveawayID,
		"entries":            rows,
		"valid_entries":      validEntries,
		"total_entry_weight": totalWeight,
	})
}

func (s *EntryService) entrySummary(giveaway *models.Giveaway) ([]EntryWeightRow, error) {
	query := `
        SELECT
            e.id AS entry_id,
            e.first_name,
            e.last_name,
            e.email,
            e.phone,
            e.is_valid,
            1 AS base_weight,
            CASE WHEN e.bonus_claimed THEN ? ELSE 0 END AS bonus_weight,
            COALESCE(r.conversions, 0) AS referral_conversions,
            COALESCE(r.awarded, 0) AS referral_weight,
            e.entry_count AS total_weight
        FROM entries e
        LEFT JOIN (
            SELECT referrer_entry_id,
                   COUNT(*) AS conversions,
                   SUM(bonus_entries_awarded) AS awarded
            FROM referrals
            WHERE giveaway_id = ? AND referred_entry_id IS NOT NULL
            GROUP BY referrer_entry_id
        ) r ON r.referrer_entry_id = e.id
        WHERE e.giveaway_id = ? AND e.deleted_at IS NULL
        ORDER BY e.entry_count DESC, e.created_at ASC
    `
	var rows []EntryWeightRow
	err := s.DB.Raw(query, giveaway.BonusEntryCount, giveaway.ID, giveaway.ID).Scan(&rows).Error
	return rows, err
}
