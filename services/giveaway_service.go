package services

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"giveaway-engine/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gorm.io/gorm"
)

type GiveawayService struct {
	DB *gorm.DB
}

func NewGiveawayService(db *gorm.DB) *GiveawayService {
	return &GiveawayService{DB: db}
}

// CreateGiveaway creates a new giveaway in draft status (Admin only).
func (s *GiveawayService) CreateGiveaway(c *fiber.Ctx) error {
	var req struct {
		Title                  string     `json:"title" validate:"required"`
		Slug                   string     `json:"slug"`
		Description            string     `json:"description"`
		StartTime              time.Time  `json:"start_time" validate:"required"`
		EndTime                time.Time  `json:"end_time" validate:"required"`
		PublishSchedule        *time.Time `json:"publish_schedule"`
		NumWinners             int        `json:"num_winners"`
		AlternateCount         int        `json:"alternate_count"`
		AlternateSelectionMode string     `json:"alternate_selection_mode"`
		PrizeValue             float64    `json:"prize_value"`
		RequireW9              bool       `json:"require_w9"`
		W9Threshold            *float64   `json:"w9_threshold"`
		ClaimWindowDays        int        `json:"claim_window_days"`
		RestrictedStates       string     `json:"restricted_states"`
		ContactPolicy          string     `json:"contact_policy"`
		DedupePolicy           string     `json:"dedupe_policy"`
		ReferralEnabled        bool       `json:"referral_enabled"`
		ReferralBonusEntries   int        `json:"referral_bonus_entries"`
		MaxReferralBonus       int        `json:"max_referral_bonus"`
		MaxReferralsPerIP      int        `json:"max_referrals_per_ip"`
		BonusEnabled           bool       `json:"bonus_enabled"`
		BonusEntryCount        int        `json:"bonus_entry_count"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
	}

	if req.Title == "" {
		return c.Status(400).JSON(fiber.Map{"error": "title is required"})
	}
	if req.StartTime.IsZero() || req.EndTime.IsZero() {
		return c.Status(400).JSON(fiber.Map{"error": "start_time and end_time are required"})
	}
	if !req.EndTime.After(req.StartTime) {
		return c.Status(400).JSON(fiber.Map{"error": "end_time must be after start_time"})
	}
	if req.NumWinners < 1 {
		req.NumWinners = 1
	}
	if req.AlternateCount < 0 {
		req.AlternateCount = 0
	}

	mode := models.AlternateModeAuto
	if req.AlternateSelectionMode != "" {
		mode = models.AlternateMode(req.AlternateSelectionMode)
		if mode != models.AlternateModeAuto && mode != models.AlternateModeManual {
			return c.Status(400).JSON(fiber.Map{"error": "alternate_selection_mode must be 'auto' or 'manual'"})
		}
	}

	contactPolicy := models.ContactPolicyEither
	if req.ContactPolicy != "" {
		contactPolicy = models.ContactPolicy(req.ContactPolicy)
		switch contactPolicy {
		case models.ContactPolicyEmail, models.ContactPolicyPhone, models.ContactPolicyEither:
		default:
			return c.Status(400).JSON(fiber.Map{"error": "contact_policy must be 'email', 'phone', or 'either'"})
		}
	}

	dedupePolicy := models.DedupePolicyStrict
	if req.DedupePolicy != "" {
		dedupePolicy = models.DedupePolicy(req.DedupePolicy)
		if dedupePolicy != models.DedupePolicyStrict && dedupePolicy != models.DedupePolicyPerChannel {
			return c.Status(400).JSON(fiber.Map{"error": "dedupe_policy must be 'strict' or 'per_channel'"})
		}
	}

	giveawaySlug := req.Slug
	if giveawaySlug == "" {
		giveawaySlug = slug.Make(req.Title)
	} else {
		giveawaySlug = slug.Make(giveawaySlug)
	}
	// Slug collisions get a short suffix rather than an error; admins rarely care.
	var slugCount int64
	s.DB.Model(&models.Giveaway{}).Where("slug = ?", giveawaySlug).Count(&slugCount)
	if slugCount > 0 {
		giveawaySlug = fmt.Sprintf("%s-%s", giveawaySlug, uuid.NewString()[:8])
	}

	claimWindow := req.ClaimWindowDays
	if claimWindow <= 0 {
		claimWindow = 7
	}
	w9Threshold := 600.0
	if req.W9Threshold != nil {
		w9Threshold = *req.W9Threshold
	}
	referralBonus := req.ReferralBonusEntries
	if referralBonus <= 0 {
		referralBonus = 1
	}
	bonusCount := req.BonusEntryCount
	if bonusCount <= 0 {
		bonusCount = 1
	}

	giveaway := &models.Giveaway{
		ID:                     uuid.NewString(),
		Title:                  req.Title,
		Slug:                   giveawaySlug,
		Description:            req.Description,
		StartTime:              req.StartTime,
		EndTime:                req.EndTime,
		PublishSchedule:        req.PublishSchedule,
		Status:                 models.GiveawayStatusDraft,
		NumWinners:             req.NumWinners,
		AlternateCount:         req.AlternateCount,
		AlternateSelectionMode: mode,
		PrizeValue:             req.PrizeValue,
		RequireW9:              req.RequireW9,
		W9Threshold:            w9Threshold,
		ClaimWindowDays:        claimWindow,
		RestrictedStates:       strings.ToUpper(strings.ReplaceAll(req.RestrictedStates, " ", "")),
		ContactPolicy:          contactPolicy,
		DedupePolicy:           dedupePolicy,
		ReferralEnabled:        req.ReferralEnabled,
		ReferralBonusEntries:   referralBonus,
		MaxReferralBonus:       req.MaxReferralBonus,
		MaxReferralsPerIP:      req.MaxReferralsPerIP,
		BonusEnabled:           req.BonusEnabled,
		BonusEntryCount:        bonusCount,
	}
	if giveaway.MaxReferralBonus <= 0 {
		giveaway.MaxReferralBonus = 10
	}
	if giveaway.MaxReferralsPerIP <= 0 {
		giveaway.MaxReferralsPerIP = 5
	}

	if err := s.DB.Create(giveaway).Error; err != nil {
		log.Printf("DB Error creating giveaway: %v", err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to create giveaway"})
	}
	return c.Status(201).JSON(giveaway)
}

// GetAllGiveaways returns the admin list with entry/winner counts.
func (s *GiveawayService) GetAllGiveaways(c *fiber.Ctx) error {
	type GiveawayMini struct {
		ID                string                `json:"id"`
		Title             string                `json:"title"`
		Slug              string                `json:"slug"`
		Status            models.GiveawayStatus `json:"status"`
		StartTime         time.Time             `json:"start_time"`
		EndTime           time.Time             `json:"end_time"`
		NumWinners        int                   `json:"num_winners"`
		AlternateCount    int                   `json:"alternate_count"`
		WinnerSelected    bool                  `json:"winner_selected"`
		PrizeValue        float64               `json:"prize_value"`
		EntryCount        int64                 `json:"entry_count"`
		ValidEntryCount   int64                 `json:"valid_entry_count"`
		TotalEntryWeight  int64                 `json:"total_entry_weight"`
		WinnerCount       int64                 `json:"winner_count"`
		CreatedAt         time.Time             `json:"created_at"`
		UpdatedAt         time.Time             `json:"updated_at"`
	}
	var giveaways []GiveawayMini
	query := `
        SELECT
            g.id,
            g.title,
            g.slug,
            g.status,
            g.start_time,
            g.end_time,
            g.num_winners,
            g.alternate_count,
            g.winner_selected,
            g.prize_value,
            g.created_at,
            g.updated_at,
            COUNT(e.id) AS entry_count,
            COUNT(e.id) FILTER (WHERE e.is_valid) AS valid_entry_count,
            COALESCE(SUM(e.entry_count) FILTER (WHERE e.is_valid), 0) AS total_entry_weight,
            (SELECT COUNT(*) FROM winners w WHERE w.giveaway_id = g.id) AS winner_count
        FROM giveaways g
        LEFT JOIN entries e ON e.giveaway_id = g.id AND e.deleted_at IS NULL
        WHERE g.deleted_at IS NULL
        GROUP BY g.id
        ORDER BY g.created_at DESC
    `
	if err := s.DB.Raw(query).Scan(&giveaways).Error; err != nil {
		log.Printf("ERROR fetching giveaway list: %v", err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to fetch giveaways"})
	}
	return c.JSON(giveaways)
}

// GetGiveawayByID returns the full giveaway row (Admin only).
func (s *GiveawayService) GetGiveawayByID(c *fiber.Ctx) error {
	id := c.Params("id")
	var giveaway models.Giveaway
	if err := s.DB.First(&giveaway, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "giveaway not found"})
		}
		log.Printf("ERROR fetching giveaway %s: %v", id, err)
		return c.Status(500).JSON(fiber.Map{"error": "DB error"})
	}
	return c.JSON(giveaway)
}

// GetActiveGiveawayBySlug is the public lookup used by entry forms. Drafts and
// cancelled giveaways are invisible; ended ones are returned so the page can
// show a "closed" state.
func (s *GiveawayService) GetActiveGiveawayBySlug(c *fiber.Ctx) error {
	giveawaySlug := c.Params("slug")
	var giveaway models.Giveaway
	err := s.DB.Where("slug = ? AND status IN ?", giveawaySlug,
		[]models.GiveawayStatus{models.GiveawayStatusActive, models.GiveawayStatusEnded}).
		First(&giveaway).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "giveaway not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "DB error"})
	}

	// Public shape: no compliance or abuse-cap config.
	return c.JSON(fiber.Map{
		"id":               giveaway.ID,
		"title":            giveaway.Title,
		"slug":             giveaway.Slug,
		"description":      giveaway.Description,
		"start_time":       giveaway.StartTime,
		"end_time":         giveaway.EndTime,
		"status":           giveaway.Status,
		"num_winners":      giveaway.NumWinners,
		"contact_policy":   giveaway.ContactPolicy,
		"referral_enabled": giveaway.ReferralEnabled,
		"bonus_enabled":    giveaway.BonusEnabled,
		"open":             giveaway.IsOpenAt(time.Now()),
	})
}

// UpdateGiveaway updates config fields (Admin only). Selection-affecting fields
// are frozen once winners are selected.
func (s *GiveawayService) UpdateGiveaway(c *fiber.Ctx) error {
	id := c.Params("id")
	var existing models.Giveaway
	if err := s.DB.First(&existing, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "giveaway not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "DB error"})
	}

	var req struct {
		Title                  *string    `json:"title"`
		Description            *string    `json:"description"`
		StartTime              *time.Time `json:"start_time"`
		EndTime                *time.Time `json:"end_time"`
		PublishSchedule        *time.Time `json:"publish_schedule"`
		NumWinners             *int       `json:"num_winners"`
		AlternateCount         *int       `json:"alternate_count"`
		AlternateSelectionMode *string    `json:"alternate_selection_mode"`
		PrizeValue             *float64   `json:"prize_value"`
		RequireW9              *bool      `json:"require_w9"`
		W9Threshold            *float64   `json:"w9_threshold"`
		ClaimWindowDays        *int       `json:"claim_window_days"`
		RestrictedStates       *string    `json:"restricted_states"`
		ContactPolicy          *string    `json:"contact_policy"`
		DedupePolicy           *string    `json:"dedupe_policy"`
		ReferralEnabled        *bool      `json:"referral_enabled"`
		ReferralBonusEntries   *int       `json:"referral_bonus_entries"`
		MaxReferralBonus       *int       `json:"max_referral_bonus"`
		MaxReferralsPerIP      *int       `json:"max_referrals_per_ip"`
		BonusEnabled           *bool      `json:"bonus_enabled"`
		BonusEntryCount        *int       `json:"bonus_entry_count"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON"})
	}

	if existing.WinnerSelected {
		if req.NumWinners != nil || req.AlternateCount != nil || req.AlternateSelectionMode != nil {
			return c.Status(409).JSON(fiber.Map{"error": "selection config is frozen after winners are selected"})
		}
	}

	if req.Title != nil {
		existing.Title = *req.Title
	}
	if req.Description != nil {
		existing.Description = *req.Description
	}
	if req.StartTime != nil {
		existing.StartTime = *req.StartTime
	}
	if req.EndTime != nil {
		existing.EndTime = *req.EndTime
	}
	if !existing.EndTime.After(existing.StartTime) {
		return c.Status(400).JSON(fiber.Map{"error": "end_time must be after start_time"})
	}
	if req.PublishSchedule != nil {
		existing.PublishSchedule = req.PublishSchedule
	}
	if req.NumWinners != nil && *req.NumWinners >= 1 {
		existing.NumWinners = *req.NumWinners
	}
	if req.AlternateCount != nil && *req.AlternateCount >= 0 {
		existing.AlternateCount = *req.AlternateCount
	}
	if req.AlternateSelectionMode != nil {
		mode := models.AlternateMode(*req.AlternateSelectionMode)
		if mode != models.AlternateModeAuto && mode != models.AlternateModeManual {
			return c.Status(400).JSON(fiber.Map{"error": "alternate_selection_mode must be 'auto' or 'manual'"})
		}
		existing.AlternateSelectionMode = mode
	}
	if req.PrizeValue != nil {
		existing.PrizeValue = *req.PrizeValue
	}
	if req.RequireW9 != nil {
		existing.RequireW9 = *req.RequireW9
	}
	if req.W9Threshold != nil {
		existing.W9Threshold = *req.W9Threshold
	}
	if req.ClaimWindowDays != nil && *req.ClaimWindowDays > 0 {
		existing.ClaimWindowDays = *req.ClaimWindowDays
	}
	if req.RestrictedStates != nil {
		existing.RestrictedStates = strings.ToUpper(strings.ReplaceAll(*req.RestrictedStates, " ", ""))
	}
	if req.ContactPolicy != nil {
		existing.ContactPolicy = models.ContactPolicy(*req.ContactPolicy)
	}
	if req.DedupePolicy != nil {
		existing.DedupePolicy = models.DedupePolicy(*req.DedupePolicy)
	}
	if req.ReferralEnabled != nil {
		existing.ReferralEnabled = *req.ReferralEnabled
	}
	if req.ReferralBonusEntries != nil && *req.ReferralBonusEntries > 0 {
		existing.ReferralBonusEntries = *req.ReferralBonusEntries
	}
	if req.MaxReferralBonus != nil && *req.MaxReferralBonus > 0 {
		existing.MaxReferralBonus = *req.MaxReferralBonus
	}
	if req.MaxReferralsPerIP != nil && *req.MaxReferralsPerIP > 0 {
		existing.MaxReferralsPerIP = *req.MaxReferralsPerIP
	}
	if req.BonusEnabled != nil {
		existing.BonusEnabled = *req.BonusEnabled
	}
	if req.BonusEntryCount != nil && *req.BonusEntryCount > 0 {
		existing.BonusEntryCount = *req.BonusEntryCount
	}

	if err := s.DB.Save(&existing).Error; err != nil {
		log.Printf("DB Error updating giveaway %s: %v", id, err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to update giveaway"})
	}
	return c.JSON(existing)
}

// UpdateGiveawayStatus activates or cancels a giveaway (Admin only). "ended" is
// never set here — it is written atomically by winner selection.
func (s *GiveawayService) UpdateGiveawayStatus(c *fiber.Ctx) error {
	id := c.Params("id")
	var req struct {
		Status string `json:"status" validate:"oneof=active cancelled draft"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON"})
	}

	target := models.GiveawayStatus(req.Status)
	switch target {
	case models.GiveawayStatusActive, models.GiveawayStatusCancelled, models.GiveawayStatusDraft:
	default:
		return c.Status(400).JSON(fiber.Map{"error": "status must be 'active', 'cancelled', or 'draft'"})
	}

	var giveaway models.Giveaway
	if err := s.DB.First(&giveaway, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "giveaway not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "DB error"})
	}
	if giveaway.WinnerSelected {
		return c.Status(409).JSON(fiber.Map{"error": "status is frozen after winners are selected"})
	}
	if giveaway.Status == models.GiveawayStatusCancelled && target != models.GiveawayStatusCancelled {
		return c.Status(409).JSON(fiber.Map{"error": "cancelled giveaways cannot be reopened"})
	}

	updates := map[string]interface{}{"status": target}
	if target == models.GiveawayStatusActive {
		updates["publish_schedule"] = nil
	}
	result := s.DB.Model(&models.Giveaway{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return c.Status(500).JSON(fiber.Map{"error": "DB update failed"})
	}
	log.Printf("[GIVEAWAY] %s status -> %s (admin %s)", id, target, adminIDFromCtx(c))

	s.DB.First(&giveaway, "id = ?", id)
	return c.JSON(giveaway)
}

// adminIDFromCtx reads the audit identity without importing the middleware package.
func adminIDFromCtx(c *fiber.Ctx) string {
	if id, ok := c.Locals("admin_id").(string); ok {
		return id
	}
	return "unknown"
}
