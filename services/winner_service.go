package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"giveaway-engine/models"
	"giveaway-engine/utils"
	"giveaway-engine/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type WinnerService struct {
	DB           *gorm.DB
	Notifier     workers.Notifier
	ClaimBaseURL string
}

func NewWinnerService(db *gorm.DB, notifier workers.Notifier) *WinnerService {
	baseURL := os.Getenv("CLAIM_BASE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:3000/claim"
	}
	return &WinnerService{DB: db, Notifier: notifier, ClaimBaseURL: strings.TrimRight(baseURL, "/")}
}

// SelectWinners handles POST /admin/giveaways/:id/winners/select.
func (s *WinnerService) SelectWinners(c *fiber.Ctx) error {
	giveawayID := c.Params("id")

	winners, err := s.selectWinners(giveawayID)
	if err != nil {
		return failJSON(c, err)
	}

	log.Printf("[SELECT] giveaway=%s winners=%d admin=%s", giveawayID, len(winners), adminIDFromCtx(c))

	// Primary winners are notified out of band; a slow or failing notifier
	// never holds the selection response hostage.
	go s.notifyPrimaries(winners)

	primaries := 0
	for _, w := range winners {
		if w.WinnerType == models.WinnerTypePrimary {
			primaries++
		}
	}
	return c.Status(201).JSON(fiber.Map{
		"message":    "winners selected",
		"primaries":  primaries,
		"alternates": len(winners) - primaries,
		"winners":    winners,
	})
}

// selectWinners draws winners and alternates from the valid-entry pool.
//
// The winner_selected flag flip and the winner inserts commit as one
// transaction; the guarded UPDATE is the strict mutual exclusion point, so a
// concurrent call loses the compare-and-set and gets ErrAlreadySelected.
func (s *WinnerService) selectWinners(giveawayID string) ([]models.Winner, error) {
	var giveaway models.Giveaway
	if err := s.DB.First(&giveaway, "id = ?", giveawayID).Error; err != nil {
		return nil, err
	}
	if giveaway.WinnerSelected {
		return nil, ErrAlreadySelected
	}

	var entries []models.Entry
	if err := s.DB.Where("giveaway_id = ? AND is_valid = ?", giveawayID, true).
		Order("created_at ASC").Find(&entries).Error; err != nil {
		return nil, err
	}
	if len(entries) < giveaway.NumWinners {
		return nil, fmt.Errorf("%w: have %d valid entries, need %d", ErrInsufficientEntries, len(entries), giveaway.NumWinners)
	}

	ids := make([]string, len(entries))
	weights := make([]int, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
		w := e.EntryCount
		if w < 1 {
			w = 1
		}
		weights[i] = w
	}
	pool, err := utils.NewWeightedPool(ids, weights)
	if err != nil {
		return nil, err
	}

	k := giveaway.NumWinners + giveaway.AlternateCount
	if k > len(entries) {
		k = len(entries)
	}
	drawn, err := pool.DrawWithoutReplacement(k)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	deadline := now.Add(time.Duration(giveaway.ClaimWindowDays) * 24 * time.Hour)
	winners := make([]models.Winner, 0, len(drawn))
	for i, entryID := range drawn {
		token, err := utils.NewClaimToken()
		if err != nil {
			return nil, err
		}
		w := models.Winner{
			ID:            uuid.NewString(),
			GiveawayID:    giveawayID,
			EntryID:       entryID,
			WinnerType:    models.WinnerTypePrimary,
			Status:        models.WinnerStatusPending,
			ClaimToken:    token,
			ClaimDeadline: deadline,
		}
		if i >= giveaway.NumWinners {
			order := i - giveaway.NumWinners + 1
			w.WinnerType = models.WinnerTypeAlternate
			w.AlternateOrder = &order
		}
		winners = append(winners, w)
	}

	err = s.DB.Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Giveaway{}).
			Where("id = ? AND winner_selected = ?", giveawayID, false).
			Updates(map[string]interface{}{
				"winner_selected":     true,
				"winners_selected_at": now,
				"status":              models.GiveawayStatusEnded,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrAlreadySelected
		}
		for i := range winners {
			if err := tx.Create(&winners[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return winners, nil
}

func (s *WinnerService) notifyPrimaries(winners []models.Winner) {
	for _, w := range winners {
		if w.WinnerType != models.WinnerTypePrimary {
			continue
		}
		if _, err := s.notifyWinner(w.ID); err != nil {
			log.Printf("[NOTIFY] winner %s initial notification failed: %v", w.ID, err)
		}
	}
}

// ListWinners handles GET /admin/giveaways/:id/winners.
func (s *WinnerService) ListWinners(c *fiber.Ctx) error {
	giveawayID := c.Params("id")
	var winners []models.Winner
	err := s.DB.Preload("Entry").
		Where("giveaway_id = ?", giveawayID).
		Order("winner_type DESC, alternate_order ASC, created_at ASC").
		Find(&winners).Error
	if err != nil {
		log.Printf("ERROR fetching winners for %s: %v", giveawayID, err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to fetch winners"})
	}
	return c.JSON(winners)
}

// UpdateWinner handles PATCH /admin/winners/:id with an action verb. Unknown
// actions are an error, never a silent no-op.
func (s *WinnerService) UpdateWinner(c *fiber.Ctx) error {
	winnerID := c.Params("id")
	var req struct {
		Action string `json:"action" validate:"oneof=notify forfeit disqualify promote"`
		Reason string `json:"reason"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON"})
	}

	adminID := adminIDFromCtx(c)
	switch req.Action {
	case "notify":
		results, err := s.notifyWinner(winnerID)
		if err != nil {
			return failJSON(c, err)
		}
		resp := fiber.Map{"message": "notification sent", "channels": results}
		for _, r := range results {
			if !r.Success {
				resp["warning"] = "one or more notification channels failed"
			}
		}
		log.Printf("[AUDIT] winner=%s action=notify admin=%s at=%s", winnerID, adminID, time.Now().Format(time.RFC3339))
		return c.JSON(resp)

	case "forfeit", "disqualify":
		if req.Reason == "" {
			return c.Status(400).JSON(fiber.Map{"error": "reason is required"})
		}
		target := models.WinnerStatusForfeited
		if req.Action == "disqualify" {
			target = models.WinnerStatusDisqualified
		}
		winner, promoted, err := s.terminate(winnerID, target, req.Reason)
		if err != nil {
			return failJSON(c, err)
		}
		log.Printf("[AUDIT] winner=%s action=%s reason=%q admin=%s at=%s",
			winnerID, req.Action, req.Reason, adminID, time.Now().Format(time.RFC3339))
		resp := fiber.Map{"message": fmt.Sprintf("winner %s", target), "winner": winner}
		if promoted != nil {
			resp["promoted_alternate"] = promoted
		}
		return c.JSON(resp)

	case "promote":
		winner, err := s.promote(winnerID)
		if err != nil {
			return failJSON(c, err)
		}
		log.Printf("[AUDIT] winner=%s action=promote admin=%s at=%s", winnerID, adminID, time.Now().Format(time.RFC3339))
		go func() {
			if _, err := s.notifyWinner(winner.ID); err != nil {
				log.Printf("[NOTIFY] promoted winner %s notification failed: %v", winner.ID, err)
			}
		}()
		return c.JSON(fiber.Map{"message": "alternate promoted to primary", "winner": winner})

	default:
		return failJSON(c, fmt.Errorf("%w: %q", ErrInvalidAction, req.Action))
	}
}

// notifyWinner sends (or re-sends) the claim link. Re-sends are idempotent:
// the claim token is never regenerated, so links from earlier notifications
// stay valid. Channel failures are recorded, not fatal.
func (s *WinnerService) notifyWinner(winnerID string) ([]workers.ChannelResult, error) {
	var winner models.Winner
	if err := s.DB.First(&winner, "id = ?", winnerID).Error; err != nil {
		return nil, err
	}
	if winner.Status != models.WinnerStatusPending && winner.Status != models.WinnerStatusNotified {
		return nil, fmt.Errorf("%w: cannot notify a %s winner", ErrNotEligible, winner.Status)
	}

	var entry models.Entry
	if err := s.DB.First(&entry, "id = ?", winner.EntryID).Error; err != nil {
		return nil, err
	}
	var giveaway models.Giveaway
	if err := s.DB.First(&giveaway, "id = ?", winner.GiveawayID).Error; err != nil {
		return nil, err
	}

	channels := []string{"email"}
	if entry.SMSOptIn && entry.Phone != "" {
		channels = append(channels, "sms")
	}

	claimURL := fmt.Sprintf("%s/%s", s.ClaimBaseURL, winner.ClaimToken)
	results := s.Notifier.NotifyWinner(context.Background(), &entry, &giveaway, claimURL, winner.ClaimDeadline, channels)

	var succeeded []string
	for _, r := range results {
		if r.Success {
			succeeded = append(succeeded, r.Channel)
		} else {
			log.Printf("[NOTIFY] winner=%s channel=%s failed: %s", winner.ID, r.Channel, r.Error)
		}
	}

	now := time.Now()
	updates := map[string]interface{}{
		"status":      models.WinnerStatusNotified,
		"notified_at": now,
	}
	if len(succeeded) > 0 {
		updates["notified_channels"] = strings.Join(succeeded, ",")
	}
	if err := s.DB.Model(&models.Winner{}).Where("id = ?", winner.ID).Updates(updates).Error; err != nil {
		return results, err
	}
	return results, nil
}

// terminate forfeits or disqualifies a winner. When the giveaway auto-promotes
// and the target was primary, the lowest-order pending alternate becomes
// primary inside the same transaction.
func (s *WinnerService) terminate(winnerID string, target models.WinnerStatus, reason string) (*models.Winner, *models.Winner, error) {
	var winner models.Winner
	var promoted *models.Winner
	var giveaway models.Giveaway

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&winner, "id = ?", winnerID).Error; err != nil {
			return err
		}
		if winner.Status == models.WinnerStatusForfeited || winner.Status == models.WinnerStatusDisqualified {
			return fmt.Errorf("%w: winner is already %s", ErrNotEligible, winner.Status)
		}
		if winner.Status == models.WinnerStatusClaimed && target == models.WinnerStatusForfeited {
			return fmt.Errorf("%w: a claimed prize cannot be forfeited", ErrNotEligible)
		}
		if err := tx.First(&giveaway, "id = ?", winner.GiveawayID).Error; err != nil {
			return err
		}

		if err := tx.Model(&models.Winner{}).Where("id = ?", winnerID).Updates(map[string]interface{}{
			"status":        target,
			"status_reason": reason,
		}).Error; err != nil {
			return err
		}
		winner.Status = target
		winner.StatusReason = reason

		wasPrimary := winner.WinnerType == models.WinnerTypePrimary
		if wasPrimary && giveaway.AlternateSelectionMode == models.AlternateModeAuto {
			var next models.Winner
			err := tx.Where("giveaway_id = ? AND winner_type = ? AND status IN ?",
				winner.GiveawayID, models.WinnerTypeAlternate,
				[]models.WinnerStatus{models.WinnerStatusPending, models.WinnerStatusNotified}).
				Order("alternate_order ASC").First(&next).Error
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					log.Printf("[CLAIM] giveaway %s has no alternate left to promote", winner.GiveawayID)
					return nil
				}
				return err
			}
			// A fresh claim window: the selection-time deadline may already be
			// close or past by the time a primary drops out.
			deadline := time.Now().Add(time.Duration(giveaway.ClaimWindowDays) * 24 * time.Hour)
			if err := tx.Model(&models.Winner{}).Where("id = ?", next.ID).Updates(map[string]interface{}{
				"winner_type":     models.WinnerTypePrimary,
				"alternate_order": nil,
				"claim_deadline":  deadline,
			}).Error; err != nil {
				return err
			}
			next.WinnerType = models.WinnerTypePrimary
			next.AlternateOrder = nil
			next.ClaimDeadline = deadline
			promoted = &next
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	if promoted != nil {
		promotedID := promoted.ID
		go func() {
			if _, err := s.notifyWinner(promotedID); err != nil {
				log.Printf("[NOTIFY] promoted winner %s notification failed: %v", promotedID, err)
			}
		}()
	}
	return &winner, promoted, nil
}

// overdueClaims lists primary winners whose claim window lapsed without a
// claim. The deadline is a business expiry checked on submission; expiry never
// forfeits by itself — that stays an admin action. Alternates carry a deadline
// from selection but are not overdue until promoted.
func (s *WinnerService) overdueClaims(now time.Time) ([]models.Winner, error) {
	var overdue []models.Winner
	err := s.DB.Where("winner_type = ? AND status IN ? AND claim_deadline < ?",
		models.WinnerTypePrimary,
		[]models.WinnerStatus{models.WinnerStatusPending, models.WinnerStatusNotified}, now).
		Order("claim_deadline ASC").Find(&overdue).Error
	return overdue, err
}

// promote manually converts an alternate to primary.
func (s *WinnerService) promote(winnerID string) (*models.Winner, error) {
	var winner models.Winner
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&winner, "id = ?", winnerID).Error; err != nil {
			return err
		}
		if winner.WinnerType != models.WinnerTypeAlternate {
			return ErrNotAlternate
		}
		if winner.Status.IsTerminal() {
			return fmt.Errorf("%w: winner is already %s", ErrNotEligible, winner.Status)
		}
		var giveaway models.Giveaway
		if err := tx.First(&giveaway, "id = ?", winner.GiveawayID).Error; err != nil {
			return err
		}
		deadline := time.Now().Add(time.Duration(giveaway.ClaimWindowDays) * 24 * time.Hour)
		if err := tx.Model(&models.Winner{}).Where("id = ?", winnerID).Updates(map[string]interface{}{
			"winner_type":     models.WinnerTypePrimary,
			"alternate_order": nil,
			"claim_deadline":  deadline,
		}).Error; err != nil {
			return err
		}
		winner.WinnerType = models.WinnerTypePrimary
		winner.AlternateOrder = nil
		winner.ClaimDeadline = deadline
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &winner, nil
}
