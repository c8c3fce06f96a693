// services/scheduler.go
package services

import (
	"log"
	"time"

	"giveaway-engine/models"

	"github.com/go-co-op/gocron/v2"
)

// StartScheduler runs the background jobs: activating scheduled giveaways and
// sweeping winners whose claim window has lapsed.
func (s *GiveawayService) StartScheduler(winners *WinnerService) {
	sched, _ := gocron.NewScheduler()
	sched.Start()

	// Every minute: activate giveaways whose publish time has arrived
	_, _ = sched.NewJob(
		gocron.DurationJob(1*time.Minute),
		gocron.NewTask(func() {
			var giveaways []models.Giveaway
			now := time.Now()
			err := s.DB.Where("status = ? AND publish_schedule IS NOT NULL AND publish_schedule <= ?",
				models.GiveawayStatusDraft, now).
				Find(&giveaways).Error
			if err != nil {
				log.Printf("[Scheduler] DB error: %v", err)
				return
			}

			for _, g := range giveaways {
				g.Status = models.GiveawayStatusActive
				g.PublishSchedule = nil
				if err := s.DB.Save(&g).Error; err != nil {
					log.Printf("[Scheduler] Failed to activate giveaway %s: %v", g.ID, err)
				} else {
					log.Printf("✅ Auto-activated giveaway: %s", g.Title)
				}
			}
		}),
	)

	// Every 10 minutes: surface primary winners whose claim window lapsed.
	// Forfeiture is an admin decision; the sweep only flags candidates.
	_, _ = sched.NewJob(
		gocron.DurationJob(10*time.Minute),
		gocron.NewTask(func() {
			overdue, err := winners.overdueClaims(time.Now())
			if err != nil {
				log.Printf("[Scheduler] DB error: %v", err)
				return
			}

			for _, w := range overdue {
				log.Printf("[Scheduler] ⏰ Winner %s (giveaway %s) unclaimed past deadline %s — awaiting admin action",
					w.ID, w.GiveawayID, w.ClaimDeadline.Format(time.RFC3339))
			}
		}),
	)
}
