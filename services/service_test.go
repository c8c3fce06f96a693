package services

import (
	"fmt"
	"testing"
	"time"

	"giveaway-engine/models"
	"giveaway-engine/workers"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// openTestDB gives each test an isolated in-memory database. A single
// connection keeps SQLite from returning "database is locked" under the
// concurrency tests.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.Giveaway{},
		&models.Entry{},
		&models.Referral{},
		&models.Winner{},
		&models.PrizeClaim{},
	))
	return db
}

func seedGiveaway(t *testing.T, db *gorm.DB, mut func(*models.Giveaway)) *models.Giveaway {
	t.Helper()
	now := time.Now()
	g := &models.Giveaway{
		ID:                     uuid.NewString(),
		Title:                  "Summer Console Drop",
		Slug:                   "summer-console-drop-" + uuid.NewString()[:8],
		StartTime:              now.Add(-time.Hour),
		EndTime:                now.Add(time.Hour),
		Status:                 models.GiveawayStatusActive,
		NumWinners:             1,
		AlternateSelectionMode: models.AlternateModeAuto,
		ClaimWindowDays:        7,
		W9Threshold:            600,
		ContactPolicy:          models.ContactPolicyEither,
		DedupePolicy:           models.DedupePolicyStrict,
		ReferralBonusEntries:   1,
		MaxReferralBonus:       10,
		MaxReferralsPerIP:      5,
		BonusEntryCount:        1,
	}
	if mut != nil {
		mut(g)
	}
	require.NoError(t, db.Create(g).Error)
	return g
}

func seedEntry(t *testing.T, db *gorm.DB, g *models.Giveaway, email, phone string) *models.Entry {
	t.Helper()
	e := &models.Entry{
		ID:         uuid.NewString(),
		GiveawayID: g.ID,
		FirstName:  "Test",
		LastName:   "Entrant",
		Email:      email,
		Phone:      phone,
		IsValid:    true,
		EntryCount: 1,
		Source:     "web",
	}
	require.NoError(t, db.Create(e).Error)
	return e
}

func reloadEntry(t *testing.T, db *gorm.DB, id string) *models.Entry {
	t.Helper()
	var e models.Entry
	require.NoError(t, db.First(&e, "id = ?", id).Error)
	return &e
}

func noop() workers.Notifier { return workers.NoopNotifier{} }
