package services

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"giveaway-engine/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReferralCodeIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	svc := NewReferralService(db, noop())
	g := seedGiveaway(t, db, func(g *models.Giveaway) { g.ReferralEnabled = true })
	e := seedEntry(t, db, g, "a@example.com", "")

	first, err := svc.getOrCreateCode(g, e.ID)
	require.NoError(t, err)
	assert.Len(t, first, 8)

	second, err := svc.getOrCreateCode(g, e.ID)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	var rows int64
	require.NoError(t, db.Model(&models.Referral{}).
		Where("giveaway_id = ? AND referrer_entry_id = ?", g.ID, e.ID).
		Count(&rows).Error)
	assert.EqualValues(t, 1, rows, "repeat calls must not mint extra rows")
}

func TestConvertAwardsBonus(t *testing.T) {
	db := openTestDB(t)
	svc := NewReferralService(db, noop())
	g := seedGiveaway(t, db, func(g *models.Giveaway) {
		g.ReferralEnabled = true
		g.ReferralBonusEntries = 3
	})
	referrer := seedEntry(t, db, g, "a@example.com", "")
	friend := seedEntry(t, db, g, "b@example.com", "")
	code, err := svc.getOrCreateCode(g, referrer.ID)
	require.NoError(t, err)

	conv, err := svc.convert(g, code, friend.ID, "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, 3, conv.BonusEntriesAwarded)
	require.NotNil(t, conv.ReferredEntryID)
	assert.Equal(t, friend.ID, *conv.ReferredEntryID)
	assert.NotNil(t, conv.ConvertedAt)

	assert.Equal(t, 4, reloadEntry(t, db, referrer.ID).EntryCount)
}

func TestConvertRejectsSelfReferral(t *testing.T) {
	db := openTestDB(t)
	svc := NewReferralService(db, noop())
	g := seedGiveaway(t, db, func(g *models.Giveaway) {
		g.ReferralEnabled = true
		// per_channel dedupe lets the same person hold two entries
		g.DedupePolicy = models.DedupePolicyPerChannel
	})
	referrer := seedEntry(t, db, g, "a@example.com", "5551234567")
	code, err := svc.getOrCreateCode(g, referrer.ID)
	require.NoError(t, err)

	t.Run("own entry id", func(t *testing.T) {
		_, err := svc.convert(g, code, referrer.ID, "")
		assert.Error(t, err)
	})

	t.Run("second entry with a matching contact", func(t *testing.T) {
		alias := seedEntry(t, db, g, "", "5551234567")
		_, err := svc.convert(g, code, alias.ID, "")
		assert.Error(t, err)
		assert.Equal(t, 1, reloadEntry(t, db, referrer.ID).EntryCount)
	})
}

func TestConvertUnknownCode(t *testing.T) {
	db := openTestDB(t)
	svc := NewReferralService(db, noop())
	g := seedGiveaway(t, db, func(g *models.Giveaway) { g.ReferralEnabled = true })
	friend := seedEntry(t, db, g, "b@example.com", "")

	_, err := svc.convert(g, "no-such-code", friend.ID, "")
	assert.Error(t, err)
}

func TestConvertEnforcesReferrerCap(t *testing.T) {
	db := openTestDB(t)
	svc := NewReferralService(db, noop())
	g := seedGiveaway(t, db, func(g *models.Giveaway) {
		g.ReferralEnabled = true
		g.MaxReferralBonus = 2
	})
	referrer := seedEntry(t, db, g, "a@example.com", "")
	code, err := svc.getOrCreateCode(g, referrer.ID)
	require.NoError(t, err)

	for i, email := range []string{"b@example.com", "c@example.com"} {
		friend := seedEntry(t, db, g, email, "")
		_, err := svc.convert(g, code, friend.ID, fmt.Sprintf("10.0.0.%d", i+1))
		require.NoError(t, err)
	}

	over := seedEntry(t, db, g, "d@example.com", "")
	_, err = svc.convert(g, code, over.ID, "10.0.0.9")
	assert.Error(t, err)
	assert.Equal(t, 3, reloadEntry(t, db, referrer.ID).EntryCount, "capped conversion must award nothing")
}

func TestConvertConcurrentStopsAtCap(t *testing.T) {
	db := openTestDB(t)
	svc := NewReferralService(db, noop())
	g := seedGiveaway(t, db, func(g *models.Giveaway) {
		g.ReferralEnabled = true
		g.MaxReferralBonus = 2
	})
	referrer := seedEntry(t, db, g, "a@example.com", "")
	code, err := svc.getOrCreateCode(g, referrer.ID)
	require.NoError(t, err)

	// Five redemptions race for two cap slots. The referrer row lock inside
	// convert serializes the count-then-insert, so exactly cap conversions
	// land and the credit matches.
	const racers = 5
	errs := make([]error, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		friend := seedEntry(t, db, g, fmt.Sprintf("friend%d@example.com", i), "")
		wg.Add(1)
		go func(i int, friendID string) {
			defer wg.Done()
			_, errs[i] = svc.convert(g, code, friendID, fmt.Sprintf("10.0.0.%d", i+1))
		}(i, friend.ID)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		}
	}
	assert.Equal(t, 2, succeeded)

	var conversions int64
	require.NoError(t, db.Model(&models.Referral{}).
		Where("giveaway_id = ? AND referrer_entry_id = ? AND referred_entry_id IS NOT NULL", g.ID, referrer.ID).
		Count(&conversions).Error)
	assert.EqualValues(t, 2, conversions, "conversions must never exceed MaxReferralBonus")
	assert.Equal(t, 3, reloadEntry(t, db, referrer.ID).EntryCount)
}

func TestInvitationRowIsUniquePerEntrant(t *testing.T) {
	db := openTestDB(t)
	svc := NewReferralService(db, noop())
	g := seedGiveaway(t, db, func(g *models.Giveaway) { g.ReferralEnabled = true })
	e := seedEntry(t, db, g, "a@example.com", "")

	_, err := svc.getOrCreateCode(g, e.ID)
	require.NoError(t, err)

	// A second dangling invitation for the same entrant violates the partial
	// unique index; only conversion rows may share (giveaway, referrer).
	dup := models.Referral{
		ID:              uuid.NewString(),
		GiveawayID:      g.ID,
		ReferrerEntryID: e.ID,
		Code:            "aaaabbbb",
	}
	assert.Error(t, db.Create(&dup).Error)

	friend := seedEntry(t, db, g, "b@example.com", "")
	code, err := svc.getOrCreateCode(g, e.ID)
	require.NoError(t, err)
	_, err = svc.convert(g, code, friend.ID, "")
	assert.NoError(t, err, "conversion rows are exempt from the invitation index")
}

func TestConvertEnforcesIPCap(t *testing.T) {
	db := openTestDB(t)
	svc := NewReferralService(db, noop())
	g := seedGiveaway(t, db, func(g *models.Giveaway) {
		g.ReferralEnabled = true
		g.MaxReferralsPerIP = 1
	})
	referrer := seedEntry(t, db, g, "a@example.com", "")
	code, err := svc.getOrCreateCode(g, referrer.ID)
	require.NoError(t, err)

	first := seedEntry(t, db, g, "b@example.com", "")
	_, err = svc.convert(g, code, first.ID, "203.0.113.7")
	require.NoError(t, err)

	second := seedEntry(t, db, g, "c@example.com", "")
	_, err = svc.convert(g, code, second.ID, "203.0.113.7")
	assert.Error(t, err)

	// A different address is still fine.
	third := seedEntry(t, db, g, "d@example.com", "")
	_, err = svc.convert(g, code, third.ID, "203.0.113.8")
	assert.NoError(t, err)
}

func TestClaimBonus(t *testing.T) {
	db := openTestDB(t)
	svc := NewReferralService(db, noop())
	g := seedGiveaway(t, db, func(g *models.Giveaway) {
		g.BonusEnabled = true
		g.BonusEntryCount = 2
	})
	e := seedEntry(t, db, g, "a@example.com", "")

	entry, err := svc.claimBonus(e.ID, "(555) 123-4567", models.ContactTypePhone, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 3, entry.EntryCount)
	assert.True(t, entry.BonusClaimed)
	assert.Equal(t, "5551234567", entry.SecondaryContact)

	// Second claim must not stack.
	_, err = svc.claimBonus(e.ID, "5559999999", models.ContactTypePhone, time.Now())
	assert.ErrorIs(t, err, ErrAlreadyClaimed)
	assert.Equal(t, 3, reloadEntry(t, db, e.ID).EntryCount)
}

func TestClaimBonusRejections(t *testing.T) {
	db := openTestDB(t)
	svc := NewReferralService(db, noop())

	t.Run("bonus disabled", func(t *testing.T) {
		g := seedGiveaway(t, db, nil)
		e := seedEntry(t, db, g, "a@example.com", "")
		_, err := svc.claimBonus(e.ID, "5551234567", models.ContactTypePhone, time.Now())
		assert.ErrorIs(t, err, ErrNotEligible)
	})

	t.Run("giveaway closed", func(t *testing.T) {
		g := seedGiveaway(t, db, func(g *models.Giveaway) {
			g.BonusEnabled = true
			g.EndTime = time.Now().Add(-time.Minute)
		})
		e := seedEntry(t, db, g, "a@example.com", "")
		_, err := svc.claimBonus(e.ID, "5551234567", models.ContactTypePhone, time.Now())
		assert.ErrorIs(t, err, ErrNotEligible)
	})

	t.Run("secondary matches primary", func(t *testing.T) {
		g := seedGiveaway(t, db, func(g *models.Giveaway) { g.BonusEnabled = true })
		e := seedEntry(t, db, g, "a@example.com", "")
		_, err := svc.claimBonus(e.ID, "A@Example.com", models.ContactTypeEmail, time.Now())
		assert.ErrorIs(t, err, ErrInvalidContact)
	})

	t.Run("malformed contact", func(t *testing.T) {
		g := seedGiveaway(t, db, func(g *models.Giveaway) { g.BonusEnabled = true })
		e := seedEntry(t, db, g, "a@example.com", "")
		_, err := svc.claimBonus(e.ID, "not-a-phone", models.ContactTypePhone, time.Now())
		assert.ErrorIs(t, err, ErrInvalidContact)
	})
}
