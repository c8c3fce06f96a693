package services

import (
	"testing"
	"time"

	"giveaway-engine/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitRejectsClosedGiveaway(t *testing.T) {
	db := openTestDB(t)
	svc := NewEntryService(db, noop())

	t.Run("draft status", func(t *testing.T) {
		g := seedGiveaway(t, db, func(g *models.Giveaway) {
			g.Status = models.GiveawayStatusDraft
		})
		_, err := svc.submit(g, entryInput{Email: "a@example.com"}, time.Now())
		assert.ErrorIs(t, err, ErrGiveawayClosed)
	})

	t.Run("before start", func(t *testing.T) {
		g := seedGiveaway(t, db, func(g *models.Giveaway) {
			g.StartTime = time.Now().Add(time.Hour)
			g.EndTime = time.Now().Add(2 * time.Hour)
		})
		_, err := svc.submit(g, entryInput{Email: "a@example.com"}, time.Now())
		assert.ErrorIs(t, err, ErrGiveawayClosed)
	})

	t.Run("at end time the window is closed", func(t *testing.T) {
		g := seedGiveaway(t, db, nil)
		_, err := svc.submit(g, entryInput{Email: "a@example.com"}, g.EndTime)
		assert.ErrorIs(t, err, ErrGiveawayClosed)
	})
}

func TestSubmitRejectsRestrictedState(t *testing.T) {
	db := openTestDB(t)
	svc := NewEntryService(db, noop())
	g := seedGiveaway(t, db, func(g *models.Giveaway) {
		g.RestrictedStates = "NY, FL"
	})

	_, err := svc.submit(g, entryInput{Email: "a@example.com", State: "FL"}, time.Now())
	assert.ErrorIs(t, err, ErrRestrictedState)

	entry, err := svc.submit(g, entryInput{Email: "a@example.com", State: "CA"}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, entry.EntryCount)
}

func TestSubmitEnforcesContactPolicy(t *testing.T) {
	db := openTestDB(t)
	svc := NewEntryService(db, noop())

	t.Run("email required", func(t *testing.T) {
		g := seedGiveaway(t, db, func(g *models.Giveaway) {
			g.ContactPolicy = models.ContactPolicyEmail
		})
		_, err := svc.submit(g, entryInput{Phone: "5551234567"}, time.Now())
		assert.ErrorIs(t, err, ErrInvalidContact)
	})

	t.Run("phone required", func(t *testing.T) {
		g := seedGiveaway(t, db, func(g *models.Giveaway) {
			g.ContactPolicy = models.ContactPolicyPhone
		})
		_, err := svc.submit(g, entryInput{Email: "a@example.com"}, time.Now())
		assert.ErrorIs(t, err, ErrInvalidContact)
	})

	t.Run("either requires at least one", func(t *testing.T) {
		g := seedGiveaway(t, db, nil)
		_, err := svc.submit(g, entryInput{FirstName: "No", LastName: "Contact"}, time.Now())
		assert.ErrorIs(t, err, ErrInvalidContact)
	})
}

func TestSubmitDedupeStrict(t *testing.T) {
	db := openTestDB(t)
	svc := NewEntryService(db, noop())
	g := seedGiveaway(t, db, nil)

	_, err := svc.submit(g, entryInput{Email: "dup@example.com", Phone: "5551234567"}, time.Now())
	require.NoError(t, err)

	// Same email, different phone.
	_, err = svc.submit(g, entryInput{Email: "dup@example.com", Phone: "5559999999"}, time.Now())
	assert.ErrorIs(t, err, ErrDuplicateEntry)

	// Same phone, different email.
	_, err = svc.submit(g, entryInput{Email: "other@example.com", Phone: "5551234567"}, time.Now())
	assert.ErrorIs(t, err, ErrDuplicateEntry)

	// A genuinely different person is fine.
	_, err = svc.submit(g, entryInput{Email: "other@example.com", Phone: "5558888888"}, time.Now())
	assert.NoError(t, err)
}

func TestSubmitDedupePerChannel(t *testing.T) {
	db := openTestDB(t)
	svc := NewEntryService(db, noop())
	g := seedGiveaway(t, db, func(g *models.Giveaway) {
		g.DedupePolicy = models.DedupePolicyPerChannel
	})

	_, err := svc.submit(g, entryInput{Email: "dup@example.com"}, time.Now())
	require.NoError(t, err)

	// Same person entering again by phone is allowed under per_channel.
	_, err = svc.submit(g, entryInput{Phone: "5551234567"}, time.Now())
	require.NoError(t, err)

	_, err = svc.submit(g, entryInput{Email: "dup@example.com"}, time.Now())
	assert.ErrorIs(t, err, ErrDuplicateEntry)

	_, err = svc.submit(g, entryInput{Phone: "5551234567"}, time.Now())
	assert.ErrorIs(t, err, ErrDuplicateEntry)
}

func TestSubmitRedeemsReferralCode(t *testing.T) {
	db := openTestDB(t)
	svc := NewEntryService(db, noop())
	refSvc := NewReferralService(db, noop())
	g := seedGiveaway(t, db, func(g *models.Giveaway) {
		g.ReferralEnabled = true
		g.ReferralBonusEntries = 2
	})

	referrer := seedEntry(t, db, g, "referrer@example.com", "")
	code, err := refSvc.getOrCreateCode(g, referrer.ID)
	require.NoError(t, err)

	referred, err := svc.submit(g, entryInput{
		Email:        "friend@example.com",
		ReferralCode: code,
		IPAddress:    "10.0.0.1",
	}, time.Now())
	require.NoError(t, err)

	assert.Equal(t, 3, reloadEntry(t, db, referrer.ID).EntryCount)
	assert.Equal(t, 1, referred.EntryCount, "the referred entrant gets no credit")

	var conversions int64
	require.NoError(t, db.Model(&models.Referral{}).
		Where("giveaway_id = ? AND referred_entry_id IS NOT NULL", g.ID).
		Count(&conversions).Error)
	assert.EqualValues(t, 1, conversions)
}

func TestSubmitBadReferralCodeIsSilent(t *testing.T) {
	db := openTestDB(t)
	svc := NewEntryService(db, noop())
	g := seedGiveaway(t, db, func(g *models.Giveaway) {
		g.ReferralEnabled = true
	})

	// Submission succeeds even though the code matches nothing.
	entry, err := svc.submit(g, entryInput{Email: "friend@example.com", ReferralCode: "deadbeef"}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, entry.EntryCount)
}

func TestSetValidity(t *testing.T) {
	db := openTestDB(t)
	svc := NewEntryService(db, noop())
	g := seedGiveaway(t, db, nil)
	e := seedEntry(t, db, g, "a@example.com", "")

	flipped, err := svc.setValidity(e.ID, false, "duplicate household", "admin-1")
	require.NoError(t, err)
	assert.False(t, flipped.IsValid)
	assert.Equal(t, "duplicate household", flipped.InvalidationReason)

	// Re-validation clears the reason.
	flipped, err = svc.setValidity(e.ID, true, "", "admin-1")
	require.NoError(t, err)
	assert.True(t, flipped.IsValid)
	assert.Empty(t, flipped.InvalidationReason)
}

func TestEntrySummaryWeights(t *testing.T) {
	db := openTestDB(t)
	entrySvc := NewEntryService(db, noop())
	refSvc := NewReferralService(db, noop())
	g := seedGiveaway(t, db, func(g *models.Giveaway) {
		g.ReferralEnabled = true
		g.BonusEnabled = true
		g.BonusEntryCount = 2
	})

	referrer := seedEntry(t, db, g, "referrer@example.com", "")
	code, err := refSvc.getOrCreateCode(g, referrer.ID)
	require.NoError(t, err)

	friend, err := entrySvc.submit(g, entryInput{Email: "friend@example.com", ReferralCode: code}, time.Now())
	require.NoError(t, err)

	_, err = refSvc.claimBonus(referrer.ID, "5551230000", models.ContactTypePhone, time.Now())
	require.NoError(t, err)

	rows, err := entrySvc.entrySummary(g)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	byID := map[string]EntryWeightRow{}
	for _, r := range rows {
		byID[r.EntryID] = r
	}

	// Referrer: 1 base + 1 referral + 2 bonus = 4.
	assert.Equal(t, 1, byID[referrer.ID].ReferralConversions)
	assert.Equal(t, 1, byID[referrer.ID].ReferralWeight)
	assert.Equal(t, 2, byID[referrer.ID].BonusWeight)
	assert.Equal(t, 4, byID[referrer.ID].TotalWeight)

	assert.Equal(t, 1, byID[friend.ID].TotalWeight)
}
