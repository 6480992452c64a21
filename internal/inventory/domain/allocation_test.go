package domain

import (
	"testing"
	"time"

	"github.com/medlan/medlan-backend/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var asOf = time.Date(2024, 12, 1, 10, 0, 0, 0, time.UTC)

func day(s string) *time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return &t
}

func lot(id, expiry string, available int) *Lot {
	l := &Lot{
		ID:           id,
		ProductID:    "p1",
		BranchID:     "b1",
		BatchNumber:  "B-" + id,
		Received:     available,
		Available:    available,
		SellingPrice: decimal.NewFromInt(2),
		Active:       true,
		CreatedAt:    asOf,
	}
	if expiry != "" {
		l.ExpiryDate = day(expiry)
	}
	return l
}

func TestPlanFEFO_SplitsAcrossLots(t *testing.T) {
	lots := []*Lot{
		lot("march", "2025-03-01", 10),
		lot("january", "2025-01-01", 5),
	}

	plan, err := PlanFEFO("p1", "b1", lots, 8, asOf)
	require.NoError(t, err)
	require.Len(t, plan, 2)

	assert.Equal(t, "january", plan[0].LotID)
	assert.Equal(t, 5, plan[0].Quantity)
	assert.Equal(t, "march", plan[1].LotID)
	assert.Equal(t, 3, plan[1].Quantity)
	assert.Equal(t, 8, TotalQuantity(plan))

	assert.Equal(t, 5, lots[1].Available, "planning does not mutate lots")
}

func TestPlanFEFO_InsufficientLeavesNoPlan(t *testing.T) {
	lots := []*Lot{lot("a", "2025-01-01", 5), lot("b", "2025-03-01", 10)}

	plan, err := PlanFEFO("p1", "b1", lots, 16, asOf)
	assert.Nil(t, plan)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInsufficientStock))

	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "15", appErr.Details["available"])
}

func TestPlanFEFO_SkipsIneligibleLots(t *testing.T) {
	expired := lot("expired", "2024-11-30", 50)
	inactive := lot("inactive", "2025-01-01", 50)
	inactive.Active = false
	flagged := lot("flagged", "2025-01-01", 50)
	flagged.Expired = true
	empty := lot("empty", "2024-12-15", 0)
	otherBranch := lot("other", "2024-12-10", 50)
	otherBranch.BranchID = "b2"
	good := lot("good", "2025-06-01", 4)
	noExpiry := lot("no-expiry", "", 4)

	plan, err := PlanFEFO("p1", "b1", []*Lot{noExpiry, expired, inactive, flagged, empty, otherBranch, good}, 6, asOf)
	require.NoError(t, err)
	require.Len(t, plan, 2)
	assert.Equal(t, "good", plan[0].LotID)
	assert.Equal(t, "no-expiry", plan[1].LotID, "lots without expiry go last")
	assert.Equal(t, 2, plan[1].Quantity)
}

func TestPlanFEFO_ExpiringTodayIsSellable(t *testing.T) {
	plan, err := PlanFEFO("p1", "b1", []*Lot{lot("today", "2024-12-01", 3)}, 3, asOf)
	require.NoError(t, err)
	assert.Len(t, plan, 1)
}

func TestPlanFEFO_TiesBreakByCreation(t *testing.T) {
	older := lot("z-older", "2025-01-01", 2)
	older.CreatedAt = asOf.Add(-time.Hour)
	newer := lot("a-newer", "2025-01-01", 2)

	plan, err := PlanFEFO("p1", "b1", []*Lot{newer, older}, 3, asOf)
	require.NoError(t, err)
	assert.Equal(t, "z-older", plan[0].LotID)
	assert.Equal(t, 2, plan[0].Quantity)
	assert.Equal(t, "a-newer", plan[1].LotID)
}

func TestPlanPinned(t *testing.T) {
	pinned := lot("pinned", "2025-06-01", 4)

	plan, err := PlanPinned("p1", "b1", pinned, 4, asOf)
	require.NoError(t, err)
	assert.Equal(t, []Allocation{allocationFrom(pinned, 4)}, plan)

	_, err = PlanPinned("p1", "b1", pinned, 5, asOf)
	assert.True(t, errors.Is(err, errors.ErrInsufficientStock))

	_, err = PlanPinned("p1", "b2", pinned, 1, asOf)
	assert.True(t, errors.Is(err, errors.ErrBadRequest))

	pinned.Expired = true
	_, err = PlanPinned("p1", "b1", pinned, 1, asOf)
	assert.True(t, errors.Is(err, errors.ErrInsufficientStock))
}

func TestPlan_RejectsNonPositiveQuantity(t *testing.T) {
	_, err := PlanFEFO("p1", "b1", nil, 0, asOf)
	assert.True(t, errors.Is(err, errors.ErrValidation))
}
