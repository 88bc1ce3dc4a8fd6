package billing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClaimTotals(t *testing.T) {
	items := []ClaimItem{
		{ServiceCode: "NHIS-001", Quantity: 2, UnitPrice: 500},
		{ServiceCode: "NHIS-050", Quantity: 1, UnitPrice: 1500},
	}
	total, claim := ClaimTotals(items, 200)
	assert.Equal(t, 2500.0, total)
	assert.Equal(t, 2300.0, claim)

	total, claim = ClaimTotals(nil, 0)
	assert.Zero(t, total)
	assert.Zero(t, claim)
}

func TestClaimItem_LineTotalRounds(t *testing.T) {
	it := ClaimItem{Quantity: 3, UnitPrice: 33.333}
	assert.Equal(t, 100.0, it.LineTotal())
}

func TestPreAuthorization_UsableAt(t *testing.T) {
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	until := from.AddDate(0, 0, 30)
	p := PreAuthorization{Status: PreauthApproved, ValidFrom: &from, ValidUntil: &until}

	assert.True(t, p.UsableAt(from))
	assert.True(t, p.UsableAt(from.AddDate(0, 0, 29)))
	assert.False(t, p.UsableAt(until))
	assert.False(t, p.UsableAt(from.Add(-time.Second)))

	p.Status = PreauthPending
	assert.False(t, p.UsableAt(from))
}

func TestBuildDashboard_Empty(t *testing.T) {
	d := BuildDashboard(nil, nil)
	assert.NotNil(t, d.RevenueByMethod)
	assert.NotNil(t, d.ClaimsByStatus)
	assert.Zero(t, d.TotalRevenue)
}

func TestBuildDashboard_RejectedClaimsNotOutstanding(t *testing.T) {
	d := BuildDashboard(nil, []ClaimAggregate{
		{Status: ClaimRejected, Count: 1, Amount: 800},
		{Status: ClaimDraft, Count: 2, Amount: 300},
		{Status: ClaimSubmitted, Count: 1, Amount: 450.5},
	})
	assert.Equal(t, 450.5, d.OutstandingClaims)
	assert.Equal(t, 1, d.ClaimsByStatus[ClaimRejected])
}
