package settlement

import (
	"errors"
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var (
	memberA = uuid.MustParse("11111111-1111-1111-1111-111111111111")
	memberB = uuid.MustParse("22222222-2222-2222-2222-222222222222")
	memberC = uuid.MustParse("33333333-3333-3333-3333-333333333333")
)

func TestComputeBalances(t *testing.T) {
	tests := []struct {
		name      string
		purchases []PurchaseSummary
		total     float64
		average   float64
		balances  map[uuid.UUID]float64
	}{
		{
			name: "two buyers uneven spend",
			purchases: []PurchaseSummary{
				{PurchasedBy: memberA, TotalPrice: 30},
				{PurchasedBy: memberB, TotalPrice: 10},
			},
			total:   40,
			average: 20,
			balances: map[uuid.UUID]float64{
				memberA: 10,
				memberB: -10,
			},
		},
		{
			name: "single buyer settles with themselves",
			purchases: []PurchaseSummary{
				{PurchasedBy: memberA, TotalPrice: 60},
			},
			total:   60,
			average: 60,
			balances: map[uuid.UUID]float64{
				memberA: 0,
			},
		},
		{
			name: "multiple purchases by the same buyer accumulate",
			purchases: []PurchaseSummary{
				{PurchasedBy: memberA, TotalPrice: 12.5},
				{PurchasedBy: memberA, TotalPrice: 7.5},
				{PurchasedBy: memberB, TotalPrice: 20},
			},
			total:   40,
			average: 20,
			balances: map[uuid.UUID]float64{
				memberA: 0,
				memberB: 0,
			},
		},
		{
			name: "zero-price buyer still carries a share",
			purchases: []PurchaseSummary{
				{PurchasedBy: memberA, TotalPrice: 45},
				{PurchasedBy: memberB, TotalPrice: 15},
				{PurchasedBy: memberC, TotalPrice: 0},
			},
			total:   60,
			average: 20,
			balances: map[uuid.UUID]float64{
				memberA: 25,
				memberB: -5,
				memberC: -20,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report, err := Compute(tt.purchases)
			require.NoError(t, err)
			require.InDelta(t, tt.total, report.GroupTotal, 1e-9)
			require.InDelta(t, tt.average, report.Average, 1e-9)
			require.Len(t, report.Shares, len(tt.balances))
			for _, share := range report.Shares {
				want, ok := tt.balances[share.MemberID]
				require.True(t, ok, "unexpected member %s in report", share.MemberID)
				require.InDelta(t, want, share.Balance, 1e-9)
			}
		})
	}
}

// The split divides by the distinct buyers in the records, not the roster
// size: a member who bought nothing has no share and drags nobody's average
// down.
func TestComputeAveragesOverBuyersOnly(t *testing.T) {
	report, err := Compute([]PurchaseSummary{
		{PurchasedBy: memberA, TotalPrice: 30},
		{PurchasedBy: memberB, TotalPrice: 10},
	})
	require.NoError(t, err)
	require.InDelta(t, 20.0, report.Average, 1e-9)
	require.Len(t, report.Shares, 2)
	require.Equal(t, memberA, report.Shares[0].MemberID)
	require.InDelta(t, 10.0, report.Shares[0].Balance, 1e-9)
	require.Equal(t, memberB, report.Shares[1].MemberID)
	require.InDelta(t, -10.0, report.Shares[1].Balance, 1e-9)
}

func TestComputeNoPurchases(t *testing.T) {
	_, err := Compute(nil)
	require.True(t, errors.Is(err, ErrEmptySettlement))
}

func TestComputeSharesSorted(t *testing.T) {
	report, err := Compute([]PurchaseSummary{
		{PurchasedBy: memberC, TotalPrice: 3},
		{PurchasedBy: memberA, TotalPrice: 6},
		{PurchasedBy: memberB, TotalPrice: 9},
	})
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{memberA, memberB, memberC}, []uuid.UUID{
		report.Shares[0].MemberID,
		report.Shares[1].MemberID,
		report.Shares[2].MemberID,
	})
}

func TestComputeIsDeterministic(t *testing.T) {
	purchases := []PurchaseSummary{
		{PurchasedBy: memberA, TotalPrice: 3.33},
		{PurchasedBy: memberB, TotalPrice: 6.67},
	}

	first, err := Compute(purchases)
	require.NoError(t, err)
	second, err := Compute(purchases)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestComputeBalancesSumToZero(t *testing.T) {
	report, err := Compute([]PurchaseSummary{
		{PurchasedBy: memberA, TotalPrice: 17.42},
		{PurchasedBy: memberB, TotalPrice: 0.01},
		{PurchasedBy: memberC, TotalPrice: 99.99},
	})
	require.NoError(t, err)

	var sum float64
	for _, share := range report.Shares {
		sum += share.Balance
	}
	require.True(t, math.Abs(sum) < 1e-9, "balances should sum to zero, got %f", sum)
}
