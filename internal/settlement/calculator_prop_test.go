package settlement

import (
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/google/uuid"
	"pgregory.net/rapid"
)

// The settlement must conserve money: whatever the purchase history, balances
// cancel out, the group total matches the sum of the purchases, and exactly
// the distinct buyers carry a share.
func TestComputeConservesMoney(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		buyerPoolSize := rapid.IntRange(1, 8).Draw(t, "buyerPoolSize")
		pool := make([]uuid.UUID, buyerPoolSize)
		for i := range pool {
			pool[i] = uuid.MustParse(fmt.Sprintf("00000000-0000-0000-0000-%012d", i+1))
		}

		purchaseCount := rapid.IntRange(1, 25).Draw(t, "purchaseCount")
		purchases := make([]PurchaseSummary, purchaseCount)
		var wantTotal float64
		buyers := make(map[uuid.UUID]bool)
		for i := range purchases {
			buyer := pool[rapid.IntRange(0, buyerPoolSize-1).Draw(t, "buyer")]
			price := rapid.Float64Range(0, 500).Draw(t, "price")
			purchases[i] = PurchaseSummary{PurchasedBy: buyer, TotalPrice: price}
			wantTotal += price
			buyers[buyer] = true
		}

		report, err := Compute(purchases)
		if err != nil {
			t.Fatalf("Compute failed: %v", err)
		}

		if math.Abs(report.GroupTotal-wantTotal) > 1e-6 {
			t.Fatalf("group total %f, want %f", report.GroupTotal, wantTotal)
		}

		if len(report.Shares) != len(buyers) {
			t.Fatalf("got %d shares, want one per distinct buyer (%d)", len(report.Shares), len(buyers))
		}

		var balanceSum float64
		for _, share := range report.Shares {
			if !buyers[share.MemberID] {
				t.Fatalf("share for %s, who bought nothing", share.MemberID)
			}
			balanceSum += share.Balance
		}
		if math.Abs(balanceSum) > 1e-6 {
			t.Fatalf("balances sum to %f, want 0", balanceSum)
		}

		for i := 1; i < len(report.Shares); i++ {
			prev := report.Shares[i-1].MemberID.String()
			cur := report.Shares[i].MemberID.String()
			if strings.Compare(prev, cur) >= 0 {
				t.Fatalf("shares out of order: %s before %s", prev, cur)
			}
		}
	})
}
