package settlement

import (
	"slices"
	"strings"

	"github.com/google/uuid"
)

// Compute derives the group settlement from its purchased records. The group
// total is split evenly across the distinct buyers that appear in the records;
// a buyer's balance is what they spent minus that equal share. Members who
// never bought anything carry no share, and buyers that have since left the
// roster still count: their purchases happened.
//
// The output is deterministic: shares come back sorted by member ID.
func Compute(purchases []PurchaseSummary) (*Report, error) {
	if len(purchases) == 0 {
		return nil, ErrEmptySettlement
	}

	totals := make(map[uuid.UUID]float64)
	var groupTotal float64
	for _, purchase := range purchases {
		totals[purchase.PurchasedBy] += purchase.TotalPrice
		groupTotal += purchase.TotalPrice
	}
	// Unreachable with non-empty purchases, but the divide below must never
	// see a zero denominator.
	if len(totals) == 0 {
		return nil, ErrDegenerateGroup
	}

	average := groupTotal / float64(len(totals))

	report := &Report{
		GroupTotal: groupTotal,
		Average:    average,
		Shares:     make([]MemberShare, 0, len(totals)),
	}
	for id, spent := range totals {
		report.Shares = append(report.Shares, MemberShare{
			MemberID: id,
			Spent:    spent,
			Balance:  spent - average,
		})
	}
	slices.SortFunc(report.Shares, func(a, b MemberShare) int {
		return strings.Compare(a.MemberID.String(), b.MemberID.String())
	})

	return report, nil
}
