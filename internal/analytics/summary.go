package analytics

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"studly/internal/store/sqlitestore"
)

// Summary is the ledger activity within a window.
type Summary struct {
	Total      int
	RolledBack int
	Hourly     map[time.Time]map[string]int
}

// Summarize reports ledger totals for [start, end) and hourly buckets over
// the most recent limit rows in that window.
func Summarize(ctx context.Context, db *sqlitestore.DB, start, end time.Time, limit int) (Summary, error) {
	total, err := db.CountMutationsWithin(ctx, start, end, "", false)
	if err != nil {
		return Summary{}, errors.Wrap(err, "count mutations")
	}
	failed, err := db.CountMutationsWithin(ctx, start, end, "", true)
	if err != nil {
		return Summary{}, errors.Wrap(err, "count rollbacks")
	}
	rows, err := db.RecentMutations(ctx, limit)
	if err != nil {
		return Summary{}, err
	}
	var inWindow []sqlitestore.Mutation
	for _, m := range rows {
		if !m.At.Before(start) && m.At.Before(end) {
			inWindow = append(inWindow, m)
		}
	}
	return Summary{Total: total, RolledBack: failed, Hourly: HourlyActivity(inWindow)}, nil
}
