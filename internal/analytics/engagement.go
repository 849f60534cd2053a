package analytics

import (
	"sort"
	"time"

	"studly/internal/store/sqlitestore"
)

// HourlyActivity buckets ledger rows per UTC hour and kind. Rolled-back
// mutations are counted under "<kind>_failed".
func HourlyActivity(rows []sqlitestore.Mutation) map[time.Time]map[string]int {
	buckets := make(map[time.Time]map[string]int)
	for _, m := range rows {
		key := m.At.UTC().Truncate(time.Hour)
		if _, ok := buckets[key]; !ok {
			buckets[key] = make(map[string]int)
		}
		label := string(m.Kind)
		if m.Error != "" {
			label += "_failed"
		}
		buckets[key][label]++
	}
	return buckets
}

// SortedBucketKeys returns sorted hour keys.
func SortedBucketKeys(m map[time.Time]map[string]int) []time.Time {
	keys := make([]time.Time, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Before(keys[j]) })
	return keys
}
