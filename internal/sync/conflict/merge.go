// Package conflict provides last-write-wins reconciliation of record arrays
// fetched from the remote with their local counterparts.
package conflict

import (
	"fmt"
	"sort"
)

// Record is a single domain item inside an array key (scrap, testimonial,
// photo). Items are matched by their "id" field, falling back to "timestamp"
// when no id is present.
type Record = map[string]interface{}

// MergeResult reports what a merge changed.
type MergeResult struct {
	// Added counts remote items that were absent locally.
	Added int
	// Replaced counts local items overwritten by a strictly newer remote copy.
	Replaced int
}

// MergeByID merges remote records into local records.
//
// Rules:
//   - remote items absent locally are appended
//   - items present on both sides keep whichever copy has the greater
//     timestamp; ties keep the local copy to minimize churn
//   - the merged array is sorted descending by timestamp
//
// Wall-clock timestamps supplied by each writer are trusted as-is; clock
// skew between writers can make an older edit win.
func MergeByID(local, remote []Record) ([]Record, MergeResult) {
	merged := make([]Record, len(local))
	copy(merged, local)

	index := make(map[string]int, len(merged))
	for i, item := range merged {
		index[identity(item)] = i
	}

	var result MergeResult
	for _, remoteItem := range remote {
		id := identity(remoteItem)
		i, exists := index[id]
		if !exists {
			index[id] = len(merged)
			merged = append(merged, remoteItem)
			result.Added++
			continue
		}
		if timestampOf(remoteItem) > timestampOf(merged[i]) {
			merged[i] = remoteItem
			result.Replaced++
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return timestampOf(merged[i]) > timestampOf(merged[j])
	})

	return merged, result
}

// identity returns the stable key for an item: its id field when present,
// otherwise its timestamp.
func identity(item Record) string {
	if id, ok := item["id"]; ok && id != nil {
		return fmt.Sprintf("%v", id)
	}
	return fmt.Sprintf("ts:%d", timestampOf(item))
}

// timestampOf reads the item's timestamp as epoch millis, zero when missing.
func timestampOf(item Record) int64 {
	switch ts := item["timestamp"].(type) {
	case float64:
		return int64(ts)
	case int64:
		return ts
	case int:
		return int64(ts)
	default:
		return 0
	}
}
