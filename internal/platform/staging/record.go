package staging

import (
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Record is one staged payload. The file path is its only identity.
type Record struct {
	Action    Action
	Entity    string
	Year      int
	Month     int
	Day       int
	Timestamp int64
	// Seq is the uuidv7 collision suffix; empty for files written by the
	// legacy one-file-per-second layout.
	Seq     string
	Path    string
	Payload map[string]any

	// rel is the path below <action>/<entity>, used to move the file back
	// into the pending tree.
	rel string
}

// parseRel extracts the partition coordinates from a path relative to the
// <action>/<entity> directory: YYYY/MM/DD/<ts>[-<seq>].json.
func parseRel(rel string) (year, month, day int, ts int64, seq string, err error) {
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) < 4 {
		return 0, 0, 0, 0, "", fmt.Errorf("unexpected staged path %q", rel)
	}
	parts = parts[len(parts)-4:]

	if year, err = strconv.Atoi(parts[0]); err != nil {
		return 0, 0, 0, 0, "", fmt.Errorf("parse year in %q: %w", rel, err)
	}
	if month, err = strconv.Atoi(parts[1]); err != nil {
		return 0, 0, 0, 0, "", fmt.Errorf("parse month in %q: %w", rel, err)
	}
	if day, err = strconv.Atoi(parts[2]); err != nil {
		return 0, 0, 0, 0, "", fmt.Errorf("parse day in %q: %w", rel, err)
	}

	stem := strings.TrimSuffix(parts[3], ".json")
	tsPart, seq, _ := strings.Cut(stem, "-")
	if ts, err = strconv.ParseInt(tsPart, 10, 64); err != nil {
		return 0, 0, 0, 0, "", fmt.Errorf("parse timestamp in %q: %w", rel, err)
	}
	return year, month, day, ts, seq, nil
}

// sortRecords orders by the integer (year, month, day, timestamp) tuple and
// then by Seq, which is time-ordered for uuidv7 suffixes.
func sortRecords(recs []Record) {
	sort.SliceStable(recs, func(i, j int) bool {
		a, b := recs[i], recs[j]
		switch {
		case a.Year != b.Year:
			return a.Year < b.Year
		case a.Month != b.Month:
			return a.Month < b.Month
		case a.Day != b.Day:
			return a.Day < b.Day
		case a.Timestamp != b.Timestamp:
			return a.Timestamp < b.Timestamp
		default:
			return a.Seq < b.Seq
		}
	})
}
