package replay

import (
	"encoding/json"

	"github.com/rhp/rhp/internal/platform/staging"
)

// Dedupe drops records whose payload is identical to an earlier one. Input
// order is preserved and the first occurrence wins. The duplicates are
// returned separately so their files are still removed with the batch.
func Dedupe(recs []staging.Record) (unique, dups []staging.Record) {
	seen := make(map[string]struct{}, len(recs))
	unique = make([]staging.Record, 0, len(recs))
	for _, r := range recs {
		// encoding/json sorts map keys, which makes this canonical.
		b, err := json.Marshal(r.Payload)
		if err != nil {
			unique = append(unique, r)
			continue
		}
		k := string(b)
		if _, ok := seen[k]; ok {
			dups = append(dups, r)
			continue
		}
		seen[k] = struct{}{}
		unique = append(unique, r)
	}
	return unique, dups
}
