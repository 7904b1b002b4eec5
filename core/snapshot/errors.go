package snapshot

import (
	"fmt"
	"strings"
)

// MissingField names a mandatory field absent from the fleet records.
type MissingField struct {
	TrainsetID string `json:"trainsetId"`
	Field      string `json:"field"`
}

// DataIncompleteError aborts a planning run because mandatory data is missing
// or inconsistent.
type DataIncompleteError struct {
	DepotID string
	Missing []MissingField
}

func (e *DataIncompleteError) Error() string {
	parts := make([]string, 0, len(e.Missing))
	for _, m := range e.Missing {
		if m.TrainsetID == "" {
			parts = append(parts, m.Field)
			continue
		}
		parts = append(parts, m.TrainsetID+"."+m.Field)
	}
	return fmt.Sprintf("depot %s: incomplete planning data: %s", e.DepotID, strings.Join(parts, ", "))
}
