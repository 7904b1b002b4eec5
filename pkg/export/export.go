// Package export renders induction schedules for downstream consumers.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/kilianp07/induction/core/model"
	"github.com/kilianp07/induction/core/schedule"
)

// Format names an export encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// csvHeader is the column layout of the CSV export.
var csvHeader = []string{"depot_id", "date", "trainset_id", "assignment", "original_assignment", "bay", "cleaning", "restriction"}

// Write encodes s to w in the given format.
func Write(w io.Writer, f Format, s *schedule.Schedule) error {
	switch Format(strings.ToLower(string(f))) {
	case FormatJSON, "":
		return WriteJSON(w, s)
	case FormatCSV:
		return WriteCSV(w, s)
	default:
		return fmt.Errorf("unsupported export format %q", f)
	}
}

// WriteJSON writes the full schedule document to w.
func WriteJSON(w io.Writer, s *schedule.Schedule) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

// WriteCSV writes one row per trainset with the assignment in effect after
// manual overrides.
func WriteCSV(w io.Writer, s *schedule.Schedule) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	cleaning := make(map[string]bool, len(s.Cleaning))
	for _, id := range s.Cleaning {
		cleaning[id] = true
	}
	date := s.Date.Format(time.DateOnly)
	for _, row := range rows(s) {
		orig, _ := s.Original(row.id)
		rec := []string{
			s.DepotID,
			date,
			row.id,
			string(row.category),
			string(orig),
			s.Bays[row.id],
			fmt.Sprint(cleaning[row.id]),
			s.Restrictions[row.id],
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

type row struct {
	id       string
	category model.Category
}

func rows(s *schedule.Schedule) []row {
	eff := s.Effective()
	var out []row
	for _, l := range []struct {
		c   model.Category
		ids []string
	}{
		{model.CategoryService, eff.ReadyForService},
		{model.CategoryStandby, eff.OnStandby},
		{model.CategoryMaintenance, eff.HeldForMaintenance},
		{model.CategoryRemoved, eff.RemovedFromService},
	} {
		for _, id := range l.ids {
			out = append(out, row{id: id, category: l.c})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}
