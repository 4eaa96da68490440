package facilities

import (
	"fmt"
	"strings"
	"time"
)

// RunSummary holds the dataset-level counts of one detection run. It is
// written once when the run completes and never mutated afterwards,
// mirroring an append-only audit log row.
type RunSummary struct {
	RunID   string    `json:"run_id" gorm:"column:run_id;primaryKey"`
	LogDate time.Time `json:"log_date" gorm:"column:log_date"`
	User    string    `json:"user" gorm:"column:user"`

	Added           int `json:"added" gorm:"column:added"`
	Removed         int `json:"removed" gorm:"column:removed"`
	GeomUpdated     int `json:"geom_updated" gorm:"column:geom_updated"`
	AttrUpdated     int `json:"attr_updated" gorm:"column:attr_updated"`
	GeomAttrUpdated int `json:"geom_attr_updated" gorm:"column:geom_attr_updated"`
	Unchanged       int `json:"unchanged" gorm:"column:unchanged"`
	Skipped         int `json:"skipped" gorm:"column:skipped"`

	RowCountBefore int `json:"row_count_before" gorm:"column:row_count_before"`
	RowCountAfter  int `json:"row_count_after" gorm:"column:row_count_after"`
}

// TotalChanges returns the number of records classified as anything other
// than unchanged.
func (s *RunSummary) TotalChanges() int {
	return s.Added + s.Removed + s.GeomUpdated + s.AttrUpdated + s.GeomAttrUpdated
}

// String returns a single-line human-readable summary.
func (s *RunSummary) String() string {
	parts := []string{}
	if s.Added > 0 {
		parts = append(parts, fmt.Sprintf("%d added", s.Added))
	}
	if s.Removed > 0 {
		parts = append(parts, fmt.Sprintf("%d removed", s.Removed))
	}
	if s.GeomUpdated > 0 {
		parts = append(parts, fmt.Sprintf("%d geometries modified", s.GeomUpdated))
	}
	if s.AttrUpdated > 0 {
		parts = append(parts, fmt.Sprintf("%d attributes changed", s.AttrUpdated))
	}
	if s.GeomAttrUpdated > 0 {
		parts = append(parts, fmt.Sprintf("%d geometry and attribute changes", s.GeomAttrUpdated))
	}
	if len(parts) == 0 {
		return fmt.Sprintf("no changes detected (%d unchanged)", s.Unchanged)
	}
	return fmt.Sprintf("%s; %d unchanged; rows %d -> %d",
		strings.Join(parts, ", "), s.Unchanged, s.RowCountBefore, s.RowCountAfter)
}
