package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/julianstephens/daylit-sync/internal/constants"
)

// Priority is a long-lived named focus area.
type Priority struct {
	Base
	Name  string `json:"name"`
	Color string `json:"color"`
}

// PriorityWeek joins a priority to a week with a rank (1 = most important).
type PriorityWeek struct {
	Base
	PriorityID    string `json:"priority_id"`
	WeekStartDate string `json:"week_start_date"` // YYYY-MM-DD
	RankOrder     int    `json:"rank_order"`
}

// PriorityWithRank is the joined view rendered per week.
type PriorityWithRank struct {
	Priority
	PriorityWeekID string `json:"priority_week_id"`
	WeekStartDate  string `json:"week_start_date"`
	RankOrder      int    `json:"rank_order"`
}

func (p *Priority) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("priority name cannot be empty")
	}
	return nil
}

func (pw *PriorityWeek) Validate() error {
	if pw.PriorityID == "" {
		return fmt.Errorf("priority week requires a priority_id")
	}
	if _, err := time.Parse(constants.DateFormat, pw.WeekStartDate); err != nil {
		return fmt.Errorf("invalid week_start_date (expected YYYY-MM-DD): %w", err)
	}
	if pw.RankOrder < 1 {
		return fmt.Errorf("rank_order must be at least 1, got %d", pw.RankOrder)
	}
	return nil
}
