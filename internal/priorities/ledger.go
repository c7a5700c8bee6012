// Package priorities ranks priorities within weeks.
//
// A week's ranks are always dense: after every successful mutation the
// rank_order values of a week are exactly 1..N.
package priorities

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/julianstephens/daylit-sync/internal/logger"
	"github.com/julianstephens/daylit-sync/internal/models"
	"github.com/julianstephens/daylit-sync/internal/remote"
	"github.com/julianstephens/daylit-sync/internal/repository"
	"github.com/julianstephens/daylit-sync/internal/utils"
)

type Ledger struct {
	priorities *repository.Repository[models.Priority]
	weeks      *repository.Repository[models.PriorityWeek]
}

func NewLedger(reg *repository.Registry) *Ledger {
	return &Ledger{
		priorities: reg.Priorities,
		weeks:      reg.PriorityWeeks,
	}
}

// GetByWeek returns the priorities ranked in the week containing week.
// Join rows whose priority no longer exists are skipped.
func (l *Ledger) GetByWeek(ctx context.Context, owner string, week time.Time) []models.PriorityWithRank {
	key := utils.WeekKey(week)
	rows := l.weeks.GetByFilter(ctx, owner, weekFilter(key))
	return l.join(ctx, owner, rows)[key]
}

// GetWeeksWithPriorities returns the ranked priorities of every week from
// start's week through end's week, keyed by the week's Monday. It issues one
// range query rather than one query per week.
func (l *Ledger) GetWeeksWithPriorities(ctx context.Context, owner string, start, end time.Time) map[string][]models.PriorityWithRank {
	rows := l.weeks.GetByFilter(ctx, owner, remote.Filter{
		remote.Gte("week_start_date", utils.WeekKey(start)),
		remote.Lte("week_start_date", utils.WeekKey(end)),
	})
	return l.join(ctx, owner, rows)
}

// AssignToWeek places priorityID at rank in the week, inserting the join row
// when missing. The rank is clamped to 1..N and the other priorities keep
// their relative order.
func (l *Ledger) AssignToWeek(ctx context.Context, owner, priorityID string, week time.Time, rank int) (*models.PriorityWeek, error) {
	if owner == "" {
		return nil, repository.ErrUnauthenticated
	}
	key := utils.WeekKey(week)
	target, others := split(l.current(ctx, owner, key, priorityID), priorityID)

	pos := clamp(rank, 1, len(others)+1)
	if target == nil {
		created, err := l.weeks.Create(ctx, owner, models.PriorityWeek{
			PriorityID:    priorityID,
			WeekStartDate: key,
			RankOrder:     pos,
		})
		if err != nil {
			return nil, err
		}
		target = created
	}

	ordered := make([]models.PriorityWeek, 0, len(others)+1)
	ordered = append(ordered, others[:pos-1]...)
	ordered = append(ordered, *target)
	ordered = append(ordered, others[pos-1:]...)

	if err := l.recompute(ctx, owner, ordered); err != nil {
		return nil, err
	}
	return &ordered[pos-1], nil
}

// Reorder ranks the week's priorities in the order given. Priorities not
// yet in the week are added; ones already in the week but not listed follow
// in their current order.
func (l *Ledger) Reorder(ctx context.Context, owner string, week time.Time, priorityIDs []string) error {
	if owner == "" {
		return repository.ErrUnauthenticated
	}
	key := utils.WeekKey(week)
	rest := l.current(ctx, owner, key, priorityIDs...)

	ordered := make([]models.PriorityWeek, 0, len(priorityIDs)+len(rest))
	for _, id := range priorityIDs {
		var target *models.PriorityWeek
		target, rest = split(rest, id)
		if target == nil {
			created, err := l.weeks.Create(ctx, owner, models.PriorityWeek{
				PriorityID:    id,
				WeekStartDate: key,
				RankOrder:     len(ordered) + 1,
			})
			if err != nil {
				return err
			}
			target = created
		}
		ordered = append(ordered, *target)
	}
	ordered = append(ordered, rest...)

	return l.recompute(ctx, owner, ordered)
}

// RemoveFromWeek deletes the join row of priorityID in the week and closes
// the gap it leaves. The priority itself is kept. It reports whether a row
// was removed.
func (l *Ledger) RemoveFromWeek(ctx context.Context, owner, priorityID string, week time.Time) (bool, error) {
	if owner == "" {
		return false, repository.ErrUnauthenticated
	}
	key := utils.WeekKey(week)
	target, others := split(l.current(ctx, owner, key, priorityID), priorityID)
	if target == nil {
		return false, nil
	}

	err := l.weeks.DeleteWhere(ctx, owner, remote.Filter{
		remote.Eq("priority_id", priorityID),
		remote.Eq("week_start_date", key),
	})
	if err != nil {
		return false, err
	}
	return true, l.recompute(ctx, owner, others)
}

// DeletePriority removes every week's join row for priorityID, then the
// priority. The two deletes are not atomic; a leftover join row is skipped
// by the readers.
func (l *Ledger) DeletePriority(ctx context.Context, owner, priorityID string) error {
	if owner == "" {
		return repository.ErrUnauthenticated
	}
	affected := l.weeks.GetByFilter(ctx, owner, remote.Filter{remote.Eq("priority_id", priorityID)})

	if err := l.weeks.DeleteWhere(ctx, owner, remote.Filter{remote.Eq("priority_id", priorityID)}); err != nil {
		return err
	}
	if err := l.priorities.Delete(ctx, owner, priorityID); err != nil {
		return err
	}

	seen := make(map[string]bool)
	var errs []error
	for _, pw := range affected {
		if seen[pw.WeekStartDate] {
			continue
		}
		seen[pw.WeekStartDate] = true
		if err := l.recompute(ctx, owner, l.current(ctx, owner, pw.WeekStartDate)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// current returns the week's join rows sorted by rank. Rows whose priority
// no longer exists take no rank; rows for the ids in keep are always
// returned so the caller can move or remove them.
func (l *Ledger) current(ctx context.Context, owner, key string, keep ...string) []models.PriorityWeek {
	rows := l.weeks.GetByFilter(ctx, owner, weekFilter(key))
	if len(rows) == 0 {
		return rows
	}

	live := make(map[string]bool, len(keep))
	for _, id := range keep {
		live[id] = true
	}
	for _, p := range l.priorities.GetAll(ctx, owner) {
		live[p.ID] = true
	}

	out := rows[:0]
	for _, pw := range rows {
		if !live[pw.PriorityID] {
			logger.Debug("Leaving orphaned priority week out of ranking", "owner", owner, "priority_week_id", pw.ID, "priority_id", pw.PriorityID)
			continue
		}
		out = append(out, pw)
	}
	sortByRank(out)
	return out
}

// recompute rewrites rank_order as 1..N following the order of rows. Only
// rows whose rank changes are written.
func (l *Ledger) recompute(ctx context.Context, owner string, rows []models.PriorityWeek) error {
	var errs []error
	for i := range rows {
		want := i + 1
		if rows[i].RankOrder == want {
			continue
		}
		updated, err := l.weeks.Update(ctx, owner, rows[i].ID, remote.Fields{"rank_order": want})
		if err != nil {
			errs = append(errs, err)
			continue
		}
		rows[i] = *updated
	}
	if err := errors.Join(errs...); err != nil {
		logger.Warn("Failed to recompute priority ranks", "owner", owner, "error", err)
		return err
	}
	return nil
}

func (l *Ledger) join(ctx context.Context, owner string, rows []models.PriorityWeek) map[string][]models.PriorityWithRank {
	out := make(map[string][]models.PriorityWithRank)
	if len(rows) == 0 {
		return out
	}

	byID := make(map[string]models.Priority)
	for _, p := range l.priorities.GetAll(ctx, owner) {
		byID[p.ID] = p
	}

	sortByRank(rows)
	for _, pw := range rows {
		p, ok := byID[pw.PriorityID]
		if !ok {
			logger.Debug("Skipping orphaned priority week", "owner", owner, "priority_week_id", pw.ID, "priority_id", pw.PriorityID)
			continue
		}
		out[pw.WeekStartDate] = append(out[pw.WeekStartDate], models.PriorityWithRank{
			Priority:       p,
			PriorityWeekID: pw.ID,
			WeekStartDate:  pw.WeekStartDate,
			RankOrder:      pw.RankOrder,
		})
	}
	return out
}

func weekFilter(key string) remote.Filter {
	return remote.Filter{remote.Eq("week_start_date", key)}
}

// split returns the first row for priorityID and the remaining rows. Extra
// rows for the same priority are dropped from the remainder.
func split(rows []models.PriorityWeek, priorityID string) (*models.PriorityWeek, []models.PriorityWeek) {
	var target *models.PriorityWeek
	rest := make([]models.PriorityWeek, 0, len(rows))
	for i := range rows {
		if rows[i].PriorityID != priorityID {
			rest = append(rest, rows[i])
			continue
		}
		if target == nil {
			pw := rows[i]
			target = &pw
		}
	}
	return target, rest
}

func sortByRank(rows []models.PriorityWeek) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].RankOrder != rows[j].RankOrder {
			return rows[i].RankOrder < rows[j].RankOrder
		}
		return rows[i].CreatedAt.Before(rows[j].CreatedAt)
	})
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
