// Package habits carries weekly habit rows forward and tracks completions.
package habits

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/julianstephens/daylit-sync/internal/constants"
	"github.com/julianstephens/daylit-sync/internal/logger"
	"github.com/julianstephens/daylit-sync/internal/models"
	"github.com/julianstephens/daylit-sync/internal/observability"
	"github.com/julianstephens/daylit-sync/internal/remote"
	"github.com/julianstephens/daylit-sync/internal/repository"
	"github.com/julianstephens/daylit-sync/internal/utils"
)

// Copier performs the server-side week copy. The remote must make the copy
// insert-if-absent on (user_id, week_start_date, name).
type Copier interface {
	CopyHabitsToWeek(ctx context.Context, owner, fromWeek, toWeek string) (int, error)
}

// Propagator fills an empty week with the previous week's habits. It is
// pull-based: callers invoke it when a week is viewed.
type Propagator struct {
	habits  *repository.Repository[models.Habit]
	copier  Copier
	timeout time.Duration
	group   singleflight.Group
}

func NewPropagator(habits *repository.Repository[models.Habit], copier Copier, timeout time.Duration) *Propagator {
	if timeout <= 0 {
		timeout = constants.DefaultRemoteTimeout
	}
	return &Propagator{
		habits:  habits,
		copier:  copier,
		timeout: timeout,
	}
}

// EnsureWeek returns the habits of the week containing week, copying the
// previous week's habits first when the week is empty. A week with no
// predecessor stays empty. When the copy fails the error is returned along
// with whatever is known for the week.
func (p *Propagator) EnsureWeek(ctx context.Context, owner string, week time.Time) ([]models.Habit, error) {
	if owner == "" {
		return nil, repository.ErrUnauthenticated
	}
	target := utils.WeekKey(week)

	// Concurrent views of the same week in this process share one
	// propagation. It runs detached from any single caller so one caller
	// giving up does not fail the others; each remote call inside is bounded.
	shared := context.WithoutCancel(ctx)
	ch := p.group.DoChan(owner+"/"+target, func() (any, error) {
		return p.ensure(shared, owner, week)
	})
	select {
	case res := <-ch:
		habits, _ := res.Val.([]models.Habit)
		return habits, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *Propagator) ensure(ctx context.Context, owner string, week time.Time) ([]models.Habit, error) {
	target := utils.WeekKey(week)
	current := p.habits.GetByFilter(ctx, owner, WeekFilter(target))
	if len(current) > 0 {
		return current, nil
	}

	previous := utils.PreviousWeekKey(week)
	ancestors := p.habits.GetByFilter(ctx, owner, WeekFilter(previous))
	if len(ancestors) == 0 {
		return current, nil
	}

	copyCtx, cancel := context.WithTimeout(ctx, p.timeout)
	n, err := p.copier.CopyHabitsToWeek(copyCtx, owner, previous, target)
	cancel()
	observability.RecordRemoteCall(constants.TableHabits, "copy_habits", err)
	if err != nil {
		logger.Warn("Failed to propagate habits", "owner", owner, "from", previous, "to", target, "error", err)
		return current, fmt.Errorf("propagate habits %s -> %s: %w", previous, target, err)
	}
	if n > 0 {
		observability.RecordHabitWeekPropagated()
		logger.Info("Propagated habits", "owner", owner, "from", previous, "to", target, "count", n)
	}

	return p.habits.GetByFilter(ctx, owner, WeekFilter(target)), nil
}

// WeekFilter selects the habit rows of one week.
func WeekFilter(weekStart string) remote.Filter {
	return remote.Filter{remote.Eq("week_start_date", weekStart)}
}
