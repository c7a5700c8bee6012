package habits

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/julianstephens/daylit-sync/internal/constants"
	"github.com/julianstephens/daylit-sync/internal/localstore/sqlite"
	"github.com/julianstephens/daylit-sync/internal/models"
	"github.com/julianstephens/daylit-sync/internal/remote"
	"github.com/julianstephens/daylit-sync/internal/remote/memory"
	"github.com/julianstephens/daylit-sync/internal/repository"
)

const owner = "user-1"

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 12, 0, 0, 0, time.Local)
}

func setupRegistry(t *testing.T, rs *memory.Store) *repository.Registry {
	t.Helper()
	cache := sqlite.NewStore(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, cache.Init(context.Background()))
	t.Cleanup(func() { cache.Close() })
	return repository.NewRegistry(repository.Deps{Remote: rs, Cache: cache, Timeout: time.Second})
}

func seedHabits(t *testing.T, rs *memory.Store, week string, names ...string) {
	t.Helper()
	for _, name := range names {
		_, err := rs.Insert(context.Background(), constants.TableHabits, owner, remote.Fields{
			"name":            name,
			"color":           "#22c55e",
			"reminder_days":   []int{},
			"week_start_date": week,
		})
		require.NoError(t, err)
	}
}

func habitsInWeek(t *testing.T, rs *memory.Store, week string) []string {
	t.Helper()
	f := WeekFilter(week)
	var rows []string
	for _, raw := range rs.Rows(constants.TableHabits) {
		if f.Match(raw) {
			rows = append(rows, string(raw))
		}
	}
	return rows
}

func names(habits []models.Habit) []string {
	out := make([]string, len(habits))
	for i, h := range habits {
		out[i] = h.Name
	}
	sort.Strings(out)
	return out
}

// Habits for 2024-01-01 and nothing for 2024-01-08: viewing the later week
// copies both habits with fresh ids.
func TestEnsureWeekCopiesPreviousWeek(t *testing.T) {
	rs := memory.NewStore()
	reg := setupRegistry(t, rs)
	seedHabits(t, rs, "2024-01-01", "Meditate", "Read")
	p := NewPropagator(reg.Habits, rs, time.Second)

	got, err := p.EnsureWeek(context.Background(), owner, day(2024, time.January, 10))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, []string{"Meditate", "Read"}, names(got))

	prev := reg.Habits.GetByFilter(context.Background(), owner, WeekFilter("2024-01-01"))
	prevIDs := map[string]bool{}
	for _, h := range prev {
		prevIDs[h.ID] = true
	}
	for _, h := range got {
		assert.Equal(t, "2024-01-08", h.WeekStartDate)
		assert.False(t, prevIDs[h.ID], "copied habit reuses id %s", h.ID)
	}
}

func TestEnsureWeekIsIdempotent(t *testing.T) {
	rs := memory.NewStore()
	reg := setupRegistry(t, rs)
	seedHabits(t, rs, "2024-01-01", "Meditate", "Read")
	p := NewPropagator(reg.Habits, rs, time.Second)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		got, err := p.EnsureWeek(ctx, owner, day(2024, time.January, 8))
		require.NoError(t, err)
		assert.Len(t, got, 2)
	}
	assert.Len(t, habitsInWeek(t, rs, "2024-01-08"), 2)
	assert.Equal(t, 1, rs.Calls(memory.OpCopyHabits, constants.TableHabits))
}

func TestEnsureWeekWithoutAncestry(t *testing.T) {
	rs := memory.NewStore()
	reg := setupRegistry(t, rs)
	p := NewPropagator(reg.Habits, rs, time.Second)

	got, err := p.EnsureWeek(context.Background(), owner, day(2024, time.January, 8))
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Zero(t, rs.Calls(memory.OpCopyHabits, constants.TableHabits))
}

func TestEnsureWeekLeavesPopulatedWeekAlone(t *testing.T) {
	rs := memory.NewStore()
	reg := setupRegistry(t, rs)
	seedHabits(t, rs, "2024-01-01", "Meditate", "Read")
	seedHabits(t, rs, "2024-01-08", "Run")
	p := NewPropagator(reg.Habits, rs, time.Second)

	got, err := p.EnsureWeek(context.Background(), owner, day(2024, time.January, 8))
	require.NoError(t, err)
	assert.Equal(t, []string{"Run"}, names(got))
	assert.Zero(t, rs.Calls(memory.OpCopyHabits, constants.TableHabits))
}

func TestEnsureWeekConcurrentInProcess(t *testing.T) {
	rs := memory.NewStore()
	reg := setupRegistry(t, rs)
	seedHabits(t, rs, "2024-01-01", "Meditate", "Read")
	p := NewPropagator(reg.Habits, rs, time.Second)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.EnsureWeek(context.Background(), owner, day(2024, time.January, 9))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Len(t, habitsInWeek(t, rs, "2024-01-08"), 2)
}

// Two processes with their own caches racing on one remote.
func TestEnsureWeekConcurrentAcrossPropagators(t *testing.T) {
	rs := memory.NewStore()
	seedHabits(t, rs, "2024-01-01", "Meditate", "Read")
	a := NewPropagator(setupRegistry(t, rs).Habits, rs, time.Second)
	b := NewPropagator(setupRegistry(t, rs).Habits, rs, time.Second)

	var wg sync.WaitGroup
	for _, p := range []*Propagator{a, b, a, b} {
		wg.Add(1)
		go func(p *Propagator) {
			defer wg.Done()
			_, err := p.EnsureWeek(context.Background(), owner, day(2024, time.January, 8))
			assert.NoError(t, err)
		}(p)
	}
	wg.Wait()

	assert.Len(t, habitsInWeek(t, rs, "2024-01-08"), 2)
}

func TestEnsureWeekCopyFailure(t *testing.T) {
	rs := memory.NewStore()
	reg := setupRegistry(t, rs)
	seedHabits(t, rs, "2024-01-01", "Meditate")
	p := NewPropagator(reg.Habits, rs, time.Second)

	boom := errors.New("rpc failed")
	rs.SetHook(func(ctx context.Context, op, table string) error {
		if op == memory.OpCopyHabits {
			return boom
		}
		return nil
	})

	got, err := p.EnsureWeek(context.Background(), owner, day(2024, time.January, 8))
	require.ErrorIs(t, err, boom)
	assert.Empty(t, got)
	assert.Empty(t, habitsInWeek(t, rs, "2024-01-08"))
}

func TestEnsureWeekCallerCancelDoesNotFailOthers(t *testing.T) {
	rs := memory.NewStore()
	reg := setupRegistry(t, rs)
	seedHabits(t, rs, "2024-01-01", "Meditate", "Read")
	p := NewPropagator(reg.Habits, rs, 5*time.Second)

	copying := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	rs.SetHook(func(ctx context.Context, op, table string) error {
		if op != memory.OpCopyHabits {
			return nil
		}
		once.Do(func() { close(copying) })
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	target := day(2024, time.January, 8)
	firstCtx, cancelFirst := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := p.EnsureWeek(firstCtx, owner, target)
		first <- err
	}()
	<-copying

	type result struct {
		habits []models.Habit
		err    error
	}
	second := make(chan result, 1)
	go func() {
		got, err := p.EnsureWeek(context.Background(), owner, target)
		second <- result{got, err}
	}()

	cancelFirst()
	select {
	case err := <-first:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled caller did not return")
	}

	close(release)
	res := <-second
	require.NoError(t, res.err)
	assert.Equal(t, []string{"Meditate", "Read"}, names(res.habits))
	assert.Len(t, habitsInWeek(t, rs, "2024-01-08"), 2)
}

func TestEnsureWeekRequiresOwner(t *testing.T) {
	rs := memory.NewStore()
	p := NewPropagator(setupRegistry(t, rs).Habits, rs, time.Second)

	_, err := p.EnsureWeek(context.Background(), "", time.Now())
	assert.ErrorIs(t, err, repository.ErrUnauthenticated)
}

func TestCreateHabitNormalizesWeek(t *testing.T) {
	rs := memory.NewStore()
	tr := NewTracker(setupRegistry(t, rs))

	h, err := tr.CreateHabit(context.Background(), owner, models.Habit{
		Name:          "  Stretch ",
		Color:         "#3b82f6",
		WeekStartDate: "2024-01-11",
	})
	require.NoError(t, err)
	assert.Equal(t, "Stretch", h.Name)
	assert.Equal(t, "2024-01-08", h.WeekStartDate)
}

func TestToggleCompletion(t *testing.T) {
	rs := memory.NewStore()
	reg := setupRegistry(t, rs)
	tr := NewTracker(reg)
	ctx := context.Background()

	h, err := tr.CreateHabit(ctx, owner, models.Habit{Name: "Read", WeekStartDate: "2024-01-08"})
	require.NoError(t, err)

	done, err := tr.Toggle(ctx, owner, h.ID, day(2024, time.January, 9))
	require.NoError(t, err)
	assert.True(t, done)

	week := tr.CompletionsForWeek(ctx, owner, day(2024, time.January, 8))
	assert.Equal(t, map[string]map[string]bool{h.ID: {"2024-01-09": true}}, week)

	done, err = tr.Toggle(ctx, owner, h.ID, day(2024, time.January, 9))
	require.NoError(t, err)
	assert.False(t, done)
	assert.Empty(t, tr.CompletionsForWeek(ctx, owner, day(2024, time.January, 8)))
}

func TestCompletionsForWeekExcludesOtherWeeks(t *testing.T) {
	rs := memory.NewStore()
	tr := NewTracker(setupRegistry(t, rs))
	ctx := context.Background()

	for _, d := range []time.Time{day(2024, time.January, 7), day(2024, time.January, 8), day(2024, time.January, 14), day(2024, time.January, 15)} {
		_, err := tr.Toggle(ctx, owner, "h1", d)
		require.NoError(t, err)
	}

	week := tr.CompletionsForWeek(ctx, owner, day(2024, time.January, 10))
	assert.Equal(t, map[string]bool{"2024-01-08": true, "2024-01-14": true}, week["h1"])
}

func TestDeleteHabitCascadesCompletions(t *testing.T) {
	rs := memory.NewStore()
	reg := setupRegistry(t, rs)
	tr := NewTracker(reg)
	ctx := context.Background()

	h, err := tr.CreateHabit(ctx, owner, models.Habit{Name: "Read", WeekStartDate: "2024-01-08"})
	require.NoError(t, err)
	_, err = tr.Toggle(ctx, owner, h.ID, day(2024, time.January, 8))
	require.NoError(t, err)

	require.NoError(t, tr.DeleteHabit(ctx, owner, h.ID))
	assert.Empty(t, rs.Rows(constants.TableHabitCompletions))
	assert.Empty(t, rs.Rows(constants.TableHabits))
	assert.Empty(t, reg.Habits.Cached(ctx, owner))
}

func TestToggleOfflineFails(t *testing.T) {
	rs := memory.NewStore()
	tr := NewTracker(setupRegistry(t, rs))
	rs.SetOffline(true)

	_, err := tr.Toggle(context.Background(), owner, "h1", time.Now())
	assert.ErrorIs(t, err, repository.ErrWriteFailed)
}
