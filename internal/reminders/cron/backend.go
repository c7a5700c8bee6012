// Package cron runs reminder triggers in-process with robfig/cron.
package cron

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/julianstephens/daylit-sync/internal/logger"
	"github.com/julianstephens/daylit-sync/internal/reminders"
)

// Deliverer shows a fired reminder to the user.
type Deliverer interface {
	Deliver(ctx context.Context, p reminders.Payload) error
}

// DelivererFunc adapts a function to Deliverer.
type DelivererFunc func(ctx context.Context, p reminders.Payload) error

func (f DelivererFunc) Deliver(ctx context.Context, p reminders.Payload) error {
	return f(ctx, p)
}

// LogDeliverer only logs fired reminders. Used for dry runs.
type LogDeliverer struct{}

func (LogDeliverer) Deliver(_ context.Context, p reminders.Payload) error {
	logger.Info("Reminder fired", "setting_id", p.SettingID, "type", p.Type, "title", p.Title, "body", p.Body)
	return nil
}

type trigger struct {
	entry   cron.EntryID
	spec    string
	payload reminders.Payload
}

// Backend is a reminders.TriggerBackend with one cron entry per trigger id.
type Backend struct {
	mu        sync.Mutex
	cron      *cron.Cron
	triggers  map[string]trigger
	deliverer Deliverer
	timeout   time.Duration
}

type Option func(*Backend)

// WithLocation evaluates trigger times in loc instead of time.Local.
func WithLocation(loc *time.Location) Option {
	return func(b *Backend) {
		b.cron = cron.New(cron.WithLocation(loc))
	}
}

// WithDeliveryTimeout bounds each delivery.
func WithDeliveryTimeout(d time.Duration) Option {
	return func(b *Backend) {
		b.timeout = d
	}
}

func New(deliverer Deliverer, opts ...Option) *Backend {
	b := &Backend{
		cron:      cron.New(),
		triggers:  make(map[string]trigger),
		deliverer: deliverer,
		timeout:   10 * time.Second,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Start runs the scheduler in its own goroutine.
func (b *Backend) Start() {
	b.cron.Start()
}

// Stop halts the scheduler. The returned context is done once running
// deliveries finish.
func (b *Backend) Stop() context.Context {
	return b.cron.Stop()
}

// DailySpec is the cron expression for a trigger firing every day at at.
func DailySpec(at reminders.TimeOfDay) string {
	return fmt.Sprintf("%d %d * * *", at.Minute, at.Hour)
}

// WeeklySpec is the cron expression for a trigger on a backend weekday
// (1=Sunday..7=Saturday). Cron counts days of week from 0=Sunday.
func WeeklySpec(weekday int, at reminders.TimeOfDay) (string, error) {
	d, err := reminders.FromTriggerWeekday(weekday)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d %d * * %d", at.Minute, at.Hour, d), nil
}

func (b *Backend) ScheduleDaily(ctx context.Context, id string, at reminders.TimeOfDay, payload reminders.Payload) error {
	return b.add(id, DailySpec(at), payload)
}

func (b *Backend) ScheduleWeekly(ctx context.Context, id string, weekday int, at reminders.TimeOfDay, payload reminders.Payload) error {
	spec, err := WeeklySpec(weekday, at)
	if err != nil {
		return err
	}
	return b.add(id, spec, payload)
}

func (b *Backend) Cancel(ctx context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if t, ok := b.triggers[id]; ok {
		b.cron.Remove(t.entry)
		delete(b.triggers, id)
	}
	return nil
}

func (b *Backend) ListScheduled(ctx context.Context) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ids := make([]string, 0, len(b.triggers))
	for id := range b.triggers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Spec returns the cron expression registered for id.
func (b *Backend) Spec(id string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.triggers[id]
	return t.spec, ok
}

// Next returns when id fires next. It is zero until the scheduler starts.
func (b *Backend) Next(id string) time.Time {
	b.mu.Lock()
	t, ok := b.triggers[id]
	b.mu.Unlock()
	if !ok {
		return time.Time{}
	}
	return b.cron.Entry(t.entry).Next
}

// add registers spec under id, replacing an existing trigger with that id.
func (b *Backend) add(id, spec string, payload reminders.Payload) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry, err := b.cron.AddFunc(spec, func() { b.fire(id, payload) })
	if err != nil {
		return fmt.Errorf("invalid schedule %q for %s: %w", spec, id, err)
	}
	if old, ok := b.triggers[id]; ok {
		b.cron.Remove(old.entry)
	}
	b.triggers[id] = trigger{entry: entry, spec: spec, payload: payload}
	logger.Debug("Scheduled trigger", "id", id, "spec", spec)
	return nil
}

func (b *Backend) fire(id string, payload reminders.Payload) {
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()
	if err := b.deliverer.Deliver(ctx, payload); err != nil {
		logger.Warn("Failed to deliver reminder", "id", id, "error", err)
	}
}
