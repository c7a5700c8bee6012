// Package reminders expands notification settings into concrete triggers.
//
// A daily setting owns one trigger keyed by the setting id. A setting limited
// to some weekdays owns one weekly trigger per day keyed "{id}_{weekday}",
// with weekday the 0=Sunday..6=Saturday index. Rescheduling always cancels
// every key a setting could own before creating the new ones, so the
// scheduled set matches the setting's current fields.
package reminders

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/julianstephens/daylit-sync/internal/logger"
	"github.com/julianstephens/daylit-sync/internal/models"
	"github.com/julianstephens/daylit-sync/internal/observability"
	"github.com/julianstephens/daylit-sync/internal/repository"
	"github.com/julianstephens/daylit-sync/internal/utils"
)

var ErrInvalidWeekday = errors.New("invalid weekday")

// TimeOfDay is a wall-clock time in the scheduler's location.
type TimeOfDay struct {
	Hour   int
	Minute int
}

func ParseTimeOfDay(s string) (TimeOfDay, error) {
	h, m, err := utils.ParseTimeOfDay(s)
	if err != nil {
		return TimeOfDay{}, err
	}
	return TimeOfDay{Hour: h, Minute: m}, nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// Payload is what a fired trigger delivers.
type Payload struct {
	SettingID string                  `json:"setting_id"`
	Type      models.NotificationType `json:"type"`
	Title     string                  `json:"title"`
	Body      string                  `json:"body"`
}

// TriggerBackend registers triggers by id. Weekly weekdays use the backend
// convention 1=Sunday..7=Saturday.
type TriggerBackend interface {
	ScheduleDaily(ctx context.Context, id string, at TimeOfDay, payload Payload) error
	ScheduleWeekly(ctx context.Context, id string, weekday int, at TimeOfDay, payload Payload) error
	Cancel(ctx context.Context, id string) error
	ListScheduled(ctx context.Context) ([]string, error)
}

// ToTriggerWeekday converts a 0=Sunday..6=Saturday index to the backend's
// 1=Sunday..7=Saturday convention.
func ToTriggerWeekday(d int) (int, error) {
	if d < 0 || d > 6 {
		return 0, fmt.Errorf("%w: %d (expected 0..6)", ErrInvalidWeekday, d)
	}
	return d + 1, nil
}

// FromTriggerWeekday is the inverse of ToTriggerWeekday.
func FromTriggerWeekday(w int) (int, error) {
	if w < 1 || w > 7 {
		return 0, fmt.Errorf("%w: %d (expected 1..7)", ErrInvalidWeekday, w)
	}
	return w - 1, nil
}

// TriggerKey returns the trigger id for one weekday of a setting.
func TriggerKey(settingID string, weekday int) string {
	return settingID + "_" + strconv.Itoa(weekday)
}

// BelongsTo reports whether triggerID is the daily trigger of settingID or
// one of its weekday triggers.
func BelongsTo(triggerID, settingID string) bool {
	if triggerID == settingID {
		return true
	}
	day, ok := strings.CutPrefix(triggerID, settingID+"_")
	return ok && len(day) == 1 && day[0] >= '0' && day[0] <= '6'
}

// PayloadFor builds the delivered message, preferring the setting's custom
// text over the type's default body.
func PayloadFor(s models.NotificationSetting) Payload {
	msg, ok := defaultMessages[s.Type]
	if !ok {
		msg = message{"daylit reminder", "You have a reminder."}
	}
	body := msg.body
	if text := strings.TrimSpace(s.CustomText); text != "" {
		body = text
	}
	return Payload{SettingID: s.ID, Type: s.Type, Title: msg.title, Body: body}
}

type message struct {
	title string
	body  string
}

var defaultMessages = map[models.NotificationType]message{
	models.NotificationMeal:       {"Meal time", "Time to log your meal."},
	models.NotificationHabit:      {"Habits", "Check off today's habits."},
	models.NotificationPriority:   {"Priorities", "Review this week's priorities."},
	models.NotificationReflection: {"Reflection", "Take a minute to reflect on your day."},
	models.NotificationTimeBlock:  {"Time block", "Your next time block is starting."},
	models.NotificationStretching: {"Stretch break", "Time to stretch."},
	models.NotificationExpense:    {"Expenses", "Log today's expenses."},
}

// Expander keeps a TriggerBackend in step with notification settings.
type Expander struct {
	backend  TriggerBackend
	settings *repository.Repository[models.NotificationSetting]

	mu sync.Mutex
	// owners maps the triggers scheduled through this expander to their
	// setting. Triggers it did not create are matched by key shape.
	owners map[string]string
}

func NewExpander(backend TriggerBackend, settings *repository.Repository[models.NotificationSetting]) *Expander {
	return &Expander{
		backend:  backend,
		settings: settings,
		owners:   make(map[string]string),
	}
}

// owns reports whether triggerID belongs to settingID.
func (e *Expander) owns(triggerID, settingID string) bool {
	e.mu.Lock()
	owner, tracked := e.owners[triggerID]
	e.mu.Unlock()
	if tracked {
		return owner == settingID
	}
	return BelongsTo(triggerID, settingID)
}

func (e *Expander) track(triggerID, settingID string) {
	e.mu.Lock()
	e.owners[triggerID] = settingID
	e.mu.Unlock()
}

func (e *Expander) untrack(triggerID string) {
	e.mu.Lock()
	delete(e.owners, triggerID)
	e.mu.Unlock()
}

// Schedule replaces every trigger of the setting with the ones its current
// fields imply. A disabled setting ends with no triggers.
func (e *Expander) Schedule(ctx context.Context, s models.NotificationSetting) error {
	if s.ID == "" {
		return errors.New("notification setting has no id")
	}
	if err := e.Cancel(ctx, s.ID); err != nil {
		return err
	}
	if !s.Enabled {
		return nil
	}

	if err := models.ValidateWeekdays(s.DaysOfWeek); err != nil {
		return err
	}
	at, err := ParseTimeOfDay(s.Time)
	if err != nil {
		return err
	}
	payload := PayloadFor(s)

	if s.IsDaily() {
		if err := e.backend.ScheduleDaily(ctx, s.ID, at, payload); err != nil {
			return err
		}
		e.track(s.ID, s.ID)
		return nil
	}

	for _, d := range models.DistinctWeekdays(s.DaysOfWeek) {
		w, err := ToTriggerWeekday(d)
		if err != nil {
			return err
		}
		key := TriggerKey(s.ID, d)
		if err := e.backend.ScheduleWeekly(ctx, key, w, at, payload); err != nil {
			return fmt.Errorf("schedule %s: %w", key, err)
		}
		e.track(key, s.ID)
	}
	return nil
}

// Cancel removes the setting's daily trigger and every weekday variant.
func (e *Expander) Cancel(ctx context.Context, settingID string) error {
	scheduled, err := e.backend.ListScheduled(ctx)
	if err != nil {
		return fmt.Errorf("list scheduled triggers: %w", err)
	}

	var errs []error
	for _, id := range scheduled {
		if !e.owns(id, settingID) {
			continue
		}
		if err := e.backend.Cancel(ctx, id); err != nil {
			errs = append(errs, fmt.Errorf("cancel %s: %w", id, err))
			continue
		}
		e.untrack(id)
	}
	return errors.Join(errs...)
}

// SyncReport summarizes one Sync pass.
type SyncReport struct {
	Settings  int
	Scheduled int
	Orphans   int
}

// Sync reschedules every notification setting of owner and cancels triggers
// whose setting no longer exists. Settings are read through the repository,
// so an unreachable remote schedules from the cached rows.
func (e *Expander) Sync(ctx context.Context, owner string) (SyncReport, error) {
	var report SyncReport
	if owner == "" {
		return report, repository.ErrUnauthenticated
	}

	settings := e.settings.GetAll(ctx, owner)
	report.Settings = len(settings)

	var errs []error
	for _, s := range settings {
		if err := e.Schedule(ctx, s); err != nil {
			logger.Warn("Failed to schedule reminder", "setting_id", s.ID, "type", s.Type, "error", err)
			errs = append(errs, err)
		}
	}

	scheduled, err := e.backend.ListScheduled(ctx)
	if err != nil {
		return report, errors.Join(append(errs, err)...)
	}
	for _, id := range scheduled {
		if e.ownedByAny(id, settings) {
			continue
		}
		if err := e.backend.Cancel(ctx, id); err != nil {
			errs = append(errs, fmt.Errorf("cancel orphan %s: %w", id, err))
			continue
		}
		e.untrack(id)
		report.Orphans++
	}

	if remaining, err := e.backend.ListScheduled(ctx); err == nil {
		report.Scheduled = len(remaining)
		observability.SetTriggersScheduled(len(remaining))
	}
	logger.Info("Synced reminders", "owner", owner, "settings", report.Settings, "scheduled", report.Scheduled, "orphans", report.Orphans)
	return report, errors.Join(errs...)
}

func (e *Expander) ownedByAny(triggerID string, settings []models.NotificationSetting) bool {
	for _, s := range settings {
		if e.owns(triggerID, s.ID) {
			return true
		}
	}
	return false
}

// Scheduled returns the backend's trigger ids in order.
func (e *Expander) Scheduled(ctx context.Context) ([]string, error) {
	ids, err := e.backend.ListScheduled(ctx)
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)
	return ids, nil
}
