package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
)

// ScheduleStatus is the booking lifecycle state.
type ScheduleStatus string

const (
	SchedulePending   ScheduleStatus = "pending"
	ScheduleActive    ScheduleStatus = "active"
	ScheduleCompleted ScheduleStatus = "completed"
	ScheduleCancelled ScheduleStatus = "cancelled"
)

// Weekday is an uppercase day name used in recurrence rules.
type Weekday string

const (
	Monday    Weekday = "MONDAY"
	Tuesday   Weekday = "TUESDAY"
	Wednesday Weekday = "WEDNESDAY"
	Thursday  Weekday = "THURSDAY"
	Friday    Weekday = "FRIDAY"
	Saturday  Weekday = "SATURDAY"
	Sunday    Weekday = "SUNDAY"
)

var weekdayByName = map[string]Weekday{
	"MONDAY": Monday, "TUESDAY": Tuesday, "WEDNESDAY": Wednesday,
	"THURSDAY": Thursday, "FRIDAY": Friday, "SATURDAY": Saturday, "SUNDAY": Sunday,
}

// ParseWeekday normalises and validates a weekday name.
func ParseWeekday(raw string) (Weekday, bool) {
	w, ok := weekdayByName[strings.ToUpper(strings.TrimSpace(raw))]
	return w, ok
}

// WeekdayOf maps a calendar date to its recurrence weekday.
func WeekdayOf(t time.Time) Weekday {
	switch t.Weekday() {
	case time.Monday:
		return Monday
	case time.Tuesday:
		return Tuesday
	case time.Wednesday:
		return Wednesday
	case time.Thursday:
		return Thursday
	case time.Friday:
		return Friday
	case time.Saturday:
		return Saturday
	default:
		return Sunday
	}
}

// ParseClock converts "HH:MM" into minutes since midnight.
func ParseClock(raw string) (int, error) {
	parts := strings.SplitN(strings.TrimSpace(raw), ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("clock value %q must be HH:MM", raw)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("clock value %q has invalid hour", raw)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("clock value %q has invalid minute", raw)
	}
	return h*60 + m, nil
}

// DateOnly truncates a timestamp to its UTC calendar date.
func DateOnly(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Schedule is a time-bounded reservation of one spot. A recurring
// schedule occupies every date on or after its creation date whose
// weekday is listed in RecurringDays; a one-shot schedule occupies only
// Date. Time intervals are half-open [start, end) so back-to-back
// bookings never collide.
type Schedule struct {
	ID            string         `db:"id" json:"id"`
	UserID        string         `db:"user_id" json:"user_id"`
	VehicleID     *string        `db:"vehicle_id" json:"vehicle_id,omitempty"`
	LotID         string         `db:"lot_id" json:"lot_id"`
	SpotLabel     string         `db:"spot_label" json:"spot_label"`
	Date          time.Time      `db:"date" json:"date"`
	StartTime     string         `db:"start_time" json:"start_time"`
	EndTime       string         `db:"end_time" json:"end_time"`
	IsRecurring   bool           `db:"is_recurring" json:"is_recurring"`
	RecurringDays pq.StringArray `db:"recurring_days" json:"recurring_days,omitempty"`
	Status        ScheduleStatus `db:"status" json:"status"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at" json:"updated_at"`
}

// clockMinutes returns the parsed interval bounds. Values are validated
// on the way in, so parse failures degrade to an empty interval.
func (s *Schedule) clockMinutes() (int, int) {
	start, err := ParseClock(s.StartTime)
	if err != nil {
		return 0, 0
	}
	end, err := ParseClock(s.EndTime)
	if err != nil {
		return 0, 0
	}
	return start, end
}

func (s *Schedule) weekdaySet() map[Weekday]struct{} {
	set := make(map[Weekday]struct{}, len(s.RecurringDays))
	for _, d := range s.RecurringDays {
		if w, ok := ParseWeekday(d); ok {
			set[w] = struct{}{}
		}
	}
	return set
}

// OccursOn reports whether the schedule is in effect on the given
// calendar date, ignoring lifecycle status.
func (s *Schedule) OccursOn(date time.Time) bool {
	date = DateOnly(date)
	if !s.IsRecurring {
		return !s.Date.IsZero() && DateOnly(s.Date).Equal(date)
	}
	if date.Before(DateOnly(s.CreatedAt)) {
		return false
	}
	_, ok := s.weekdaySet()[WeekdayOf(date)]
	return ok
}

// CoversInstant reports whether an occurrence of the schedule contains
// the given timestamp.
func (s *Schedule) CoversInstant(at time.Time) bool {
	at = at.UTC()
	if !s.OccursOn(at) {
		return false
	}
	start, end := s.clockMinutes()
	minute := at.Hour()*60 + at.Minute()
	return minute >= start && minute < end
}

// OccurrencePassed reports whether the occurrence on the given date has
// fully elapsed at the given instant.
func (s *Schedule) OccurrencePassed(date, at time.Time) bool {
	if !s.OccursOn(date) {
		return false
	}
	_, end := s.clockMinutes()
	at = at.UTC()
	if DateOnly(at).After(DateOnly(date)) {
		return true
	}
	if !DateOnly(at).Equal(DateOnly(date)) {
		return false
	}
	return at.Hour()*60+at.Minute() >= end
}

// ConflictsWith reports whether two schedules on the same spot share at
// least one date on which both are in effect with intersecting time
// intervals. Lifecycle status is deliberately not consulted; callers
// exclude cancelled schedules.
func (s *Schedule) ConflictsWith(other *Schedule) bool {
	aStart, aEnd := s.clockMinutes()
	bStart, bEnd := other.clockMinutes()
	if aStart >= bEnd || bStart >= aEnd {
		return false
	}

	switch {
	case !s.IsRecurring && !other.IsRecurring:
		return DateOnly(s.Date).Equal(DateOnly(other.Date))
	case s.IsRecurring && !other.IsRecurring:
		return s.OccursOn(other.Date)
	case !s.IsRecurring && other.IsRecurring:
		return other.OccursOn(s.Date)
	default:
		// Two open-ended weekly rules share infinitely many dates as
		// soon as their weekday sets intersect.
		mine := s.weekdaySet()
		for w := range other.weekdaySet() {
			if _, ok := mine[w]; ok {
				return true
			}
		}
		return false
	}
}

// ScheduleFilter describes query params for listing schedules.
type ScheduleFilter struct {
	LotID     string
	SpotLabel string
	UserID    string
	Status    string
	Date      string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// ScheduleConflict identifies the committed schedule a proposal collides with.
type ScheduleConflict struct {
	ScheduleID string    `json:"conflicting_schedule_id"`
	SpotLabel  string    `json:"spot_label"`
	Date       time.Time `json:"date"`
	StartTime  string    `json:"start_time"`
	EndTime    string    `json:"end_time"`
	Recurring  bool      `json:"is_recurring"`
}

// ScheduleConflictError is returned when a proposal overlaps an existing
// non-cancelled schedule on the same spot.
type ScheduleConflictError struct {
	Message  string           `json:"message"`
	Conflict ScheduleConflict `json:"conflict"`
}

// Error implements the error interface for conflict errors.
func (e *ScheduleConflictError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return e.Message
}
