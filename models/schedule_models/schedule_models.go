package schedule_models

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/joy095/roomslot/config/db"
	"github.com/joy095/roomslot/logger"
)

const (
	DateLayout    = "2006-01-02"
	MinutesPerDay = 24 * 60
)

var ErrRoomNotFound = errors.New("room not found")

// Window is one weekday's operating hours as HH:MM wall-clock strings.
// An empty pair means the room is closed that weekday. End may be "24:00".
type Window struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

func (w Window) IsClosed() bool { return w.Start == "" && w.End == "" }

// Minutes returns the window bounds as minutes since midnight.
func (w Window) Minutes() (int, int, error) {
	start, err := ParseClock(w.Start)
	if err != nil {
		return 0, 0, err
	}
	end, err := ParseClock(w.End)
	if err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

// RoomScheduleConfig is owned by the listing service; this core only reads it.
type RoomScheduleConfig struct {
	RoomID          uuid.UUID               `json:"room_id"`
	Weekdays        map[time.Weekday]Window `json:"weekdays"`
	BlockedDates    []string                `json:"blocked_dates"`
	BlockedWeekdays []time.Weekday          `json:"blocked_weekdays"`
	CooldownMinutes int                     `json:"cooldown_minutes"`
	FullDayHours    int                     `json:"full_day_hours"`
}

// WindowFor returns the operating window for a weekday and whether it is open.
func (c RoomScheduleConfig) WindowFor(wd time.Weekday) (Window, bool) {
	w, ok := c.Weekdays[wd]
	if !ok || w.IsClosed() {
		return Window{}, false
	}
	return w, true
}

func (c RoomScheduleConfig) IsBlockedDate(date string) bool {
	return slices.Contains(c.BlockedDates, date)
}

func (c RoomScheduleConfig) IsBlockedWeekday(wd time.Weekday) bool {
	return slices.Contains(c.BlockedWeekdays, wd)
}

// IsBlockedDay reports whether a whole calendar day is unavailable.
func (c RoomScheduleConfig) IsBlockedDay(date string, wd time.Weekday) bool {
	return c.IsBlockedDate(date) || c.IsBlockedWeekday(wd)
}

func (c RoomScheduleConfig) Cooldown() int {
	if c.CooldownMinutes < 0 {
		return 0
	}
	return c.CooldownMinutes
}

// Validate checks that every open window has start < end and that dates parse.
func (c RoomScheduleConfig) Validate() error {
	var errs []error
	for wd, w := range c.Weekdays {
		if w.IsClosed() {
			continue
		}
		if w.Start == "" || w.End == "" {
			errs = append(errs, fmt.Errorf("%s: both start and end are required", wd))
			continue
		}
		start, end, err := w.Minutes()
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", wd, err))
			continue
		}
		if start >= end {
			errs = append(errs, fmt.Errorf("%s: start %s must be before end %s", wd, w.Start, w.End))
		}
	}
	for _, d := range c.BlockedDates {
		if _, err := time.Parse(DateLayout, d); err != nil {
			errs = append(errs, fmt.Errorf("blocked date %q: %w", d, err))
		}
	}
	for _, wd := range c.BlockedWeekdays {
		if wd < time.Sunday || wd > time.Saturday {
			errs = append(errs, fmt.Errorf("blocked weekday %d out of range", wd))
		}
	}
	if c.CooldownMinutes < 0 {
		errs = append(errs, errors.New("cooldown minutes must not be negative"))
	}
	if c.FullDayHours < 0 {
		errs = append(errs, errors.New("full day hours must not be negative"))
	}
	return errors.Join(errs...)
}

// ParseClock parses HH:MM into minutes since midnight. "24:00" is accepted.
func ParseClock(s string) (int, error) {
	hh, mm, ok := strings.Cut(s, ":")
	if !ok || len(hh) != 2 || len(mm) != 2 {
		return 0, fmt.Errorf("invalid time %q: expected HH:MM", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	if h < 0 || m < 0 || m > 59 || h > 24 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("invalid time %q", s)
	}
	return h*60 + m, nil
}

// FormatClock renders minutes since midnight as HH:MM.
func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// Rates are in minor units of the room currency.
type Rates struct {
	HourlyRate        int64 `json:"hourly_rate"`
	FullDayRate       int64 `json:"full_day_rate"`
	ProtectionPlanFee int64 `json:"protection_plan_fee"`
}

// Room is the slice of a listing this core needs.
type Room struct {
	ID        uuid.UUID          `json:"id"`
	HostID    uuid.UUID          `json:"host_id"`
	Currency  string             `json:"currency"`
	Rates     Rates              `json:"rates"`
	Schedule  RoomScheduleConfig `json:"schedule"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// GetRoomByID fetches a room and its schedule configuration.
func GetRoomByID(ctx context.Context, q db.Querier, roomID uuid.UUID) (*Room, error) {
	logger.DebugLogger.Debugf("Attempting to fetch room %s", roomID)

	query := `
		SELECT id, host_id, currency, hourly_rate, full_day_rate, protection_plan_fee, schedule, updated_at
		FROM rooms
		WHERE id = $1`

	room := &Room{}
	var schedule []byte
	err := q.QueryRow(ctx, query, roomID).Scan(
		&room.ID,
		&room.HostID,
		&room.Currency,
		&room.Rates.HourlyRate,
		&room.Rates.FullDayRate,
		&room.Rates.ProtectionPlanFee,
		&schedule,
		&room.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRoomNotFound
		}
		logger.ErrorLogger.Errorf("Failed to fetch room %s: %v", roomID, err)
		return nil, fmt.Errorf("database error fetching room: %w", err)
	}

	if err := json.Unmarshal(schedule, &room.Schedule); err != nil {
		return nil, fmt.Errorf("invalid schedule for room %s: %w", roomID, err)
	}
	room.Schedule.RoomID = room.ID
	return room, nil
}

// UpsertRoom mirrors a listing into the rooms table. Used by seeding and tests.
func UpsertRoom(ctx context.Context, q db.Querier, room *Room) error {
	schedule, err := json.Marshal(room.Schedule)
	if err != nil {
		return fmt.Errorf("failed to encode schedule: %w", err)
	}

	query := `
		INSERT INTO rooms (id, host_id, currency, hourly_rate, full_day_rate, protection_plan_fee, schedule, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (id) DO UPDATE SET
			host_id = EXCLUDED.host_id,
			currency = EXCLUDED.currency,
			hourly_rate = EXCLUDED.hourly_rate,
			full_day_rate = EXCLUDED.full_day_rate,
			protection_plan_fee = EXCLUDED.protection_plan_fee,
			schedule = EXCLUDED.schedule,
			updated_at = now()`

	_, err = q.Exec(ctx, query,
		room.ID, room.HostID, room.Currency,
		room.Rates.HourlyRate, room.Rates.FullDayRate, room.Rates.ProtectionPlanFee,
		schedule,
	)
	if err != nil {
		logger.ErrorLogger.Errorf("Failed to upsert room %s: %v", room.ID, err)
		return fmt.Errorf("failed to upsert room: %w", err)
	}
	return nil
}
