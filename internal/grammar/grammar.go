// Package grammar turns raw chat text into the typed inputs consumed by the
// relay core and the admin command handlers.
package grammar

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	ErrBadHours  = errors.New("hours value is not understood")
	ErrBadOffset = errors.New("utc offset must look like +03:00")
	ErrBadDate   = errors.New("date must look like DD.MM.YY")
)

// Region words have at least two letters or hyphens; tags are single letters.
var finalizePattern = regexp.MustCompile(`^(?P<regions>([\p{L}-]{2,}\s*)+)?\s*(?P<tags>(\p{L}\s+)*\p{L}$)?$`)

var queryPattern = regexp.MustCompile(`^(?P<regions>([\p{L}-]{2,}\s*)+([\p{L}-]{2,})?)?(?P<since>\s+\d+)?(?P<duration>\s+\d+)?\s*(?P<tags>(\p{L}\s+)*\p{L}$)?$`)

var offsetPattern = regexp.MustCompile(`^([+-])(\d{2}):(\d{2})$`)

// Finalize is a parsed classifying line. Tags is only meaningful together
// with Regions.
type Finalize struct {
	Regions string
	Tags    string
}

func ParseFinalize(text string) Finalize {
	match := finalizePattern.FindStringSubmatch(text)
	if match == nil {
		return Finalize{}
	}
	return Finalize{
		Regions: strings.TrimSpace(match[finalizePattern.SubexpIndex("regions")]),
		Tags:    strings.TrimSpace(match[finalizePattern.SubexpIndex("tags")]),
	}
}

// Query is a parsed private lookup: `<regions> [since-hours [duration-hours]] [tags]`.
type Query struct {
	Regions       string
	Tags          string
	SinceHours    int
	DurationHours int
	HasSince      bool
	HasDuration   bool
}

// Window converts the hour arguments into an explicit window ending no later
// than now. ok is false when no hours were given.
func (q Query) Window(now time.Time) (from, to time.Time, ok bool) {
	if !q.HasSince {
		return time.Time{}, time.Time{}, false
	}
	from = now.Add(-time.Duration(q.SinceHours) * time.Hour)
	if !q.HasDuration {
		return from, now, true
	}
	return from, from.Add(time.Duration(q.DurationHours) * time.Hour), true
}

func ParseQuery(text string) (Query, error) {
	match := queryPattern.FindStringSubmatch(strings.TrimSpace(text))
	if match == nil {
		return Query{}, nil
	}
	query := Query{
		Regions: strings.TrimSpace(match[queryPattern.SubexpIndex("regions")]),
		Tags:    strings.TrimSpace(match[queryPattern.SubexpIndex("tags")]),
	}
	if raw := strings.TrimSpace(match[queryPattern.SubexpIndex("since")]); raw != "" {
		hours, err := parseHours(raw)
		if err != nil {
			return Query{}, err
		}
		query.SinceHours = hours
		query.HasSince = true
	}
	if raw := strings.TrimSpace(match[queryPattern.SubexpIndex("duration")]); raw != "" {
		hours, err := parseHours(raw)
		if err != nil {
			return Query{}, err
		}
		query.DurationHours = hours
		query.HasDuration = true
	}
	return query, nil
}

// Hours beyond a century of history are rejected so the window math cannot overflow.
func parseHours(raw string) (int, error) {
	hours, err := strconv.Atoi(raw)
	if err != nil || hours > 24*365*100 {
		return 0, fmt.Errorf("%w: %q", ErrBadHours, raw)
	}
	return hours, nil
}

// Command is a slash command with its whitespace-separated arguments.
type Command struct {
	Name string
	Args []string
}

// ParseCommand recognises `/name[@bot] args...`.
func ParseCommand(text string) (Command, bool) {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "/") {
		return Command{}, false
	}
	fields := strings.Fields(strings.TrimPrefix(trimmed, "/"))
	if len(fields) == 0 {
		return Command{}, true
	}
	name := fields[0]
	if at := strings.Index(name, "@"); at >= 0 {
		name = name[:at]
	}
	return Command{Name: strings.ToLower(name), Args: fields[1:]}, true
}

// ParseOffset reads a fixed UTC offset such as "+03:00" or "-05:30".
func ParseOffset(raw string) (*time.Location, error) {
	raw = strings.TrimSpace(raw)
	match := offsetPattern.FindStringSubmatch(raw)
	if match == nil {
		return nil, fmt.Errorf("%w: %q", ErrBadOffset, raw)
	}
	hours, _ := strconv.Atoi(match[2])
	minutes, _ := strconv.Atoi(match[3])
	if hours > 14 || minutes > 59 {
		return nil, fmt.Errorf("%w: %q", ErrBadOffset, raw)
	}
	seconds := hours*3600 + minutes*60
	if match[1] == "-" {
		seconds = -seconds
	}
	return time.FixedZone(raw, seconds), nil
}

// ParseDate reads DD.MM.YY as midnight in location.
func ParseDate(raw string, location *time.Location) (time.Time, error) {
	day, err := time.ParseInLocation("02.01.06", strings.TrimSpace(raw), location)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrBadDate, raw)
	}
	return day, nil
}

// StartOfDay returns midnight of now's calendar day in location.
func StartOfDay(now time.Time, location *time.Location) time.Time {
	local := now.In(location)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, location)
}
