// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var ErrInvalidDuration = errors.New("invalid duration")

const day = 24 * time.Hour

var durationUnits = map[string]time.Duration{
	"s": time.Second, "sec": time.Second, "secs": time.Second, "second": time.Second, "seconds": time.Second,
	"m": time.Minute, "min": time.Minute, "mins": time.Minute, "minute": time.Minute, "minutes": time.Minute,
	"h": time.Hour, "hour": time.Hour, "hours": time.Hour,
	"d": day, "day": day, "days": day,
	"w": 7 * day, "week": 7 * day, "weeks": 7 * day,
	"month": 30 * day, "months": 30 * day,
	"year": 365 * day, "years": 365 * day,
}

// ParseRelativeDuration parses Go durations ("36h") as well as relative
// phrases such as "15 days", "+2 hours" or "1 week 3 days". Months count as
// 30 days and years as 365 days.
func ParseRelativeDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidDuration)
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}

	fields := strings.Fields(strings.ToLower(strings.ReplaceAll(s, ",", " ")))
	var total time.Duration
	for i := 0; i < len(fields); i++ {
		number, unit := splitAmount(fields[i])
		if unit == "" {
			if i+1 >= len(fields) {
				return 0, fmt.Errorf("%w: %q has no unit", ErrInvalidDuration, s)
			}
			i++
			unit = fields[i]
		}

		n, err := strconv.ParseInt(number, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, s)
		}
		size, ok := durationUnits[unit]
		if !ok {
			return 0, fmt.Errorf("%w: unknown unit %q", ErrInvalidDuration, unit)
		}
		total += time.Duration(n) * size
	}
	return total, nil
}

// splitAmount separates "15days" into "15" and "days". A bare number returns
// an empty unit.
func splitAmount(field string) (number, unit string) {
	end := 0
	for end < len(field) {
		c := field[end]
		if (c >= '0' && c <= '9') || (end == 0 && (c == '+' || c == '-')) {
			end++
			continue
		}
		break
	}
	return field[:end], field[end:]
}
