package ranking

import (
	"fmt"
	"strings"
	"time"
)

// Window is a named leaderboard time range ending now
type Window string

// Window presets
const (
	WindowDaily   Window = "daily"
	WindowWeekly  Window = "weekly"
	WindowMonthly Window = "monthly"
	WindowYearly  Window = "yearly"
	WindowAll     Window = "all"
)

// Windows lists every preset
var Windows = []Window{WindowDaily, WindowWeekly, WindowMonthly, WindowYearly, WindowAll}

// ParseWindow converts a string into a Window
func ParseWindow(value string) (Window, error) {
	w := Window(strings.ToLower(strings.TrimSpace(value)))
	switch w {
	case WindowDaily, WindowWeekly, WindowMonthly, WindowYearly, WindowAll:
		return w, nil
	case "all-time", "alltime", "all_time":
		return WindowAll, nil
	}
	return "", fmt.Errorf("unknown leaderboard window: %q", value)
}

// Bounds returns the inclusive [from, to] range of the window ending at now
func (w Window) Bounds(now time.Time) (time.Time, time.Time) {
	switch w {
	case WindowDaily:
		return now.AddDate(0, 0, -1), now
	case WindowWeekly:
		return now.AddDate(0, 0, -7), now
	case WindowMonthly:
		return now.AddDate(0, -1, 0), now
	case WindowYearly:
		return now.AddDate(-1, 0, 0), now
	default:
		return time.Unix(0, 0).UTC(), now
	}
}

// RankKey is the user-record key the window's rank is persisted under
func (w Window) RankKey() string {
	if w == WindowAll {
		return "allTimeRank"
	}
	return string(w) + "Rank"
}
