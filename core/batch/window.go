package batch

import "time"

// Window is a closed [Start, End] time interval.
type Window struct {
	Start time.Time
	End   time.Time
}

func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// WeekWindow returns the Monday-Sunday calendar week exactly `weeks` weeks
// before `now`, in now's location. E.g. for now = Monday 2025-03-10 and
// weeks = 9, the window spans 2025-01-06 through 2025-01-12.
func WeekWindow(now time.Time, weeks int) Window {
	target := now.AddDate(0, 0, -7*weeks)
	sinceMonday := (int(target.Weekday()) + 6) % 7
	monday := time.Date(target.Year(), target.Month(), target.Day()-sinceMonday, 0, 0, 0, 0, target.Location())
	return Window{
		Start: monday,
		End:   monday.AddDate(0, 0, 7).Add(-time.Nanosecond),
	}
}
