package collector

import (
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

// Window is one contiguous, inclusive date range submitted as a single fetch.
// Both bounds are UTC midnight.
type Window struct {
	Start time.Time
	End   time.Time
}

func NewWindow(start, end time.Time) Window {
	return Window{Start: midnight(start), End: midnight(end)}
}

func (w Window) Days() int {
	return int(w.End.Sub(w.Start)/(24*time.Hour)) + 1
}

func (w Window) SingleDay() bool {
	return w.Start.Equal(w.End)
}

// Split bisects the window at its midpoint into two contiguous halves that
// partition the original range exactly.
func (w Window) Split() (Window, Window) {
	mid := w.Start.AddDate(0, 0, w.Days()/2-1)
	return Window{Start: w.Start, End: mid}, Window{Start: mid.AddDate(0, 0, 1), End: w.End}
}

func (w Window) String() string {
	return fmt.Sprintf("[%s..%s]", w.Start.Format(dateLayout), w.End.Format(dateLayout))
}

func midnight(t time.Time) time.Time {
	utc := t.UTC()
	return time.Date(utc.Year(), utc.Month(), utc.Day(), 0, 0, 0, 0, time.UTC)
}
