// Package attendance turns accepted matches into attendance records.
package attendance

import (
	"context"
	"fmt"
	"time"

	"github.com/andresmejia3/veriface/internal/biometric"
	"github.com/andresmejia3/veriface/internal/types"
)

// Statuses written to the attendance log.
const (
	StatusPresent = "present"
	StatusLate    = "late"
)

// Recorder persists attendance records.
type Recorder interface {
	RecordAttendance(ctx context.Context, rec types.AttendanceRecord) error
}

// CutoffPolicy marks a check-in late at or after Hour:Minute in Location.
type CutoffPolicy struct {
	Location *time.Location
	Hour     int
	Minute   int

	// Now defaults to time.Now.
	Now func() time.Time
}

// NewCutoffPolicy validates the cutoff and returns a policy.
func NewCutoffPolicy(loc *time.Location, hour, minute int) (*CutoffPolicy, error) {
	if loc == nil {
		loc = time.Local
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return nil, fmt.Errorf("invalid cutoff %02d:%02d", hour, minute)
	}
	return &CutoffPolicy{Location: loc, Hour: hour, Minute: minute}, nil
}

func (p *CutoffPolicy) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func (p *CutoffPolicy) local(t time.Time) time.Time {
	if p.Location == nil {
		return t
	}
	return t.In(p.Location)
}

// Status classifies a check-in time.
func (p *CutoffPolicy) Status(t time.Time) string {
	lt := p.local(t)
	if lt.Hour()*60+lt.Minute() >= p.Hour*60+p.Minute {
		return StatusLate
	}
	return StatusPresent
}

// Clock formats t as a 12-hour wall clock in the policy's location, e.g. "9:05 AM".
func (p *CutoffPolicy) Clock(t time.Time) string {
	return p.local(t).Format("3:04 PM")
}

// Record builds the attendance entry for an accepted match at the current time.
func (p *CutoffPolicy) Record(res biometric.MatchResult) types.AttendanceRecord {
	at := p.now()
	return types.AttendanceRecord{
		Identity:  res.Identity,
		AttemptID: res.AttemptID,
		Status:    p.Status(at),
		Score:     res.Score,
		At:        at,
	}
}

// Hook returns a match hook that writes one record per accepted match to rec.
func (p *CutoffPolicy) Hook(rec Recorder) func(context.Context, biometric.MatchResult) error {
	return func(ctx context.Context, res biometric.MatchResult) error {
		r := p.Record(res)
		if err := rec.RecordAttendance(ctx, r); err != nil {
			return fmt.Errorf("record attendance for %s: %w", res.Identity, err)
		}
		return nil
	}
}

// Stats counts records by status.
type Stats struct {
	Total   int
	Present int
	Late    int
}

// Summarize tallies records.
func Summarize(recs []types.AttendanceRecord) Stats {
	var s Stats
	for _, r := range recs {
		s.Total++
		switch r.Status {
		case StatusPresent:
			s.Present++
		case StatusLate:
			s.Late++
		}
	}
	return s
}

// LatePercent is the rounded share of late check-ins.
func (s Stats) LatePercent() int {
	if s.Total == 0 {
		return 0
	}
	return (s.Late*100 + s.Total/2) / s.Total
}
