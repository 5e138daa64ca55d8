package attendance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/andresmejia3/veriface/internal/biometric"
	"github.com/andresmejia3/veriface/internal/types"
)

func manila(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Manila")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	return loc
}

func TestStatus(t *testing.T) {
	loc := manila(t)
	p, err := NewCutoffPolicy(loc, 9, 0)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		at   time.Time
		want string
	}{
		{"early", time.Date(2026, 3, 2, 7, 45, 0, 0, loc), StatusPresent},
		{"one minute before", time.Date(2026, 3, 2, 8, 59, 59, 0, loc), StatusPresent},
		{"on the cutoff", time.Date(2026, 3, 2, 9, 0, 0, 0, loc), StatusLate},
		{"afternoon", time.Date(2026, 3, 2, 14, 10, 0, 0, loc), StatusLate},
		// 00:30 UTC is 08:30 in Manila
		{"utc input", time.Date(2026, 3, 2, 0, 30, 0, 0, time.UTC), StatusPresent},
		{"utc late", time.Date(2026, 3, 2, 1, 0, 0, 0, time.UTC), StatusLate},
	}
	for _, tt := range tests {
		if got := p.Status(tt.at); got != tt.want {
			t.Errorf("%s: Status(%v) = %s, want %s", tt.name, tt.at, got, tt.want)
		}
	}
}

func TestClock(t *testing.T) {
	loc := manila(t)
	p, _ := NewCutoffPolicy(loc, 9, 0)

	tests := map[time.Time]string{
		time.Date(2026, 3, 2, 0, 5, 0, 0, loc):  "12:05 AM",
		time.Date(2026, 3, 2, 9, 0, 0, 0, loc):  "9:00 AM",
		time.Date(2026, 3, 2, 12, 0, 0, 0, loc): "12:00 PM",
		time.Date(2026, 3, 2, 23, 7, 0, 0, loc): "11:07 PM",
	}
	for at, want := range tests {
		if got := p.Clock(at); got != want {
			t.Errorf("Clock(%v) = %q, want %q", at, got, want)
		}
	}
}

func TestNewCutoffPolicyRejectsBadTimes(t *testing.T) {
	for _, hm := range [][2]int{{24, 0}, {-1, 0}, {9, 60}} {
		if _, err := NewCutoffPolicy(time.UTC, hm[0], hm[1]); err == nil {
			t.Errorf("Expected error for %v", hm)
		}
	}
}

type fakeRecorder struct {
	recs []types.AttendanceRecord
	err  error
}

func (f *fakeRecorder) RecordAttendance(_ context.Context, rec types.AttendanceRecord) error {
	if f.err != nil {
		return f.err
	}
	f.recs = append(f.recs, rec)
	return nil
}

func TestHookRecordsMatch(t *testing.T) {
	at := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	p := &CutoffPolicy{Location: time.UTC, Hour: 9, Now: func() time.Time { return at }}
	rec := &fakeRecorder{}

	res := biometric.MatchResult{AttemptID: "a-1", Identity: "alice", Score: 0.91}
	if err := p.Hook(rec)(context.Background(), res); err != nil {
		t.Fatal(err)
	}

	if len(rec.recs) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(rec.recs))
	}
	got := rec.recs[0]
	want := types.AttendanceRecord{Identity: "alice", AttemptID: "a-1", Status: StatusLate, Score: 0.91, At: at}
	if got != want {
		t.Errorf("Record = %+v, want %+v", got, want)
	}
}

func TestHookWrapsStoreError(t *testing.T) {
	boom := errors.New("disk full")
	p := &CutoffPolicy{Location: time.UTC, Hour: 9}
	err := p.Hook(&fakeRecorder{err: boom})(context.Background(), biometric.MatchResult{Identity: "bob"})
	if !errors.Is(err, boom) {
		t.Errorf("Expected wrapped store error, got %v", err)
	}
}

func TestSummarize(t *testing.T) {
	recs := []types.AttendanceRecord{
		{Status: StatusPresent}, {Status: StatusLate}, {Status: StatusPresent}, {Status: "excused"},
	}
	s := Summarize(recs)
	if s != (Stats{Total: 4, Present: 2, Late: 1}) {
		t.Errorf("Summarize = %+v", s)
	}
	if s.LatePercent() != 25 {
		t.Errorf("LatePercent = %d", s.LatePercent())
	}
	if (Stats{}).LatePercent() != 0 {
		t.Error("Empty stats should be 0%")
	}
}
