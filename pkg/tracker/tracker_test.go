package tracker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		name     string
		d        time.Duration
		expected string
	}{
		{"seconds", 30 * time.Second, "30.00 sec"},
		{"sub-second", 500 * time.Millisecond, "0.50 sec"},
		{"minutes", 90 * time.Second, "1.50 min"},
		{"hours", 2 * time.Hour, "2.00 h"},
		{"days", 36 * time.Hour, "1.50 day"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatDuration(tt.d))
		})
	}
}

func TestTrackerUnknownBeforeFirstFinish(t *testing.T) {
	tr := New(10)
	assert.Equal(t, "Unknown", tr.EST())
	assert.Equal(t, "Unknown", tr.Speed())
}

func TestTrackerEstimates(t *testing.T) {
	tr := New(4)
	base := time.Now()
	current := base
	tr.now = func() time.Time { return current }
	tr.Reset()

	// Two tasks finished after 10 seconds: 5s per task, 2 remaining.
	current = base.Add(10 * time.Second)
	tr.Update(2)

	assert.Equal(t, 2, tr.Finished())
	assert.Equal(t, "10.00 sec", tr.Elapsed())
	assert.Equal(t, "10.00 sec", tr.EST())
	assert.Equal(t, "5.00 s/item", tr.Speed())
}

func TestTrackerFastTasksReportItemsPerSecond(t *testing.T) {
	tr := New(100)
	base := time.Now()
	current := base
	tr.now = func() time.Time { return current }
	tr.Reset()

	current = base.Add(2 * time.Second)
	tr.Update(10)

	assert.Equal(t, "5.00 item/s", tr.Speed())
}

func TestTrackerSetOnResume(t *testing.T) {
	tr := New(10)
	tr.Set(7)
	assert.Equal(t, 7, tr.Finished())
}
