package collection

import (
	"testing"
	"time"

	autopaydomain "github.com/kolektiva/kolektiva/internal/autopay/domain"
	"github.com/stretchr/testify/assert"
)

func TestChargeAt(t *testing.T) {
	due := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, due, ChargeAt(due, autopaydomain.TimingSameDay))
	assert.Equal(t, due.Add(-24*time.Hour), ChargeAt(due, autopaydomain.TimingOneDayBefore))
}

func TestDueNow(t *testing.T) {
	due := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name   string
		now    time.Time
		timing autopaydomain.Timing
		want   bool
	}{
		{"same_day before due", due.Add(-time.Hour), autopaydomain.TimingSameDay, false},
		{"same_day at due", due, autopaydomain.TimingSameDay, true},
		{"same_day after due", due.Add(time.Hour), autopaydomain.TimingSameDay, true},
		{"one_day_before two days out", due.Add(-48 * time.Hour), autopaydomain.TimingOneDayBefore, false},
		{"one_day_before exactly one day out", due.Add(-24 * time.Hour), autopaydomain.TimingOneDayBefore, true},
		{"one_day_before on due date", due, autopaydomain.TimingOneDayBefore, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, DueNow(tc.now, due, tc.timing))
		})
	}
}
