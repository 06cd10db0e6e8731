package collection

import (
	"time"

	autopaydomain "github.com/kolektiva/kolektiva/internal/autopay/domain"
)

// ChargeAt returns the instant a charge becomes due for the given timing
// preference.
func ChargeAt(dueDate time.Time, timing autopaydomain.Timing) time.Time {
	if timing == autopaydomain.TimingOneDayBefore {
		return dueDate.Add(-24 * time.Hour)
	}
	return dueDate
}

// DueNow reports whether the charge window for an obligation has opened.
func DueNow(now time.Time, dueDate time.Time, timing autopaydomain.Timing) bool {
	return !now.Before(ChargeAt(dueDate, timing))
}
