package moderation

import (
	"sync"
	"time"

	"github.com/RussellLuo/slidingwindow"
	"github.com/gradewise/moderation-server/internal/model"
)

// reporterLimits holds the rolling-window limiters for a single reporter.
// The current windows are kept alongside the limiters so an admitted slot
// can be returned when the submission it was consumed for never persisted.
type reporterLimits struct {
	hourly    *slidingwindow.Limiter
	daily     *slidingwindow.Limiter
	hourlyWin slidingwindow.Window
	dailyWin  slidingwindow.Window
}

func newReporterLimits(hourlyLimit, dailyLimit int64) *reporterLimits {
	hourlyWin, hourlyStop := slidingwindow.NewLocalWindow()
	hourly, _ := slidingwindow.NewLimiter(time.Hour, hourlyLimit, func() (slidingwindow.Window, slidingwindow.StopFunc) {
		return hourlyWin, hourlyStop
	})

	dailyWin, dailyStop := slidingwindow.NewLocalWindow()
	daily, _ := slidingwindow.NewLimiter(24*time.Hour, dailyLimit, func() (slidingwindow.Window, slidingwindow.StopFunc) {
		return dailyWin, dailyStop
	})

	return &reporterLimits{
		hourly:    hourly,
		daily:     daily,
		hourlyWin: hourlyWin,
		dailyWin:  dailyWin,
	}
}

// ReportRateLimiter bounds how many reports a single reporter may file
// within the trailing hour and the trailing 24 hours.
type ReportRateLimiter struct {
	mu          sync.Mutex
	limits      map[model.UserID]*reporterLimits
	hourlyLimit int64
	dailyLimit  int64
}

// NewReportRateLimiter - a limiter admitting at most hourlyLimit reports
// per rolling hour and dailyLimit per rolling 24 hours, per reporter.
func NewReportRateLimiter(hourlyLimit, dailyLimit int64) *ReportRateLimiter {
	return &ReportRateLimiter{
		limits:      make(map[model.UserID]*reporterLimits),
		hourlyLimit: hourlyLimit,
		dailyLimit:  dailyLimit,
	}
}

// CheckAndRecord - admit or deny one report submission for the reporter.
// The check and the recording happen under one lock, so a burst of
// concurrent submissions can never be admitted past the remaining quota.
// A submission denied by the daily window has already consumed an hourly
// slot; that errs toward under-admission, never over-admission.
func (l *ReportRateLimiter) CheckAndRecord(reporterID model.UserID) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.limits[reporterID]
	if !ok {
		lim = newReporterLimits(l.hourlyLimit, l.dailyLimit)
		l.limits[reporterID] = lim
	}

	if !lim.hourly.Allow() {
		return &RateLimitError{Window: WindowHourly, Limit: l.hourlyLimit}
	}

	if !lim.daily.Allow() {
		return &RateLimitError{Window: WindowDaily, Limit: l.dailyLimit}
	}

	return nil
}

// Refund - return the slots consumed by an admitted submission that was
// never persisted, so a storage failure does not leave a counted report
// with no row behind it. Only counts still in the current window can be
// returned; a window that rolled over in between keeps its history.
func (l *ReportRateLimiter) Refund(reporterID model.UserID) {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.limits[reporterID]
	if !ok {
		return
	}

	if lim.hourlyWin.Count() > 0 {
		lim.hourlyWin.AddCount(-1)
	}

	if lim.dailyWin.Count() > 0 {
		lim.dailyWin.AddCount(-1)
	}
}
