package lifecycle

import (
	"time"
)

// HuntInterval is the gap between automatic runs of a campaign.
const HuntInterval = 24 * time.Hour

// SendHour is the local hour at which a deferred send window reopens.
const SendHour = 9

// default gaps (in days) between sends of a follow-up sequence, indexed by
// the number of follow-ups already sent.
var defaultFollowupDays = []int{3, 7, 14}

func IsWeekend(t time.Time) bool {
	d := t.Weekday()
	return d == time.Saturday || d == time.Sunday
}

// Midnight returns the start of t's day in t's location.
func Midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func atHour(t time.Time, days, hour int) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d+days, hour, 0, 0, 0, t.Location())
}

// skipWeekend moves t to Monday when it lands on a weekend.
func skipWeekend(t time.Time) time.Time {
	switch t.Weekday() {
	case time.Saturday:
		return t.AddDate(0, 0, 2)
	case time.Sunday:
		return t.AddDate(0, 0, 1)
	}
	return t
}

// NextHuntRun is now+24h, pushed past the weekend when the campaign does not
// run on weekends.
func NextHuntRun(now time.Time, sendWeekends bool) time.Time {
	next := now.Add(HuntInterval)
	if !sendWeekends {
		next = skipWeekend(next)
	}
	return next
}

// NextWeekdayMorning is the next weekday at SendHour strictly after today.
func NextWeekdayMorning(now time.Time) time.Time {
	return skipWeekend(atHour(now, 1, SendHour))
}

// NextEligibleSend is tomorrow at SendHour, or the following weekday when
// weekend sending is off.
func NextEligibleSend(now time.Time, sendWeekends bool) time.Time {
	next := atHour(now, 1, SendHour)
	if !sendWeekends {
		next = skipWeekend(next)
	}
	return next
}

// FollowupGap returns the wait after the sent-th email of a sequence, where
// sent is the number of follow-ups already delivered (0 = initial email).
// Unset or non-positive slots fall back to 3, 7, then 14 days.
func FollowupGap(days []int, sent int) time.Duration {
	if sent >= 0 && sent < len(days) && days[sent] > 0 {
		return time.Duration(days[sent]) * 24 * time.Hour
	}
	if sent >= 0 && sent < len(defaultFollowupDays) {
		return time.Duration(defaultFollowupDays[sent]) * 24 * time.Hour
	}
	return time.Duration(defaultFollowupDays[len(defaultFollowupDays)-1]) * 24 * time.Hour
}
