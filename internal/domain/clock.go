package domain

import "github.com/jonboulle/clockwork"

// clock is the package time source used to decide what "today" is.
var clock = clockwork.NewRealClock()

// SetClock swaps the time source. Pass nil to reset to real time.
func SetClock(c clockwork.Clock) {
	if c == nil {
		clock = clockwork.NewRealClock()
		return
	}
	clock = c
}

// Today returns the current calendar day in UTC.
func Today() Date {
	return DateOf(clock.Now().UTC())
}
