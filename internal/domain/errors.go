package domain

import "errors"

var (
	ErrNoInstrument       = errors.New("instrument not resolved")
	ErrSessionUnavailable = errors.New("session unavailable")
	ErrVenueRejected      = errors.New("venue rejected order")
	ErrPollTimeout        = errors.New("order status poll timed out")
	ErrFeedClosed         = errors.New("feed closed")
)
