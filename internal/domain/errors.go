package domain

import "errors"

var (
	ErrRecordNotFound  = errors.New("record not found")
	ErrHallNotFound    = errors.New("hall does not exist")
	ErrMovieNotFound   = errors.New("movie does not exist")
	ErrHallSlotTaken   = errors.New("hall already hosts a showtime at that time")
	ErrSeatTaken       = errors.New("seat is already taken")
	ErrSeatOutOfBounds = errors.New("seat is outside the hall bounds")
	ErrEmptyUpdate     = errors.New("at least one field must be updated")

	// ErrDeliveryFailed means the broker never confirmed the request, so no
	// fulfillment happened and the whole request is safe to retry.
	ErrDeliveryFailed = errors.New("ticket request delivery failed")

	// ErrReplyTimeout means no reply arrived within the window. The outcome
	// is unknown: the worker may still have processed the request.
	ErrReplyTimeout = errors.New("timed out waiting for ticket reply")
)
