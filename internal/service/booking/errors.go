package booking

import "errors"

var (
	ErrRouteNotFound   = errors.New("no route between endpoints")
	ErrBookingNotFound = errors.New("booking not found")
)
