package redisx

import "fmt"

const ns = "corridor:v1"

func KeyRoute(origin, destination string) string {
	return fmt.Sprintf("%s:route:%s:%s", ns, origin, destination)
}

func KeyIdemBooking(idemKey string) string {
	return fmt.Sprintf("%s:idem:bookings:%s", ns, idemKey)
}

func KeyRateLimit(scope string) string {
	return fmt.Sprintf("%s:rl:%s", ns, scope)
}

func ChannelBookingsChanged() string {
	return ns + ":bookings:changed"
}
