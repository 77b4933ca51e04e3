package redisx

import (
	"context"
	"testing"
)

func TestBookingChanged_RoundTrip(t *testing.T) {
	payload := encodeBookingChanged("b-42", "confirmed")

	var gotID, gotStatus string
	calls := 0
	dispatchBookingChanged(context.Background(), string(payload), func(_ context.Context, bookingID, status string) {
		calls++
		gotID = bookingID
		gotStatus = status
	})

	if calls != 1 {
		t.Fatalf("handler invoked %d times, want 1", calls)
	}
	if gotID != "b-42" || gotStatus != "confirmed" {
		t.Errorf("handler got (%q, %q), want (%q, %q)", gotID, gotStatus, "b-42", "confirmed")
	}
}

func TestDispatchBookingChanged_DropsBadPayloads(t *testing.T) {
	for _, payload := range []string{
		"not json",
		`{"type":"booking_changed","status":"confirmed"}`,
		`{"type":"booking_changed","booking_id":"","status":"confirmed"}`,
	} {
		dispatchBookingChanged(context.Background(), payload, func(context.Context, string, string) {
			t.Errorf("handler invoked for payload %q", payload)
		})
	}
}
