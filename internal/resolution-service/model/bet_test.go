package model

import "testing"

func TestFulfillmentFor(t *testing.T) {
	tests := []struct {
		name            string
		losers, claimed int
		want            FulfillmentStatus
	}{
		{"no losers", 0, 0, ""},
		{"no losers with stray claim", 0, 1, ""},
		{"nobody claimed", 2, 0, FulfillmentPending},
		{"some claimed", 2, 1, FulfillmentPartial},
		{"all claimed", 2, 2, FulfillmentFulfilled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FulfillmentFor(tt.losers, tt.claimed); got != tt.want {
				t.Errorf("FulfillmentFor(%d, %d) = %q, want %q", tt.losers, tt.claimed, got, tt.want)
			}
		})
	}
}
