package plan

import "testing"

func TestMaxTripsPerTruck(t *testing.T) {
	cases := []struct {
		duration float64
		workDays int
		want     int
	}{
		{2, 26, 13},
		{3, 26, 8},  // 26/3 = 8.67, floored
		{1, 26, 26},
		{5, 26, 5},
		{1.5, 24, 16},
		{30, 26, 0}, // longer than the month: route must be outsourced
	}
	for _, tc := range cases {
		r := Route{TripDurationDays: tc.duration}
		if got := MaxTripsPerTruck(r, tc.workDays); got != tc.want {
			t.Errorf("duration=%v workDays=%d: got %d, want %d", tc.duration, tc.workDays, got, tc.want)
		}
	}
}

func TestHighDemandMinimum(t *testing.T) {
	cases := []struct {
		demand  int
		want    float64
		applies bool
	}{
		{0, 0, false},
		{20, 0, false},  // cutoff is strict
		{21, 10.5, true},
		{22, 11, true},
		{30, 15, true},
	}
	for _, tc := range cases {
		got, ok := HighDemandMinimum(Route{MonthlyDemand: tc.demand})
		if ok != tc.applies {
			t.Errorf("demand=%d: applies=%v, want %v", tc.demand, ok, tc.applies)
			continue
		}
		if ok && got != tc.want {
			t.Errorf("demand=%d: minimum=%v, want %v", tc.demand, got, tc.want)
		}
	}
}

// The fractional bound must not be pre-rounded; demand 21 yields exactly 10.5.
func TestHighDemandMinimumKeepsFraction(t *testing.T) {
	got, ok := HighDemandMinimum(Route{MonthlyDemand: 21})
	if !ok || got != 10.5 {
		t.Fatalf("demand=21: got (%v, %v), want (10.5, true)", got, ok)
	}
}
