package progress

import "testing"

func TestPercent(t *testing.T) {
	tests := []struct {
		name       string
		value, max uint64
		want       int
	}{
		{name: "zero max", value: 10, max: 0, want: 0},
		{name: "zero value", value: 0, max: 10, want: 0},
		{name: "half", value: 5, max: 10, want: 50},
		{name: "round up", value: 2, max: 3, want: 67},
		{name: "round down", value: 1, max: 3, want: 33},
		{name: "complete", value: 10, max: 10, want: 100},
		{name: "clamped", value: 30, max: 10, want: 100},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Percent(tc.value, tc.max); got != tc.want {
				t.Fatalf("Percent(%d, %d) = %d, want %d", tc.value, tc.max, got, tc.want)
			}
		})
	}
}

func TestAggregate(t *testing.T) {
	tests := []struct {
		sum, addons, want int
	}{
		{sum: 0, addons: 3, want: 0},
		{sum: 300, addons: 3, want: 33},
		{sum: 900, addons: 3, want: 100},
		{sum: 150, addons: 1, want: 50},
		{sum: 100, addons: 0, want: 0},
		{sum: -5, addons: 2, want: 0},
	}

	for _, tc := range tests {
		if got := Aggregate(tc.sum, tc.addons); got != tc.want {
			t.Errorf("Aggregate(%d, %d) = %d, want %d", tc.sum, tc.addons, got, tc.want)
		}
	}
}

func TestDownloadStaysInBand(t *testing.T) {
	if got := Download(0, 0); got != BandFetched {
		t.Fatalf("unknown total should stay at band start, got %d", got)
	}
	if got := Download(50, 100); got != 150 {
		t.Fatalf("expected 150, got %d", got)
	}
	if got := Download(500, 100); got != BandDownloaded {
		t.Fatalf("overflow should clamp to %d, got %d", BandDownloaded, got)
	}
}

func TestBandClampsSubPercentage(t *testing.T) {
	if got := Band(BandFetched, -10); got != BandFetched {
		t.Fatalf("expected %d, got %d", BandFetched, got)
	}
	if got := Band(BandFetched, 140); got != BandDownloaded {
		t.Fatalf("expected %d, got %d", BandDownloaded, got)
	}
}
