package alerts

import "testing"

func TestFormatUSD(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0.00"},
		{150, "150.00"},
		{150.5, "150.50"},
		{999.999, "1,000.00"},
		{1500, "1,500.00"},
		{12345.678, "12,345.68"},
		{1234567.891, "1,234,567.89"},
		{-1500.25, "-1,500.25"},
	}

	for _, tt := range tests {
		if got := formatUSD(tt.in); got != tt.want {
			t.Errorf("formatUSD(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
