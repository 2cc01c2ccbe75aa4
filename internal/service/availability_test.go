package service

import "testing"

func TestWithinWindow(t *testing.T) {
	tests := []struct {
		name  string
		now   string
		start string
		end   string
		want  bool
	}{
		{"inside plain window", "09:30", "07:00", "11:00", true},
		{"at window start", "07:00", "07:00", "11:00", true},
		{"at window end", "11:00", "07:00", "11:00", true},
		{"before plain window", "06:59", "07:00", "11:00", false},
		{"after plain window", "11:01", "07:00", "11:00", false},

		// A window that wraps midnight: late-night menu 22:00-02:00
		{"wrapped, before midnight", "23:30", "22:00", "02:00", true},
		{"wrapped, after midnight", "01:00", "22:00", "02:00", true},
		{"wrapped, at start", "22:00", "22:00", "02:00", true},
		{"wrapped, at end", "02:00", "22:00", "02:00", true},
		{"wrapped, midday outside", "10:00", "22:00", "02:00", false},
		{"wrapped, just past end", "02:01", "22:00", "02:00", false},

		// Unconfigured bounds default to always-available
		{"empty start", "00:30", "", "11:00", true},
		{"empty end", "23:30", "07:00", "", true},
		{"both empty", "12:00", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := WithinWindow(tt.now, tt.start, tt.end); got != tt.want {
				t.Errorf("WithinWindow(%q, %q, %q) = %v, want %v",
					tt.now, tt.start, tt.end, got, tt.want)
			}
		})
	}
}
