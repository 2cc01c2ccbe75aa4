package service

// Default window for time-bound items that never had one configured:
// always available.
const (
	defaultWindowStart = "00:00"
	defaultWindowEnd   = "23:59"
)

// ValidationMode decides which customer-facing gates apply during order
// placement. Collecting the POS bypass into one mode (instead of per-check
// source comparisons) keeps new validations from forgetting the bypass.
type ValidationMode int

const (
	// ModeStrict applies every gate: kitchen switch, stock sufficiency,
	// time windows, manual in_stock overrides.
	ModeStrict ValidationMode = iota
	// ModeTrusted is for staff-entered POS orders: gates are skipped but
	// all deduction bookkeeping still runs, so stock can deliberately go
	// negative from trusted orders.
	ModeTrusted
)

// WithinWindow reports whether the local clock time now falls inside the
// [start, end] window. All arguments are zero-padded "HH:MM" strings, which
// compare correctly as plain strings. A window with start > end wraps
// midnight: 22:00–02:00 covers 23:30 and 01:00 but not 10:00.
func WithinWindow(now, start, end string) bool {
	if start == "" {
		start = defaultWindowStart
	}
	if end == "" {
		end = defaultWindowEnd
	}
	if start <= end {
		return start <= now && now <= end
	}
	return now >= start || now <= end
}
