package format

import (
	"fmt"
	"time"
)

// Elapsed formats a run duration for the summary line.
// Examples: "850ms", "4.2s", "2m05s", "1h30m".
func Elapsed(d time.Duration) string {
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d/time.Millisecond)
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	case d < time.Hour:
		return fmt.Sprintf("%dm%02ds", d/time.Minute, (d%time.Minute)/time.Second)
	}
	hours := d / time.Hour
	minutes := (d % time.Hour) / time.Minute
	if minutes > 0 {
		return fmt.Sprintf("%dh%dm", hours, minutes)
	}
	return fmt.Sprintf("%dh", hours)
}

// Chars formats a character count for human display.
// Uses k and M suffixes from 10,000 and 1,000,000 characters.
func Chars(n int) string {
	const (
		k = 1000
		m = 1000 * k
	)
	switch {
	case n >= m:
		return fmt.Sprintf("%.1fM chars", float64(n)/m)
	case n >= 10*k:
		return fmt.Sprintf("%.1fk chars", float64(n)/k)
	case n == 1:
		return "1 char"
	}
	return fmt.Sprintf("%d chars", n)
}

// Ratio formats part/whole as a whole percentage, or "n/a" when whole is zero.
func Ratio(part, whole int) string {
	if whole <= 0 {
		return "n/a"
	}
	return fmt.Sprintf("%d%%", (part*100+whole/2)/whole)
}
