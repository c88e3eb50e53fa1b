// Package format renders amounts and text for chat messages and tables.
package format

import (
	"strconv"
	"strings"

	"github.com/mattn/go-runewidth"
)

// Rupiah formats an amount the Indonesian way: Rp 1.500.000.
func Rupiah(amount int64) string {
	neg := amount < 0
	if neg {
		amount = -amount
	}
	digits := strconv.FormatInt(amount, 10)
	var b strings.Builder
	for i, d := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(d)
	}
	if neg {
		return "-Rp " + b.String()
	}
	return "Rp " + b.String()
}

// ParseAmount reads a price typed by a user, ignoring "." and ","
// thousand separators. It reports false for anything else.
func ParseAmount(s string) (int64, bool) {
	s = strings.NewReplacer(".", "", ",", "", " ", "").Replace(strings.TrimSpace(s))
	s = strings.TrimPrefix(strings.TrimPrefix(s, "Rp"), "rp")
	if s == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Truncate shortens s to at most width display cells, appending "..."
// when something was cut. Wide runes (CJK, emoji) count as two cells.
func Truncate(s string, width int) string {
	if runewidth.StringWidth(s) <= width {
		return s
	}
	return runewidth.Truncate(s, width, "") + "..."
}

// StatusEmoji decorates an order status.
func StatusEmoji(status string) string {
	switch status {
	case "pending":
		return "⏳"
	case "paid":
		return "✅"
	case "cancelled":
		return "❌"
	case "expired":
		return "⌛"
	}
	return "❔"
}
