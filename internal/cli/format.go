package cli

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"trade-journal/internal/models"
)

// FormatIndianCurrency renders an amount as rupees grouped in lakhs and crores.
func FormatIndianCurrency(amount decimal.Decimal) string {
	whole, frac, _ := strings.Cut(amount.Abs().StringFixed(2), ".")
	text := "₹" + formatIndianNumber(whole) + "." + frac
	if amount.Round(2).IsNegative() {
		return "-" + text
	}
	return text
}

// formatIndianNumber groups a digit string as 1,23,45,678: the last three
// digits, then pairs.
func formatIndianNumber(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	head, tail := digits[:len(digits)-3], digits[len(digits)-3:]

	var b strings.Builder
	lead := len(head) % 2
	if lead == 1 {
		b.WriteString(head[:1])
	}
	for i := lead; i < len(head); i += 2 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(head[i : i+2])
	}
	b.WriteByte(',')
	b.WriteString(tail)
	return b.String()
}

// withSign prefixes a "+" when value is positive at two places.
func withSign(value decimal.Decimal, text string) string {
	if value.Round(2).IsPositive() {
		return "+" + text
	}
	return text
}

// FormatPercent formats a percentage with sign.
func FormatPercent(value decimal.Decimal) string {
	return withSign(value, value.StringFixed(2)+"%")
}

// FormatPnL formats P&L with sign.
func FormatPnL(pnl decimal.Decimal) string {
	return withSign(pnl, FormatIndianCurrency(pnl))
}

// FormatPrice formats a price to two places.
func FormatPrice(price decimal.Decimal) string {
	return price.StringFixed(2)
}

// FormatOptionalPrice formats a price that may be unavailable.
func FormatOptionalPrice(price *decimal.Decimal) string {
	if price == nil {
		return "-"
	}
	return FormatPrice(*price)
}

// FormatQuantity formats a signed quantity with Indian grouping.
func FormatQuantity(qty int64) string {
	if qty < 0 {
		return "-" + formatIndianNumber(strconv.FormatInt(-qty, 10))
	}
	return formatIndianNumber(strconv.FormatInt(qty, 10))
}

// FormatDate formats a calendar date.
func FormatDate(t time.Time) string {
	return t.Format("02-Jan-2006")
}

// FormatOptionalDate formats a date that may be absent.
func FormatOptionalDate(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return FormatDate(*t)
}

// FormatDateTime formats a timestamp in IST.
func FormatDateTime(t time.Time) string {
	return t.In(models.IST).Format("02-Jan-2006 15:04:05")
}

// TruncateString truncates a string to max length with ellipsis.
func TruncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
