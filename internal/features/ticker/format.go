package ticker

// Nickname / status text formatting
// Discord caps nicknames at 32 characters and activity names at 128

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"github.com/xhit/go-str2duration/v2"
)

const (
	NicknameLimit = 32
	StatusLimit   = 128

	maxDecimals = 10
)

// Part is one "SYM: $0.1234+" segment of the nickname.
type Part struct {
	Symbol string
	Price  float64
	Trend  Trend
}

func (p Part) render(decimals int, withTrend bool) string {
	s := p.Symbol + ": $" + FormatPrice(p.Price, decimals)
	if withTrend {
		s += p.Trend.Symbol()
	}
	return s
}

// FormatPrice rounds to decimals places, widening the precision for tiny prices
// so at least two significant digits remain.
func FormatPrice(price float64, decimals int) string {
	if decimals < 0 {
		decimals = 0
	}
	if price > 0 && price < 1 {
		// 0.00001234 -> log10 = -4.9 -> needs 6 places for "12"
		need := int(-math.Floor(math.Log10(price))) + 1
		if need > decimals {
			decimals = min(need, maxDecimals)
		}
	}
	if math.IsNaN(price) || math.IsInf(price, 0) {
		price = 0
	}
	return decimal.NewFromFloat(price).StringFixed(int32(decimals))
}

type fitStep struct {
	decimals  int
	separator string
	withTrend bool
}

// shrink order: precision first, then the separator, then the trend marks
var fitSteps = []fitStep{
	{4, " | ", true},
	{3, " | ", true},
	{2, " | ", true},
	{2, "|", true},
	{2, "|", false},
}

// FitNickname renders parts within limit runes (NicknameLimit when limit <= 0).
func FitNickname(parts []Part, limit int) string {
	if limit <= 0 {
		limit = NicknameLimit
	}
	if len(parts) == 0 {
		return ""
	}

	var last string
	for _, step := range fitSteps {
		rendered := make([]string, 0, len(parts))
		for _, p := range parts {
			rendered = append(rendered, p.render(step.decimals, step.withTrend))
		}
		last = strings.Join(rendered, step.separator)
		if utf8.RuneCountInString(last) <= limit {
			return last
		}
	}

	return truncateRunes(last, limit)
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	cut := string([]rune(s)[:limit])
	if trimmed := strings.TrimRight(cut, " |"); trimmed != "" {
		return trimmed
	}
	return cut
}

// FormatStatus builds the watching-activity name, e.g. "24h: LOCKS +1.2%".
// hasChange is false for sources without 24h data.
func FormatStatus(symbol string, change24h float64, hasChange bool) string {
	var s string
	if hasChange {
		s = fmt.Sprintf("24h: %s %+.1f%%", symbol, change24h)
	} else {
		s = symbol + " from Goldilocks"
	}
	return truncateRunes(s, StatusLimit)
}

// HumanInterval mirrors the wording users already know: "30 seconds", "5.0 minutes", "1.5 hours".
func HumanInterval(seconds int) string {
	switch {
	case seconds >= 3600:
		return fmt.Sprintf("%.1f hours", float64(seconds)/3600)
	case seconds >= 60:
		return fmt.Sprintf("%.1f minutes", float64(seconds)/60)
	default:
		return fmt.Sprintf("%d seconds", seconds)
	}
}

// ParseInterval accepts bare seconds ("300") or a duration ("5m", "1h30m", "1d").
func ParseInterval(input string) (int, error) {
	input = strings.TrimSpace(strings.ToLower(input))
	if input == "" {
		return 0, fmt.Errorf("interval cannot be empty")
	}
	if n, err := strconv.Atoi(input); err == nil {
		return n, nil
	}
	d, err := str2duration.ParseDuration(input)
	if err != nil {
		return 0, fmt.Errorf("invalid interval %q: %w", input, err)
	}
	if d%time.Second != 0 {
		return 0, fmt.Errorf("invalid interval %q: must be whole seconds", input)
	}
	return int(d / time.Second), nil
}
