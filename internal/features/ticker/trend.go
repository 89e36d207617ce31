package ticker

// Trend of a price against the previous observation

type Trend int

const (
	Flat Trend = iota
	Up
	Down
)

// Role colors
const (
	ColorUp   = 0x2ECC71
	ColorDown = 0xE74C3C
	ColorFlat = 0x95A5A6
)

// TrendOf compares price with last. A missing previous price (0) is flat.
func TrendOf(price, last float64) Trend {
	if last <= 0 {
		return Flat
	}
	switch {
	case price > last:
		return Up
	case price < last:
		return Down
	default:
		return Flat
	}
}

func (t Trend) Symbol() string {
	switch t {
	case Up:
		return "+"
	case Down:
		return "-"
	default:
		return "="
	}
}

func (t Trend) Color() int {
	switch t {
	case Up:
		return ColorUp
	case Down:
		return ColorDown
	default:
		return ColorFlat
	}
}

func (t Trend) String() string {
	switch t {
	case Up:
		return "up"
	case Down:
		return "down"
	default:
		return "flat"
	}
}
