package history

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/utafrali/PriceTracker/internal/domain"
)

// DateLayout labels the x-axis, e.g. "Jan 05".
const DateLayout = "Jan 02"

// yTickCount is the number of y-axis ticks aimed for.
const yTickCount = 5

// Point is one chart sample.
type Point struct {
	Date    string  `json:"date"`
	Price   float64 `json:"price"`
	Tooltip string  `json:"tooltip"`
}

// Tick is one y-axis tick.
type Tick struct {
	Value float64 `json:"value"`
	Label string  `json:"label"`
}

// Chart is the line chart of a product's price history.
type Chart struct {
	Points []Point `json:"points"`
	YTicks []Tick  `json:"y_ticks"`
}

// BuildChart maps history points, already ordered by recorded_at ascending,
// to chart data. Dates are rendered in UTC.
func BuildChart(points []domain.PriceHistoryPoint) *Chart {
	c := &Chart{Points: make([]Point, 0, len(points))}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, p := range points {
		price := p.Price.InexactFloat64()
		c.Points = append(c.Points, Point{
			Date:    FormatDate(p.RecordedAt),
			Price:   price,
			Tooltip: FormatTooltip(price),
		})
		lo = math.Min(lo, price)
		hi = math.Max(hi, price)
	}
	if len(points) > 0 {
		c.YTicks = yTicks(lo, hi)
	}
	return c
}

// FormatDate renders an x-axis label.
func FormatDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// FormatTooltip renders a price with two decimals, e.g. "$12.30".
func FormatTooltip(price float64) string {
	return fmt.Sprintf("$%.2f", price)
}

// FormatTick renders a y-axis value as-is, e.g. "$12.5".
func FormatTick(v float64) string {
	return "$" + strconv.FormatFloat(v, 'f', -1, 64)
}

// yTicks spreads about yTickCount ticks with a 1/2/5 step over [lo, hi].
func yTicks(lo, hi float64) []Tick {
	if lo == hi {
		if lo == 0 {
			hi = 1
		} else {
			pad := math.Abs(lo) * 0.1
			lo, hi = lo-pad, hi+pad
		}
	}

	step := niceStep((hi - lo) / float64(yTickCount-1))
	start := math.Floor(lo/step) * step
	end := math.Ceil(hi/step) * step

	ticks := make([]Tick, 0, yTickCount+2)
	for i := 0; ; i++ {
		v := start + float64(i)*step
		if v > end+step/2 {
			break
		}
		// trim float noise such as 0.30000000000000004
		v = math.Round(v/step) * step
		v, _ = strconv.ParseFloat(strconv.FormatFloat(v, 'f', decimalsFor(step), 64), 64)
		ticks = append(ticks, Tick{Value: v, Label: FormatTick(v)})
	}
	return ticks
}

func niceStep(raw float64) float64 {
	exp := math.Floor(math.Log10(raw))
	base := math.Pow(10, exp)
	switch f := raw / base; {
	case f <= 1:
		return base
	case f <= 2:
		return 2 * base
	case f <= 5:
		return 5 * base
	default:
		return 10 * base
	}
}

func decimalsFor(step float64) int {
	if step >= 1 {
		return 0
	}
	return int(math.Ceil(-math.Log10(step)))
}
