package main

import (
	"fmt"
	"math"
	"os"
	"time"

	"ticker-bot/internal/features/charts"
	"ticker-bot/internal/features/tracker"
)

// go run etc/tools/test_chart.go
// writes etc/charts/locks_chart.png from a synthetic 24h series
func main() {
	fmt.Println("Generating test chart...")

	history := tracker.NewHistory(288)
	start := time.Now().Add(-24 * time.Hour)
	for i := 0; i < 288; i++ {
		price := 1.2 + 0.08*math.Sin(float64(i)/30) + 0.0004*float64(i)
		history.Add("goldilocks-dao", start.Add(time.Duration(i)*5*time.Minute), price)
	}

	chartPath, err := charts.SavePriceChart("etc/charts", "LOCKS", history.Series("goldilocks-dao"))
	if err != nil {
		fmt.Printf("Error generating chart: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Chart generated successfully: %s\n", chartPath)
	fmt.Println("Open the file to see the result!")
}
