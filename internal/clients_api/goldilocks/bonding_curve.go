package goldilocks

// Goldiswap bonding curve
// floor  = fsl / supply
// market = floor + (psl / supply) * ((psl + fsl) / fsl)^6
// PRG    = market - floor

import "math"

func FloorPrice(fsl, supply float64) float64 {
	if supply == 0 {
		return 0
	}
	return fsl / supply
}

func MarketPrice(fsl, psl, supply float64) float64 {
	if supply == 0 || fsl == 0 {
		return 0
	}
	return FloorPrice(fsl, supply) + (psl/supply)*math.Pow((psl+fsl)/fsl, 6)
}

// PRGPrice is the premium of the market price over the floor.
func PRGPrice(fsl, psl, supply float64) float64 {
	if supply == 0 || fsl == 0 {
		return 0
	}
	return MarketPrice(fsl, psl, supply) - FloorPrice(fsl, supply)
}
