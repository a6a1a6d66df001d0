package detector

import (
	"sharpline/internal/models"

	"sharpline/internal/oddsmath"
)

// Noise floors for calling a move a move: half a line point for spread and
// total, one implied-probability point for moneyline.
const (
	lineMoveFloorPts = 0.5
	probMoveFloorPts = 1.0
)

// moveDirection reports which side the market moved toward between two rows
// of the same market, with the magnitude in points: line points for spread
// and total, no-vig implied-probability points for moneyline. The spread
// line is home-relative, so a shrinking line means the books are charging
// more to back home. An empty side means no move beyond the noise floor.
func moveDirection(marketType string, first, last models.OddsSnapshot) (string, float64) {
	switch marketType {
	case models.MarketMoneyline:
		p0, err := oddsmath.NoVigHomeProbability(first.PriceHome, first.PriceAway)
		if err != nil {
			return "", 0
		}
		p1, err := oddsmath.NoVigHomeProbability(last.PriceHome, last.PriceAway)
		if err != nil {
			return "", 0
		}
		pts := (p1 - p0) * 100
		if pts >= probMoveFloorPts {
			return models.SideHome, pts
		}
		if pts <= -probMoveFloorPts {
			return models.SideAway, -pts
		}
	case models.MarketSpread:
		delta := last.Line.Sub(first.Line).InexactFloat64()
		if delta <= -lineMoveFloorPts {
			return models.SideHome, -delta
		}
		if delta >= lineMoveFloorPts {
			return models.SideAway, delta
		}
	case models.MarketTotal:
		delta := last.Line.Sub(first.Line).InexactFloat64()
		if delta >= lineMoveFloorPts {
			return models.SideOver, delta
		}
		if delta <= -lineMoveFloorPts {
			return models.SideUnder, -delta
		}
	}
	return "", 0
}

// moveScale converts a market's move points into strength points.
func moveScale(marketType string) float64 {
	if marketType == models.MarketMoneyline {
		return 5
	}
	return 10
}
