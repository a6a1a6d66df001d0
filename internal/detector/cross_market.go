package detector

import (
	"fmt"

	"sharpline/internal/models"
)

// CrossMarketContradictionDetector compares where the money sits on the
// moneyline against where it sits on the spread for the same game. The two
// markets price the same event, so a wide split between them means one
// crowd is wrong; the moneyline side is the one followed. Evaluates only
// moneyline and spread keys.
type CrossMarketContradictionDetector struct {
	Params Params
}

func (d *CrossMarketContradictionDetector) Kind() string {
	return models.KindCrossMarketContradiction
}

func (d *CrossMarketContradictionDetector) Evaluate(in Input) *Candidate {
	if in.MarketType != models.MarketMoneyline && in.MarketType != models.MarketSpread {
		return nil
	}
	mlRows := filterMarket(in.Snapshots, models.MarketMoneyline)
	spRows := filterMarket(in.Snapshots, models.MarketSpread)
	if len(mlRows) == 0 || len(spRows) == 0 {
		return nil
	}
	ml := mlRows[len(mlRows)-1]
	sp := spRows[len(spRows)-1]

	mlSide := moneyFavoredSide(ml)
	spSide := moneyFavoredSide(sp)
	if mlSide == "" || spSide == "" || mlSide == spSide {
		return nil
	}

	divergence := ml.MoneyPctHome - sp.MoneyPctHome
	if divergence < 0 {
		divergence = -divergence
	}
	if divergence <= d.Params.CrossMarketDivergencePts {
		return nil
	}

	strength := clampStrength(50 + 5*(divergence-d.Params.CrossMarketDivergencePts))
	return &Candidate{
		Kind:        d.Kind(),
		Side:        mlSide,
		Strength:    strength,
		SnapshotIDs: snapshotIDs(ml, sp),
		DetectedAt:  newestObserved(ml, sp),
		Reasoning: fmt.Sprintf("cross_market_contradiction side=%s ml_money_home=%.1f%% spread_money_home=%.1f%% divergence=%.1fpts",
			mlSide, ml.MoneyPctHome, sp.MoneyPctHome, divergence),
	}
}

// moneyFavoredSide is the side holding the money majority on one row, or
// empty on an even split.
func moneyFavoredSide(s models.OddsSnapshot) string {
	if s.MoneyPctHome > 50 {
		return models.SideHome
	}
	if s.MoneyPctAway > 50 {
		return models.SideAway
	}
	return ""
}
