package detector

import (
	"fmt"

	"sharpline/internal/models"
)

// SharpActionDetector fires when the money share on one side outruns its
// ticket share by more than the disparity threshold while the money itself
// is concentrated there. Few bets carrying most of the handle is the
// classic sharp footprint.
type SharpActionDetector struct {
	Params Params
}

func (d *SharpActionDetector) Kind() string { return models.KindSharpAction }

func (d *SharpActionDetector) Evaluate(in Input) *Candidate {
	rows := filterMarket(in.Snapshots, in.MarketType)
	if len(rows) == 0 {
		return nil
	}
	latest := rows[len(rows)-1]

	homeDisp := latest.MoneyPctHome - latest.TicketPctHome
	awayDisp := latest.MoneyPctAway - latest.TicketPctAway

	side := ""
	disparity := 0.0
	moneyPct := 0.0
	ticketPct := 0.0
	if homeDisp > d.Params.SharpDisparityPts && latest.MoneyPctHome >= d.Params.SharpMinMoneyPct && homeDisp >= awayDisp {
		side = homeSide(in.MarketType)
		disparity = homeDisp
		moneyPct = latest.MoneyPctHome
		ticketPct = latest.TicketPctHome
	} else if awayDisp > d.Params.SharpDisparityPts && latest.MoneyPctAway >= d.Params.SharpMinMoneyPct {
		side = awaySide(in.MarketType)
		disparity = awayDisp
		moneyPct = latest.MoneyPctAway
		ticketPct = latest.TicketPctAway
	}
	if side == "" {
		return nil
	}

	strength := clampStrength(50 + 5*(disparity-d.Params.SharpDisparityPts))
	return &Candidate{
		Kind:        d.Kind(),
		Side:        side,
		Strength:    strength,
		SnapshotIDs: snapshotIDs(latest),
		DetectedAt:  latest.ObservedAt,
		Reasoning: fmt.Sprintf("sharp_action side=%s money=%.1f%% tickets=%.1f%% disparity=%.1fpts",
			side, moneyPct, ticketPct, disparity),
	}
}
