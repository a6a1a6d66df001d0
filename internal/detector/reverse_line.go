package detector

import (
	"fmt"

	"sharpline/internal/models"
)

// ReverseLineMovementDetector fires when the line walks away from the side
// holding the ticket majority: the books only move against the crowd when
// respected money is on the other side. Movement is measured from the
// earliest to the latest row in the window, whichever books posted them.
type ReverseLineMovementDetector struct {
	Params Params
}

func (d *ReverseLineMovementDetector) Kind() string { return models.KindReverseLineMovement }

func (d *ReverseLineMovementDetector) Evaluate(in Input) *Candidate {
	rows := filterMarket(in.Snapshots, in.MarketType)
	if len(rows) < 2 {
		return nil
	}
	first := rows[0]
	latest := rows[len(rows)-1]

	publicSide := ""
	publicPct := 0.0
	switch {
	case latest.TicketPctHome > 50:
		publicSide = homeSide(in.MarketType)
		publicPct = latest.TicketPctHome
	case latest.TicketPctAway > 50:
		publicSide = awaySide(in.MarketType)
		publicPct = latest.TicketPctAway
	default:
		return nil
	}

	movedToward, movePts := moveDirection(in.MarketType, first, latest)
	if movedToward == "" || movedToward == publicSide {
		return nil
	}

	strength := clampStrength(50 + movePts*moveScale(in.MarketType) + (publicPct-50)*0.5)
	return &Candidate{
		Kind:        d.Kind(),
		Side:        movedToward,
		Strength:    strength,
		SnapshotIDs: snapshotIDs(first, latest),
		DetectedAt:  latest.ObservedAt,
		Reasoning: fmt.Sprintf("reverse_line_movement side=%s public=%s tickets=%.1f%% move=%.1fpts",
			movedToward, publicSide, publicPct, movePts),
	}
}
