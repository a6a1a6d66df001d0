package detector

import (
	"fmt"
	"sort"

	"sharpline/internal/models"
)

// PublicFadeDetector fires the side opposite a lopsided ticket count. The
// bar drops from the base threshold to the confirmed one when at least one
// book has already moved its line against the crowd.
type PublicFadeDetector struct {
	Params Params
}

func (d *PublicFadeDetector) Kind() string { return models.KindPublicFade }

func (d *PublicFadeDetector) Evaluate(in Input) *Candidate {
	rows := filterMarket(in.Snapshots, in.MarketType)
	if len(rows) == 0 {
		return nil
	}
	latest := rows[len(rows)-1]

	publicSide, fadeSide := "", ""
	publicPct := 0.0
	switch {
	case latest.TicketPctHome > latest.TicketPctAway:
		publicSide, fadeSide = homeSide(in.MarketType), awaySide(in.MarketType)
		publicPct = latest.TicketPctHome
	case latest.TicketPctAway > latest.TicketPctHome:
		publicSide, fadeSide = awaySide(in.MarketType), homeSide(in.MarketType)
		publicPct = latest.TicketPctAway
	default:
		return nil
	}

	threshold := d.Params.PublicFadeTicketPct
	support := []models.OddsSnapshot{latest}
	confirmedBy := ""
	if publicPct <= threshold {
		name, first, last, ok := bookMovedAgainst(rows, in.MarketType, publicSide)
		if !ok || publicPct <= d.Params.PublicFadeConfirmedPct {
			return nil
		}
		threshold = d.Params.PublicFadeConfirmedPct
		confirmedBy = name
		support = append(support, first, last)
	}

	bonus := 0.0
	reasoning := fmt.Sprintf("public_fade side=%s public=%s tickets=%.1f%%", fadeSide, publicSide, publicPct)
	if confirmedBy != "" {
		bonus = 8
		reasoning += fmt.Sprintf(" confirmed_by=%s", confirmedBy)
	}
	return &Candidate{
		Kind:        d.Kind(),
		Side:        fadeSide,
		Strength:    clampStrength(50 + 2*(publicPct-threshold) + bonus),
		SnapshotIDs: snapshotIDs(support...),
		DetectedAt:  newestObserved(support...),
		Reasoning:   reasoning,
	}
}

// bookMovedAgainst reports the first book (by name) whose line moved away
// from the public side between its first and last rows.
func bookMovedAgainst(rows []models.OddsSnapshot, marketType, publicSide string) (string, models.OddsSnapshot, models.OddsSnapshot, bool) {
	books := byBook(rows)
	names := make([]string, 0, len(books))
	for name := range books {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		series := books[name]
		if len(series) < 2 {
			continue
		}
		first, last := series[0], series[len(series)-1]
		side, _ := moveDirection(marketType, first, last)
		if side != "" && side != publicSide {
			return name, first, last, true
		}
	}
	return "", models.OddsSnapshot{}, models.OddsSnapshot{}, false
}
