package detector

import (
	"fmt"
	"sort"

	"sharpline/internal/models"
	"sharpline/internal/oddsmath"
)

// CrossBookConflictDetector fires when books disagree on a market by more
// implied probability than juice can explain. Comparing no-vig numbers
// keeps a book's higher margin from registering as a conflict. The
// recommended side is the one the majority of books lean toward.
type CrossBookConflictDetector struct {
	Params Params
}

func (d *CrossBookConflictDetector) Kind() string { return models.KindCrossBookConflict }

func (d *CrossBookConflictDetector) Evaluate(in Input) *Candidate {
	rows := filterMarket(in.Snapshots, in.MarketType)
	if len(rows) == 0 {
		return nil
	}

	latestByBook := make(map[string]models.OddsSnapshot)
	for _, s := range rows {
		prev, ok := latestByBook[s.Book]
		if !ok || s.ObservedAt.After(prev.ObservedAt) {
			latestByBook[s.Book] = s
		}
	}
	books := make([]string, 0, len(latestByBook))
	for name := range latestByBook {
		books = append(books, name)
	}
	sort.Strings(books)

	type quote struct {
		book string
		snap models.OddsSnapshot
		prob float64
	}
	quotes := make([]quote, 0, len(books))
	for _, name := range books {
		snap := latestByBook[name]
		prob, err := oddsmath.NoVigHomeProbability(snap.PriceHome, snap.PriceAway)
		if err != nil {
			continue
		}
		quotes = append(quotes, quote{book: name, snap: snap, prob: prob})
	}
	if len(quotes) < 2 {
		return nil
	}

	lo, hi := quotes[0], quotes[0]
	homeLean, awayLean := 0, 0
	support := make([]models.OddsSnapshot, 0, len(quotes))
	for _, q := range quotes {
		if q.prob < lo.prob {
			lo = q
		}
		if q.prob > hi.prob {
			hi = q
		}
		if q.prob > 0.5 {
			homeLean++
		} else if q.prob < 0.5 {
			awayLean++
		}
		support = append(support, q.snap)
	}

	divergence := (hi.prob - lo.prob) * 100
	if divergence <= d.Params.CrossBookProbPts {
		return nil
	}
	side := ""
	switch {
	case homeLean > awayLean:
		side = homeSide(in.MarketType)
	case awayLean > homeLean:
		side = awaySide(in.MarketType)
	default:
		return nil
	}

	strength := clampStrength(50 + 5*(divergence-d.Params.CrossBookProbPts))
	return &Candidate{
		Kind:        d.Kind(),
		Side:        side,
		Strength:    strength,
		SnapshotIDs: snapshotIDs(support...),
		DetectedAt:  newestObserved(support...),
		Reasoning: fmt.Sprintf("cross_book_conflict side=%s books=%d divergence=%.1fpts low=%s high=%s",
			side, len(quotes), divergence, lo.book, hi.book),
	}
}
