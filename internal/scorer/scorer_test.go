package scorer

import (
	"reflect"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"sharpline/internal/detector"
	"sharpline/internal/models"
)

var detectedAt = time.Date(2025, 11, 1, 21, 0, 0, 0, time.UTC)

func mkCandidate(kind, side string, strength float64, ids ...uint64) detector.Candidate {
	return detector.Candidate{
		Kind:        kind,
		Side:        side,
		Strength:    strength,
		SnapshotIDs: ids,
		DetectedAt:  detectedAt,
		Reasoning:   kind + " side=" + side,
	}
}

// Ticket split 62/38 against money 31/69 must come out of the full
// detect-and-score path in the strong band on the away side.
func TestScorer_SharpDisparityLandsStrongBand(t *testing.T) {
	snap := models.OddsSnapshot{
		ID:            7,
		GameID:        1,
		Source:        "sbr",
		Book:          "pinnacle",
		MarketType:    models.MarketMoneyline,
		TicketPctHome: 62,
		TicketPctAway: 38,
		MoneyPctHome:  31,
		MoneyPctAway:  69,
		Line:          decimal.Zero,
		PriceHome:     -150,
		PriceAway:     130,
		ObservedAt:    detectedAt,
	}
	d := &detector.SharpActionDetector{Params: detector.DefaultParams()}
	c := d.Evaluate(detector.Input{GameID: 1, MarketType: models.MarketMoneyline, Snapshots: []models.OddsSnapshot{snap}})
	if c == nil {
		t.Fatalf("candidate=nil want sharp_action")
	}

	res := Default().Score([]detector.Candidate{*c})
	if res == nil {
		t.Fatalf("result=nil")
	}
	if res.Side != models.SideAway {
		t.Fatalf("side=%s want=%s", res.Side, models.SideAway)
	}
	if res.Confidence != 90 {
		t.Fatalf("confidence=%.1f want=90", res.Confidence)
	}
	if !res.Qualified || !res.High {
		t.Fatalf("qualified=%v high=%v want both", res.Qualified, res.High)
	}
	if res.LeadKind != models.KindSharpAction {
		t.Fatalf("lead=%s want=%s", res.LeadKind, models.KindSharpAction)
	}
}

func TestScorer_PriorityBreaksSideDisagreement(t *testing.T) {
	candidates := []detector.Candidate{
		mkCandidate(models.KindSharpAction, models.SideAway, 100, 2),
		mkCandidate(models.KindCrossMarketContradiction, models.SideHome, 60, 1),
	}
	res := Default().Score(candidates)
	if res == nil {
		t.Fatalf("result=nil")
	}
	if res.Side != models.SideHome {
		t.Fatalf("side=%s want=%s", res.Side, models.SideHome)
	}
	if res.LeadKind != models.KindCrossMarketContradiction {
		t.Fatalf("lead=%s want=%s", res.LeadKind, models.KindCrossMarketContradiction)
	}
	// Base 60 minus a fifth of the opposing weighted 90.
	if res.Confidence != 42 {
		t.Fatalf("confidence=%.1f want=42", res.Confidence)
	}
	if res.Qualified {
		t.Fatalf("qualified=true want=false")
	}
	if !reflect.DeepEqual(res.Kinds, []string{models.KindCrossMarketContradiction}) {
		t.Fatalf("kinds=%v want lead only", res.Kinds)
	}
}

func TestScorer_SupportingKindsRaiseConfidence(t *testing.T) {
	candidates := []detector.Candidate{
		mkCandidate(models.KindSharpAction, models.SideHome, 80, 1, 2),
		mkCandidate(models.KindReverseLineMovement, models.SideHome, 60, 2, 3),
	}
	res := Default().Score(candidates)
	if res == nil {
		t.Fatalf("result=nil")
	}
	// Base 72 plus a fifth of the supporting weighted 45.
	if res.Confidence != 81 {
		t.Fatalf("confidence=%.1f want=81", res.Confidence)
	}
	if !res.Qualified || res.High {
		t.Fatalf("qualified=%v high=%v want qualified only", res.Qualified, res.High)
	}
	if !reflect.DeepEqual(res.Kinds, []string{models.KindSharpAction, models.KindReverseLineMovement}) {
		t.Fatalf("kinds=%v", res.Kinds)
	}
	if !reflect.DeepEqual(res.SnapshotIDs, []uint64{1, 2, 3}) {
		t.Fatalf("snapshot_ids=%v want=[1 2 3]", res.SnapshotIDs)
	}
}

func TestScorer_BaseIsStrongestSameSideNotLead(t *testing.T) {
	candidates := []detector.Candidate{
		mkCandidate(models.KindCrossMarketContradiction, models.SideHome, 40, 1),
		mkCandidate(models.KindSharpAction, models.SideHome, 100, 2),
	}
	res := Default().Score(candidates)
	if res == nil {
		t.Fatalf("result=nil")
	}
	if res.LeadKind != models.KindCrossMarketContradiction {
		t.Fatalf("lead=%s want=%s", res.LeadKind, models.KindCrossMarketContradiction)
	}
	// Sharp's weighted 90 outranks the lead's 40; the 40 folds into support.
	if res.Confidence != 98 {
		t.Fatalf("confidence=%.1f want=98", res.Confidence)
	}
}

func TestScorer_ClipsAtHundred(t *testing.T) {
	candidates := []detector.Candidate{
		mkCandidate(models.KindCrossMarketContradiction, models.SideAway, 100, 1),
		mkCandidate(models.KindSteamMove, models.SideAway, 100, 2),
	}
	res := Default().Score(candidates)
	if res == nil {
		t.Fatalf("result=nil")
	}
	if res.Confidence != 100 {
		t.Fatalf("confidence=%.1f want=100", res.Confidence)
	}
	if !res.High {
		t.Fatalf("high=false want=true")
	}
}

func TestScorer_NoCandidates(t *testing.T) {
	if res := Default().Score(nil); res != nil {
		t.Fatalf("result=%+v want=nil", res)
	}
}

func TestResult_Signal(t *testing.T) {
	candidates := []detector.Candidate{
		mkCandidate(models.KindSteamMove, models.SideHome, 90, 4, 5),
	}
	res := Default().Score(candidates)
	sig := res.Signal(42, models.MarketSpread)
	if sig.GameID != 42 || sig.MarketType != models.MarketSpread {
		t.Fatalf("key=%d/%s want=42/spread", sig.GameID, sig.MarketType)
	}
	if sig.Kind != models.KindSteamMove || sig.Side != models.SideHome {
		t.Fatalf("kind=%s side=%s", sig.Kind, sig.Side)
	}
	if !sig.DetectedAt.Equal(detectedAt) {
		t.Fatalf("detected_at=%s want=%s", sig.DetectedAt, detectedAt)
	}
	if string(sig.SnapshotIDs) != "[4,5]" {
		t.Fatalf("snapshot_ids=%s want=[4,5]", sig.SnapshotIDs)
	}
	if len(sig.Components) == 0 {
		t.Fatalf("components empty")
	}
}
