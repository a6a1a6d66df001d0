package service

import (
	"testing"

	"github.com/shopspring/decimal"

	"sharpline/internal/models"
)

func linePtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestMoneylineWinner(t *testing.T) {
	if got := moneylineWinner(110, 99); got != models.SideHome {
		t.Fatalf("got=%q want %q", got, models.SideHome)
	}
	if got := moneylineWinner(99, 110); got != models.SideAway {
		t.Fatalf("got=%q want %q", got, models.SideAway)
	}
	if got := moneylineWinner(100, 100); got != models.SidePush {
		t.Fatalf("got=%q want %q", got, models.SidePush)
	}
}

func TestSpreadWinner_HomeCovers(t *testing.T) {
	// Home favored by 3.5, wins by 10.
	if got := spreadWinner(110, 100, linePtr("-3.5")); got != models.SideHome {
		t.Fatalf("got=%q want %q", got, models.SideHome)
	}
}

func TestSpreadWinner_FavoriteWinsButFailsToCover(t *testing.T) {
	// Home favored by 3.5, wins by only 3.
	if got := spreadWinner(100, 97, linePtr("-3.5")); got != models.SideAway {
		t.Fatalf("got=%q want %q", got, models.SideAway)
	}
}

func TestSpreadWinner_UnderdogCoversByWinning(t *testing.T) {
	// Home a 6-point underdog wins outright.
	if got := spreadWinner(101, 100, linePtr("6")); got != models.SideHome {
		t.Fatalf("got=%q want %q", got, models.SideHome)
	}
}

func TestSpreadWinner_Push(t *testing.T) {
	// Home favored by exactly 3, wins by exactly 3.
	if got := spreadWinner(100, 97, linePtr("-3")); got != models.SidePush {
		t.Fatalf("got=%q want %q", got, models.SidePush)
	}
}

func TestSpreadWinner_NoClosingLine(t *testing.T) {
	if got := spreadWinner(100, 97, nil); got != "" {
		t.Fatalf("got=%q want empty", got)
	}
}

func TestTotalResult(t *testing.T) {
	if got := totalResult(110, 105, linePtr("210.5")); got != models.SideOver {
		t.Fatalf("got=%q want %q", got, models.SideOver)
	}
	if got := totalResult(100, 105, linePtr("210.5")); got != models.SideUnder {
		t.Fatalf("got=%q want %q", got, models.SideUnder)
	}
	if got := totalResult(110, 105, linePtr("215")); got != models.SidePush {
		t.Fatalf("got=%q want %q", got, models.SidePush)
	}
	if got := totalResult(110, 105, nil); got != "" {
		t.Fatalf("got=%q want empty", got)
	}
}

func TestClosingLines_LastRowPerMarketWins(t *testing.T) {
	snaps := []models.OddsSnapshot{
		{MarketType: models.MarketSpread, Line: decimal.RequireFromString("-3.5")},
		{MarketType: models.MarketTotal, Line: decimal.RequireFromString("210.5")},
		{MarketType: models.MarketMoneyline},
		{MarketType: models.MarketSpread, Line: decimal.RequireFromString("-4")},
	}
	spread, total := closingLines(snaps)
	if spread == nil || !spread.Equal(decimal.RequireFromString("-4")) {
		t.Fatalf("spread=%v want -4", spread)
	}
	if total == nil || !total.Equal(decimal.RequireFromString("210.5")) {
		t.Fatalf("total=%v want 210.5", total)
	}
}

func TestClosingLines_MissingMarket(t *testing.T) {
	snaps := []models.OddsSnapshot{
		{MarketType: models.MarketMoneyline},
	}
	spread, total := closingLines(snaps)
	if spread != nil || total != nil {
		t.Fatalf("spread=%v total=%v want both nil", spread, total)
	}
}
