package oddsmath

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
)

func near(a, b float64) bool {
	return math.Abs(a-b) < 1e-4
}

func TestAmericanToDecimal(t *testing.T) {
	got, err := AmericanToDecimal(150)
	if err != nil || !near(got, 2.50) {
		t.Fatalf("got=%v err=%v want=2.50", got, err)
	}
	got, err = AmericanToDecimal(-150)
	if err != nil || !near(got, 1.6667) {
		t.Fatalf("got=%v err=%v want=1.6667", got, err)
	}
	if _, err = AmericanToDecimal(0); err == nil {
		t.Fatalf("zero odds err=nil")
	}
}

func TestImpliedProbability(t *testing.T) {
	got, err := ImpliedProbability(-110)
	if err != nil || !near(got, 0.5238) {
		t.Fatalf("got=%v err=%v want=0.5238", got, err)
	}
	got, err = ImpliedProbability(200)
	if err != nil || !near(got, 0.3333) {
		t.Fatalf("got=%v err=%v want=0.3333", got, err)
	}
}

func TestNoVig(t *testing.T) {
	home, away, err := NoVig(0.5238, 0.5238)
	if err != nil || !near(home, 0.5) || !near(away, 0.5) {
		t.Fatalf("home=%v away=%v err=%v want=0.5/0.5", home, away, err)
	}
	if _, _, err = NoVig(0, 0.5); err == nil {
		t.Fatalf("nonpositive prob err=nil")
	}
}

func TestNoVigHomeProbability(t *testing.T) {
	got, err := NoVigHomeProbability(-110, -110)
	if err != nil || !near(got, 0.5) {
		t.Fatalf("got=%v err=%v want=0.5", got, err)
	}
	// -120/+100: home implied 0.5455, away 0.5, fair home 0.5217.
	got, err = NoVigHomeProbability(-120, 100)
	if err != nil || !near(got, 0.5217) {
		t.Fatalf("got=%v err=%v want=0.5217", got, err)
	}
}

func TestVigPercentage(t *testing.T) {
	if got := VigPercentage(0.5238, 0.5238); !near(got, 4.76) {
		t.Fatalf("got=%v want=4.76", got)
	}
}

func TestFlatStakeProfit(t *testing.T) {
	stake := decimal.NewFromInt(100)
	got, err := FlatStakeProfit(stake, 150)
	if err != nil || !got.Equal(decimal.NewFromInt(150)) {
		t.Fatalf("got=%v err=%v want=150", got, err)
	}
	got, err = FlatStakeProfit(stake, -200)
	if err != nil || !got.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("got=%v err=%v want=50", got, err)
	}
	if _, err = FlatStakeProfit(stake, 0); err == nil {
		t.Fatalf("zero odds err=nil")
	}
}
