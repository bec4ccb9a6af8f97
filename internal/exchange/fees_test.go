package exchange

import (
	"math"
	"testing"
)

func TestTakerFee(t *testing.T) {
	f := FeeSchedule{TakerPercent: 0.2}
	if got := f.TakerFee(10000); got != 20 {
		t.Errorf("TakerFee(10000) = %v, want 20", got)
	}
}

func TestSellDeductionsIncludeTDS(t *testing.T) {
	f := FeeSchedule{TakerPercent: 0.2, TDSPercent: 1.0}
	got := f.SellDeductions(10000)
	if math.Abs(got-120) > 1e-9 {
		t.Errorf("SellDeductions(10000) = %v, want 120 (0.2%% fee + 1%% TDS)", got)
	}
}

func TestSellDeductionsWithoutTDS(t *testing.T) {
	f := FeeSchedule{TakerPercent: 0.26}
	if got := f.SellDeductions(10000); got != 26 {
		t.Errorf("SellDeductions(10000) = %v, want 26", got)
	}
}

func TestVenueFeeSchedules(t *testing.T) {
	cases := []struct {
		adapter Adapter
		taker   float64
		tds     float64
	}{
		{NewBinance("", "", "", ""), 0.1, 0},
		{NewWazirX("", "", "", ""), 0.2, 1.0},
		{NewCoinDCX("", "", "", ""), 0.1, 1.0},
		{NewKraken("", "", "", ""), 0.26, 0},
	}
	for _, c := range cases {
		f := c.adapter.Fees()
		if f.TakerPercent != c.taker || f.TDSPercent != c.tds {
			t.Errorf("%s fees = %+v, want taker %v tds %v",
				c.adapter.Name(), f, c.taker, c.tds)
		}
	}
}
