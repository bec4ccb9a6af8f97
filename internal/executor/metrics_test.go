package executor

import "testing"

func TestMetricsRecordOrder(t *testing.T) {
	m := NewMetrics()
	m.RecordOrder("alpha", 120, true)
	m.RecordOrder("alpha", 80, true)
	m.RecordOrder("beta", 300, false)

	snap := m.Snapshot()
	if snap.TotalOrders != 3 || snap.SuccessfulOrders != 2 {
		t.Errorf("orders = %d/%d, want 3 total 2 successful", snap.TotalOrders, snap.SuccessfulOrders)
	}
	if snap.FastestMs != 80 || snap.SlowestMs != 300 {
		t.Errorf("fastest/slowest = %d/%d, want 80/300", snap.FastestMs, snap.SlowestMs)
	}
	if got := m.AvgLatency("alpha"); got != 100 {
		t.Errorf("AvgLatency(alpha) = %v, want 100", got)
	}
	if got := m.AvgLatency("unknown"); got != 0 {
		t.Errorf("AvgLatency(unknown) = %v, want 0", got)
	}
}

func TestMetricsEmptySnapshot(t *testing.T) {
	snap := NewMetrics().Snapshot()
	if snap.FastestMs != 0 || snap.SlowestMs != 0 || snap.TotalOrders != 0 {
		t.Errorf("empty snapshot = %+v, want zeroes", snap)
	}
}

func TestMetricsRecordPnL(t *testing.T) {
	m := NewMetrics()
	m.RecordPnL(12.5)
	m.RecordPnL(-4.5)
	if got := m.Snapshot().CumulativePnL; got != 8 {
		t.Errorf("cumulative pnl = %v, want 8", got)
	}
}
