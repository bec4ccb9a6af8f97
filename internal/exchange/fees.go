package exchange

// FeeSchedule holds a venue's trading costs as percentages of notional.
// TDSPercent models the transaction tax some jurisdictions deduct from sell
// proceeds; it is zero for venues where no such tax applies.
type FeeSchedule struct {
	MakerPercent float64
	TakerPercent float64
	TDSPercent   float64
}

// TakerFee returns the taker fee on the given notional.
func (f FeeSchedule) TakerFee(notional float64) float64 {
	return notional * f.TakerPercent / 100
}

// SellDeductions returns the total percentage deducted from sell proceeds:
// the taker fee plus the transaction tax.
func (f FeeSchedule) SellDeductions(notional float64) float64 {
	return notional * (f.TakerPercent + f.TDSPercent) / 100
}
