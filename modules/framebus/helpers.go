package framebus

// PanicRate is the share of observer invocations that panicked, 0 before
// any observer ran.
func PanicRate(stats BusStats) float64 {
	return ratio(stats.TotalPanics, stats.TotalDelivered)
}

// SubscriberPanicRate is PanicRate for the observer registered under h.
// Unknown handles report 0.
func SubscriberPanicRate(stats BusStats, h Handle) float64 {
	sub, ok := stats.Subscribers[h]
	if !ok {
		return 0
	}
	return ratio(sub.Panics, sub.Delivered)
}

func ratio(panics, delivered uint64) float64 {
	if panics+delivered == 0 {
		return 0
	}
	return float64(panics) / float64(panics+delivered)
}
