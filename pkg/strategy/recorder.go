package strategy

// Recorder receives engine activity counters. metrics.Recorder implements it.
type Recorder interface {
	Tick()
	Order(symbol, side string, quantity int64)
	Transition(pair, from, to, reason string)
	PairReading(pair string, z float64, ready bool)
}

type nopRecorder struct{}

func (nopRecorder) Tick()                                     {}
func (nopRecorder) Order(string, string, int64)               {}
func (nopRecorder) Transition(string, string, string, string) {}
func (nopRecorder) PairReading(string, float64, bool)         {}
