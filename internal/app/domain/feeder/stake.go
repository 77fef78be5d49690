package feeder

// ApplySlash deducts up to penalty from the feeder's stake, flooring at
// zero, and returns the amount actually taken.
func (f *Feeder) ApplySlash(penalty int64) int64 {
	if penalty <= 0 {
		return 0
	}
	taken := penalty
	if taken > f.Stake {
		taken = f.Stake
	}
	f.Stake -= taken
	return taken
}

// Expelled reports whether the feeder's yellow card count has gone past the
// expulsion threshold. A feeder at exactly the threshold is still eligible.
func (f Feeder) Expelled(threshold int) bool {
	return f.YellowCards > threshold
}
