package core

// PhaseProgress blends the two display phases into one 0–100 number:
// pre-processing fills 0–50 and network transfer fills 50–100. Purely a
// presentation convention, not a correctness property.
func PhaseProgress(processing bool, done, total int) float64 {
	if total <= 0 {
		return 0
	}
	frac := float64(done) / float64(total)
	if frac > 1 {
		frac = 1
	}
	if processing {
		return frac * 50
	}
	return 50 + frac*50
}
