package engines

// slowSpeed is the rate multiplier sent to providers with a numeric speed
// control when a request asks for slow speech. gtts has its own --slow flag.
const slowSpeed = 0.7

func speedRatio(slow bool) float64 {
	if slow {
		return slowSpeed
	}
	return 1.0
}
