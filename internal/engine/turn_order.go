package engine

// lowestAlive returns the smallest turn index among alive players.
func lowestAlive(players []Player) (int, bool) {
	best, found := 0, false
	for _, p := range players {
		if !p.Alive {
			continue
		}
		if !found || p.TurnIndex < best {
			best, found = p.TurnIndex, true
		}
	}
	return best, found
}

// nextAlive returns the next alive turn index strictly after current,
// wrapping to the lowest alive index.
func nextAlive(players []Player, current int) (int, bool) {
	next, found := 0, false
	for _, p := range players {
		if !p.Alive || p.TurnIndex <= current {
			continue
		}
		if !found || p.TurnIndex < next {
			next, found = p.TurnIndex, true
		}
	}
	if found {
		return next, true
	}
	return lowestAlive(players)
}
