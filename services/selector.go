// services/selector.go
package services

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
)

var ErrInsufficientPlayers = errors.New("not enough eligible players")

// MatchCandidate is a session participant annotated with rating and
// in-session completed-game count.
type MatchCandidate struct {
	UserID      string
	Elo         int
	IsSpectator bool
	GamesPlayed int
}

// SelectPlayersForMatch picks matchSize players, prioritizing those with the
// fewest completed games in the session so nobody sits out for long. The
// lowest tier is shuffled and drained first; if the match is still short,
// the remaining pool is merged, reshuffled and drained greedily. rng is
// injected so tests can seed the shuffle.
func SelectPlayersForMatch(candidates []MatchCandidate, matchSize int, rng *rand.Rand) ([]Player, error) {
	eligible := make([]MatchCandidate, 0, len(candidates))
	for _, c := range candidates {
		if c.IsSpectator {
			continue
		}
		if c.Elo == 0 {
			c.Elo = StartingElo
		}
		eligible = append(eligible, c)
	}

	if len(eligible) < matchSize {
		return nil, fmt.Errorf("%w: %d eligible for match size %d",
			ErrInsufficientPlayers, len(eligible), matchSize)
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		return eligible[i].GamesPlayed < eligible[j].GamesPlayed
	})

	selected := make([]Player, 0, matchSize)
	selectedIDs := make(map[string]bool, matchSize)

	// Tier of players sharing the minimum games played goes first
	minGames := eligible[0].GamesPlayed
	var tier []MatchCandidate
	for _, c := range eligible {
		if c.GamesPlayed == minGames {
			tier = append(tier, c)
		}
	}
	rng.Shuffle(len(tier), func(i, j int) { tier[i], tier[j] = tier[j], tier[i] })
	for _, c := range tier {
		if len(selected) == matchSize {
			break
		}
		if !selectedIDs[c.UserID] {
			selected = append(selected, Player{UserID: c.UserID, Elo: c.Elo})
			selectedIDs[c.UserID] = true
		}
	}

	// Still short: merge the remaining tiers and reshuffle
	if len(selected) < matchSize {
		var remaining []MatchCandidate
		for _, c := range eligible {
			if !selectedIDs[c.UserID] {
				remaining = append(remaining, c)
			}
		}
		rng.Shuffle(len(remaining), func(i, j int) { remaining[i], remaining[j] = remaining[j], remaining[i] })
		for _, c := range remaining {
			if len(selected) == matchSize {
				break
			}
			selected = append(selected, Player{UserID: c.UserID, Elo: c.Elo})
			selectedIDs[c.UserID] = true
		}
	}

	return selected[:matchSize], nil
}
