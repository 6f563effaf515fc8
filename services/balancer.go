// services/balancer.go
package services

import (
	"errors"
	"fmt"
	"math"
	"math/bits"
)

// MaxMatchSize bounds the exhaustive team search. C(12,6) = 924 candidate
// splits, so enumeration stays trivial below this limit.
const MaxMatchSize = 12

var ErrInvalidMatchSize = errors.New("invalid match size")

// Player is a match candidate with a resolved rating.
type Player struct {
	UserID string `json:"user_id"`
	Elo    int    `json:"elo"`
}

// TeamAssignment is a 2-way split of a player set.
type TeamAssignment struct {
	Team1   []Player `json:"team1"`
	Team2   []Player `json:"team2"`
	EloDiff float64  `json:"elo_diff"`
}

func teamAvgElo(team []Player) float64 {
	if len(team) == 0 {
		return 0
	}
	sum := 0
	for _, p := range team {
		sum += p.Elo
	}
	return float64(sum) / float64(len(team))
}

// BalanceTeams enumerates every equal-halves partition of players and
// returns the one minimizing the absolute difference of team average Elo.
// Ties resolve to the first minimal partition in ascending bitmask order;
// that ordering is the documented tie-break policy, so identical inputs
// always produce identical teams.
func BalanceTeams(players []Player, matchSize int) (TeamAssignment, error) {
	if len(players) != matchSize {
		return TeamAssignment{}, fmt.Errorf("%w: player count (%d) must match match size (%d)",
			ErrInvalidMatchSize, len(players), matchSize)
	}
	if matchSize%2 != 0 {
		return TeamAssignment{}, fmt.Errorf("%w: match size must be even for 2 teams", ErrInvalidMatchSize)
	}
	if matchSize > MaxMatchSize {
		return TeamAssignment{}, fmt.Errorf("%w: match size %d exceeds maximum %d",
			ErrInvalidMatchSize, matchSize, MaxMatchSize)
	}

	// Players without a rating play as 1500
	resolved := make([]Player, len(players))
	for i, p := range players {
		resolved[i] = p
		if resolved[i].Elo == 0 {
			resolved[i].Elo = StartingElo
		}
	}

	n := len(resolved)
	half := matchSize / 2
	best := TeamAssignment{EloDiff: math.Inf(1)}
	found := false

	for mask := 0; mask < 1<<n; mask++ {
		if bits.OnesCount(uint(mask)) != half {
			continue
		}
		var team1, team2 []Player
		for j := 0; j < n; j++ {
			if mask>>j&1 == 1 {
				team1 = append(team1, resolved[j])
			} else {
				team2 = append(team2, resolved[j])
			}
		}
		diff := math.Abs(teamAvgElo(team1) - teamAvgElo(team2))
		if diff < best.EloDiff {
			best = TeamAssignment{Team1: team1, Team2: team2, EloDiff: diff}
			found = true
		}
	}

	if !found {
		// Unreachable for correct-size input; fall back to a naive split
		team1, team2 := resolved[:half], resolved[half:]
		return TeamAssignment{
			Team1:   team1,
			Team2:   team2,
			EloDiff: math.Abs(teamAvgElo(team1) - teamAvgElo(team2)),
		}, nil
	}

	return best, nil
}
