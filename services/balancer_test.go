package services

import (
	"fmt"
	"math"
	"math/bits"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func somePlayers(elos ...int) []Player {
	players := make([]Player, len(elos))
	for i, elo := range elos {
		players[i] = Player{UserID: fmt.Sprintf("user-%d", i), Elo: elo}
	}
	return players
}

func TestBalanceTeamsEqualHalves(t *testing.T) {
	for _, size := range []int{2, 4, 6, 8} {
		elos := make([]int, size)
		for i := range elos {
			elos[i] = 1400 + i*37
		}
		assignment, err := BalanceTeams(somePlayers(elos...), size)
		require.NoError(t, err)
		assert.Len(t, assignment.Team1, size/2)
		assert.Len(t, assignment.Team2, size/2)
	}
}

func TestBalanceTeamsRejectsOddSize(t *testing.T) {
	_, err := BalanceTeams(somePlayers(1500, 1500, 1500), 3)
	assert.ErrorIs(t, err, ErrInvalidMatchSize)
}

func TestBalanceTeamsRejectsCountMismatch(t *testing.T) {
	_, err := BalanceTeams(somePlayers(1500, 1500), 4)
	assert.ErrorIs(t, err, ErrInvalidMatchSize)
}

func TestBalanceTeamsRejectsOversize(t *testing.T) {
	elos := make([]int, MaxMatchSize+2)
	for i := range elos {
		elos[i] = 1500
	}
	_, err := BalanceTeams(somePlayers(elos...), MaxMatchSize+2)
	assert.ErrorIs(t, err, ErrInvalidMatchSize)
}

func TestBalanceTeamsIsOptimal(t *testing.T) {
	players := somePlayers(1200, 1350, 1500, 1650, 1800, 1950)
	assignment, err := BalanceTeams(players, 6)
	require.NoError(t, err)

	// brute-force every partition and confirm none beats the returned one
	best := math.Inf(1)
	for mask := 0; mask < 1<<6; mask++ {
		if bits.OnesCount(uint(mask)) != 3 {
			continue
		}
		var sum1, sum2 float64
		for j := 0; j < 6; j++ {
			if mask>>j&1 == 1 {
				sum1 += float64(players[j].Elo)
			} else {
				sum2 += float64(players[j].Elo)
			}
		}
		diff := math.Abs(sum1/3 - sum2/3)
		if diff < best {
			best = diff
		}
	}
	assert.InDelta(t, best, assignment.EloDiff, 1e-9)
}

func TestBalanceTeamsDeterministicTieBreak(t *testing.T) {
	players := somePlayers(1500, 1500, 1500, 1500)
	first, err := BalanceTeams(players, 4)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		again, err := BalanceTeams(players, 4)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestBalanceTeamsDefaultsMissingElo(t *testing.T) {
	players := []Player{
		{UserID: "a"}, // no rating yet
		{UserID: "b", Elo: 1500},
	}
	assignment, err := BalanceTeams(players, 2)
	require.NoError(t, err)
	assert.InDelta(t, 0, assignment.EloDiff, 1e-9)
}
