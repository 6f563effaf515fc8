// services/elo.go
package services

import "math"

const (
	StartingElo = 1500
	KFactor     = 40

	// Streak bonus: +4% rating change per consecutive win, capped at 3 wins (12%)
	StreakBonusPerWin  = 0.04
	MaxStreakBonusWins = 3
)

// ExpectedScore is the classic Elo win probability of a player against the
// opposing team's average rating.
func ExpectedScore(playerElo, opponentAvgElo float64) float64 {
	return 1 / (1 + math.Pow(10, (opponentAvgElo-playerElo)/400))
}

// CalculateStreakBonus maps a current win streak to a K multiplier bonus
// (0 to 0.12 for 0 to 3+ wins).
func CalculateStreakBonus(currentStreak int) float64 {
	winsForBonus := currentStreak
	if winsForBonus > MaxStreakBonusWins {
		winsForBonus = MaxStreakBonusWins
	}
	return float64(winsForBonus) * StreakBonusPerWin
}

// CalculateEloChange computes the signed rating delta for one player.
// streakBonus scales K upward, so streaking winners gain more and
// streaking-then-losing players lose more.
func CalculateEloChange(playerElo, opponentAvgElo float64, won bool, streakBonus float64) int {
	expected := ExpectedScore(playerElo, opponentAvgElo)
	actual := 0.0
	if won {
		actual = 1.0
	}
	kAdjusted := KFactor * (1 + streakBonus)
	return int(math.Round(kAdjusted * (actual - expected)))
}
