// Package progression holds the pure progression rules (XP, levels,
// difficulty, streaks) and the components that apply them to stored state.
package progression

import (
	"github.com/felixgeelhaar/sensei/internal/domain"
)

// baseXP is the reward for a fully correct answer at each difficulty.
var baseXP = map[int]int{
	1: 10,
	2: 25,
	3: 50,
	4: 80,
	5: 120,
}

// fallbackBaseXP is used for a difficulty outside the table.
const fallbackBaseXP = 25

// Multipliers are kept in percent so the result floors exactly.
const (
	hintPenaltyPerHint = 10
	hintPenaltyFloor   = 50
	streakBonusPerDay  = 5
	streakBonusCap     = 50
)

// XP computes the experience awarded for one submission:
//
//	floor(base * pct/100 * max(0.5, 1-0.1*hints) * (1 + min(0.05*(streak-1), 0.5)))
//
// A zero score earns nothing; any positive score earns at least 1.
func XP(difficulty, correctnessPct, hintsUsed, currentStreak int) int {
	base, ok := baseXP[difficulty]
	if !ok {
		base = fallbackBaseXP
	}

	pct := max(0, min(100, correctnessPct))
	if pct == 0 {
		return 0
	}

	hintPct := max(hintPenaltyFloor, 100-hintPenaltyPerHint*max(hintsUsed, 0))

	streakPct := 100
	if currentStreak > 1 {
		streakPct += min((currentStreak-1)*streakBonusPerDay, streakBonusCap)
	}

	raw := base * pct * hintPct * streakPct / (100 * 100 * 100)
	return max(1, raw)
}

type levelThreshold struct {
	minXP int
	level int
}

var levelThresholds = []levelThreshold{
	{0, 1},
	{100, 2},
	{300, 3},
	{600, 4},
	{1000, 5},
	{1500, 6},
	{2100, 7},
	{2800, 8},
	{3600, 9},
	{4500, 10},
}

// MaxLevel is the highest reachable level.
var MaxLevel = levelThresholds[len(levelThresholds)-1].level

// Level returns the level for a total XP amount.
func Level(totalXP int) int {
	return levelThresholds[thresholdIndex(totalXP)].level
}

func thresholdIndex(totalXP int) int {
	idx := 0
	for i, th := range levelThresholds {
		if totalXP >= th.minXP {
			idx = i
		}
	}
	return idx
}

// LevelProgress describes where a total XP amount sits inside its level.
type LevelProgress struct {
	Level          int  `json:"level"`
	CurrentXP      int  `json:"current_xp"`
	XPInLevel      int  `json:"xp_in_level"`
	XPForNextLevel *int `json:"xp_for_next_level"`
	XPRemaining    int  `json:"xp_remaining"`
	IsMaxLevel     bool `json:"is_max_level"`
}

// ComputeLevelProgress returns the level breakdown for totalXP.
func ComputeLevelProgress(totalXP int) LevelProgress {
	idx := thresholdIndex(totalXP)
	cur := levelThresholds[idx]
	lp := LevelProgress{
		Level:     cur.level,
		CurrentXP: totalXP,
		XPInLevel: totalXP - cur.minXP,
	}
	if idx == len(levelThresholds)-1 {
		lp.IsMaxLevel = true
		return lp
	}
	next := levelThresholds[idx+1]
	span := next.minXP - cur.minXP
	lp.XPForNextLevel = &span
	lp.XPRemaining = next.minXP - totalXP
	return lp
}

// ApplyOutcome folds one evaluated submission into state.
func ApplyOutcome(state *domain.ProgressState, xp int, correct bool) {
	state.XP += xp
	state.ChallengesCompleted++
	if correct {
		state.ChallengesCorrect++
	}
	state.Level = Level(state.XP)
}
