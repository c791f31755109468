// Package service provides business logic implementations.
package service

import "voice-credit-bot/internal/model"

// Reward is the credits and levels earned by a voice minute transition.
type Reward struct {
	Credits int64
	Levels  int64
}

// RewardPolicy converts accumulated voice minutes into credits and levels.
// A credit is earned every minutesPerCredit minutes of lifetime voice time,
// a level every CreditsPerLevel such credits. Both thresholds are measured
// against the running total, so splitting a stretch of minutes across
// several calls never changes what is earned.
type RewardPolicy struct {
	CreditsPerLevel int
}

// NewRewardPolicy creates a RewardPolicy. Values below one fall back to one.
func NewRewardPolicy(creditsPerLevel int) RewardPolicy {
	if creditsPerLevel < 1 {
		creditsPerLevel = 1
	}
	return RewardPolicy{CreditsPerLevel: creditsPerLevel}
}

func (p RewardPolicy) spans(minutesPerCredit int) (credit, level int64) {
	if minutesPerCredit < 1 {
		minutesPerCredit = 1
	}
	cpl := p.CreditsPerLevel
	if cpl < 1 {
		cpl = 1
	}
	return int64(minutesPerCredit), int64(minutesPerCredit) * int64(cpl)
}

// Evaluate returns the reward for moving total voice minutes from before to
// after at the given rate. It is pure; a non-increasing transition earns nothing.
func (p RewardPolicy) Evaluate(before, after int64, minutesPerCredit int) Reward {
	if after <= before || before < 0 {
		return Reward{}
	}
	credit, level := p.spans(minutesPerCredit)
	return Reward{
		Credits: after/credit - before/credit,
		Levels:  after/level - before/level,
	}
}

// Award binds the policy to a rate for use inside a ledger transaction.
func (p RewardPolicy) Award(minutesPerCredit int) model.AwardFunc {
	return func(before, after int64) (int64, int64) {
		r := p.Evaluate(before, after, minutesPerCredit)
		return r.Credits, r.Levels
	}
}

// Progress describes how far a user is from the next credit and level.
type Progress struct {
	MinutesToNextCredit int64
	MinutesToNextLevel  int64
}

// Progress computes the minutes remaining until the next thresholds.
func (p RewardPolicy) Progress(totalMinutes int64, minutesPerCredit int) Progress {
	if totalMinutes < 0 {
		totalMinutes = 0
	}
	credit, level := p.spans(minutesPerCredit)
	return Progress{
		MinutesToNextCredit: credit - totalMinutes%credit,
		MinutesToNextLevel:  level - totalMinutes%level,
	}
}
