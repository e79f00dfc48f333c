// Package reward computes the token reward for a validated session score.
package reward

import (
	"errors"
	"fmt"

	"github.com/wfunc/arenaledger/models"
)

// StandardDifficulty is the difficulty percent that leaves the unit reward unchanged.
const StandardDifficulty = 100

var (
	ErrScoreTooHigh  = errors.New("score exceeds maximum")
	ErrInvalidPolicy = errors.New("invalid reward policy")
)

// Policy holds the platform reward constants.
type Policy struct {
	BaseReward models.Amount `mapstructure:"base_reward"`
	UnitReward models.Amount `mapstructure:"unit_reward"`
	ScoreUnit  uint64        `mapstructure:"score_unit"`
	MaxScore   uint64        `mapstructure:"max_score"`
}

// DefaultPolicy pays 10 tokens per session plus 1 token per 1000 points.
func DefaultPolicy() Policy {
	return Policy{
		BaseReward: models.Tokens(10),
		UnitReward: models.Tokens(1),
		ScoreUnit:  1000,
		MaxScore:   100_000_000,
	}
}

// Calculator is a pure function of its policy.
type Calculator struct {
	policy Policy
}

// NewCalculator validates p. The maximum reward must fit an Amount at the
// highest difficulty a game can register with.
func NewCalculator(p Policy) (*Calculator, error) {
	if p.ScoreUnit == 0 {
		return nil, fmt.Errorf("%w: score unit must be positive", ErrInvalidPolicy)
	}
	c := &Calculator{policy: p}
	if _, err := c.Reward(0, p.MaxScore, StandardDifficulty); err != nil {
		return nil, fmt.Errorf("%w: max score reward: %v", ErrInvalidPolicy, err)
	}
	return c, nil
}

func (c *Calculator) Policy() Policy { return c.policy }

// Reward returns BaseReward + floor(score/ScoreUnit) * UnitReward * difficulty / 100.
// gameID is accepted for per-game policies and does not affect the result.
func (c *Calculator) Reward(gameID, score uint64, difficulty uint32) (models.Amount, error) {
	if score > c.policy.MaxScore {
		return 0, fmt.Errorf("%w: %d > %d", ErrScoreTooHigh, score, c.policy.MaxScore)
	}
	if difficulty == 0 {
		difficulty = StandardDifficulty
	}

	units := score / c.policy.ScoreUnit
	variable, err := models.MulAmount(c.policy.UnitReward, units)
	if err != nil {
		return 0, err
	}
	variable, err = models.MulDiv(variable, uint64(difficulty), StandardDifficulty)
	if err != nil {
		return 0, err
	}
	return models.AddAmount(c.policy.BaseReward, variable)
}

// Experience is the experience a validated score grants.
func Experience(score uint64) uint64 {
	return score / 100
}
