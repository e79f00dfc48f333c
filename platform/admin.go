package platform

import (
	"context"
	"fmt"
	"strings"

	"github.com/wfunc/arenaledger/models"
	"github.com/wfunc/arenaledger/progression"
)

type GameParams struct {
	Name         string
	Developer    models.Address
	RevenueShare uint8
	// Difficulty is a percent; 0 and 100 both mean standard.
	Difficulty uint32
}

func (p *Platform) RegisterGame(ctx context.Context, caller models.Address, params GameParams) (uint64, error) {
	var id uint64
	err := p.exec(ctx, "register_game", func(t *txn) error {
		if err := t.requireOperator(caller); err != nil {
			return err
		}
		if strings.TrimSpace(params.Name) == "" {
			return ErrEmptyName
		}
		if params.Developer.IsZero() {
			return fmt.Errorf("developer: %w", ErrZeroAddress)
		}
		if params.RevenueShare > 100 {
			return fmt.Errorf("%w: %d", ErrRevenueShareTooHigh, params.RevenueShare)
		}
		if params.Difficulty > MaxDifficulty {
			return fmt.Errorf("%w: %d", ErrInvalidDifficulty, params.Difficulty)
		}

		settings := t.writeSettings()
		id = settings.NextGameID
		settings.NextGameID++

		t.createGame(&models.Game{
			ID:           id,
			Name:         params.Name,
			Developer:    params.Developer,
			RevenueShare: params.RevenueShare,
			Difficulty:   params.Difficulty,
			Active:       true,
			CreatedAt:    t.now,
		})
		t.event(models.EventGameRegistered, params.Developer, id)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (p *Platform) SetGameActive(ctx context.Context, caller models.Address, id uint64, active bool) error {
	return p.exec(ctx, "set_game_active", func(t *txn) error {
		if err := t.requireOperator(caller); err != nil {
			return err
		}
		if _, ok := t.game(id); !ok {
			return fmt.Errorf("%w: %d", ErrGameNotFound, id)
		}
		t.writeGame(id).Active = active
		return nil
	})
}

type AchievementParams struct {
	Name        string
	Description string
	Kind        models.AchievementKind
	Threshold   uint64
	Reward      models.Amount
}

// CreateAchievement registers an active achievement. Kinds without an
// unlock rule are refused.
func (p *Platform) CreateAchievement(ctx context.Context, caller models.Address, params AchievementParams) (uint64, error) {
	var id uint64
	err := p.exec(ctx, "create_achievement", func(t *txn) error {
		if err := t.requireOperator(caller); err != nil {
			return err
		}
		if strings.TrimSpace(params.Name) == "" {
			return ErrEmptyName
		}
		if !progression.KnownKind(params.Kind) {
			return fmt.Errorf("%w: %q", ErrUnknownAchievementKind, params.Kind)
		}
		if !progression.Supported(params.Kind) {
			return fmt.Errorf("%w: %s", progression.ErrUnsupportedAchievement, params.Kind)
		}

		settings := t.writeSettings()
		id = settings.NextAchievementID
		settings.NextAchievementID++

		t.createAchievement(&models.Achievement{
			ID:          id,
			Name:        params.Name,
			Description: params.Description,
			Kind:        params.Kind,
			Threshold:   params.Threshold,
			Reward:      params.Reward,
			Active:      true,
		})
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (p *Platform) SetAchievementActive(ctx context.Context, caller models.Address, id uint64, active bool) error {
	return p.exec(ctx, "set_achievement_active", func(t *txn) error {
		if err := t.requireOperator(caller); err != nil {
			return err
		}
		if _, ok := t.achievement(id); !ok {
			return fmt.Errorf("%w: %d", ErrAchievementNotFound, id)
		}
		t.writeAchievement(id).Active = active
		return nil
	})
}

func (p *Platform) SetValidator(ctx context.Context, caller models.Address, validator models.Address, authorized bool) error {
	return p.exec(ctx, "set_validator", func(t *txn) error {
		if err := t.requireOperator(caller); err != nil {
			return err
		}
		if validator.IsZero() {
			return fmt.Errorf("validator: %w", ErrZeroAddress)
		}
		t.setValidator(validator, authorized)
		t.event(models.EventValidatorUpdated, validator, 0).Memo = fmt.Sprintf("authorized=%t", authorized)
		return nil
	})
}

// SetPlatformFee stores the fee. No settlement path deducts it.
func (p *Platform) SetPlatformFee(ctx context.Context, caller models.Address, bps uint32) error {
	return p.exec(ctx, "set_platform_fee", func(t *txn) error {
		if err := t.requireOperator(caller); err != nil {
			return err
		}
		if bps > MaxPlatformFeeBps {
			return fmt.Errorf("%w: %d > %d", ErrPlatformFeeTooHigh, bps, MaxPlatformFeeBps)
		}
		t.writeSettings().PlatformFeeBps = bps
		return nil
	})
}

func (p *Platform) SetTreasury(ctx context.Context, caller models.Address, treasury models.Address) error {
	return p.exec(ctx, "set_treasury", func(t *txn) error {
		if err := t.requireOperator(caller); err != nil {
			return err
		}
		if treasury.IsZero() {
			return fmt.Errorf("treasury: %w", ErrZeroAddress)
		}
		t.writeSettings().Treasury = treasury
		return nil
	})
}

func (p *Platform) Pause(ctx context.Context, caller models.Address) error {
	return p.setPaused(ctx, caller, true)
}

func (p *Platform) Unpause(ctx context.Context, caller models.Address) error {
	return p.setPaused(ctx, caller, false)
}

func (p *Platform) setPaused(ctx context.Context, caller models.Address, paused bool) error {
	op, kind := "unpause", models.EventUnpaused
	if paused {
		op, kind = "pause", models.EventPaused
	}
	return p.exec(ctx, op, func(t *txn) error {
		if err := t.requireOperator(caller); err != nil {
			return err
		}
		if t.readSettings().Paused == paused {
			return nil
		}
		t.writeSettings().Paused = paused
		t.event(kind, caller, 0)
		return nil
	})
}
