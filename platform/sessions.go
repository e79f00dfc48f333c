package platform

import (
	"context"
	"fmt"

	"github.com/wfunc/arenaledger/attest"
	"github.com/wfunc/arenaledger/ledger"
	"github.com/wfunc/arenaledger/models"
	"github.com/wfunc/arenaledger/reward"
)

// FinishRequest carries a player's attested result.
type FinishRequest struct {
	SessionID uint64
	Score     uint64
	Nonce     models.Nonce
	Signature []byte
}

// SessionResult is what a successful FinishSession settled.
type SessionResult struct {
	Session        *models.GameSession `json:"session"`
	Reward         models.Amount       `json:"reward"`
	DeveloperShare models.Amount       `json:"developer_share"`
	Experience     uint64              `json:"experience"`
	Level          uint64              `json:"level"`
	LeveledUp      bool                `json:"leveled_up"`
	Unlocked       []uint64            `json:"unlocked,omitempty"`
}

// StartSession opens a session of gameID for caller.
func (p *Platform) StartSession(ctx context.Context, caller models.Address, gameID uint64) (uint64, error) {
	var id uint64
	err := p.exec(ctx, "start_session", func(t *txn) error {
		if err := t.requireRunning(); err != nil {
			return err
		}
		if caller.IsZero() {
			return ErrZeroAddress
		}
		g, ok := t.game(gameID)
		if !ok {
			return fmt.Errorf("%w: %d", ErrGameNotFound, gameID)
		}
		if !g.Active {
			return fmt.Errorf("%w: %d", ErrGameInactive, gameID)
		}

		settings := t.writeSettings()
		id = settings.NextSessionID
		settings.NextSessionID++

		t.createSession(&models.GameSession{
			ID:        id,
			GameID:    gameID,
			Player:    caller,
			StartTime: t.now,
			Status:    models.SessionStarted,
		})
		t.writeGame(gameID).TotalSessions++
		t.writeGamePlayer(gameID, caller).Sessions++
		t.writePlayer(caller).TotalGamesPlayed++

		t.event(models.EventSessionStarted, caller, id)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// checkFinish validates everything FinishSession needs before any effect.
func (p *Platform) checkFinish(t *txn, caller models.Address, req FinishRequest) (*models.GameSession, *models.Game, models.Amount, error) {
	if err := t.requireRunning(); err != nil {
		return nil, nil, 0, err
	}
	sess, ok := t.session(req.SessionID)
	if !ok {
		return nil, nil, 0, fmt.Errorf("%w: %d", ErrSessionNotFound, req.SessionID)
	}
	if caller != sess.Player {
		return nil, nil, 0, ErrNotSessionPlayer
	}
	if sess.IsFinished() || !p.sessions.CanTransition(sess.Status, models.SessionFinished) {
		return nil, nil, 0, fmt.Errorf("%w: %d", ErrSessionFinished, req.SessionID)
	}
	if t.s.NonceConsumed(req.Nonce) {
		return nil, nil, 0, attest.ErrNonceConsumed
	}
	if _, err := p.verifier.Verify(attest.Attestation{
		SessionID: req.SessionID,
		Score:     req.Score,
		Nonce:     req.Nonce,
		Signature: req.Signature,
	}); err != nil {
		return nil, nil, 0, err
	}
	g, ok := t.game(sess.GameID)
	if !ok {
		return nil, nil, 0, fmt.Errorf("%w: %d", ErrGameNotFound, sess.GameID)
	}
	amount, err := p.rewards.Reward(g.ID, req.Score, g.Difficulty)
	if err != nil {
		return nil, nil, 0, err
	}
	return sess, g, amount, nil
}

// FinishSession settles an attested session: it consumes the nonce, records
// the score, credits experience, runs progression and mints the reward and
// the developer's share. Either all of it happens or none of it.
func (p *Platform) FinishSession(ctx context.Context, caller models.Address, req FinishRequest) (*SessionResult, error) {
	var result *SessionResult
	err := p.exec(ctx, "finish_session", func(t *txn) error {
		sess, g, amount, err := p.checkFinish(t, caller, req)
		if err != nil {
			return err
		}

		sess = t.writeSession(sess.ID)
		if err := p.sessions.ChangeState(&sess.Status, models.SessionFinished); err != nil {
			return err
		}
		sess.EndTime = t.now
		sess.Score = req.Score
		sess.Nonce = req.Nonce
		sess.Reward = amount
		sess.Validated = true

		t.consumeNonce(req.Nonce)

		rec := t.writeGamePlayer(g.ID, caller)
		rec.LastScore = req.Score

		player := t.writePlayer(caller)
		if req.Score > player.GameStats[g.ID] {
			player.GameStats[g.ID] = req.Score
		}
		xp := reward.Experience(req.Score)
		if player.Experience+xp < player.Experience {
			return fmt.Errorf("experience: %w", models.ErrAmountOverflow)
		}
		player.Experience += xp

		result = &SessionResult{Reward: amount, Experience: xp}
		result.Level, result.LeveledUp = p.progression.CheckLevelUp(player)
		if result.LeveledUp {
			t.levelUps = append(t.levelUps, levelUp{player: caller, level: result.Level})
			t.event(models.EventLevelUp, caller, sess.ID).Level = result.Level
		}
		if result.Unlocked, err = p.unlockAchievements(t, player); err != nil {
			return err
		}

		if amount > 0 {
			t.queue(ledger.Mint(caller, amount, fmt.Sprintf("session %d reward", sess.ID)))
			share, err := models.MulDiv(amount, uint64(g.RevenueShare), 100)
			if err != nil {
				return err
			}
			if share > 0 {
				t.queue(ledger.Mint(g.Developer, share, fmt.Sprintf("session %d revenue share", sess.ID)))
				game := t.writeGame(g.ID)
				if game.TotalRevenue, err = models.AddAmount(game.TotalRevenue, share); err != nil {
					return err
				}
			}
			result.DeveloperShare = share
			t.event(models.EventRewardMinted, caller, sess.ID).Amount = amount
		}

		t.event(models.EventSessionFinished, caller, sess.ID).Amount = amount
		result.Session = sess.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// unlockAchievements runs the achievement pass for player and queues the
// reward mints it produced.
func (p *Platform) unlockAchievements(t *txn, player *models.PlayerStats) ([]uint64, error) {
	unlocked, err := p.progression.CheckAchievements(player, t.s.activeAchievements())
	if err != nil {
		return nil, err
	}
	ids := make([]uint64, 0, len(unlocked))
	for _, a := range unlocked {
		ids = append(ids, a.ID)
		if a.Reward > 0 {
			t.queue(ledger.Mint(player.Address, a.Reward, fmt.Sprintf("achievement %d", a.ID)))
		}
		t.event(models.EventAchievementUnlocked, player.Address, a.ID).Amount = a.Reward
	}
	return ids, nil
}
