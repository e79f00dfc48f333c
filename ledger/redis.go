package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wfunc/arenaledger/models"
)

// MaxRedisAmount is the largest amount the Lua script handles exactly.
const MaxRedisAmount models.Amount = 1 << 53

// Keys share one hash tag so a batch stays in a single cluster slot.
const (
	keyBalance   = "{%s}:balance:%s"
	keyAllowance = "{%s}:allowance:%s"
	keyEscrow    = "{%s}:escrow"
	keySupply    = "{%s}:supply"
	channelLevel = "{%s}:level_up"
)

// KEYS[1] escrow, KEYS[2] supply, then balance and allowance per op.
// ARGV holds kind and amount per op. Every op is checked against projected
// values before anything is written. Lua numbers are doubles, so no stored
// value may grow past 2^53.
var applyScript = redis.NewScript(`
	local escrow = KEYS[1]
	local supply = KEYS[2]
	local n = #ARGV / 2
	local limit = 9007199254740992
	local projected = {}

	local function get(key)
		if projected[key] == nil then
			projected[key] = tonumber(redis.call("GET", key) or "0")
		end
		return projected[key]
	end

	local function credit(key, amount)
		local current = get(key)
		if current > limit - amount then
			return false
		end
		projected[key] = current + amount
		return true
	end

	for i = 1, n do
		local kind = ARGV[2 * i - 1]
		local amount = tonumber(ARGV[2 * i])
		local balance = KEYS[2 * i + 1]
		local allowance = KEYS[2 * i + 2]

		if kind == "transfer_from" then
			if get(allowance) < amount then
				return redis.error_reply("insufficient allowance")
			end
			if get(balance) < amount then
				return redis.error_reply("insufficient balance")
			end
			projected[allowance] = get(allowance) - amount
			projected[balance] = get(balance) - amount
			if not credit(escrow, amount) then
				return redis.error_reply("ledger precision exceeded")
			end
		elseif kind == "transfer" then
			if get(escrow) < amount then
				return redis.error_reply("insufficient escrow balance")
			end
			projected[escrow] = get(escrow) - amount
			if not credit(balance, amount) then
				return redis.error_reply("ledger precision exceeded")
			end
		elseif kind == "mint" then
			if not credit(balance, amount) or not credit(supply, amount) then
				return redis.error_reply("ledger precision exceeded")
			end
		else
			return redis.error_reply("invalid ledger operation")
		end
	end

	for key, value in pairs(projected) do
		redis.call("SET", key, string.format("%.0f", value))
	end
	return n
`)

// Redis keeps balances in Redis and applies batches with one Lua script.
type Redis struct {
	client *redis.Client
	prefix string
}

// RedisOptions mirrors the ledger.redis config section.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

func NewRedis(ctx context.Context, opts RedisOptions) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	prefix := opts.Prefix
	if prefix == "" {
		prefix = "arena"
	}
	return &Redis{client: client, prefix: prefix}, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) balanceKey(a models.Address) string {
	return fmt.Sprintf(keyBalance, r.prefix, a)
}

func (r *Redis) allowanceKey(a models.Address) string {
	return fmt.Sprintf(keyAllowance, r.prefix, a)
}

// LevelUpChannel is the pub/sub channel NotifyLevelUp publishes to.
func (r *Redis) LevelUpChannel() string {
	return fmt.Sprintf(channelLevel, r.prefix)
}

func (r *Redis) Apply(ctx context.Context, ops []Op) error {
	if len(ops) == 0 {
		return nil
	}
	keys := []string{fmt.Sprintf(keyEscrow, r.prefix), fmt.Sprintf(keySupply, r.prefix)}
	args := make([]interface{}, 0, len(ops)*2)
	for _, op := range ops {
		if err := op.validate(); err != nil {
			return err
		}
		if op.Amount > MaxRedisAmount {
			return fmt.Errorf("%w: amount %s above %s", ErrInvalidOp, op.Amount, MaxRedisAmount)
		}
		keys = append(keys, r.balanceKey(op.Account), r.allowanceKey(op.Account))
		args = append(args, string(op.Kind), uint64(op.Amount))
	}

	if err := applyScript.Run(ctx, r.client, keys, args...).Err(); err != nil {
		return mapScriptError(err)
	}
	return nil
}

func mapScriptError(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, ErrInsufficientAllowance.Error()):
		return fmt.Errorf("%w: %v", ErrInsufficientAllowance, err)
	case strings.Contains(msg, ErrInsufficientBalance.Error()):
		return fmt.Errorf("%w: %v", ErrInsufficientBalance, err)
	case strings.Contains(msg, ErrInsufficientEscrow.Error()):
		return fmt.Errorf("%w: %v", ErrInsufficientEscrow, err)
	case strings.Contains(msg, ErrPrecisionExceeded.Error()):
		return fmt.Errorf("%w: %v", ErrPrecisionExceeded, err)
	case strings.Contains(msg, ErrInvalidOp.Error()):
		return fmt.Errorf("%w: %v", ErrInvalidOp, err)
	}
	return fmt.Errorf("ledger script: %w", err)
}

func (r *Redis) TransferFrom(ctx context.Context, from models.Address, amount models.Amount) error {
	return r.Apply(ctx, []Op{TransferFrom(from, amount, "")})
}

func (r *Redis) Transfer(ctx context.Context, to models.Address, amount models.Amount) error {
	return r.Apply(ctx, []Op{Transfer(to, amount, "")})
}

func (r *Redis) MintReward(ctx context.Context, to models.Address, amount models.Amount) error {
	return r.Apply(ctx, []Op{Mint(to, amount, "")})
}

type levelUpMessage struct {
	Player models.Address `json:"player"`
	Level  uint64         `json:"level"`
}

func (r *Redis) NotifyLevelUp(ctx context.Context, player models.Address, level uint64) error {
	data, err := json.Marshal(levelUpMessage{Player: player, Level: level})
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.LevelUpChannel(), data).Err()
}

// Credit gives addr tokens outside of any batch; used to seed dev accounts.
func (r *Redis) Credit(ctx context.Context, addr models.Address, amount models.Amount) error {
	return r.client.IncrBy(ctx, r.balanceKey(addr), int64(amount)).Err()
}

// Approve sets how much the platform may pull from owner.
func (r *Redis) Approve(ctx context.Context, owner models.Address, amount models.Amount) error {
	return r.client.Set(ctx, r.allowanceKey(owner), uint64(amount), 0).Err()
}

func (r *Redis) BalanceOf(ctx context.Context, addr models.Address) (models.Amount, error) {
	return r.readAmount(ctx, r.balanceKey(addr))
}

func (r *Redis) Escrow(ctx context.Context) (models.Amount, error) {
	return r.readAmount(ctx, fmt.Sprintf(keyEscrow, r.prefix))
}

func (r *Redis) readAmount(ctx context.Context, key string) (models.Amount, error) {
	v, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return models.Amount(n), nil
}
