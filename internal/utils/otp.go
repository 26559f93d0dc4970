package utils

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
)

// OTP failures
var (
	ErrOTPExpired  = errors.New("otp expired or not requested")
	ErrOTPInvalid  = errors.New("invalid otp")
	ErrOTPAttempts = errors.New("too many otp attempts")
	ErrOTPCooldown = errors.New("otp requested too recently")
)

const otpDigits = 6

// OTPStore keeps bcrypt-hashed one-time passwords in Redis, keyed by phone number.
type OTPStore struct {
	rdb         redis.UniversalClient
	ttl         time.Duration
	cooldown    time.Duration
	maxAttempts int
	cost        int
}

// NewOTPStore creates an OTP store. A non-positive maxAttempts means five attempts.
func NewOTPStore(rdb redis.UniversalClient, ttl, cooldown time.Duration, maxAttempts int) *OTPStore {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &OTPStore{rdb: rdb, ttl: ttl, cooldown: cooldown, maxAttempts: maxAttempts, cost: bcrypt.DefaultCost}
}

// TTL returns how long an issued OTP stays valid
func (s *OTPStore) TTL() time.Duration {
	return s.ttl
}

func otpKey(phone string) string      { return "otp:phone:" + phone }
func cooldownKey(phone string) string { return "otp:cooldown:" + phone }

// Issue generates a fresh OTP for phone, replacing any previous one.
func (s *OTPStore) Issue(ctx context.Context, phone string) (string, error) {
	if s.cooldown > 0 {
		ok, err := s.rdb.SetNX(ctx, cooldownKey(phone), 1, s.cooldown).Result()
		if err != nil {
			return "", err
		}
		if !ok {
			return "", ErrOTPCooldown
		}
	}
	code, err := generateCode(otpDigits)
	if err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), s.cost)
	if err != nil {
		return "", err
	}
	key := otpKey(phone)
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, "hash", string(hash), "attempts", 0)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", err
	}
	return code, nil
}

// claimAttempt spends one attempt before any hash comparison so concurrent guesses cannot
// exceed the budget. It returns -1 when no OTP is stored, -2 when the budget is spent (the
// OTP is deleted), otherwise the attempt number followed by the stored hash. HINCRBY on the
// existing hash keeps its TTL.
var claimAttempt = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
	return {-1}
end
local n = redis.call("HINCRBY", KEYS[1], "attempts", 1)
if n > tonumber(ARGV[1]) then
	redis.call("DEL", KEYS[1])
	return {-2}
end
return {n, redis.call("HGET", KEYS[1], "hash")}
`)

// Verify checks code against the stored OTP. Every check spends one attempt; a match
// consumes the OTP and the OTP is burned once the attempt budget is spent.
func (s *OTPStore) Verify(ctx context.Context, phone, code string) error {
	key := otpKey(phone)
	res, err := claimAttempt.Run(ctx, s.rdb, []string{key}, s.maxAttempts).Slice()
	if err != nil {
		return err
	}
	attempt, _ := res[0].(int64)
	switch {
	case attempt == -1:
		return ErrOTPExpired
	case attempt == -2 || len(res) < 2:
		return ErrOTPAttempts
	}
	hash, _ := res[1].(string)
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(code)) != nil {
		if int(attempt) >= s.maxAttempts {
			_ = s.rdb.Del(ctx, key).Err()
			return ErrOTPAttempts
		}
		return ErrOTPInvalid
	}
	return s.rdb.Del(ctx, key, cooldownKey(phone)).Err()
}

func generateCode(digits int) (string, error) {
	max := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(digits)), nil)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", digits, n.Int64()), nil
}
