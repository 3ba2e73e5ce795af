// Package otp keeps single-use confirmation codes in the shared keyed store.
package otp

import (
	"context"
	"encoding/json"
	"time"

	pkgerrors "github.com/angelmondragon/catalogsync/pkg/errors"
	"github.com/angelmondragon/catalogsync/pkg/logger"
	"github.com/angelmondragon/catalogsync/pkg/redis"
	"github.com/angelmondragon/catalogsync/pkg/security"
)

// Outcome is the result of consuming a code.
type Outcome string

const (
	OutcomeOK              Outcome = "ok"
	OutcomeAbsent          Outcome = "absent"
	OutcomeExpired         Outcome = "expired"
	OutcomeTooManyAttempts Outcome = "too_many_attempts"
	OutcomeInvalid         Outcome = "invalid"
)

const codeLength = 6

type entry struct {
	Hash      string    `json:"hash"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Store hashes codes with argon2id and counts failed attempts per key.
type Store struct {
	kv          redis.KeyValueStore
	ttl         time.Duration
	maxAttempts int
	logg        *logger.Logger
	now         func() time.Time
}

func NewStore(kv redis.KeyValueStore, ttl time.Duration, maxAttempts int, logg *logger.Logger) (*Store, error) {
	if kv == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "key value store required")
	}
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Store{kv: kv, ttl: ttl, maxAttempts: maxAttempts, logg: logg, now: time.Now}, nil
}

// Generate returns a fresh 6-digit code.
func Generate() (string, error) {
	return security.GenerateDigits(codeLength)
}

// Issue generates a code, stores it under scope/subject and returns it.
func (s *Store) Issue(ctx context.Context, scope, subject string) (string, time.Time, error) {
	code, err := Generate()
	if err != nil {
		return "", time.Time{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate code")
	}
	expiresAt, err := s.Put(ctx, scope, subject, code, s.ttl)
	if err != nil {
		return "", time.Time{}, err
	}
	return code, expiresAt, nil
}

// Put replaces any code under scope/subject and resets its attempt counter.
func (s *Store) Put(ctx context.Context, scope, subject, code string, ttl time.Duration) (time.Time, error) {
	if ttl <= 0 {
		ttl = s.ttl
	}
	hash, err := security.HashCode(code, security.CodeParams)
	if err != nil {
		return time.Time{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "hash code")
	}
	e := entry{Hash: hash, ExpiresAt: s.now().Add(ttl).UTC()}
	raw, err := json.Marshal(e)
	if err != nil {
		return time.Time{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode code entry")
	}

	if err := s.kv.Del(ctx, redis.OTPAttemptsKey(scope, subject)); err != nil {
		return time.Time{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reset code attempts").WithRetryable(true)
	}
	if err := s.kv.Set(ctx, redis.OTPKey(scope, subject), string(raw), ttl); err != nil {
		return time.Time{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store code").WithRetryable(true)
	}
	return e.ExpiresAt, nil
}

// Take consumes code. Every attempt counts toward the limit and the entry is
// removed on success, on expiry or once the limit is passed. Concurrent
// callers with the right code get OutcomeOK at most once.
func (s *Store) Take(ctx context.Context, scope, subject, code string) (Outcome, error) {
	key := redis.OTPKey(scope, subject)
	attemptsKey := redis.OTPAttemptsKey(scope, subject)
	ctx = s.logg.WithFields(ctx, map[string]any{"otp_scope": scope, "otp_subject": subject})

	raw, err := s.kv.Get(ctx, key)
	if err != nil {
		if redis.IsNil(err) {
			return OutcomeAbsent, nil
		}
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read code").WithRetryable(true)
	}

	var e entry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		s.logg.Warn(ctx, "dropping unreadable code entry")
		return OutcomeAbsent, s.clear(ctx, key, attemptsKey)
	}
	if s.now().After(e.ExpiresAt) {
		return OutcomeExpired, s.clear(ctx, key, attemptsKey)
	}

	attempts, err := s.kv.IncrWithTTL(ctx, attemptsKey, e.ExpiresAt.Sub(s.now()))
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count code attempt").WithRetryable(true)
	}
	if attempts > int64(s.maxAttempts) {
		s.logg.Warn(ctx, "code attempts exhausted")
		return OutcomeTooManyAttempts, s.clear(ctx, key, attemptsKey)
	}

	ok, err := security.VerifyCode(code, e.Hash)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify code")
	}
	if !ok {
		return OutcomeInvalid, nil
	}
	return s.consume(ctx, key, attemptsKey, raw)
}

// consume removes the verified entry atomically. Only the caller whose GETDEL
// returns the exact entry it verified succeeds; a code reissued in between is
// put back untouched.
func (s *Store) consume(ctx context.Context, key, attemptsKey, verified string) (Outcome, error) {
	claimed, err := s.kv.GetDel(ctx, key)
	if err != nil {
		if redis.IsNil(err) {
			s.logg.Warn(ctx, "code consumed concurrently")
			return OutcomeAbsent, s.clear(ctx, attemptsKey)
		}
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "consume code").WithRetryable(true)
	}
	if claimed != verified {
		var fresh entry
		if err := json.Unmarshal([]byte(claimed), &fresh); err == nil {
			if ttl := fresh.ExpiresAt.Sub(s.now()); ttl > 0 {
				if err := s.kv.Set(ctx, key, claimed, ttl); err != nil {
					return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "restore reissued code").WithRetryable(true)
				}
			}
		}
		return OutcomeInvalid, nil
	}
	return OutcomeOK, s.clear(ctx, attemptsKey)
}

func (s *Store) clear(ctx context.Context, keys ...string) error {
	if err := s.kv.Del(ctx, keys...); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete code").WithRetryable(true)
	}
	return nil
}

// Err maps a failed outcome onto an API error.
func (o Outcome) Err() error {
	switch o {
	case OutcomeOK:
		return nil
	case OutcomeTooManyAttempts:
		return pkgerrors.New(pkgerrors.CodeRateLimit, "too many confirmation attempts")
	default:
		return pkgerrors.Newf(pkgerrors.CodeUnauthorized, "confirmation code %s", o)
	}
}
