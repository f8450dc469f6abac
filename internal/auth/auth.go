// Package auth is the identity capability: phone OTP sign-in, session tokens
// and the observable application session.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"khata-ledger-go/internal/kv"
	"khata-ledger-go/internal/models"
	"khata-ledger-go/internal/phone"
	"khata-ledger-go/internal/store"
)

var (
	ErrInvalidPhone       = errors.New("invalid phone number")
	ErrChallengeNotFound  = errors.New("otp challenge not found or expired")
	ErrInvalidCode        = errors.New("invalid otp code")
	ErrTooManyAttempts    = errors.New("too many otp attempts")
	ErrInvalidToken       = errors.New("invalid session token")
	errChallengeCorrupted = errors.New("stored challenge is unreadable")
)

// userNamespace seeds the name-based user ids, so one phone number always
// maps to the same user.
var userNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("khata-ledger:users"))

// UserID derives the stable user id of a phone number.
func UserID(number string) string {
	return uuid.NewSHA1(userNamespace, []byte(phone.Normalize(number))).String()
}

// Pending is the verification in progress. The client carries it from the
// send step to the confirm step.
type Pending struct {
	ChallengeID string    `json:"challengeId"`
	Phone       string    `json:"phoneNumber"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

type challenge struct {
	Phone     string    `json:"phone"`
	CodeHash  string    `json:"codeHash"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type sessionRecord struct {
	UserID string `json:"userId"`
	Phone  string `json:"phone"`
}

type Config struct {
	CodeLength  int
	CodeTTL     time.Duration
	MaxAttempts int
	SessionTTL  time.Duration
}

type Flow struct {
	cfg    Config
	kv     kv.Store
	store  store.Store
	sender Sender
	logger *zap.Logger
	now    func() time.Time

	mu        sync.Mutex
	sessions  map[string]*liveSession
	nextSweep time.Time
}

// liveSession is a session held in memory. expires is never earlier than
// the kv record of the token.
type liveSession struct {
	session *Session
	expires time.Time
}

const sweepInterval = time.Minute

func NewFlow(cfg Config, kvStore kv.Store, docs store.Store, sender Sender, logger *zap.Logger) *Flow {
	if cfg.CodeLength <= 0 {
		cfg.CodeLength = 6
	}
	if cfg.CodeTTL <= 0 {
		cfg.CodeTTL = 5 * time.Minute
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 30 * 24 * time.Hour
	}
	return &Flow{
		cfg:      cfg,
		kv:       kvStore,
		store:    docs,
		sender:   sender,
		logger:   logger,
		now:      time.Now,
		sessions: make(map[string]*liveSession),
	}
}

func challengeKey(id string) string { return "otp:" + id }
func attemptsKey(id string) string { return "otp:" + id + ":attempts" }
func sessionKey(token string) string { return "session:" + token }

// Start sends a code to number and returns the pending verification.
func (f *Flow) Start(ctx context.Context, number string) (Pending, error) {
	digits := phone.Normalize(number)
	if !phone.Valid(digits) {
		return Pending{}, ErrInvalidPhone
	}

	code, err := randomDigits(f.cfg.CodeLength)
	if err != nil {
		return Pending{}, fmt.Errorf("generate code: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return Pending{}, fmt.Errorf("hash code: %w", err)
	}

	p := Pending{
		ChallengeID: uuid.NewString(),
		Phone:       digits,
		ExpiresAt:   f.now().Add(f.cfg.CodeTTL).UTC(),
	}
	if err := f.putChallenge(ctx, p.ChallengeID, challenge{
		Phone:     digits,
		CodeHash:  string(hash),
		ExpiresAt: p.ExpiresAt,
	}); err != nil {
		return Pending{}, err
	}

	if err := f.sender.Send(ctx, digits, code); err != nil {
		_ = f.kv.Del(ctx, challengeKey(p.ChallengeID))
		return Pending{}, fmt.Errorf("send code: %w", err)
	}
	f.logger.Info("OTP challenge started", zap.String("challenge_id", p.ChallengeID))
	return p, nil
}

// Confirm checks code against the challenge and opens a session. It returns
// the session and its bearer token.
func (f *Flow) Confirm(ctx context.Context, challengeID, code string) (*Session, error) {
	ch, err := f.getChallenge(ctx, challengeID)
	if err != nil {
		return nil, err
	}

	// The guess is counted before it is checked, so concurrent guesses draw
	// from the same budget.
	ttl := ch.ExpiresAt.Sub(f.now())
	if ttl <= 0 {
		return nil, ErrChallengeNotFound
	}
	attempt, err := f.kv.Incr(ctx, attemptsKey(challengeID), ttl)
	if err != nil {
		return nil, fmt.Errorf("count attempt: %w", err)
	}
	limit := int64(f.cfg.MaxAttempts)
	if attempt > limit {
		_ = f.kv.Del(ctx, challengeKey(challengeID))
		return nil, ErrTooManyAttempts
	}

	if bcrypt.CompareHashAndPassword([]byte(ch.CodeHash), []byte(strings.TrimSpace(code))) != nil {
		if attempt == limit {
			_ = f.kv.Del(ctx, challengeKey(challengeID))
			f.logger.Warn("OTP challenge locked", zap.String("challenge_id", challengeID))
			return nil, ErrTooManyAttempts
		}
		return nil, ErrInvalidCode
	}
	if err := f.kv.Del(ctx, challengeKey(challengeID)); err != nil {
		return nil, fmt.Errorf("consume challenge: %w", err)
	}
	_ = f.kv.Del(ctx, attemptsKey(challengeID))

	uid := UserID(ch.Phone)
	doc, err := f.store.Put(ctx, models.CollectionUsers, uid, uid, map[string]any{
		"userId":      uid,
		"phoneNumber": ch.Phone,
	}, true)
	if err != nil {
		return nil, fmt.Errorf("save user: %w", err)
	}
	var profile models.Profile
	_ = doc.Decode(&profile)

	token, err := randomToken()
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}
	rec, _ := json.Marshal(sessionRecord{UserID: uid, Phone: ch.Phone})
	if err := f.kv.Set(ctx, sessionKey(token), string(rec), f.cfg.SessionTTL); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	s := newSession(token, uid, ch.Phone, profile.OnboardingComplete())
	f.mu.Lock()
	f.sessions[token] = &liveSession{session: s, expires: f.now().Add(f.cfg.SessionTTL)}
	f.mu.Unlock()
	f.sweep()

	f.logger.Info("User signed in", zap.String("user_id", uid))
	return s, nil
}

// Resolve returns the live session of token.
func (f *Flow) Resolve(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}
	raw, err := f.kv.Get(ctx, sessionKey(token))
	if errors.Is(err, kv.ErrMiss) {
		if s := f.forget(token); s != nil {
			s.end()
		}
		f.sweep()
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	var rec sessionRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil || rec.UserID == "" {
		return nil, ErrInvalidToken
	}

	f.mu.Lock()
	live, ok := f.sessions[token]
	if !ok {
		// Issued by another instance or before a restart.
		live = &liveSession{
			session: newSession(token, rec.UserID, rec.Phone, false),
			expires: f.now().Add(f.cfg.SessionTTL),
		}
		f.sessions[token] = live
	}
	s := live.session
	f.mu.Unlock()

	if !ok {
		if onboarded, err := f.onboarded(ctx, rec.UserID); err == nil {
			s.setOnboarded(onboarded)
		}
	}
	return s, nil
}

// SignOut invalidates token and tells the session's observers.
func (f *Flow) SignOut(ctx context.Context, token string) error {
	if err := f.kv.Del(ctx, sessionKey(token)); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if s := f.forget(token); s != nil {
		s.end()
	}
	return nil
}

// ProfileChanged re-reads the profile of userID and updates the onboarding
// flag of its live sessions.
func (f *Flow) ProfileChanged(ctx context.Context, userID string) error {
	onboarded, err := f.onboarded(ctx, userID)
	if err != nil {
		return err
	}
	f.mu.Lock()
	var affected []*Session
	for _, live := range f.sessions {
		if live.session.UserID() == userID {
			affected = append(affected, live.session)
		}
	}
	f.mu.Unlock()

	for _, s := range affected {
		s.setOnboarded(onboarded)
	}
	return nil
}

func (f *Flow) onboarded(ctx context.Context, userID string) (bool, error) {
	doc, err := f.store.Get(ctx, models.CollectionUsers, userID, userID)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	var p models.Profile
	if err := doc.Decode(&p); err != nil {
		return false, nil
	}
	return p.OnboardingComplete(), nil
}

func (f *Flow) forget(token string) *Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	live, ok := f.sessions[token]
	if !ok {
		return nil
	}
	delete(f.sessions, token)
	return live.session
}

// sweep drops sessions past their expiry and ends them. It runs at most once
// per sweepInterval.
func (f *Flow) sweep() {
	now := f.now()
	var expired []*Session
	f.mu.Lock()
	if now.Before(f.nextSweep) {
		f.mu.Unlock()
		return
	}
	f.nextSweep = now.Add(sweepInterval)
	for token, live := range f.sessions {
		if now.After(live.expires) {
			expired = append(expired, live.session)
			delete(f.sessions, token)
		}
	}
	f.mu.Unlock()

	for _, s := range expired {
		s.end()
	}
	if len(expired) > 0 {
		f.logger.Debug("Expired sessions dropped", zap.Int("count", len(expired)))
	}
}

func (f *Flow) getChallenge(ctx context.Context, id string) (challenge, error) {
	raw, err := f.kv.Get(ctx, challengeKey(id))
	if errors.Is(err, kv.ErrMiss) {
		return challenge{}, ErrChallengeNotFound
	}
	if err != nil {
		return challenge{}, fmt.Errorf("load challenge: %w", err)
	}
	var ch challenge
	if err := json.Unmarshal([]byte(raw), &ch); err != nil {
		return challenge{}, errChallengeCorrupted
	}
	if !f.now().Before(ch.ExpiresAt) {
		_ = f.kv.Del(ctx, challengeKey(id))
		return challenge{}, ErrChallengeNotFound
	}
	return ch, nil
}

// putChallenge stores ch for whatever is left of its lifetime.
func (f *Flow) putChallenge(ctx context.Context, id string, ch challenge) error {
	ttl := ch.ExpiresAt.Sub(f.now())
	if ttl <= 0 {
		return ErrChallengeNotFound
	}
	raw, err := json.Marshal(ch)
	if err != nil {
		return fmt.Errorf("encode challenge: %w", err)
	}
	if err := f.kv.Set(ctx, challengeKey(id), string(raw), ttl); err != nil {
		return fmt.Errorf("save challenge: %w", err)
	}
	return nil
}

func randomDigits(n int) (string, error) {
	var b strings.Builder
	ten := big.NewInt(10)
	for i := 0; i < n; i++ {
		d, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + d.Int64()))
	}
	return b.String(), nil
}

func randomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
