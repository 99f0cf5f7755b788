package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/cargo-track/cargo_track/internal/config"
	"github.com/cargo-track/cargo_track/internal/docstore"
	"github.com/cargo-track/cargo_track/internal/identity"
)

// ErrInvalidSession is returned for tokens that are malformed, badly signed,
// expired or whose session was ended.
var ErrInvalidSession = errors.New("invalid or expired session")

// Session is a logged-in user's handle. Token is only set by Start.
type Session struct {
	ID        string `json:"id"`
	UserID    string `json:"userId"`
	CreatedAt int64  `json:"createdAt"`
	ExpiresAt int64  `json:"expiresAt"`
	Token     string `json:"-"`
}

type claims struct {
	jwt.RegisteredClaims
	SessionID string `json:"sid"`
}

// Service issues and resolves bearer-token sessions. Every token points at a
// session document, so ending the session revokes the token before it
// expires.
type Service struct {
	store  docstore.Store
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewService(cfg config.Config, store docstore.Store) *Service {
	return &Service{store: store, secret: []byte(cfg.SessionSecret), ttl: cfg.SessionTTL, now: time.Now}
}

// WithClock replaces the time source. Used in tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Start creates a session for user and signs its token.
func (s *Service) Start(ctx context.Context, user identity.User) (Session, error) {
	now := s.now()
	exp := now.Add(s.ttl)
	sess := Session{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		CreatedAt: now.UnixMilli(),
		ExpiresAt: exp.UnixMilli(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		SessionID: sess.ID,
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return Session{}, fmt.Errorf("sign session token: %w", err)
	}

	w, err := docstore.Put(docstore.CollectionSessions, sess.ID, sess, 0)
	if err != nil {
		return Session{}, err
	}
	if err := s.store.Apply(ctx, w); err != nil {
		return Session{}, err
	}
	sess.Token = signed
	return sess, nil
}

// Resolve verifies token and returns its live session.
func (s *Service) Resolve(ctx context.Context, token string) (Session, error) {
	c, err := s.parse(token, jwt.WithExpirationRequired(), jwt.WithTimeFunc(s.now))
	if err != nil {
		return Session{}, err
	}

	var sess Session
	_, err = docstore.GetInto(ctx, s.store, docstore.CollectionSessions, c.SessionID, &sess)
	if errors.Is(err, docstore.ErrNotFound) {
		return Session{}, ErrInvalidSession
	}
	if err != nil {
		return Session{}, err
	}
	if sess.UserID != c.Subject || s.now().UnixMilli() >= sess.ExpiresAt {
		return Session{}, ErrInvalidSession
	}
	return sess, nil
}

// End deletes the session behind token. Ending an already ended or expired
// session succeeds; a token that fails signature checks does not.
func (s *Service) End(ctx context.Context, token string) error {
	c, err := s.parse(token, jwt.WithoutClaimsValidation())
	if err != nil {
		return err
	}
	return s.store.Delete(ctx, docstore.CollectionSessions, c.SessionID)
}

func (s *Service) parse(token string, opts ...jwt.ParserOption) (*claims, error) {
	c := &claims{}
	opts = append(opts, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	parsed, err := jwt.ParseWithClaims(token, c, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, opts...)
	if err != nil || !parsed.Valid || c.SessionID == "" {
		return nil, ErrInvalidSession
	}
	return c, nil
}
