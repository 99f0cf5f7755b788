package identity

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/cargo-track/cargo_track/internal/validation"
)

var (
	ErrDuplicateFinCode   = errors.New("a user with this FIN code is already registered")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrConflict           = errors.New("user was modified concurrently")
)

var registerMessages = map[string]string{
	"firstName": validation.MsgFirstName,
	"lastName":  validation.MsgLastName,
	"finCode":   validation.MsgFinCode,
	"password":  validation.MsgPassword,
}

// Service manages identity lifecycle.
type Service struct {
	repo Repository
	cost int

	dummyOnce sync.Once
	dummyHash []byte
}

// Option configures a Service.
type Option func(*Service)

// WithHashCost overrides the bcrypt cost. Tests use bcrypt.MinCost.
func WithHashCost(cost int) Option {
	return func(s *Service) { s.cost = cost }
}

// NewService creates a new identity service.
func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{repo: repo, cost: bcrypt.DefaultCost}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates a non-admin user and stores a hashed password.
func (s *Service) Register(ctx context.Context, in RegisterInput) (User, error) {
	// Same canonical form Login looks the FIN up by.
	in.FinCode = validation.NormalizeFinCode(in.FinCode)
	if err := validation.Struct(in, registerMessages); err != nil {
		return User{}, err
	}
	fin := in.FinCode

	if _, err := s.repo.FindByFinCode(ctx, fin); err == nil {
		return User{}, ErrDuplicateFinCode
	} else if !errors.Is(err, ErrUserNotFound) {
		return User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}

	user := User{
		ID:        uuid.NewString(),
		FirstName: strings.TrimSpace(in.FirstName),
		LastName:  strings.TrimSpace(in.LastName),
		FinCode:   fin,
	}
	if err := s.repo.Create(ctx, user, Credential{PasswordHash: string(hash)}); err != nil {
		return User{}, err
	}
	return user, nil
}

// Login verifies a FIN code and password. Unknown FIN codes still pay for a
// hash comparison so both failures take the same time.
func (s *Service) Login(ctx context.Context, finCode, password string) (User, error) {
	fin := validation.NormalizeFinCode(finCode)
	if !validation.ValidFinCode(fin) {
		return User{}, validation.New("finCode", validation.MsgFinCode)
	}
	if !validation.ValidPassword(password) {
		return User{}, validation.New("password", validation.MsgPassword)
	}

	user, err := s.repo.FindByFinCode(ctx, fin)
	if errors.Is(err, ErrUserNotFound) {
		_ = bcrypt.CompareHashAndPassword(s.dummy(), []byte(password))
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, err
	}

	cred, err := s.repo.Credential(ctx, user.ID)
	if err != nil {
		return User{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(password)); err != nil {
		return User{}, ErrInvalidCredentials
	}
	return user, nil
}

func (s *Service) dummy() []byte {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("cargo-track-dummy"), s.cost)
	})
	return s.dummyHash
}

// Get returns a user by id.
func (s *Service) Get(ctx context.Context, id string) (User, error) {
	user, _, err := s.repo.Get(ctx, id)
	return user, err
}

// FindByFinCode looks a user up by FIN code in any case.
func (s *Service) FindByFinCode(ctx context.Context, finCode string) (User, error) {
	return s.repo.FindByFinCode(ctx, validation.NormalizeFinCode(finCode))
}

// List returns users ordered by FIN code, optionally filtered.
func (s *Service) List(ctx context.Context, f ListFilter) ([]User, error) {
	users, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	out := users[:0]
	for _, u := range users {
		if f.ExcludeAdmins && u.IsAdmin {
			continue
		}
		if !Matches(u, f.Search) {
			continue
		}
		out = append(out, u)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].FinCode < out[j].FinCode })
	return out, nil
}

// UpdateProfile applies the set fields of upd with a version check.
func (s *Service) UpdateProfile(ctx context.Context, id string, upd ProfileUpdate) (User, error) {
	if err := validation.Struct(upd, map[string]string{
		"firstName": validation.MsgFirstName,
		"lastName":  validation.MsgLastName,
	}); err != nil {
		return User{}, err
	}

	user, version, err := s.repo.Get(ctx, id)
	if err != nil {
		return User{}, err
	}
	if upd.FirstName != nil {
		user.FirstName = strings.TrimSpace(*upd.FirstName)
	}
	if upd.LastName != nil {
		user.LastName = strings.TrimSpace(*upd.LastName)
	}
	if upd.IsAdmin != nil {
		user.IsAdmin = *upd.IsAdmin
	}
	if err := s.repo.Update(ctx, user, version); err != nil {
		return User{}, err
	}
	return user, nil
}

// Matches reports whether the user's FIN code contains search (uppercased)
// or either name contains it case-insensitively. An empty search matches.
func Matches(u User, search string) bool {
	search = strings.TrimSpace(search)
	if search == "" {
		return true
	}
	if strings.Contains(u.FinCode, strings.ToUpper(search)) {
		return true
	}
	needle := strings.ToLower(search)
	return strings.Contains(strings.ToLower(u.FirstName), needle) ||
		strings.Contains(strings.ToLower(u.LastName), needle) ||
		strings.Contains(strings.ToLower(u.FullName()), needle)
}
