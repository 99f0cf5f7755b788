package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/cargo-track/cargo_track/internal/docstore"
	"github.com/cargo-track/cargo_track/internal/validation"
)

func newTestService() (*Service, docstore.Store) {
	store := docstore.NewMemoryStore()
	return NewService(NewStoreRepository(store), WithHashCost(bcrypt.MinCost)), store
}

func TestRegisterAndLogin(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	user, err := svc.Register(ctx, RegisterInput{FirstName: "Ivan", LastName: "Ivanov", FinCode: "abc1234", Password: "secret1"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if user.FinCode != "ABC1234" {
		t.Fatalf("expected normalized fin, got %s", user.FinCode)
	}
	if user.IsAdmin {
		t.Fatalf("new users must not be admins")
	}

	authed, err := svc.Login(ctx, "ABC1234", "secret1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if authed.ID != user.ID {
		t.Fatalf("expected user %s, got %s", user.ID, authed.ID)
	}

	if _, err := svc.Login(ctx, "abc1234", "secret1"); err != nil {
		t.Fatalf("login with lowercase fin: %v", err)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()

	if _, err := svc.Register(ctx, RegisterInput{FirstName: "Ivan", LastName: "Ivanov", FinCode: "abc1234", Password: "secret1"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	_, err := svc.Login(ctx, "ABC1234", "wrongpass")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	sessions, err := store.Query(ctx, docstore.CollectionSessions, docstore.Query{})
	if err != nil {
		t.Fatalf("query sessions: %v", err)
	}
	if len(sessions) != 0 {
		t.Fatalf("expected no sessions, got %d", len(sessions))
	}
}

func TestLoginUnknownFin(t *testing.T) {
	svc, _ := newTestService()
	if _, err := svc.Login(context.Background(), "ZZZ9999", "secret1"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestLoginValidatesFormat(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	var verr *validation.Error
	if _, err := svc.Login(ctx, "short", "secret1"); !errors.As(err, &verr) || verr.Message != validation.MsgFinCode {
		t.Fatalf("expected fin validation error, got %v", err)
	}
	if _, err := svc.Login(ctx, "ABC1234", "123"); !errors.As(err, &verr) || verr.Message != validation.MsgPassword {
		t.Fatalf("expected password validation error, got %v", err)
	}
}

func TestRegisterValidationOrder(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	cases := []struct {
		in   RegisterInput
		want string
	}{
		{RegisterInput{FirstName: " I ", LastName: "x", FinCode: "bad", Password: "1"}, validation.MsgFirstName},
		{RegisterInput{FirstName: "Ivan", LastName: "x", FinCode: "bad", Password: "1"}, validation.MsgLastName},
		{RegisterInput{FirstName: "Ivan", LastName: "Ivanov", FinCode: "bad", Password: "1"}, validation.MsgFinCode},
		{RegisterInput{FirstName: "Ivan", LastName: "Ivanov", FinCode: "abc1234", Password: "1"}, validation.MsgPassword},
	}
	for _, tc := range cases {
		_, err := svc.Register(ctx, tc.in)
		var verr *validation.Error
		if !errors.As(err, &verr) {
			t.Fatalf("expected validation error for %+v, got %v", tc.in, err)
		}
		if verr.Message != tc.want {
			t.Fatalf("expected %q, got %q", tc.want, verr.Message)
		}
	}
}

func TestRegisterDuplicateFin(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()

	if _, err := svc.Register(ctx, RegisterInput{FirstName: "Ivan", LastName: "Ivanov", FinCode: "abc1234", Password: "secret1"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	_, err := svc.Register(ctx, RegisterInput{FirstName: "Petr", LastName: "Petrov", FinCode: "ABC1234", Password: "secret2"})
	if !errors.Is(err, ErrDuplicateFinCode) {
		t.Fatalf("expected ErrDuplicateFinCode, got %v", err)
	}

	users, err := store.Query(ctx, docstore.CollectionUsers, docstore.Query{})
	if err != nil {
		t.Fatalf("query users: %v", err)
	}
	if len(users) != 1 {
		t.Fatalf("expected exactly one user, got %d", len(users))
	}
}

func TestRegisterConcurrentDuplicate(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Register(ctx, RegisterInput{FirstName: "Ivan", LastName: "Ivanov", FinCode: "abc1234", Password: "secret1"})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case !errors.Is(err, ErrDuplicateFinCode):
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("expected one registration to win, got %d", succeeded)
	}

	users, _ := store.Query(ctx, docstore.CollectionUsers, docstore.Query{})
	passwords, _ := store.Query(ctx, docstore.CollectionPasswords, docstore.Query{})
	if len(users) != 1 || len(passwords) != 1 {
		t.Fatalf("expected one user and one credential, got %d and %d", len(users), len(passwords))
	}
}

func TestRegisterConcurrentDistinctFinsOnRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	store := docstore.NewRedisStore(client, "test")
	svc := NewService(NewStoreRepository(store), WithHashCost(bcrypt.MinCost))
	ctx := context.Background()

	// Every registration writes the shared FIN index collection; distinct
	// FINs must not be reported as duplicates of each other.
	var wg sync.WaitGroup
	errs := make([]error, 12)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			fin := fmt.Sprintf("FIN%04d", i)
			_, errs[i] = svc.Register(ctx, RegisterInput{FirstName: "Ivan", LastName: "Ivanov", FinCode: fin, Password: "secret1"})
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("registration %d: %v", i, err)
		}
	}
	users, err := store.Query(ctx, docstore.CollectionUsers, docstore.Query{})
	if err != nil {
		t.Fatalf("query users: %v", err)
	}
	if len(users) != len(errs) {
		t.Fatalf("expected %d users, got %d", len(errs), len(users))
	}
}

func TestRegisterTrimsFinLikeLogin(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	user, err := svc.Register(ctx, RegisterInput{FirstName: "Ivan", LastName: "Ivanov", FinCode: " abc1234 ", Password: "secret1"})
	if err != nil {
		t.Fatalf("register with padded fin: %v", err)
	}
	if user.FinCode != "ABC1234" {
		t.Fatalf("expected normalized fin, got %q", user.FinCode)
	}
	if _, err := svc.Login(ctx, "abc1234 ", "secret1"); err != nil {
		t.Fatalf("login: %v", err)
	}

	_, err = svc.Register(ctx, RegisterInput{FirstName: "Anna", LastName: "Smith", FinCode: "ABC1234\t", Password: "secret2"})
	if !errors.Is(err, ErrDuplicateFinCode) {
		t.Fatalf("expected ErrDuplicateFinCode, got %v", err)
	}
}

func TestPasswordLengthIsCountedInCharacters(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	// Three Cyrillic letters plus three digits: six characters, nine bytes.
	if _, err := svc.Register(ctx, RegisterInput{FirstName: "Ivan", LastName: "Ivanov", FinCode: "ABC1234", Password: "пар123"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.Login(ctx, "ABC1234", "пар123"); err != nil {
		t.Fatalf("login: %v", err)
	}

	// Three letters are six bytes but only three characters; both paths refuse.
	var verr *validation.Error
	_, err := svc.Register(ctx, RegisterInput{FirstName: "Anna", LastName: "Smith", FinCode: "XYZ7777", Password: "пар"})
	if !errors.As(err, &verr) || verr.Message != validation.MsgPassword {
		t.Fatalf("register: expected password validation error, got %v", err)
	}
	if _, err := svc.Login(ctx, "ABC1234", "пар"); !errors.As(err, &verr) || verr.Message != validation.MsgPassword {
		t.Fatalf("login: expected password validation error, got %v", err)
	}
}

func TestPasswordIsHashed(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()

	user, err := svc.Register(ctx, RegisterInput{FirstName: "Ivan", LastName: "Ivanov", FinCode: "abc1234", Password: "secret1"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	var cred Credential
	if _, err := docstore.GetInto(ctx, store, docstore.CollectionPasswords, user.ID, &cred); err != nil {
		t.Fatalf("load credential: %v", err)
	}
	if cred.PasswordHash == "secret1" || cred.PasswordHash == "" {
		t.Fatalf("expected a hash, got %q", cred.PasswordHash)
	}
}

func TestListAndMatches(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	ivan, _ := svc.Register(ctx, RegisterInput{FirstName: "Ivan", LastName: "Ivanov", FinCode: "abc1234", Password: "secret1"})
	_, _ = svc.Register(ctx, RegisterInput{FirstName: "Leyla", LastName: "Aliyeva", FinCode: "xyz7777", Password: "secret1"})
	admin, _ := svc.Register(ctx, RegisterInput{FirstName: "Admin", LastName: "Root", FinCode: "adm0001", Password: "secret1"})
	isAdmin := true
	if _, err := svc.UpdateProfile(ctx, admin.ID, ProfileUpdate{IsAdmin: &isAdmin}); err != nil {
		t.Fatalf("promote: %v", err)
	}

	all, err := svc.List(ctx, ListFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 || all[0].FinCode != "ADM0001" {
		t.Fatalf("expected 3 users ordered by fin, got %+v", all)
	}

	customers, _ := svc.List(ctx, ListFilter{ExcludeAdmins: true})
	if len(customers) != 2 {
		t.Fatalf("expected admins excluded, got %d users", len(customers))
	}

	found, _ := svc.List(ctx, ListFilter{Search: "c12"})
	if len(found) != 1 || found[0].ID != ivan.ID {
		t.Fatalf("expected fin substring match, got %+v", found)
	}
	found, _ = svc.List(ctx, ListFilter{Search: "aliy"})
	if len(found) != 1 || found[0].LastName != "Aliyeva" {
		t.Fatalf("expected name match, got %+v", found)
	}

	if !Matches(ivan, "") || !Matches(ivan, "IVANOV") || Matches(ivan, "zzz") {
		t.Fatalf("unexpected Matches results")
	}
}

func TestUpdateProfile(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	user, _ := svc.Register(ctx, RegisterInput{FirstName: "Ivan", LastName: "Ivanov", FinCode: "abc1234", Password: "secret1"})

	name := "  Ivanushka "
	updated, err := svc.UpdateProfile(ctx, user.ID, ProfileUpdate{FirstName: &name})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.FirstName != "Ivanushka" || updated.LastName != "Ivanov" {
		t.Fatalf("unexpected profile %+v", updated)
	}

	bad := "x"
	var verr *validation.Error
	if _, err := svc.UpdateProfile(ctx, user.ID, ProfileUpdate{LastName: &bad}); !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}

	if _, err := svc.UpdateProfile(ctx, "missing", ProfileUpdate{FirstName: &name}); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}
