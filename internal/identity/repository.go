package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/cargo-track/cargo_track/internal/docstore"
)

// Repository persists users and their credentials.
type Repository interface {
	// Create stores the user, its credential and its FIN index entry in one
	// batch. It fails with ErrDuplicateFinCode if the FIN is taken.
	Create(ctx context.Context, user User, cred Credential) error
	Get(ctx context.Context, id string) (User, int64, error)
	FindByFinCode(ctx context.Context, finCode string) (User, error)
	List(ctx context.Context) ([]User, error)
	Credential(ctx context.Context, userID string) (Credential, error)
	// Update overwrites the user if it still has the given version.
	Update(ctx context.Context, user User, version int64) error
}

// StoreRepository implements Repository on a docstore.Store.
type StoreRepository struct {
	store docstore.Store
}

// NewStoreRepository builds a document-store backed identity repository.
func NewStoreRepository(store docstore.Store) *StoreRepository {
	return &StoreRepository{store: store}
}

func (r *StoreRepository) Create(ctx context.Context, user User, cred Credential) error {
	userWrite, err := docstore.Put(docstore.CollectionUsers, user.ID, user, 0)
	if err != nil {
		return err
	}
	credWrite, err := docstore.Put(docstore.CollectionPasswords, user.ID, cred, 0)
	if err != nil {
		return err
	}
	indexWrite, err := docstore.Put(docstore.CollectionFinCodes, user.FinCode, finIndex{UserID: user.ID}, 0)
	if err != nil {
		return err
	}
	err = r.store.Apply(ctx, indexWrite, userWrite, credWrite)
	if errors.Is(err, docstore.ErrVersionConflict) {
		return ErrDuplicateFinCode
	}
	return err
}

func (r *StoreRepository) Get(ctx context.Context, id string) (User, int64, error) {
	var user User
	version, err := docstore.GetInto(ctx, r.store, docstore.CollectionUsers, id, &user)
	if errors.Is(err, docstore.ErrNotFound) {
		return User{}, 0, ErrUserNotFound
	}
	if err != nil {
		return User{}, 0, err
	}
	return user, version, nil
}

// FindByFinCode resolves the FIN index and then the user.
func (r *StoreRepository) FindByFinCode(ctx context.Context, finCode string) (User, error) {
	var idx finIndex
	_, err := docstore.GetInto(ctx, r.store, docstore.CollectionFinCodes, finCode, &idx)
	if errors.Is(err, docstore.ErrNotFound) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, err
	}
	user, _, err := r.Get(ctx, idx.UserID)
	if err != nil {
		return User{}, fmt.Errorf("fin index %s: %w", finCode, err)
	}
	return user, nil
}

func (r *StoreRepository) List(ctx context.Context) ([]User, error) {
	return docstore.QueryInto[User](ctx, r.store, docstore.CollectionUsers, docstore.Query{OrderBy: "finCode"})
}

func (r *StoreRepository) Credential(ctx context.Context, userID string) (Credential, error) {
	var cred Credential
	_, err := docstore.GetInto(ctx, r.store, docstore.CollectionPasswords, userID, &cred)
	if errors.Is(err, docstore.ErrNotFound) {
		return Credential{}, ErrInvalidCredentials
	}
	return cred, err
}

func (r *StoreRepository) Update(ctx context.Context, user User, version int64) error {
	w, err := docstore.Put(docstore.CollectionUsers, user.ID, user, version)
	if err != nil {
		return err
	}
	err = r.store.Apply(ctx, w)
	if errors.Is(err, docstore.ErrVersionConflict) {
		return ErrConflict
	}
	return err
}
