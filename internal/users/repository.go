package users

import (
	"context"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/vectra-db/vectra/internal/kv"
	"github.com/vectra-db/vectra/internal/shared"
)

// userRecord is the on-disk form stored under user:{id}.
type userRecord struct {
	ID           uint32            `msgpack:"id"`
	Username     string            `msgpack:"username"`
	PasswordHash []byte            `msgpack:"password_hash"`
	Attributes   map[string]string `msgpack:"attributes,omitempty"`
}

// Repository persists user records and the username uniqueness index.
type Repository struct {
	store *kv.Store
}

// NewRepository constructs a Repository over the shared store.
func NewRepository(store *kv.Store) *Repository {
	return &Repository{store: store}
}

// WithUpdate runs fn inside a single write transaction.
func (r *Repository) WithUpdate(ctx context.Context, fn func(kv.Tx) error) error {
	return r.store.Update(ctx, fn)
}

// WithView runs fn against a read snapshot.
func (r *Repository) WithView(ctx context.Context, fn func(kv.Tx) error) error {
	return r.store.View(ctx, fn)
}

// CreateTx allocates an id and writes the record plus its username index
// entry. The caller owns the enclosing transaction.
func (r *Repository) CreateTx(tx kv.Tx, username string, passwordHash []byte, attrs map[string]string) (uint32, error) {
	if tx.Get(kv.UsernameKey(username)) != nil {
		return 0, fmt.Errorf("%w: username %q", shared.ErrDuplicate, username)
	}
	id, err := tx.NextID(kv.KindUser)
	if err != nil {
		return 0, err
	}
	rec := userRecord{ID: id, Username: username, PasswordHash: passwordHash, Attributes: attrs}
	raw, err := msgpack.Marshal(rec)
	if err != nil {
		return 0, fmt.Errorf("%w: encode user: %v", shared.ErrSerialization, err)
	}
	if err := tx.Put(kv.UserKey(id), raw); err != nil {
		return 0, err
	}
	if err := tx.Put(kv.UsernameKey(username), kv.EncodeID(id)); err != nil {
		return 0, err
	}
	return id, nil
}

// GetTx fetches a user by id within an open transaction.
func (r *Repository) GetTx(tx kv.Tx, id uint32) (User, error) {
	raw := tx.Get(kv.UserKey(id))
	if raw == nil {
		return User{}, fmt.Errorf("%w: user %d", shared.ErrNotFound, id)
	}
	return decodeUser(raw)
}

// Get fetches a user by id.
func (r *Repository) Get(ctx context.Context, id uint32) (User, error) {
	var user User
	err := r.store.View(ctx, func(tx kv.Tx) error {
		u, err := r.GetTx(tx, id)
		if err != nil {
			return err
		}
		user = u
		return nil
	})
	return user, err
}

// GetByUsername resolves the username index and fetches the record.
func (r *Repository) GetByUsername(ctx context.Context, username string) (User, error) {
	var user User
	err := r.store.View(ctx, func(tx kv.Tx) error {
		raw := tx.Get(kv.UsernameKey(username))
		if raw == nil {
			return fmt.Errorf("%w: username %q", shared.ErrNotFound, username)
		}
		id, err := kv.DecodeID(raw)
		if err != nil {
			return err
		}
		u, err := r.GetTx(tx, id)
		if err != nil {
			return err
		}
		user = u
		return nil
	})
	return user, err
}

// List returns all users in id order.
func (r *Repository) List(ctx context.Context) ([]User, error) {
	var out []User
	err := r.store.View(ctx, func(tx kv.Tx) error {
		return tx.Scan(kv.UserPrefix(), func(_, raw []byte) error {
			u, err := decodeUser(raw)
			if err != nil {
				return err
			}
			out = append(out, u)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AnyTx reports whether at least one user record exists.
func (r *Repository) AnyTx(tx kv.Tx) (bool, error) {
	found := false
	err := tx.Scan(kv.UserPrefix(), func(_, _ []byte) error {
		found = true
		return errStopScan
	})
	if err != nil && err != errStopScan {
		return false, err
	}
	return found, nil
}

// ExistsTx reports whether the user id is present.
func (r *Repository) ExistsTx(tx kv.Tx, id uint32) bool {
	return tx.Get(kv.UserKey(id)) != nil
}

// DeleteTx removes the record and its username index entry. Membership
// cleanup belongs to the caller's transaction.
func (r *Repository) DeleteTx(tx kv.Tx, id uint32) error {
	user, err := r.GetTx(tx, id)
	if err != nil {
		return err
	}
	if err := tx.Delete(kv.UsernameKey(user.Username)); err != nil {
		return err
	}
	return tx.Delete(kv.UserKey(id))
}

var errStopScan = fmt.Errorf("stop scan")

func decodeUser(raw []byte) (User, error) {
	var rec userRecord
	if err := msgpack.Unmarshal(raw, &rec); err != nil {
		return User{}, fmt.Errorf("%w: decode user: %v", shared.ErrSerialization, err)
	}
	return User(rec), nil
}
