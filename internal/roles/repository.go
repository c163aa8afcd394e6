package roles

import (
	"context"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/vectra-db/vectra/internal/kv"
	"github.com/vectra-db/vectra/internal/shared"
)

// roleRecord is the on-disk form stored under role:{id}.
type roleRecord struct {
	ID          uint32 `msgpack:"id"`
	Name        string `msgpack:"name"`
	Description string `msgpack:"description"`
}

// Repository persists role records and the role-name uniqueness index.
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

// CreateTx allocates an id and writes the record plus its name index
// entry. The caller owns the enclosing transaction.
func (r *Repository) CreateTx(tx kv.Tx, name, description string) (uint32, error) {
	if tx.Get(kv.RolenameKey(name)) != nil {
		return 0, fmt.Errorf("%w: role %q", shared.ErrDuplicate, name)
	}
	id, err := tx.NextID(kv.KindRole)
	if err != nil {
		return 0, err
	}
	raw, err := msgpack.Marshal(roleRecord{ID: id, Name: name, Description: description})
	if err != nil {
		return 0, fmt.Errorf("%w: encode role: %v", shared.ErrSerialization, err)
	}
	if err := tx.Put(kv.RoleKey(id), raw); err != nil {
		return 0, err
	}
	if err := tx.Put(kv.RolenameKey(name), kv.EncodeID(id)); err != nil {
		return 0, err
	}
	return id, nil
}

// GetTx fetches a role by id within an open transaction.
func (r *Repository) GetTx(tx kv.Tx, id uint32) (Role, error) {
	raw := tx.Get(kv.RoleKey(id))
	if raw == nil {
		return Role{}, fmt.Errorf("%w: role %d", shared.ErrNotFound, id)
	}
	return decodeRole(raw)
}

// Get fetches a role by id.
func (r *Repository) Get(ctx context.Context, id uint32) (Role, error) {
	var role Role
	err := r.store.View(ctx, func(tx kv.Tx) error {
		got, err := r.GetTx(tx, id)
		if err != nil {
			return err
		}
		role = got
		return nil
	})
	return role, err
}

// GetByName resolves the role-name index and fetches the record.
func (r *Repository) GetByName(ctx context.Context, name string) (Role, error) {
	var role Role
	err := r.store.View(ctx, func(tx kv.Tx) error {
		raw := tx.Get(kv.RolenameKey(name))
		if raw == nil {
			return fmt.Errorf("%w: role %q", shared.ErrNotFound, name)
		}
		id, err := kv.DecodeID(raw)
		if err != nil {
			return err
		}
		got, err := r.GetTx(tx, id)
		if err != nil {
			return err
		}
		role = got
		return nil
	})
	return role, err
}

// List returns all roles in id order.
func (r *Repository) List(ctx context.Context) ([]Role, error) {
	var out []Role
	err := r.store.View(ctx, func(tx kv.Tx) error {
		return tx.Scan(kv.RolePrefix(), func(_, raw []byte) error {
			role, err := decodeRole(raw)
			if err != nil {
				return err
			}
			out = append(out, role)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ExistsTx reports whether the role id is present.
func (r *Repository) ExistsTx(tx kv.Tx, id uint32) bool {
	return tx.Get(kv.RoleKey(id)) != nil
}

// DeleteRecordTx removes the record and its name index entry. Grant and
// membership cleanup belong to the caller's transaction.
func (r *Repository) DeleteRecordTx(tx kv.Tx, id uint32) error {
	role, err := r.GetTx(tx, id)
	if err != nil {
		return err
	}
	if err := tx.Delete(kv.RolenameKey(role.Name)); err != nil {
		return err
	}
	return tx.Delete(kv.RoleKey(id))
}

func decodeRole(raw []byte) (Role, error) {
	var rec roleRecord
	if err := msgpack.Unmarshal(raw, &rec); err != nil {
		return Role{}, fmt.Errorf("%w: decode role: %v", shared.ErrSerialization, err)
	}
	return Role(rec), nil
}
