package rbac

import (
	"context"
	"fmt"
	"sort"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/vectra-db/vectra/internal/kv"
	"github.com/vectra-db/vectra/internal/shared"
)

// Repository maintains the denormalized membership and grant indices:
// user_roles:{user_id} and role_permissions:{role_id}. It never touches
// primary user/role records.
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

// RolesOfTx returns the user's role set, empty when the key is absent.
func (r *Repository) RolesOfTx(tx kv.Tx, userID uint32) ([]uint32, error) {
	raw := tx.Get(kv.UserRolesKey(userID))
	if raw == nil {
		return nil, nil
	}
	var ids []uint32
	if err := msgpack.Unmarshal(raw, &ids); err != nil {
		return nil, fmt.Errorf("%w: decode membership of user %d: %v", shared.ErrSerialization, userID, err)
	}
	return ids, nil
}

func (r *Repository) putRolesTx(tx kv.Tx, userID uint32, ids []uint32) error {
	if len(ids) == 0 {
		return tx.Delete(kv.UserRolesKey(userID))
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	raw, err := msgpack.Marshal(ids)
	if err != nil {
		return fmt.Errorf("%w: encode membership of user %d: %v", shared.ErrSerialization, userID, err)
	}
	return tx.Put(kv.UserRolesKey(userID), raw)
}

// AssignTx adds roleID to the user's membership set. Idempotent.
func (r *Repository) AssignTx(tx kv.Tx, userID, roleID uint32) error {
	ids, err := r.RolesOfTx(tx, userID)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if id == roleID {
			return nil
		}
	}
	return r.putRolesTx(tx, userID, append(ids, roleID))
}

// UnassignTx removes roleID from the user's membership set. Idempotent.
func (r *Repository) UnassignTx(tx kv.Tx, userID, roleID uint32) error {
	ids, err := r.RolesOfTx(tx, userID)
	if err != nil {
		return err
	}
	kept := ids[:0]
	for _, id := range ids {
		if id != roleID {
			kept = append(kept, id)
		}
	}
	if len(kept) == len(ids) {
		return nil
	}
	return r.putRolesTx(tx, userID, kept)
}

// DropMembershipTx removes the user's whole membership entry.
func (r *Repository) DropMembershipTx(tx kv.Tx, userID uint32) error {
	return tx.Delete(kv.UserRolesKey(userID))
}

// GrantsOfTx returns the role's grant set, empty when the key is absent.
func (r *Repository) GrantsOfTx(tx kv.Tx, roleID uint32) ([]Grant, error) {
	raw := tx.Get(kv.RolePermissionsKey(roleID))
	if raw == nil {
		return nil, nil
	}
	var grants []Grant
	if err := msgpack.Unmarshal(raw, &grants); err != nil {
		return nil, fmt.Errorf("%w: decode grants of role %d: %v", shared.ErrSerialization, roleID, err)
	}
	return grants, nil
}

func (r *Repository) putGrantsTx(tx kv.Tx, roleID uint32, grants []Grant) error {
	if len(grants) == 0 {
		return tx.Delete(kv.RolePermissionsKey(roleID))
	}
	raw, err := msgpack.Marshal(grants)
	if err != nil {
		return fmt.Errorf("%w: encode grants of role %d: %v", shared.ErrSerialization, roleID, err)
	}
	return tx.Put(kv.RolePermissionsKey(roleID), raw)
}

// GrantTx adds the (scope, permission) pair to the role's grant set.
// Granting an already-present pair is a no-op.
func (r *Repository) GrantTx(tx kv.Tx, roleID uint32, grant Grant) error {
	grants, err := r.GrantsOfTx(tx, roleID)
	if err != nil {
		return err
	}
	for _, g := range grants {
		if g == grant {
			return nil
		}
	}
	return r.putGrantsTx(tx, roleID, append(grants, grant))
}

// RevokeTx removes the (scope, permission) pair. Revoking an absent pair
// is a no-op.
func (r *Repository) RevokeTx(tx kv.Tx, roleID uint32, grant Grant) error {
	grants, err := r.GrantsOfTx(tx, roleID)
	if err != nil {
		return err
	}
	kept := grants[:0]
	for _, g := range grants {
		if g != grant {
			kept = append(kept, g)
		}
	}
	if len(kept) == len(grants) {
		return nil
	}
	return r.putGrantsTx(tx, roleID, kept)
}

// DropGrantsTx removes the role's whole grant set.
func (r *Repository) DropGrantsTx(tx kv.Tx, roleID uint32) error {
	return tx.Delete(kv.RolePermissionsKey(roleID))
}

// CascadeUnassignTx removes roleID from every user's membership set by
// walking the membership index. Only indexed entries are touched; user
// records themselves are never read.
func (r *Repository) CascadeUnassignTx(tx kv.Tx, roleID uint32) error {
	type patch struct {
		userID uint32
		ids    []uint32
	}
	var patches []patch
	err := tx.Scan(kv.UserRolesPrefix(), func(key, raw []byte) error {
		userID, err := kv.DecodeID(key[len(kv.UserRolesPrefix()):])
		if err != nil {
			return err
		}
		var ids []uint32
		if err := msgpack.Unmarshal(raw, &ids); err != nil {
			return fmt.Errorf("%w: decode membership of user %d: %v", shared.ErrSerialization, userID, err)
		}
		kept := ids[:0]
		for _, id := range ids {
			if id != roleID {
				kept = append(kept, id)
			}
		}
		if len(kept) != len(ids) {
			patches = append(patches, patch{userID: userID, ids: kept})
		}
		return nil
	})
	if err != nil {
		return err
	}
	// Writes happen after the scan so the cursor never sees its own edits.
	for _, p := range patches {
		if err := r.putRolesTx(tx, p.userID, p.ids); err != nil {
			return err
		}
	}
	return nil
}
