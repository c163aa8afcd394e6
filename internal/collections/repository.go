package collections

import (
	"context"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/vectra-db/vectra/internal/kv"
	"github.com/vectra-db/vectra/internal/shared"
)

// collectionRecord is the on-disk form stored under collection:{id}.
type collectionRecord struct {
	ID        uint32 `msgpack:"id"`
	Name      string `msgpack:"name"`
	Dimension uint32 `msgpack:"dimension"`
	Metric    string `msgpack:"metric"`
}

// Repository persists catalog records and the name uniqueness index.
type Repository struct {
	store *kv.Store
}

// NewRepository constructs a Repository over the shared store.
func NewRepository(store *kv.Store) *Repository {
	return &Repository{store: store}
}

// Create allocates an id and writes the record plus its name index
// entry in one write transaction.
func (r *Repository) Create(ctx context.Context, name string, dimension uint32, metric string) (uint32, error) {
	var id uint32
	err := r.store.Update(ctx, func(tx kv.Tx) error {
		if tx.Get(kv.CollectionNameKey(name)) != nil {
			return fmt.Errorf("%w: collection %q", shared.ErrDuplicate, name)
		}
		allocated, err := tx.NextID(kv.KindCollection)
		if err != nil {
			return err
		}
		rec := collectionRecord{ID: allocated, Name: name, Dimension: dimension, Metric: metric}
		raw, err := msgpack.Marshal(rec)
		if err != nil {
			return fmt.Errorf("%w: encode collection: %v", shared.ErrSerialization, err)
		}
		if err := tx.Put(kv.CollectionKey(allocated), raw); err != nil {
			return err
		}
		if err := tx.Put(kv.CollectionNameKey(name), kv.EncodeID(allocated)); err != nil {
			return err
		}
		id = allocated
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// Get fetches a collection by id.
func (r *Repository) Get(ctx context.Context, id uint32) (Collection, error) {
	var col Collection
	err := r.store.View(ctx, func(tx kv.Tx) error {
		raw := tx.Get(kv.CollectionKey(id))
		if raw == nil {
			return fmt.Errorf("%w: collection %d", shared.ErrNotFound, id)
		}
		got, err := decodeCollection(raw)
		if err != nil {
			return err
		}
		col = got
		return nil
	})
	return col, err
}

// List returns all collections in id order.
func (r *Repository) List(ctx context.Context) ([]Collection, error) {
	var out []Collection
	err := r.store.View(ctx, func(tx kv.Tx) error {
		return tx.Scan(kv.CollectionPrefix(), func(_, raw []byte) error {
			col, err := decodeCollection(raw)
			if err != nil {
				return err
			}
			out = append(out, col)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes the record and its name index entry.
func (r *Repository) Delete(ctx context.Context, id uint32) error {
	return r.store.Update(ctx, func(tx kv.Tx) error {
		raw := tx.Get(kv.CollectionKey(id))
		if raw == nil {
			return fmt.Errorf("%w: collection %d", shared.ErrNotFound, id)
		}
		col, err := decodeCollection(raw)
		if err != nil {
			return err
		}
		if err := tx.Delete(kv.CollectionNameKey(col.Name)); err != nil {
			return err
		}
		return tx.Delete(kv.CollectionKey(id))
	})
}

func decodeCollection(raw []byte) (Collection, error) {
	var rec collectionRecord
	if err := msgpack.Unmarshal(raw, &rec); err != nil {
		return Collection{}, fmt.Errorf("%w: decode collection: %v", shared.ErrSerialization, err)
	}
	return Collection(rec), nil
}
