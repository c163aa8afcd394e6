package kv

import (
	"encoding/binary"
	"fmt"

	"github.com/vectra-db/vectra/internal/shared"
)

// The keyspace is flat. Numeric ids are big-endian u32 so that prefix
// scans visit records in id order:
//
//	user:{user_id}              serialized user record
//	role:{role_id}              serialized role record
//	username:{username}         user id (unique-name index)
//	rolename:{role_name}        role id (unique-name index)
//	user_roles:{user_id}        set of role ids
//	role_permissions:{role_id}  set of grants
//	collection:{collection_id}  serialized collection record
//	collectionname:{name}       collection id (unique-name index)
//	counter:{kind}              next id for the kind

// Kind identifies an id-allocating entity kind.
type Kind string

const (
	KindUser       Kind = "user"
	KindRole       Kind = "role"
	KindCollection Kind = "collection"
)

// EncodeID renders an id as its 4-byte big-endian form.
func EncodeID(id uint32) []byte {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], id)
	return buf[:]
}

// DecodeID parses a 4-byte big-endian id.
func DecodeID(b []byte) (uint32, error) {
	if len(b) != 4 {
		return 0, fmt.Errorf("%w: id value has %d bytes", shared.ErrSerialization, len(b))
	}
	return binary.BigEndian.Uint32(b), nil
}

func idKey(prefix string, id uint32) []byte {
	return append([]byte(prefix), EncodeID(id)...)
}

// UserKey addresses a user record.
func UserKey(id uint32) []byte { return idKey("user:", id) }

// UserPrefix is the scan prefix for all user records.
func UserPrefix() []byte { return []byte("user:") }

// RoleKey addresses a role record.
func RoleKey(id uint32) []byte { return idKey("role:", id) }

// RolePrefix is the scan prefix for all role records.
func RolePrefix() []byte { return []byte("role:") }

// UsernameKey addresses the username uniqueness index entry.
func UsernameKey(name string) []byte { return []byte("username:" + name) }

// RolenameKey addresses the role-name uniqueness index entry.
func RolenameKey(name string) []byte { return []byte("rolename:" + name) }

// UserRolesKey addresses a user's membership set.
func UserRolesKey(id uint32) []byte { return idKey("user_roles:", id) }

// UserRolesPrefix is the scan prefix for all membership entries.
func UserRolesPrefix() []byte { return []byte("user_roles:") }

// RolePermissionsKey addresses a role's grant set.
func RolePermissionsKey(id uint32) []byte { return idKey("role_permissions:", id) }

// CollectionKey addresses a collection catalog record.
func CollectionKey(id uint32) []byte { return idKey("collection:", id) }

// CollectionPrefix is the scan prefix for all collection records.
func CollectionPrefix() []byte { return []byte("collection:") }

// CollectionNameKey addresses the collection-name uniqueness index entry.
func CollectionNameKey(name string) []byte { return []byte("collectionname:" + name) }

func counterKey(kind Kind) []byte { return []byte("counter:" + string(kind)) }

// NextID allocates the next id for kind inside the current write
// transaction. Counters start at zero and are never rewound, so ids are
// unique for the lifetime of the store even across deletions. Calling
// NextID outside a write transaction is a programming error.
func (t Tx) NextID(kind Kind) (uint32, error) {
	if !t.writable {
		return 0, fmt.Errorf("%w: id allocation in read-only transaction", shared.ErrStorage)
	}
	key := counterKey(kind)
	var next uint32
	if raw := t.Get(key); raw != nil {
		v, err := DecodeID(raw)
		if err != nil {
			return 0, err
		}
		next = v
	}
	if err := t.Put(key, EncodeID(next+1)); err != nil {
		return 0, err
	}
	return next, nil
}
