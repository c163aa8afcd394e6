package rbac

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/vectra-db/vectra/internal/shared"
)

// Permission is one of the twelve atomic capabilities gating operations
// on the database. The set is closed: unknown tags never decode.
type Permission uint8

const (
	PermListCollections Permission = iota
	PermCreateCollection
	PermDeleteCollection
	PermListIndex
	PermCreateIndex
	PermDeleteIndex
	PermUpsertVectors
	PermDeleteVectors
	PermQueryVectors
	PermListVersions
	PermSetCurrentVersion
	PermGetCurrentVersion

	permCount
)

var permissionNames = [permCount]string{
	PermListCollections:   "ListCollections",
	PermCreateCollection:  "CreateCollection",
	PermDeleteCollection:  "DeleteCollection",
	PermListIndex:         "ListIndex",
	PermCreateIndex:       "CreateIndex",
	PermDeleteIndex:       "DeleteIndex",
	PermUpsertVectors:     "UpsertVectors",
	PermDeleteVectors:     "DeleteVectors",
	PermQueryVectors:      "QueryVectors",
	PermListVersions:      "ListVersions",
	PermSetCurrentVersion: "SetCurrentVersion",
	PermGetCurrentVersion: "GetCurrentVersion",
}

// AllPermissions returns the full closed permission set.
func AllPermissions() []Permission {
	perms := make([]Permission, 0, permCount)
	for p := Permission(0); p < permCount; p++ {
		perms = append(perms, p)
	}
	return perms
}

// Valid reports whether the value belongs to the closed set.
func (p Permission) Valid() bool { return p < permCount }

// String renders the canonical permission name.
func (p Permission) String() string {
	if !p.Valid() {
		return fmt.Sprintf("Permission(%d)", uint8(p))
	}
	return permissionNames[p]
}

// ParsePermission resolves a canonical name back to its permission.
func ParsePermission(name string) (Permission, error) {
	for p, n := range permissionNames {
		if n == name {
			return Permission(p), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown permission %q", shared.ErrInvalidGrant, name)
}

// EncodeMsgpack writes the permission as its u8 tag.
func (p Permission) EncodeMsgpack(enc *msgpack.Encoder) error {
	if !p.Valid() {
		return fmt.Errorf("%w: permission tag %d", shared.ErrInvalidGrant, uint8(p))
	}
	return enc.EncodeUint8(uint8(p))
}

// DecodeMsgpack reads a u8 tag. An unrecognized tag is a hard error,
// never a default.
func (p *Permission) DecodeMsgpack(dec *msgpack.Decoder) error {
	v, err := dec.DecodeUint8()
	if err != nil {
		return fmt.Errorf("%w: permission: %v", shared.ErrSerialization, err)
	}
	if !Permission(v).Valid() {
		return fmt.Errorf("%w: unknown permission tag %d", shared.ErrInvalidGrant, v)
	}
	*p = Permission(v)
	return nil
}

const (
	scopeTagAll        uint8 = 0
	scopeTagCollection uint8 = 1
)

// Scope is either a specific collection or the wildcard over all
// current and future collections.
type Scope struct {
	wildcard   bool
	collection uint32
}

// AllCollections is the wildcard scope.
func AllCollections() Scope { return Scope{wildcard: true} }

// CollectionScope targets a single collection id.
func CollectionScope(id uint32) Scope { return Scope{collection: id} }

// IsWildcard reports whether the scope covers every collection.
func (s Scope) IsWildcard() bool { return s.wildcard }

// Collection returns the target collection id; zero for wildcards.
func (s Scope) Collection() uint32 { return s.collection }

// Matches reports whether the scope covers the given collection.
func (s Scope) Matches(collectionID uint32) bool {
	return s.wildcard || s.collection == collectionID
}

// String renders "*" for the wildcard, else the collection id.
func (s Scope) String() string {
	if s.wildcard {
		return "*"
	}
	return fmt.Sprintf("%d", s.collection)
}

// EncodeMsgpack writes the scope as a tagged value.
func (s Scope) EncodeMsgpack(enc *msgpack.Encoder) error {
	if s.wildcard {
		return enc.EncodeUint8(scopeTagAll)
	}
	if err := enc.EncodeUint8(scopeTagCollection); err != nil {
		return err
	}
	return enc.EncodeUint32(s.collection)
}

// DecodeMsgpack reads a tagged value, rejecting unknown scope tags.
func (s *Scope) DecodeMsgpack(dec *msgpack.Decoder) error {
	tag, err := dec.DecodeUint8()
	if err != nil {
		return fmt.Errorf("%w: scope: %v", shared.ErrSerialization, err)
	}
	switch tag {
	case scopeTagAll:
		*s = Scope{wildcard: true}
		return nil
	case scopeTagCollection:
		id, err := dec.DecodeUint32()
		if err != nil {
			return fmt.Errorf("%w: scope collection: %v", shared.ErrSerialization, err)
		}
		*s = Scope{collection: id}
		return nil
	default:
		return fmt.Errorf("%w: unknown scope tag %d", shared.ErrInvalidGrant, tag)
	}
}

// Grant authorizes one permission on one scope when attached to a role.
type Grant struct {
	Scope      Scope
	Permission Permission
}

// String renders "permission@scope".
func (g Grant) String() string {
	return g.Permission.String() + "@" + g.Scope.String()
}
