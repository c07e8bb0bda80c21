// Package record defines the backend entities the sync engine exchanges with a
// record-oriented store: zone-scoped record identifiers, flat key/value records
// linked by parent references, continuation tokens and share grants.
//
// Records are referenced, not owned: the engine creates records or looks them
// up by id and populates their fields, but never re-identifies an existing one.
package record

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// DefaultOwner is the owner name of zones that belong to the calling user.
const DefaultOwner = "__defaultOwner__"

// Scope selects the database an operation targets.
type Scope int

const (
	// ScopeLocal is the caller's own (private) database.
	ScopeLocal Scope = iota
	// ScopeShared is the database holding zones shared with the caller.
	ScopeShared
)

// ScopeFor maps an item's remoteness flag to the database it lives in.
func ScopeFor(isRemote bool) Scope {
	if isRemote {
		return ScopeShared
	}
	return ScopeLocal
}

// String returns a human-readable representation of the scope.
func (s Scope) String() string {
	switch s {
	case ScopeLocal:
		return "local"
	case ScopeShared:
		return "shared"
	default:
		return "unknown"
	}
}

// ParseScope parses the output of Scope.String.
func ParseScope(s string) (Scope, error) {
	switch s {
	case "local", "private":
		return ScopeLocal, nil
	case "shared", "remote":
		return ScopeShared, nil
	default:
		return ScopeLocal, fmt.Errorf("unknown scope %q", s)
	}
}

// ZoneID identifies a zone by name and owner.
type ZoneID struct {
	Name  string
	Owner string
}

// NewZoneID builds a zone id; an empty owner means the default owner.
func NewZoneID(owner, name string) ZoneID {
	if owner == "" {
		owner = DefaultOwner
	}
	return ZoneID{Name: name, Owner: owner}
}

// IsDefaultOwner reports whether the zone belongs to the calling user.
func (z ZoneID) IsDefaultOwner() bool {
	return z.Owner == "" || z.Owner == DefaultOwner
}

func (z ZoneID) String() string {
	return z.Owner + "/" + z.Name
}

// ID identifies a record inside a zone.
type ID struct {
	Name string
	Zone ZoneID
}

// NewID mints a fresh record id in the given zone.
func NewID(zone ZoneID) ID {
	return ID{Name: uuid.NewString(), Zone: zone}
}

func (id ID) String() string {
	return id.Zone.String() + "/" + id.Name
}

// Action controls what happens to a referencing record when its target is deleted.
type Action int

const (
	// ActionNone leaves the referencing record in place.
	ActionNone Action = iota
	// ActionDeleteSelf deletes the referencing record together with its target.
	ActionDeleteSelf
)

// Reference points at another record.
type Reference struct {
	ID     ID
	Action Action
}

// Token is an opaque continuation token. A nil token means "from the beginning".
type Token []byte

// Record is a flat key/value bag addressed by a zone-scoped id.
type Record struct {
	ID     ID
	Type   string
	Fields map[string]any
	Parent *Reference
	Share  *Reference
}

// New creates an empty record of the given type.
func New(recordType string, id ID) *Record {
	return &Record{
		ID:     id,
		Type:   recordType,
		Fields: make(map[string]any),
	}
}

// Get returns the raw value stored under key.
func (r *Record) Get(key string) any {
	if r.Fields == nil {
		return nil
	}
	return r.Fields[key]
}

// Set stores a value under key. A nil value removes the key.
func (r *Record) Set(key string, value any) {
	if r.Fields == nil {
		r.Fields = make(map[string]any)
	}
	if value == nil {
		delete(r.Fields, key)
		return
	}
	r.Fields[key] = value
}

// String returns the string stored under key, or "" if absent or not a string.
func (r *Record) String(key string) string {
	s, _ := r.Get(key).(string)
	return s
}

// Time returns the time stored under key and whether it was present.
func (r *Record) Time(key string) (time.Time, bool) {
	t, ok := r.Get(key).(time.Time)
	return t, ok
}

// References returns the reference list stored under key.
func (r *Record) References(key string) []Reference {
	refs, _ := r.Get(key).([]Reference)
	return refs
}

// SetReferences stores references to the given records under key.
func (r *Record) SetReferences(key string, records []*Record, action Action) {
	refs := make([]Reference, 0, len(records))
	for _, rec := range records {
		refs = append(refs, Reference{ID: rec.ID, Action: action})
	}
	r.Set(key, refs)
}

// SetParent links this record to its structural parent.
func (r *Record) SetParent(parent *Record) {
	if parent == nil {
		r.Parent = nil
		return
	}
	r.Parent = &Reference{ID: parent.ID, Action: ActionNone}
}

// ParentName returns the record name of the parent, or "" when unlinked.
func (r *Record) ParentName() string {
	if r.Parent == nil {
		return ""
	}
	return r.Parent.ID.Name
}

// Keys returns the field names in sorted order.
func (r *Record) Keys() []string {
	keys := make([]string, 0, len(r.Fields))
	for k := range r.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a copy that shares no mutable state with r.
func (r *Record) Clone() *Record {
	c := &Record{
		ID:     r.ID,
		Type:   r.Type,
		Fields: make(map[string]any, len(r.Fields)),
	}
	for k, v := range r.Fields {
		if refs, ok := v.([]Reference); ok {
			v = append([]Reference(nil), refs...)
		}
		c.Fields[k] = v
	}
	if r.Parent != nil {
		p := *r.Parent
		c.Parent = &p
	}
	if r.Share != nil {
		s := *r.Share
		c.Share = &s
	}
	return c
}
