package record

// ShareRecordType is the record type of share grants.
const ShareRecordType = "cloudkit.share"

// Field keys written on share records.
const (
	ShareFieldTitle      = "title"
	ShareFieldType       = "shareType"
	ShareFieldPermission = "publicPermission"
	ShareFieldRoot       = "rootRecord"
)

// Permission is the access level granted to anyone holding the share link.
type Permission string

const (
	PermissionNone      Permission = "none"
	PermissionReadOnly  Permission = "readOnly"
	PermissionReadWrite Permission = "readWrite"
)

// Share grants another party access to a root record and its subtree.
// It is itself persisted as a record of type ShareRecordType.
type Share struct {
	*Record
}

// NewShare creates a share rooted at root and points root's share reference
// at it. The share lives in the root's zone.
func NewShare(root *Record) *Share {
	rec := New(ShareRecordType, NewID(root.ID.Zone))
	rec.Set(ShareFieldRoot, []Reference{{ID: root.ID, Action: ActionNone}})
	rec.Set(ShareFieldPermission, string(PermissionNone))
	root.Share = &Reference{ID: rec.ID, Action: ActionNone}
	return &Share{Record: rec}
}

// AsShare views a fetched record as a share. It returns false if the record
// is not a share grant.
func AsShare(rec *Record) (*Share, bool) {
	if rec == nil || rec.Type != ShareRecordType {
		return nil, false
	}
	return &Share{Record: rec}, true
}

// RootID returns the id of the record the share is rooted at.
func (s *Share) RootID() (ID, bool) {
	refs := s.References(ShareFieldRoot)
	if len(refs) == 0 {
		return ID{}, false
	}
	return refs[0].ID, true
}

func (s *Share) Title() string { return s.String(ShareFieldTitle) }

func (s *Share) SetTitle(title string) { s.Set(ShareFieldTitle, title) }

func (s *Share) ShareType() string { return s.String(ShareFieldType) }

func (s *Share) SetShareType(typ string) { s.Set(ShareFieldType, typ) }

// PublicPermission returns the permission granted to link holders.
func (s *Share) PublicPermission() Permission {
	if p := s.String(ShareFieldPermission); p != "" {
		return Permission(p)
	}
	return PermissionNone
}

func (s *Share) SetPublicPermission(p Permission) {
	s.Set(ShareFieldPermission, string(p))
}

// ShareMetadata describes a share invitation being accepted.
type ShareMetadata struct {
	// ShareID is the id of the share record, if known.
	ShareID ID
	// RootRecordID is the hierarchical root of the shared subtree.
	RootRecordID *ID
	// OwnerName is the zone owner the shared records will appear under.
	OwnerName string
}
