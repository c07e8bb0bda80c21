package catalog

import (
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-json"

	"github.com/mschirtzinger/zonesync/internal/cloudsync/record"
)

// Invitation is the part of a share the accepting party needs. It is
// written next to a shared list and handed over out of band.
type Invitation struct {
	Share     string `json:"share"`
	Root      string `json:"root"`
	ZoneOwner string `json:"zone_owner,omitempty"`
	Owner     string `json:"owner,omitempty"`
	Title     string `json:"title,omitempty"`
}

// NewInvitation describes shr, which must be rooted at list. owner names the
// sharing user and may be empty.
func NewInvitation(list *ShoppingList, shr *record.Share, owner string) *Invitation {
	inv := &Invitation{
		Share: shr.ID.Name,
		Root:  list.RecordID(),
		Owner: owner,
		Title: shr.Title(),
	}
	if !shr.ID.Zone.IsDefaultOwner() {
		inv.ZoneOwner = shr.ID.Zone.Owner
	}
	return inv
}

// Validate checks that the invitation names a root list.
func (inv *Invitation) Validate() error {
	if strings.TrimSpace(inv.Root) == "" {
		return fmt.Errorf("root is required")
	}
	return nil
}

// Metadata converts the invitation into the metadata accepted by the loader.
func (inv *Invitation) Metadata() record.ShareMetadata {
	zone := record.NewZoneID(inv.ZoneOwner, ZoneName)
	root := record.ID{Name: inv.Root, Zone: zone}
	md := record.ShareMetadata{
		RootRecordID: &root,
		OwnerName:    inv.Owner,
	}
	if inv.Share != "" {
		md.ShareID = record.ID{Name: inv.Share, Zone: zone}
	}
	return md
}

// ReadInvitation reads an invitation file.
func ReadInvitation(path string) (*Invitation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read invitation %s: %w", path, err)
	}
	var inv Invitation
	if err := json.Unmarshal(data, &inv); err != nil {
		return nil, fmt.Errorf("failed to parse invitation %s: %w", path, err)
	}
	if err := inv.Validate(); err != nil {
		return nil, fmt.Errorf("invalid invitation %s: %w", path, err)
	}
	return &inv, nil
}

// WriteInvitation writes inv to path as indented JSON.
func WriteInvitation(path string, inv *Invitation) error {
	if err := inv.Validate(); err != nil {
		return fmt.Errorf("cannot write invalid invitation: %w", err)
	}
	data, err := json.MarshalIndent(inv, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal invitation: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write invitation %s: %w", path, err)
	}
	return nil
}
