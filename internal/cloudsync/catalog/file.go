package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

// ListFile is a shopping list stored as an individual JSON file. Lists that
// were never synced have no ID; sync assigns one.
type ListFile struct {
	ID     string `json:"id,omitempty" yaml:"id,omitempty"`
	Owner  string `json:"owner,omitempty" yaml:"owner,omitempty"`
	Remote bool   `json:"remote,omitempty" yaml:"remote,omitempty"`

	Name  string     `json:"name" yaml:"name"`
	Date  time.Time  `json:"date" yaml:"date"`
	Items []ItemFile `json:"items,omitempty" yaml:"items,omitempty"`

	// ShareTitle asks the daemon to share the list under this title when
	// it pushes the file. It is never written back.
	ShareTitle string `json:"share_title,omitempty" yaml:"share_title,omitempty"`
}

// ItemFile is one entry of a ListFile.
type ItemFile struct {
	ID        string `json:"id,omitempty" yaml:"id,omitempty"`
	GoodName  string `json:"good_name" yaml:"good_name"`
	StoreName string `json:"store_name,omitempty" yaml:"store_name,omitempty"`
}

// Validate checks if the ListFile has valid field values.
func (f *ListFile) Validate() error {
	if strings.TrimSpace(f.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if len(f.Name) > 200 {
		return fmt.Errorf("name must be 200 characters or less (got %d)", len(f.Name))
	}
	for i, it := range f.Items {
		if strings.TrimSpace(it.GoodName) == "" {
			return fmt.Errorf("item %d: good_name is required", i)
		}
	}
	return nil
}

// Filename returns the canonical filename for this list: {id}.json, or a
// name-derived filename for lists that were never synced.
func (f *ListFile) Filename() string {
	if f.ID != "" {
		return f.ID + ".json"
	}
	return "local-" + slug(f.Name) + ".json"
}

// ToList converts the file into an in-memory list. Items are added but not
// linked; syncing the list links them.
func (f *ListFile) ToList() *ShoppingList {
	l := &ShoppingList{
		id:     f.ID,
		owner:  f.Owner,
		remote: f.Remote,
		Name:   f.Name,
		Date:   f.Date,
	}
	for _, it := range f.Items {
		l.Add(&ShoppingItem{
			id:        it.ID,
			owner:     f.Owner,
			remote:    f.Remote,
			parentID:  f.ID,
			GoodName:  it.GoodName,
			StoreName: it.StoreName,
		})
	}
	return l
}

// FromList converts an in-memory list into its file form.
func FromList(l *ShoppingList) *ListFile {
	f := &ListFile{
		ID:     l.RecordID(),
		Owner:  l.OwnerName(),
		Remote: l.IsRemote(),
		Name:   l.Name,
		Date:   l.Date,
	}
	for _, it := range l.Items() {
		f.Items = append(f.Items, ItemFile{
			ID:        it.RecordID(),
			GoodName:  it.GoodName,
			StoreName: it.StoreName,
		})
	}
	return f
}

// ReadListFile reads and parses a list JSON file from the given path.
func ReadListFile(path string) (*ListFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read list file %s: %w", path, err)
	}

	var f ListFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse list file %s: %w", path, err)
	}

	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("invalid list file %s: %w", path, err)
	}

	return &f, nil
}

// WriteListFile writes f to dir/{Filename()} as pretty-printed JSON and
// returns the written path.
func WriteListFile(dir string, f *ListFile) (string, error) {
	if err := f.Validate(); err != nil {
		return "", fmt.Errorf("cannot write invalid list: %w", err)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create list directory: %w", err)
	}

	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal list %s: %w", f.Name, err)
	}

	// Write to a temp file first so watchers never see a partial list.
	path := filepath.Join(dir, f.Filename())
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write list file %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("failed to write list file %s: %w", path, err)
	}

	return path, nil
}

// ReadAllListFiles reads all list files from dir. A missing directory is
// empty. Invalid files are skipped with a warning.
func ReadAllListFiles(dir string, logger *zerolog.Logger) ([]*ListFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []*ListFile{}, nil
		}
		return nil, fmt.Errorf("failed to read list directory: %w", err)
	}

	var lists []*ListFile
	for _, entry := range entries {
		if entry.IsDir() || !IsListFile(entry.Name()) {
			continue
		}

		f, err := ReadListFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			if logger != nil {
				logger.Warn().Str("file", entry.Name()).Err(err).Msg("Skipping invalid list file")
			}
			continue
		}
		lists = append(lists, f)
	}

	return lists, nil
}

// IsListFile reports whether name looks like a list file.
func IsListFile(name string) bool {
	return strings.HasSuffix(name, ".json") && !strings.HasPrefix(name, ".")
}

func slug(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
