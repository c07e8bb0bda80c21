package catalog

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

// ImportOptions controls ImportJSONL.
type ImportOptions struct {
	// From is the JSONL file holding one list per line.
	From string
	// To is the directory list files are written to, usually the outbox.
	To string
	// DryRun parses and validates without writing.
	DryRun bool
	// Backup copies From aside before importing.
	Backup bool
}

// ImportResult contains statistics about an import.
type ImportResult struct {
	Lists         int
	Items         int
	FilesWritten  int
	BackupCreated string
	Errors        []string
}

// ReadJSONL parses a JSONL stream of list files. Blank lines are skipped.
func ReadJSONL(r io.Reader) ([]*ListFile, error) {
	var lists []*ListFile
	dec := json.NewDecoder(bufio.NewReader(r))
	for n := 1; ; n++ {
		var f ListFile
		if err := dec.Decode(&f); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("invalid JSON in list %d: %w", n, err)
		}
		if err := f.Validate(); err != nil {
			return nil, fmt.Errorf("invalid list %d: %w", n, err)
		}
		lists = append(lists, &f)
	}
	return lists, nil
}

// WriteJSONL writes lists to w, one per line.
func WriteJSONL(w io.Writer, lists []*ListFile) error {
	enc := json.NewEncoder(w)
	for _, f := range lists {
		if err := enc.Encode(f); err != nil {
			return fmt.Errorf("failed to encode list %s: %w", f.Name, err)
		}
	}
	return nil
}

// ImportJSONL splits a JSONL file of lists into individual list files.
// Lists that fail to write are reported in the result and skipped.
func ImportJSONL(opts ImportOptions) (*ImportResult, error) {
	result := &ImportResult{}

	input, err := os.ReadFile(opts.From)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", opts.From, err)
	}

	if opts.Backup && !opts.DryRun {
		backupPath := opts.From + ".backup." + time.Now().Format("20060102-150405")
		if err := os.WriteFile(backupPath, input, 0600); err != nil {
			return nil, fmt.Errorf("failed to create backup: %w", err)
		}
		result.BackupCreated = backupPath
	}

	lists, err := ReadJSONL(bytes.NewReader(input))
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", opts.From, err)
	}

	for _, f := range lists {
		if !opts.DryRun {
			if _, err := WriteListFile(opts.To, f); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("failed to write list %s: %v", f.Name, err))
				continue
			}
			result.FilesWritten++
		}
		result.Lists++
		result.Items += len(f.Items)
	}

	return result, nil
}

// ExportJSONL writes every list file in dir to w as JSONL and returns the
// number of lists written.
func ExportJSONL(dir string, w io.Writer, logger *zerolog.Logger) (int, error) {
	lists, err := ReadAllListFiles(dir, logger)
	if err != nil {
		return 0, err
	}
	if err := WriteJSONL(w, lists); err != nil {
		return 0, err
	}
	return len(lists), nil
}
