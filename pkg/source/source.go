// Package source reads the two raw inputs of the warehouse: the song catalog
// corpus and the user-activity event log, both stored as line-delimited JSON
// files under a local directory or an S3 prefix.
package source

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const fileSuffix = ".json"

// Lister enumerates and opens the files of one input source.
type Lister interface {
	// List returns the keys of all JSON files under the source, sorted.
	List(ctx context.Context) ([]string, error)
	// Open opens one file for reading. The caller closes the body.
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// NewLister builds a Lister for a file:// directory or an s3://bucket/prefix URI.
func NewLister(ctx context.Context, uri string) (Lister, error) {
	if path, found := strings.CutPrefix(uri, "file://"); found {
		if path == "" {
			return nil, fmt.Errorf("file:// URI path cannot be empty")
		}
		return &dirLister{root: path}, nil
	}
	if strings.HasPrefix(uri, "s3://") {
		return newS3Lister(ctx, uri)
	}
	return nil, fmt.Errorf("source URI must start with file:// or s3:// (got: %q)", uri)
}

type dirLister struct {
	root string
}

func (d *dirLister) List(ctx context.Context) ([]string, error) {
	var keys []string
	err := filepath.WalkDir(d.root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		if strings.HasSuffix(path, fileSuffix) {
			keys = append(keys, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", d.root, err)
	}
	sort.Strings(keys)
	return keys, nil
}

func (d *dirLister) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	f, err := os.Open(key)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", key, err)
	}
	return f, nil
}
