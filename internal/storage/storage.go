// Package storage opens the buckets and objects gridfetch reads and writes.
//
// Locations are either gocloud.dev/blob URLs (s3://, gs://, file://, mem://)
// or plain local directory paths. Cloud drivers are registered by the
// binary via blank imports.
package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"
)

// IsURL reports whether location looks like a blob URL rather than a path.
func IsURL(location string) bool {
	return strings.Contains(location, "://")
}

// Open opens the bucket at location. A plain path opens a local directory,
// creating it if necessary. Local writes go to a temporary file in the
// destination directory and are renamed into place on Close.
func Open(ctx context.Context, location string) (*blob.Bucket, error) {
	if location == "" {
		return nil, fmt.Errorf("storage: empty location")
	}
	if IsURL(location) {
		b, err := blob.OpenBucket(ctx, location)
		if err != nil {
			return nil, fmt.Errorf("open bucket %s: %w", location, err)
		}
		return b, nil
	}

	dir, err := filepath.Abs(location)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", location, err)
	}
	b, err := fileblob.OpenBucket(dir, &fileblob.Options{
		CreateDir: true,
		NoTempDir: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open directory %s: %w", dir, err)
	}
	return b, nil
}

// OpenReader opens a single object for reading. location is a local path,
// a file:// URL, or a blob URL whose path is the object key, e.g.
// s3://bucket/inputs/files.csv?region=us-west-2.
func OpenReader(ctx context.Context, location string) (io.ReadCloser, error) {
	if !IsURL(location) {
		return os.Open(location)
	}

	u, err := url.Parse(location)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", location, err)
	}
	if u.Scheme == "file" {
		return os.Open(filepath.FromSlash(u.Path))
	}

	key := strings.TrimPrefix(u.Path, "/")
	if key == "" {
		return nil, fmt.Errorf("storage: %s has no object key", location)
	}

	bucketURL := url.URL{Scheme: u.Scheme, Host: u.Host, RawQuery: u.RawQuery}
	bucket, err := blob.OpenBucket(ctx, bucketURL.String())
	if err != nil {
		return nil, fmt.Errorf("open bucket %s: %w", bucketURL.String(), err)
	}

	r, err := bucket.NewReader(ctx, key, nil)
	if err != nil {
		bucket.Close()
		return nil, fmt.Errorf("open %s: %w", key, err)
	}

	return &bucketReader{Reader: r, bucket: bucket}, nil
}

type bucketReader struct {
	*blob.Reader
	bucket *blob.Bucket
}

func (r *bucketReader) Close() error {
	err := r.Reader.Close()
	if cerr := r.bucket.Close(); err == nil {
		err = cerr
	}
	return err
}
