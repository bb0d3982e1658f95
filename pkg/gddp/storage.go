package gddp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"
)

// Stat returns the size of the object stored at the job's key. A missing
// object reports size 0 and a nil error.
func Stat(ctx context.Context, bucket *blob.Bucket, j Job) (int64, error) {
	attrs, err := bucket.Attributes(ctx, j.Key())
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return 0, nil
		}
		return 0, fmt.Errorf("stat %s: %w", j.Key(), err)
	}
	return attrs.Size, nil
}

// Complete reports whether a non-empty object exists at the job's key.
// Zero-byte objects are treated as incomplete downloads.
func Complete(ctx context.Context, bucket *blob.Bucket, j Job) (bool, error) {
	size, err := Stat(ctx, bucket, j)
	if err != nil {
		return false, err
	}
	return size > 0, nil
}

// EmptyObject describes a zero-byte object found in storage.
type EmptyObject struct {
	Key string
}

// FindEmpty lists all zero-byte objects under prefix. Directory markers are
// ignored.
func FindEmpty(ctx context.Context, bucket *blob.Bucket, prefix string) ([]EmptyObject, error) {
	var empty []EmptyObject

	iter := bucket.List(&blob.ListOptions{Prefix: prefix})
	for {
		obj, err := iter.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return empty, fmt.Errorf("list %q: %w", prefix, err)
		}
		if obj.IsDir || strings.HasSuffix(obj.Key, "/") {
			continue
		}
		if obj.Size == 0 {
			empty = append(empty, EmptyObject{Key: obj.Key})
		}
	}

	return empty, nil
}

// DeleteEmpty removes every zero-byte object under prefix and returns the
// keys it deleted. Deletion continues past individual errors, which are
// joined into the returned error.
func DeleteEmpty(ctx context.Context, bucket *blob.Bucket, prefix string) ([]string, error) {
	empty, err := FindEmpty(ctx, bucket, prefix)
	if err != nil {
		return nil, err
	}

	var (
		deleted []string
		errs    []error
	)
	for _, obj := range empty {
		if err := bucket.Delete(ctx, obj.Key); err != nil {
			if gcerrors.Code(err) == gcerrors.NotFound {
				continue
			}
			errs = append(errs, fmt.Errorf("delete %s: %w", obj.Key, err))
			continue
		}
		deleted = append(deleted, obj.Key)
	}

	return deleted, errors.Join(errs...)
}
