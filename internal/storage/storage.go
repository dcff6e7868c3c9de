// Package storage is the seam for attachment blobs. The core only needs
// Save and Open; anything fancier (S3, GCS) plugs in behind the same
// interface.
package storage

import (
	"io"

	"github.com/converse-im/converse/internal/types"
)

type Store interface {
	Save(name string, r io.Reader) (types.Attachment, error)
	Open(key string) (io.ReadCloser, error)
}
