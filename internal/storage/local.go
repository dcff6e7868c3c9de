package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/converse-im/converse/internal/types"
	"github.com/gabriel-vasile/mimetype"
	"github.com/teris-io/shortid"
)

type LocalStore struct {
	dir string
}

func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}

	return &LocalStore{dir: dir}, nil
}

// Save writes the blob to disk under a generated key and returns the
// attachment reference handed back to clients. The attachment type is
// sniffed from content, not trusted from the file name.
func (s *LocalStore) Save(name string, r io.Reader) (types.Attachment, error) {
	id, err := shortid.Generate()
	if err != nil {
		return types.Attachment{}, fmt.Errorf("generate key: %w", err)
	}

	key := id + "-" + sanitizeName(name)
	path := filepath.Join(s.dir, key)

	f, err := os.Create(path)
	if err != nil {
		return types.Attachment{}, fmt.Errorf("create file: %w", err)
	}

	size, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return types.Attachment{}, fmt.Errorf("write file: %w", err)
	}

	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		os.Remove(path)
		return types.Attachment{}, fmt.Errorf("detect type: %w", err)
	}

	return types.Attachment{
		Url:  "/uploads/" + key,
		Type: attachmentType(mtype),
		Name: name,
		Size: size,
	}, nil
}

func (s *LocalStore) Open(key string) (io.ReadCloser, error) {
	// key must stay inside the upload dir
	if key != filepath.Base(key) {
		return nil, fmt.Errorf("invalid key %q", key)
	}

	return os.Open(filepath.Join(s.dir, key))
}

func attachmentType(mtype *mimetype.MIME) string {
	switch {
	case strings.HasPrefix(mtype.String(), "image/"):
		return "image"
	case strings.HasPrefix(mtype.String(), "audio/"):
		return "audio"
	case strings.HasPrefix(mtype.String(), "video/"):
		return "video"
	default:
		return "file"
	}
}

func sanitizeName(name string) string {
	name = filepath.Base(name)
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.' || r == '-' || r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}
