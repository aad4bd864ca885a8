package fs

import (
	"context"
	"io"
	"os"

	"github.com/google/uuid"
)

// StagingStore creates and releases the local temporary files that buffer
// MTP object content: downloaded once on open, uploaded once on release.
type StagingStore struct {
	dir string
}

// NewStagingStore returns a store rooted at dir. An empty dir defers to
// os.CreateTemp's default (the OS temp directory).
func NewStagingStore(dir string) *StagingStore {
	return &StagingStore{dir: dir}
}

// AttachNew creates an empty staging file, for a fresh Pending upload or
// for PlaylistBridge's synthesized read content. The file name carries a
// fresh UUID (one per call) on top of os.CreateTemp's own random suffix,
// so staging files from concurrent gomtpfs mounts never collide even if
// TMPDIR is shared.
func (s *StagingStore) AttachNew() (*os.File, error) {
	pattern := "gomtpfs-" + uuid.New().String() + "-*.staging"
	f, err := os.CreateTemp(s.dir, pattern)
	if err != nil {
		return nil, &NoSpaceError{Err: err}
	}
	return f, nil
}

// AttachDownload creates a staging file and fills it with object id's
// entire content, downloaded through dev. The staging file is removed
// before returning if the download fails.
func (s *StagingStore) AttachDownload(ctx context.Context, dev Device, id ObjID) (*os.File, error) {
	f, err := s.AttachNew()
	if err != nil {
		return nil, err
	}
	if err := dev.DownloadToWriter(ctx, id, f); err != nil {
		name := f.Name()
		f.Close()
		os.Remove(name)
		return nil, &DeviceError{Op: "DownloadToWriter", Err: err}
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		name := f.Name()
		f.Close()
		os.Remove(name)
		return nil, err
	}
	return f, nil
}

// Detach closes and removes f, freeing the temp-file slot. It is safe to
// call with a nil f.
func (s *StagingStore) Detach(f *os.File) error {
	if f == nil {
		return nil
	}
	name := f.Name()
	err := f.Close()
	if rmErr := os.Remove(name); err == nil {
		err = rmErr
	}
	return err
}
