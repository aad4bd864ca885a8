package fs

import (
	"os"
	"strings"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/hanwen/go-fuse/v2/fuse/nodefs"
	"github.com/pkg/errors"
)

// stagingFile is the nodefs.File FSOps.Open hands back to the FUSE
// bridge: positional I/O against a local staging descriptor, with the
// upload/commit logic deferred to Release, matching spec's Open → Read |
// Write → Release state machine.
type stagingFile struct {
	nodefs.File

	fsys *Filesystem
	path string
	f    *os.File

	// isUpload marks a staging file backing a Pending path: Release must
	// commit it (upload or playlist parse) instead of just discarding it.
	isUpload bool
}

func newStagingFile(fsys *Filesystem, path string, f *os.File, isUpload bool) *stagingFile {
	return &stagingFile{
		File:     nodefs.NewDefaultFile(),
		fsys:     fsys,
		path:     path,
		f:        f,
		isUpload: isUpload,
	}
}

// Read and Write hold the device mutex for their entire duration like
// every other FSOps entry point (spec's single-mutex invariant), even
// though they only ever touch the caller-owned local staging fd.
func (sf *stagingFile) Read(dest []byte, off int64) (fuse.ReadResult, fuse.Status) {
	sf.fsys.mu.Lock()
	defer sf.fsys.mu.Unlock()

	n, err := sf.f.ReadAt(dest, off)
	if err != nil && n == 0 {
		return nil, errnoStatus(err)
	}
	return fuse.ReadResultData(dest[:n]), fuse.OK
}

func (sf *stagingFile) Write(data []byte, off int64) (uint32, fuse.Status) {
	sf.fsys.mu.Lock()
	defer sf.fsys.mu.Unlock()

	n, err := sf.f.WriteAt(data, off)
	if err != nil {
		return uint32(n), errnoStatus(err)
	}
	return uint32(n), fuse.OK
}

func (sf *stagingFile) Flush() fuse.Status { return fuse.OK }

// Release implements spec.md's release contract: commit a pending upload
// (through PlaylistBridge if the path is under /Playlists/, else through
// TagEnricher/DeviceSession.UploadFile), then always close the staging
// descriptor regardless of commit outcome.
func (sf *stagingFile) Release() {
	sf.fsys.mu.Lock()
	defer sf.fsys.mu.Unlock()

	defer func() {
		sf.fsys.staging.Detach(sf.f)
		delete(sf.fsys.pending, sf.path)
	}()

	if !sf.isUpload {
		return
	}

	c := ctx()
	if strings.HasPrefix(sf.path, "/"+sf.fsys.playlistDirName+"/") {
		if err := sf.fsys.commitPlaylist(c, sf.path, sf.f); err != nil {
			log.Error(errors.Wrapf(err, "commit playlist %s", sf.path))
		}
		return
	}
	if err := sf.fsys.commitUpload(c, sf.path, sf.f); err != nil {
		log.Error(errors.Wrapf(err, "commit upload %s", sf.path))
	}
}

// errnoStatus maps a staging-file I/O error to a FUSE status. Staging
// files are ordinary local temp files, so the underlying error is a
// *os.PathError wrapping a syscall.Errno (ENOSPC, EDQUOT, ...); spec.md §7
// requires the negated errno itself, not a generic EIO, so callers keyed
// on the specific errno (e.g. a caller retrying on ENOSPC) see the real
// cause.
func errnoStatus(err error) fuse.Status {
	if err == nil {
		return fuse.OK
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return fuse.Status(errno)
	}
	return fuse.EIO
}

// Open implements spec.md's open contract.
func (fsys *Filesystem) Open(name string, flags uint32, fctx *fuse.Context) (nodefs.File, fuse.Status) {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()

	p := "/" + name
	c := ctx()
	target, err := fsys.Resolve(c, p)
	if err != nil {
		log.Error(err)
		return nil, fuse.EIO
	}

	switch target.Kind {
	case KindPending:
		f, err := fsys.staging.AttachNew()
		if err != nil {
			log.Error(err)
			return nil, fuse.EIO
		}
		if pu, ok := fsys.pending[p]; ok {
			pu.Staging = int(f.Fd())
		}
		return newStagingFile(fsys, p, f, true), fuse.OK

	case KindFile, KindLostFile:
		f, err := fsys.staging.AttachDownload(c, fsys.dev, target.FileID)
		if err != nil {
			log.Error(err)
			return nil, fuse.EIO
		}
		return newStagingFile(fsys, p, f, false), fuse.OK

	case KindPlaylistFile:
		f, err := fsys.staging.AttachNew()
		if err != nil {
			log.Error(err)
			return nil, fuse.EIO
		}
		if err := fsys.writePlaylistContent(c, f, target.PlaylistID); err != nil {
			fsys.staging.Detach(f)
			log.Error(err)
			return nil, fuse.EIO
		}
		return newStagingFile(fsys, p, f, false), fuse.OK
	}

	return nil, fuse.ENOENT
}
