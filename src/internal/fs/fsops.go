package fs

import (
	"context"
	"path"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/hanwen/go-fuse/v2/fuse/pathfs"
	"github.com/pkg/errors"
)

// EEXIST and ENOTEMPTY are not among go-fuse's predefined Status constants
// (it names a handful such as EIO, ENOENT and EPERM, but not these two);
// build them the same way go-fuse itself builds its own, wrapping the
// syscall errno.
var (
	statusEEXIST    = fuse.Status(syscall.EEXIST)
	statusENOTEMPTY = fuse.Status(syscall.ENOTEMPTY)
)

// Filesystem is the single owned value FSOps operates on: the
// DeviceSession, the ObjectCache, the StagingStore and the pending-upload
// set, reached from every FUSE callback through this one handle rather
// than process-wide state. It implements pathfs.FileSystem.
type Filesystem struct {
	pathfs.FileSystem // default (ENOSYS) implementations for everything we don't override

	mu sync.Mutex

	dev     Device
	cache   *ObjectCache
	staging *StagingStore

	pending map[string]*PendingUpload

	playlistDirName string
	lostFoundName   string
	tagSeparator    string

	enrich TagEnricherFunc
}

// TagEnricherFunc extracts TrackMetadata from an MP3 staging file (wired
// to internal/tagenrich.Extract by the caller; kept as a function value
// here so fs has no import-time dependency on the tag-parsing library).
type TagEnricherFunc func(path string, size int64, f ReaderAtSeeker, tagSeparator string) (TrackMetadata, error)

// ReaderAtSeeker is the minimal staging-file surface TagEnricherFunc needs:
// github.com/dhowden/tag.ReadFrom wants io.ReadSeeker, the duration scanner
// wants ReadAt for backward seeks over already-scanned frames.
type ReaderAtSeeker interface {
	Read(p []byte) (int, error)
	ReadAt(p []byte, off int64) (int, error)
	Seek(offset int64, whence int) (int64, error)
}

// New creates a Filesystem ready to be passed to pathfs.NewPathNodeFs.
func New(dev Device, stagingDir, playlistDirName, lostFoundName, tagSeparator string, enrich TagEnricherFunc) *Filesystem {
	if playlistDirName == "" {
		playlistDirName = "Playlists"
	}
	if lostFoundName == "" {
		lostFoundName = "lost+found"
	}
	return &Filesystem{
		FileSystem:      pathfs.NewDefaultFileSystem(),
		dev:             dev,
		cache:           NewObjectCache(dev),
		staging:         NewStagingStore(stagingDir),
		pending:         make(map[string]*PendingUpload),
		playlistDirName: playlistDirName,
		lostFoundName:   lostFoundName,
		tagSeparator:    tagSeparator,
		enrich:          enrich,
	}
}

// OnMount implements the "init" FUSE lifecycle hook: mark every cache
// dirty so the first operation always sees a fresh device state.
func (fsys *Filesystem) OnMount(nodeFS *pathfs.PathNodeFs) {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()
	fsys.cache.MarkAllDirty()
}

// OnUnmount implements the "destroy" FUSE lifecycle hook: drop pending
// uploads and the in-memory caches. The device session itself is closed
// by its owner (server.Run) once serving stops.
func (fsys *Filesystem) OnUnmount() {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()
	fsys.pending = make(map[string]*PendingUpload)
	fsys.cache = NewObjectCache(fsys.dev)
}

func (fsys *Filesystem) String() string { return "gomtpfs" }

// ctx is a single background context for device calls: spec's concurrency
// model has no cancellation or per-call timeout, the device mutex is the
// only serialization point.
func ctx() context.Context { return context.Background() }

// GetAttr implements spec.md's getattr contract.
func (fsys *Filesystem) GetAttr(name string, fctx *fuse.Context) (*fuse.Attr, fuse.Status) {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()

	target, err := fsys.Resolve(ctx(), "/"+name)
	if err != nil {
		log.Error(err)
		return nil, fuse.EIO
	}

	switch target.Kind {
	case KindRoot, KindVirtualDir, KindStorageRoot, KindFolder:
		return dirAttr(), fuse.OK

	case KindPending:
		return &fuse.Attr{Mode: fuse.S_IFREG | 0644, Size: 0, Mtime: uint64(time.Now().Unix())}, fuse.OK

	case KindPlaylistFile:
		size, err := fsys.playlistSize(ctx(), target.PlaylistID)
		if err != nil {
			log.Error(err)
			return nil, fuse.EIO
		}
		return fileAttr(size, time.Now()), fuse.OK

	case KindLostFile, KindFile:
		f, err := fsys.fileByID(ctx(), target)
		if err != nil {
			log.Error(err)
			return nil, fuse.EIO
		}
		if f == nil {
			return nil, fuse.ENOENT
		}
		return fileAttr(f.Size, f.ModTime), fuse.OK
	}

	return nil, fuse.ENOENT
}

func dirAttr() *fuse.Attr {
	return &fuse.Attr{Mode: fuse.S_IFDIR | 0755, Nlink: 2}
}

func fileAttr(size uint64, mtime time.Time) *fuse.Attr {
	return &fuse.Attr{
		Mode:    fuse.S_IFREG | 0644,
		Size:    size,
		Blocks:  (size + 511) / 512,
		Mtime:   uint64(mtime.Unix()),
		Nlink:   1,
	}
}

func (fsys *Filesystem) fileByID(ctx context.Context, target ResolvedTarget) (*FileRecord, error) {
	files, err := fsys.cache.Files(ctx)
	if err != nil {
		return nil, err
	}
	return files[target.FileID], nil
}

// OpenDir implements spec.md's readdir contract.
func (fsys *Filesystem) OpenDir(name string, fctx *fuse.Context) ([]fuse.DirEntry, fuse.Status) {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()

	c := ctx()
	target, err := fsys.Resolve(c, "/"+name)
	if err != nil {
		log.Error(err)
		return nil, fuse.EIO
	}

	switch target.Kind {
	case KindRoot:
		return fsys.readRoot(c)
	case KindVirtualDir:
		if target.VDir == VDPlaylists {
			return fsys.readPlaylistsDir(c)
		}
		return fsys.readLostFoundDir(c)
	case KindStorageRoot:
		return fsys.readFolder(c, target.StorageIndex, 0)
	case KindFolder:
		return fsys.readFolder(c, target.StorageIndex, target.FolderID)
	}
	return nil, fuse.ENOENT
}

func (fsys *Filesystem) readRoot(c context.Context) ([]fuse.DirEntry, fuse.Status) {
	entries := []fuse.DirEntry{{Name: fsys.playlistDirName, Mode: fuse.S_IFDIR}}

	lost, err := fsys.LostFiles(c)
	if err != nil {
		log.Error(err)
		return nil, fuse.EIO
	}
	if len(lost) > 0 {
		entries = append(entries, fuse.DirEntry{Name: fsys.lostFoundName, Mode: fuse.S_IFDIR})
	}

	storages, err := fsys.cache.Storages(c)
	if err != nil {
		log.Error(err)
		return nil, fuse.EIO
	}
	for _, st := range storages {
		entries = append(entries, fuse.DirEntry{Name: st.Description, Mode: fuse.S_IFDIR})
	}
	return entries, fuse.OK
}

func (fsys *Filesystem) readPlaylistsDir(c context.Context) ([]fuse.DirEntry, fuse.Status) {
	playlists, err := fsys.cache.PlaylistsOrdered(c)
	if err != nil {
		log.Error(err)
		return nil, fuse.EIO
	}
	entries := make([]fuse.DirEntry, 0, len(playlists))
	for _, p := range playlists {
		entries = append(entries, fuse.DirEntry{Name: p.Name + ".m3u", Mode: fuse.S_IFREG})
	}
	return entries, fuse.OK
}

func (fsys *Filesystem) readLostFoundDir(c context.Context) ([]fuse.DirEntry, fuse.Status) {
	lost, err := fsys.LostFiles(c)
	if err != nil {
		log.Error(err)
		return nil, fuse.EIO
	}
	entries := make([]fuse.DirEntry, 0, len(lost))
	for _, f := range lost {
		entries = append(entries, fuse.DirEntry{Name: lostFilename(f), Mode: fuse.S_IFREG})
	}
	return entries, fuse.OK
}

func (fsys *Filesystem) readFolder(c context.Context, storageIdx int, folderID ObjID) ([]fuse.DirEntry, fuse.Status) {
	st, err := fsys.cache.Storage(c, storageIdx)
	if err != nil {
		log.Error(err)
		return nil, fuse.EIO
	}

	var siblings []ObjID
	if folderID == 0 {
		siblings = st.Roots
	} else if f := st.Folders[folderID]; f != nil {
		siblings = f.Children
	}

	entries := make([]fuse.DirEntry, 0, len(siblings))
	for _, id := range siblings {
		if f := st.Folders[id]; f != nil {
			entries = append(entries, fuse.DirEntry{Name: f.Name, Mode: fuse.S_IFDIR})
		}
	}

	files, err := fsys.cache.FilesOrdered(c)
	if err != nil {
		log.Error(err)
		return nil, fuse.EIO
	}
	for _, f := range files {
		if f.StorageID == st.ID && f.ParentID == folderID {
			entries = append(entries, fuse.DirEntry{Name: f.Filename, Mode: fuse.S_IFREG})
		}
	}
	return entries, fuse.OK
}

// Mknod implements spec.md's mknod contract: a new pending upload path.
func (fsys *Filesystem) Mknod(name string, mode uint32, dev uint32, fctx *fuse.Context) fuse.Status {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()

	p := "/" + name
	target, err := fsys.Resolve(ctx(), p)
	if err != nil {
		log.Error(err)
		return fuse.EIO
	}
	if target.Kind != KindNotFound {
		return statusEEXIST
	}
	fsys.pending[p] = &PendingUpload{Path: p, Staging: -1}
	return fuse.OK
}

// Mkdir implements spec.md's mkdir contract.
func (fsys *Filesystem) Mkdir(name string, mode uint32, fctx *fuse.Context) fuse.Status {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()

	p := "/" + name
	if strings.HasPrefix(p, "/.Trash") {
		return fuse.EPERM
	}

	c := ctx()
	target, err := fsys.Resolve(c, p)
	if err != nil {
		log.Error(err)
		return fuse.EIO
	}
	if target.Kind != KindNotFound {
		return statusEEXIST
	}

	dir, leaf := path.Split(strings.TrimSuffix(p, "/"))
	parent, err := fsys.Resolve(c, strings.TrimSuffix(dir, "/"))
	if err != nil {
		log.Error(err)
		return fuse.EIO
	}

	var storageIdx int
	var parentFolderID ObjID
	switch parent.Kind {
	case KindStorageRoot:
		storageIdx = parent.StorageIndex
		parentFolderID = 0
	case KindFolder:
		storageIdx = parent.StorageIndex
		parentFolderID = parent.FolderID
	default:
		return fuse.ENOENT
	}

	st, err := fsys.cache.Storage(c, storageIdx)
	if err != nil {
		log.Error(err)
		return fuse.EIO
	}
	if _, err := fsys.dev.CreateFolder(c, st.ID, parentFolderID, leaf); err != nil {
		log.Error(errors.Wrap(err, "CreateFolder"))
		return fuse.EIO
	}
	fsys.cache.MarkFoldersDirty(storageIdx)
	return fuse.OK
}

// Rmdir implements spec.md's rmdir contract. The device itself enforces
// emptiness; we do not pre-check.
func (fsys *Filesystem) Rmdir(name string, fctx *fuse.Context) fuse.Status {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()

	c := ctx()
	target, err := fsys.Resolve(c, "/"+name)
	if err != nil {
		log.Error(err)
		return fuse.EIO
	}
	if target.Kind != KindFolder {
		return fuse.ENOENT
	}
	if err := fsys.dev.DeleteObject(c, target.FolderID); err != nil {
		log.Error(errors.Wrap(err, "DeleteObject"))
		return fuse.EIO
	}
	fsys.cache.MarkFoldersDirty(target.StorageIndex)
	return fuse.OK
}

// Unlink implements spec.md's unlink contract.
func (fsys *Filesystem) Unlink(name string, fctx *fuse.Context) fuse.Status {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()

	p := "/" + name
	c := ctx()
	target, err := fsys.Resolve(c, p)
	if err != nil {
		log.Error(err)
		return fuse.EIO
	}

	var id ObjID
	switch target.Kind {
	case KindFile, KindLostFile:
		id = target.FileID
	case KindPlaylistFile:
		id = target.PlaylistID
	default:
		return fuse.ENOENT
	}

	if err := fsys.dev.DeleteObject(c, id); err != nil {
		log.Error(errors.Wrap(err, "DeleteObject"))
		return fuse.EIO
	}
	if strings.HasPrefix(p, "/"+fsys.playlistDirName+"/") {
		fsys.cache.MarkPlaylistsDirty()
	} else {
		fsys.cache.MarkFilesDirty()
	}
	return fuse.OK
}

// Rename implements spec.md's rename contract: only an empty folder may be
// renamed, by deleting the old folder object and creating a new one at the
// destination, since MTP has no native rename.
func (fsys *Filesystem) Rename(oldName, newName string, fctx *fuse.Context) fuse.Status {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()

	c := ctx()
	oldP := "/" + oldName
	target, err := fsys.Resolve(c, oldP)
	if err != nil {
		log.Error(err)
		return fuse.EIO
	}
	if target.Kind != KindFolder {
		return statusENOTEMPTY
	}

	st, err := fsys.cache.Storage(c, target.StorageIndex)
	if err != nil {
		log.Error(err)
		return fuse.EIO
	}
	folder := st.Folders[target.FolderID]
	if folder == nil {
		return fuse.ENOENT
	}
	if len(folder.Children) > 0 {
		return statusENOTEMPTY
	}
	files, err := fsys.cache.Files(c)
	if err != nil {
		log.Error(err)
		return fuse.EIO
	}
	for _, f := range files {
		if f.StorageID == st.ID && f.ParentID == folder.ID {
			return statusENOTEMPTY
		}
	}

	newP := "/" + newName
	newTarget, err := fsys.Resolve(c, newP)
	if err != nil {
		log.Error(err)
		return fuse.EIO
	}
	if newTarget.Kind != KindNotFound {
		return statusEEXIST
	}

	newParentDir, newLeaf := path.Split(strings.TrimSuffix(newP, "/"))
	newParent, err := fsys.Resolve(c, strings.TrimSuffix(newParentDir, "/"))
	if err != nil {
		log.Error(err)
		return fuse.EIO
	}
	var newParentID ObjID
	var newStorageIdx int
	switch newParent.Kind {
	case KindStorageRoot:
		newStorageIdx = newParent.StorageIndex
		newParentID = 0
	case KindFolder:
		newStorageIdx = newParent.StorageIndex
		newParentID = newParent.FolderID
	default:
		return fuse.ENOENT
	}
	newSt, err := fsys.cache.Storage(c, newStorageIdx)
	if err != nil {
		log.Error(err)
		return fuse.EIO
	}

	if _, err := fsys.dev.CreateFolder(c, newSt.ID, newParentID, newLeaf); err != nil {
		log.Error(errors.Wrap(err, "CreateFolder"))
		return fuse.EIO
	}
	// The new folder now exists on the device even if the old one fails to
	// delete below, so mark both storages dirty regardless of the outcome.
	fsys.cache.MarkFoldersDirty(newStorageIdx)
	if err := fsys.dev.DeleteObject(c, folder.ID); err != nil {
		log.Error(errors.Wrap(err, "DeleteObject"))
		fsys.cache.MarkFoldersDirty(target.StorageIndex)
		return fuse.EIO
	}
	fsys.cache.MarkFoldersDirty(target.StorageIndex)
	return fuse.OK
}

// Chmod is accepted and ignored: MTP objects have no POSIX mode bits.
func (fsys *Filesystem) Chmod(name string, mode uint32, fctx *fuse.Context) fuse.Status {
	return fuse.OK
}

// StatFs implements spec.md's statfs contract, reporting the primary
// storage only (a documented limitation carried from the original source).
func (fsys *Filesystem) StatFs(name string) *fuse.StatfsOut {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()

	storages, err := fsys.cache.Storages(ctx())
	if err != nil || len(storages) == 0 {
		if err != nil {
			log.Error(err)
		}
		return nil
	}
	primary := storages[0]
	const blockSize = 1024
	return &fuse.StatfsOut{
		Bsize:  blockSize,
		Blocks: primary.MaxCapacity / blockSize,
		Bfree:  primary.FreeSpace / blockSize,
		Bavail: primary.FreeSpace / blockSize,
		Files:  primary.FreeSpaceInObjects,
		Ffree:  primary.FreeSpaceInObjects,
	}
}

// ExtensionFileType maps a filename's extension to spec.md's device
// filetype tag, case-insensitively; anything unrecognized is UNKNOWN.
func ExtensionFileType(name string) string {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(name), "."))
	if t, ok := extFileTypes[ext]; ok {
		return t
	}
	return "UNKNOWN"
}

var extFileTypes = map[string]string{
	"wav": "WAV", "mp3": "MP3", "wma": "WMA", "ogg": "OGG", "aa": "AUDIBLE",
	"mp4": "MP4", "wmv": "WMV", "avi": "AVI", "mpeg": "MPEG", "mpg": "MPEG",
	"asf": "ASF", "qt": "QT", "mov": "QT", "jpg": "JPEG", "jpeg": "JPEG",
	"jfif": "JFIF", "tif": "TIFF", "tiff": "TIFF", "bmp": "BMP", "gif": "GIF",
	"pic": "PICT", "pict": "PICT", "png": "PNG", "wmf": "WINDOWSIMAGEFORMAT",
	"ics": "VCALENDAR2", "exe": "WINEXEC", "com": "WINEXEC", "bat": "WINEXEC",
	"dll": "WINEXEC", "sys": "WINEXEC", "txt": "TEXT", "htm": "HTML",
	"html": "HTML", "bin": "FIRMWARE", "aac": "AAC", "flac": "FLAC",
	"fla": "FLAC", "mp2": "MP2", "m4a": "M4A", "doc": "DOC", "xml": "XML",
	"xls": "XLS", "ppt": "PPT", "mht": "MHT", "jp2": "JP2", "jpx": "JPX",
}
