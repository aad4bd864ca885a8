package fs

import (
	"context"

	"github.com/pkg/errors"
	l "github.com/sirupsen/logrus"
)

var log *l.Entry = l.WithFields(l.Fields{"srv": "fs"})

// maxStorages is the fixed size of the storage-area collection; storages
// beyond this are discarded at enumeration time (a documented limitation,
// matching DeviceSession.EnumerateStorages).
const maxStorages = 4

// ObjectCache is the in-memory mirror of the device's object lists: the
// global file list, the per-storage folder trees, and the global playlist
// list. Each list carries its own dirty flag and is refreshed lazily, in
// full, on first read after being marked dirty. ObjectCache has no locking
// of its own: it is always reached through Filesystem's single device
// mutex.
type ObjectCache struct {
	dev Device

	storages []StorageArea // at most maxStorages, in device order

	files      map[ObjID]*FileRecord
	filesOrder []ObjID
	filesDirty bool

	playlists      map[ObjID]*Playlist
	playlistsOrder []ObjID
	playlistsDirty bool
}

// NewObjectCache creates a cache over dev. All lists start dirty; nothing
// is fetched from the device until the first refresh.
func NewObjectCache(dev Device) *ObjectCache {
	return &ObjectCache{
		dev:            dev,
		files:          make(map[ObjID]*FileRecord),
		filesDirty:     true,
		playlists:      make(map[ObjID]*Playlist),
		playlistsDirty: true,
	}
}

// MarkAllDirty forces every cache to refresh on next read. Used by the
// FUSE init hook.
func (c *ObjectCache) MarkAllDirty() {
	c.filesDirty = true
	c.playlistsDirty = true
	for i := range c.storages {
		c.storages[i].FoldersDirty = true
	}
}

// refreshStorages (re)enumerates storage areas if none have been loaded
// yet. Storage enumeration itself never goes dirty again after the first
// successful load: storages don't come and go during a mount's lifetime in
// this design, only their folder trees do.
func (c *ObjectCache) refreshStorages(ctx context.Context) error {
	if c.storages != nil {
		return nil
	}
	storages, err := c.dev.EnumerateStorages(ctx)
	if err != nil {
		return c.deviceErr("EnumerateStorages", err)
	}
	if len(storages) > maxStorages {
		log.Warnf("device reports %d storages, only the first %d are used", len(storages), maxStorages)
		storages = storages[:maxStorages]
	}
	for i := range storages {
		storages[i].FoldersDirty = true
		if storages[i].Folders == nil {
			storages[i].Folders = make(map[ObjID]*FolderRecord)
		}
	}
	c.storages = storages
	return nil
}

// Storages returns the current storage areas, refreshing enumeration if
// it has never run.
func (c *ObjectCache) Storages(ctx context.Context) ([]StorageArea, error) {
	if err := c.refreshStorages(ctx); err != nil {
		return nil, err
	}
	return c.storages, nil
}

// Storage returns a pointer to storage i's live entry (for in-place
// dirty-flag/folder mutation), refreshing its folder tree if dirty.
func (c *ObjectCache) Storage(ctx context.Context, i int) (*StorageArea, error) {
	if err := c.refreshStorages(ctx); err != nil {
		return nil, err
	}
	if i < 0 || i >= len(c.storages) {
		return nil, errors.Errorf("storage index %d out of range", i)
	}
	st := &c.storages[i]
	if st.FoldersDirty {
		if err := c.refreshFolders(ctx, st); err != nil {
			return nil, err
		}
	}
	return st, nil
}

// refreshFolders refetches one storage's folder tree from the device.
// The dirty flag is cleared only once the refresh has fully succeeded;
// on error the stale tree remains readable and dirty stays set. Child
// links are built here, from each record's ParentID, rather than trusted
// from the Device implementation: the cache is the one place responsible
// for the folder tree's shape, not every fs.Device implementation.
func (c *ObjectCache) refreshFolders(ctx context.Context, st *StorageArea) error {
	folders, err := c.dev.ListFolders(ctx, st.ID)
	if err != nil {
		return c.deviceErr("ListFolders", err)
	}
	byID := make(map[ObjID]*FolderRecord, len(folders))
	var roots []ObjID
	for i := range folders {
		f := folders[i]
		f.Children = nil
		byID[f.ID] = &f
		if f.ParentID == 0 {
			roots = append(roots, f.ID)
		}
	}
	for i := range folders {
		f := folders[i]
		if f.ParentID == 0 {
			continue
		}
		if parent, ok := byID[f.ParentID]; ok {
			parent.Children = append(parent.Children, f.ID)
		}
	}
	st.Folders = byID
	st.Roots = roots
	st.FoldersDirty = false
	return nil
}

// Files returns the global file list, refreshing it first if dirty.
func (c *ObjectCache) Files(ctx context.Context) (map[ObjID]*FileRecord, error) {
	if c.filesDirty {
		files, err := c.dev.ListFiles(ctx)
		if err != nil {
			return nil, c.deviceErr("ListFiles", err)
		}
		byID := make(map[ObjID]*FileRecord, len(files))
		order := make([]ObjID, 0, len(files))
		for i := range files {
			f := files[i]
			byID[f.ID] = &f
			order = append(order, f.ID)
		}
		c.files = byID
		c.filesOrder = order
		c.filesDirty = false
	}
	return c.files, nil
}

// FilesOrdered returns the current global file list in device listing
// order (readdir and LostFoundView need a stable order; map iteration
// doesn't provide one).
func (c *ObjectCache) FilesOrdered(ctx context.Context) ([]*FileRecord, error) {
	if _, err := c.Files(ctx); err != nil {
		return nil, err
	}
	out := make([]*FileRecord, 0, len(c.filesOrder))
	for _, id := range c.filesOrder {
		if f, ok := c.files[id]; ok {
			out = append(out, f)
		}
	}
	return out, nil
}

// Playlists returns the global playlist list, refreshing it first if
// dirty.
func (c *ObjectCache) Playlists(ctx context.Context) (map[ObjID]*Playlist, error) {
	if c.playlistsDirty {
		playlists, err := c.dev.ListPlaylists(ctx)
		if err != nil {
			return nil, c.deviceErr("ListPlaylists", err)
		}
		byID := make(map[ObjID]*Playlist, len(playlists))
		order := make([]ObjID, 0, len(playlists))
		for i := range playlists {
			p := playlists[i]
			byID[p.ID] = &p
			order = append(order, p.ID)
		}
		c.playlists = byID
		c.playlistsOrder = order
		c.playlistsDirty = false
	}
	return c.playlists, nil
}

// PlaylistsOrdered returns the current global playlist list in device
// listing order.
func (c *ObjectCache) PlaylistsOrdered(ctx context.Context) ([]*Playlist, error) {
	if _, err := c.Playlists(ctx); err != nil {
		return nil, err
	}
	out := make([]*Playlist, 0, len(c.playlistsOrder))
	for _, id := range c.playlistsOrder {
		if p, ok := c.playlists[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// MarkFilesDirty must be called after any mutation that changes the global
// file list (upload, delete, rename-of-file).
func (c *ObjectCache) MarkFilesDirty() { c.filesDirty = true }

// MarkPlaylistsDirty must be called after any mutation that changes the
// playlist list.
func (c *ObjectCache) MarkPlaylistsDirty() { c.playlistsDirty = true }

// MarkFoldersDirty must be called after any mutation that changes storage
// i's folder tree (mkdir, rmdir, rename-of-folder).
func (c *ObjectCache) MarkFoldersDirty(i int) {
	if i >= 0 && i < len(c.storages) {
		c.storages[i].FoldersDirty = true
	}
}

// deviceErr wraps a failed device call, logging and clearing the driver's
// error stack so nothing is silently swallowed.
func (c *ObjectCache) deviceErr(op string, err error) error {
	if stack := c.dev.DumpAndClearErrorStack(); len(stack) > 0 {
		log.Errorf("%s: device error stack: %v", op, stack)
	}
	log.Error(errors.Wrapf(err, op))
	return &DeviceError{Op: op, Err: err}
}
