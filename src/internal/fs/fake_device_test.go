package fs

import (
	"context"
	"errors"
	"io"
)

var errNotFound = errors.New("object not found")

// fakeDevice is an in-memory Device stand-in for PathResolver/ObjectCache/
// LostFoundView tests: no real MTP driver involved.
type fakeDevice struct {
	storages  []StorageArea
	folders   map[uint32][]FolderRecord // storageID -> folders
	files     []FileRecord
	playlists []Playlist

	nextID      ObjID
	createCalls []string
	deleteCalls []ObjID
	saved       map[string][]ObjID

	// deleteErr, keyed by object ID, makes DeleteObject fail for that one
	// call so tests can exercise partial-failure cleanup paths.
	deleteErr map[ObjID]error
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{
		folders: make(map[uint32][]FolderRecord),
		saved:   make(map[string][]ObjID),
		nextID:  1000,
	}
}

func (d *fakeDevice) EnumerateStorages(ctx context.Context) ([]StorageArea, error) {
	return d.storages, nil
}

func (d *fakeDevice) ListFiles(ctx context.Context) ([]FileRecord, error) {
	return d.files, nil
}

func (d *fakeDevice) ListFolders(ctx context.Context, storageID uint32) ([]FolderRecord, error) {
	return d.folders[storageID], nil
}

func (d *fakeDevice) ListPlaylists(ctx context.Context) ([]Playlist, error) {
	return d.playlists, nil
}

func (d *fakeDevice) CreateFolder(ctx context.Context, storageID, parentID uint32, name string) (ObjID, error) {
	d.createCalls = append(d.createCalls, name)
	d.nextID++
	id := d.nextID
	d.folders[storageID] = append(d.folders[storageID], FolderRecord{
		ID: id, ParentID: parentID, StorageID: storageID, Name: name,
	})
	return id, nil
}

func (d *fakeDevice) DeleteObject(ctx context.Context, id ObjID) error {
	d.deleteCalls = append(d.deleteCalls, id)
	if err, ok := d.deleteErr[id]; ok {
		return err
	}
	return nil
}

func (d *fakeDevice) UploadFile(ctx context.Context, storageID, parentID uint32, name string, r io.Reader, size int64) (ObjID, error) {
	d.nextID++
	return d.nextID, nil
}

func (d *fakeDevice) UploadTrack(ctx context.Context, storageID, parentID uint32, name string, r io.Reader, size int64, md TrackMetadata) (ObjID, error) {
	d.nextID++
	return d.nextID, nil
}

func (d *fakeDevice) DownloadToWriter(ctx context.Context, id ObjID, w io.Writer) error {
	return nil
}

func (d *fakeDevice) GetObjectMetadata(ctx context.Context, id ObjID) (FileRecord, error) {
	for _, f := range d.files {
		if f.ID == id {
			return f, nil
		}
	}
	return FileRecord{}, errNotFound
}

func (d *fakeDevice) SavePlaylist(ctx context.Context, name string, trackIDs []ObjID) (ObjID, error) {
	d.saved[name] = trackIDs
	d.nextID++
	return d.nextID, nil
}

func (d *fakeDevice) DumpAndClearErrorStack() []string { return nil }
