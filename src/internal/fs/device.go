package fs

import (
	"context"
	"io"
)

// Device is the contract ObjectCache and FSOps need from the MTP driver
// collaborator (internal/device.Session implements it). Defined here, at
// the consumer, so tests can substitute a fake without pulling in the real
// driver.
type Device interface {
	// EnumerateStorages returns up to four storage areas, in device order.
	EnumerateStorages(ctx context.Context) ([]StorageArea, error)
	// ListFiles returns the complete global file list.
	ListFiles(ctx context.Context) ([]FileRecord, error)
	// ListFolders returns every folder in one storage as a flat slice, each
	// entry's ParentID set (0 = storage root); ObjectCache links the
	// Children slices itself, so implementations need not populate them.
	ListFolders(ctx context.Context, storageID uint32) ([]FolderRecord, error)
	// ListPlaylists returns the complete global playlist list.
	ListPlaylists(ctx context.Context) ([]Playlist, error)

	// CreateFolder creates a folder under parentID (0 = storage root).
	CreateFolder(ctx context.Context, storageID, parentID uint32, name string) (ObjID, error)
	// DeleteObject deletes a file, folder or playlist object by ID.
	DeleteObject(ctx context.Context, id ObjID) error

	// UploadFile uploads size bytes from r as a plain file object.
	UploadFile(ctx context.Context, storageID, parentID uint32, name string, r io.Reader, size int64) (ObjID, error)
	// UploadTrack uploads size bytes from r as a track object carrying md.
	UploadTrack(ctx context.Context, storageID, parentID uint32, name string, r io.Reader, size int64, md TrackMetadata) (ObjID, error)
	// DownloadToWriter streams the full content of object id to w.
	DownloadToWriter(ctx context.Context, id ObjID, w io.Writer) error
	// GetObjectMetadata fetches a single file's current record by ID.
	GetObjectMetadata(ctx context.Context, id ObjID) (FileRecord, error)

	// SavePlaylist creates a playlist named name if none exists, or
	// updates the existing one's track list otherwise.
	SavePlaylist(ctx context.Context, name string, trackIDs []ObjID) (ObjID, error)

	// DumpAndClearErrorStack drains the driver's accumulated error stack
	// (for logging) and clears it.
	DumpAndClearErrorStack() []string
}
