// Package fs implements the translation layer between a POSIX path
// namespace and an MTP device's flat object model: object caching, path
// resolution, upload staging, playlist synthesis and the lost+found view,
// wired together behind a single FUSE-facing filesystem handle.
package fs

import "time"

// ObjID identifies an MTP object (file, folder, track or playlist) on the
// device. Zero is never a valid object ID; a FolderRecord's ParentID of
// zero means "storage root" rather than "no parent".
type ObjID = uint32

// StorageArea mirrors one MTP storage area (internal memory, SD card, ...).
// At most four are tracked, matching DeviceSession.EnumerateStorages.
type StorageArea struct {
	Handle      uint32 // opaque device storage handle
	ID          uint32
	Description string
	MaxCapacity uint64
	FreeSpace   uint64
	// FreeSpaceInObjects is the device's own count of how many more
	// objects it can hold, independent of byte capacity. statfs reports
	// this as f_ffree, matching the original's f_ffree = FreeSpaceInObjects.
	FreeSpaceInObjects uint64

	// Folders is the folder tree for this storage, indexed by folder ID.
	Folders map[ObjID]*FolderRecord
	// Roots holds the IDs of folders whose ParentID is 0 (direct children
	// of the storage root), in device listing order.
	Roots []ObjID

	FoldersDirty bool
}

// FolderRecord is one folder object in a storage's tree.
type FolderRecord struct {
	ID        ObjID
	ParentID  ObjID // 0 = storage root
	StorageID uint32
	Name      string
	Children  []ObjID // child folder IDs, in device listing order
}

// FileRecord is one file or track object, owned by the global file list
// cache (MTP has no per-folder file listing; every file belongs to exactly
// one storage and one parent folder, looked up by ID).
type FileRecord struct {
	ID        ObjID
	ParentID  ObjID // 0 = directly under the storage root
	StorageID uint32
	Filename  string // may be empty; the lost+found view substitutes a placeholder
	Size      uint64
	ModTime   time.Time
	FileType  string // device filetype tag, see ExtensionFileType
}

// Playlist is an ordered list of track object IDs plus a name.
type Playlist struct {
	ID       ObjID
	Name     string
	TrackIDs []ObjID
}

// PendingUpload tracks a path between mknod and release. Staging is -1
// until open() attaches a staging handle.
type PendingUpload struct {
	Path    string
	Staging int
}

// TrackMetadata is the audio metadata TagEnricher extracts before handing a
// staged MP3 file to DeviceSession.UploadTrack.
type TrackMetadata struct {
	Artist      string
	Title       string
	Album       string
	Genre       string
	Year        string
	TrackNumber string
	DurationMS  int64
}

// UnknownTag is substituted for any TrackMetadata string field that
// couldn't be read from the file's ID3 tags.
const UnknownTag = "<Unknown>"

// TargetKind discriminates the variants of a resolved path.
type TargetKind int

const (
	// KindNotFound means the path does not resolve to anything.
	KindNotFound TargetKind = iota
	// KindPending means the path is an in-flight upload (in pending_paths).
	KindPending
	// KindRoot is the filesystem root, "/".
	KindRoot
	// KindVirtualDir is "/Playlists" or "/lost+found" themselves.
	KindVirtualDir
	// KindStorageRoot is the directory named after a storage's description.
	KindStorageRoot
	// KindFolder is a real MTP folder object.
	KindFolder
	// KindFile is a real MTP file/track object.
	KindFile
	// KindPlaylistFile is a synthesized "<name>.m3u" under /Playlists.
	KindPlaylistFile
	// KindLostFile is a file exposed under /lost+found.
	KindLostFile
)

// VirtualDirKind distinguishes the two synthesized top-level directories.
type VirtualDirKind int

const (
	VDPlaylists VirtualDirKind = iota
	VDLostFound
)

// ResolvedTarget is the sum type PathResolver.Resolve returns: exactly the
// fields relevant to Kind are meaningful, the rest are zero.
type ResolvedTarget struct {
	Kind TargetKind

	VDir         VirtualDirKind
	StorageIndex int
	FolderID     ObjID
	FileID       ObjID
	PlaylistID   ObjID

	// Path carries the original lookup path; only meaningful for
	// KindPending and KindNotFound, where there is no object identity yet.
	Path string
}
