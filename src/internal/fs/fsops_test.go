package fs

import (
	"context"
	"syscall"
	"testing"

	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtensionFileType(t *testing.T) {
	cases := map[string]string{
		"track.mp3":  "MP3",
		"Track.MP3":  "MP3",
		"clip.MOV":   "QT",
		"photo.jpeg": "JPEG",
		"noext":      "UNKNOWN",
		"weird.zzz":  "UNKNOWN",
	}
	for name, want := range cases {
		assert.Equal(t, want, ExtensionFileType(name), name)
	}
}

func TestGetAttrDirectoryKinds(t *testing.T) {
	fsys := newTestFilesystem(twoStorageDevice())

	attr, status := fsys.GetAttr("", nil)
	assert.Equal(t, fuse.OK, status)
	assert.True(t, attr.Mode&fuse.S_IFDIR != 0)

	attr, status = fsys.GetAttr("Internal storage", nil)
	assert.Equal(t, fuse.OK, status)
	assert.True(t, attr.Mode&fuse.S_IFDIR != 0)
}

func TestGetAttrFile(t *testing.T) {
	fsys := newTestFilesystem(twoStorageDevice())
	attr, status := fsys.GetAttr("Internal storage/Music/Rock/song.mp3", nil)
	assert.Equal(t, fuse.OK, status)
	assert.True(t, attr.Mode&fuse.S_IFREG != 0)
}

func TestGetAttrNotFound(t *testing.T) {
	fsys := newTestFilesystem(twoStorageDevice())
	_, status := fsys.GetAttr("Internal storage/nope.mp3", nil)
	assert.Equal(t, fuse.ENOENT, status)
}

func TestOpenDirRootListsStoragesAndPlaylists(t *testing.T) {
	fsys := newTestFilesystem(twoStorageDevice())
	entries, status := fsys.OpenDir("", nil)
	assert.Equal(t, fuse.OK, status)

	names := make(map[string]bool)
	for _, e := range entries {
		names[e.Name] = true
	}
	assert.True(t, names["Playlists"])
	assert.True(t, names["Internal storage"])
	assert.True(t, names["SD card"])
	assert.False(t, names["lost+found"], "lost+found is hidden when nothing is lost")
}

func TestOpenDirRootShowsLostFoundWhenNonEmpty(t *testing.T) {
	dev := twoStorageDevice()
	dev.files[1].ParentID = 9999 // orphan.mp3 becomes lost
	fsys := newTestFilesystem(dev)

	entries, status := fsys.OpenDir("", nil)
	assert.Equal(t, fuse.OK, status)
	var found bool
	for _, e := range entries {
		if e.Name == "lost+found" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestMknodThenGetAttrSeesPending(t *testing.T) {
	fsys := newTestFilesystem(twoStorageDevice())
	status := fsys.Mknod("Internal storage/Music/new.mp3", 0644, 0, nil)
	assert.Equal(t, fuse.OK, status)

	attr, status := fsys.GetAttr("Internal storage/Music/new.mp3", nil)
	assert.Equal(t, fuse.OK, status)
	assert.Equal(t, uint64(0), attr.Size)
}

func TestMknodExistingPathFails(t *testing.T) {
	fsys := newTestFilesystem(twoStorageDevice())
	status := fsys.Mknod("Internal storage/Music/Rock/song.mp3", 0644, 0, nil)
	assert.Equal(t, fuse.Status(syscall.EEXIST), status)
}

func TestMkdirRejectsTrash(t *testing.T) {
	fsys := newTestFilesystem(twoStorageDevice())
	status := fsys.Mkdir(".Trash", 0755, nil)
	assert.Equal(t, fuse.EPERM, status)
}

func TestMkdirCreatesFolderUnderResolvedParent(t *testing.T) {
	dev := twoStorageDevice()
	fsys := newTestFilesystem(dev)
	status := fsys.Mkdir("Internal storage/Music/Jazz", 0755, nil)
	assert.Equal(t, fuse.OK, status)
	assert.Contains(t, dev.createCalls, "Jazz")
}

func TestUnlinkDeletesFileAndMarksDirty(t *testing.T) {
	dev := twoStorageDevice()
	fsys := newTestFilesystem(dev)
	status := fsys.Unlink("Internal storage/Music/Rock/song.mp3", nil)
	assert.Equal(t, fuse.OK, status)
	assert.Contains(t, dev.deleteCalls, ObjID(100))
	assert.True(t, fsys.cache.filesDirty, "file list must be marked dirty after a delete")
}

func TestRmdirDeletesFolder(t *testing.T) {
	dev := twoStorageDevice()
	fsys := newTestFilesystem(dev)
	status := fsys.Rmdir("Internal storage/Music/Rock", nil)
	assert.Equal(t, fuse.OK, status)
	assert.Contains(t, dev.deleteCalls, ObjID(11))
}

func TestRmdirOnFileFails(t *testing.T) {
	fsys := newTestFilesystem(twoStorageDevice())
	status := fsys.Rmdir("Internal storage/Music/Rock/song.mp3", nil)
	assert.Equal(t, fuse.ENOENT, status)
}

func TestChmodIsAcceptedAndIgnored(t *testing.T) {
	fsys := newTestFilesystem(twoStorageDevice())
	status := fsys.Chmod("Internal storage/Music/Rock/song.mp3", 0600, nil)
	assert.Equal(t, fuse.OK, status)
}

func TestRenameMarksBothStoragesDirtyEvenOnDeleteFailure(t *testing.T) {
	dev := twoStorageDevice()
	// Rename only allows empty folders (ENOTEMPTY otherwise); "Rock" (ID 11)
	// already holds song.mp3, so rename a freshly added empty sibling
	// instead.
	dev.folders[1] = append(dev.folders[1], FolderRecord{ID: 20, ParentID: 10, StorageID: 1, Name: "Empty"})
	dev.deleteErr = map[ObjID]error{20: errNotFound}
	fsys := newTestFilesystem(dev)

	// force a refresh so FoldersDirty starts false for storage 0, the
	// storage the renamed folder (ID 20) lives in.
	_, err := fsys.cache.Storage(context.Background(), 0)
	require.NoError(t, err)
	require.False(t, fsys.cache.storages[0].FoldersDirty)
	// likewise for storage 1 ("SD card"), the destination storage.
	_, err = fsys.cache.Storage(context.Background(), 1)
	require.NoError(t, err)
	require.False(t, fsys.cache.storages[1].FoldersDirty)

	status := fsys.Rename("Internal storage/Music/Empty", "SD card/Jazz", nil)
	assert.Equal(t, fuse.EIO, status, "DeleteObject failure must still surface as an error")
	assert.Contains(t, dev.createCalls, "Jazz", "the new folder was created before the failing delete")
	assert.True(t, fsys.cache.storages[1].FoldersDirty, "new storage must be marked dirty once CreateFolder succeeded")
	assert.True(t, fsys.cache.storages[0].FoldersDirty, "old storage must be marked dirty even though DeleteObject failed, since the new folder now exists alongside the stale one")
}

func TestRenameOntoExistingDestinationFails(t *testing.T) {
	dev := twoStorageDevice()
	// Rename only allows empty folders; rename a freshly added empty
	// sibling of "Rock" onto the pre-existing "Jazz" folder.
	dev.folders[1] = append(dev.folders[1],
		FolderRecord{ID: 12, ParentID: 10, StorageID: 1, Name: "Jazz"},
		FolderRecord{ID: 20, ParentID: 10, StorageID: 1, Name: "Empty"},
	)
	fsys := newTestFilesystem(dev)

	status := fsys.Rename("Internal storage/Music/Empty", "Internal storage/Music/Jazz", nil)
	assert.Equal(t, fuse.Status(syscall.EEXIST), status)
	assert.NotContains(t, dev.createCalls, "Jazz", "must not create a colliding destination folder")
}

func TestResolveStorageMatchIsUTF8Safe(t *testing.T) {
	dev := newFakeDevice()
	dev.storages = []StorageArea{
		{Handle: 1, ID: 1, Description: "Müsic Player"},
	}
	fsys := newTestFilesystem(dev)

	// "Müs" is 3 runes but 4 bytes ('ü' takes two); the comparison is
	// clamped to the first 3 runes of the description, "Müs", and matches.
	target, err := fsys.Resolve(context.Background(), "/Müs")
	require.NoError(t, err)
	assert.Equal(t, KindStorageRoot, target.Kind)
}

func TestStatFsReportsFreeObjectsNotFreeBytes(t *testing.T) {
	dev := newFakeDevice()
	dev.storages = []StorageArea{
		{ID: 1, Description: "Internal", MaxCapacity: 1 << 30, FreeSpace: 1 << 20, FreeSpaceInObjects: 4242},
	}
	fsys := newTestFilesystem(dev)

	out := fsys.StatFs("")
	assert.Equal(t, uint64(4242), out.Ffree)
	assert.Equal(t, uint64(4242), out.Files)
	assert.NotEqual(t, out.Ffree, dev.storages[0].FreeSpace/1024, "Ffree must come from FreeSpaceInObjects, not a byte count")
}
