package fs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLostFilesExcludesStorageRootChildren(t *testing.T) {
	dev := newFakeDevice()
	dev.storages = []StorageArea{{ID: 1, Description: "Internal"}}
	dev.folders[1] = []FolderRecord{{ID: 10, StorageID: 1, Name: "Music"}}
	dev.files = []FileRecord{
		{ID: 100, ParentID: 0, Filename: "root.mp3"},    // directly under storage root: not lost
		{ID: 101, ParentID: 10, Filename: "music.mp3"},  // under a real folder: not lost
		{ID: 102, ParentID: 999, Filename: "orphan.mp3"}, // parent doesn't exist anywhere: lost
	}
	fsys := newTestFilesystem(dev)

	lost, err := fsys.LostFiles(context.Background())
	require.NoError(t, err)
	require.Len(t, lost, 1)
	assert.Equal(t, ObjID(102), lost[0].ID)
}

func TestLostFilenameFallsBackToPlaceholder(t *testing.T) {
	f := &FileRecord{ID: 1, Filename: ""}
	assert.Equal(t, lostFilePlaceholder, lostFilename(f))

	f2 := &FileRecord{ID: 2, Filename: "real.mp3"}
	assert.Equal(t, "real.mp3", lostFilename(f2))
}
