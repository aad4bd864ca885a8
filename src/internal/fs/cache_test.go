package fs

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectCacheRefreshesOnceThenCaches(t *testing.T) {
	dev := newFakeDevice()
	dev.files = []FileRecord{{ID: 1, Filename: "a.mp3"}}
	cache := NewObjectCache(dev)

	files, err := cache.Files(context.Background())
	require.NoError(t, err)
	assert.Len(t, files, 1)

	// mutate the device behind the cache's back; without a dirty mark the
	// cache must keep serving the stale snapshot.
	dev.files = append(dev.files, FileRecord{ID: 2, Filename: "b.mp3"})
	files, err = cache.Files(context.Background())
	require.NoError(t, err)
	assert.Len(t, files, 1, "cache must not refetch until marked dirty")

	cache.MarkFilesDirty()
	files, err = cache.Files(context.Background())
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func TestObjectCacheFilesOrderedIsStable(t *testing.T) {
	dev := newFakeDevice()
	dev.files = []FileRecord{{ID: 3}, {ID: 1}, {ID: 2}}
	cache := NewObjectCache(dev)

	ordered, err := cache.FilesOrdered(context.Background())
	require.NoError(t, err)
	require.Len(t, ordered, 3)
	assert.Equal(t, []ObjID{3, 1, 2}, []ObjID{ordered[0].ID, ordered[1].ID, ordered[2].ID})
}

func TestObjectCacheFolderRefreshIsPerStorage(t *testing.T) {
	dev := newFakeDevice()
	dev.storages = []StorageArea{{ID: 1, Description: "A"}, {ID: 2, Description: "B"}}
	dev.folders[1] = []FolderRecord{{ID: 10, StorageID: 1, Name: "x"}}
	cache := NewObjectCache(dev)

	st0, err := cache.Storage(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, st0.Folders, 1)

	st1, err := cache.Storage(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, st1.Folders, 0)

	dev.folders[1] = append(dev.folders[1], FolderRecord{ID: 11, StorageID: 1, Name: "y"})
	cache.MarkFoldersDirty(0)
	st0, err = cache.Storage(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, st0.Folders, 2)
}

func TestObjectCacheLinksChildrenFromParentID(t *testing.T) {
	dev := newFakeDevice()
	dev.storages = []StorageArea{{ID: 1, Description: "Internal"}}
	// deliberately leave Children unset, as a real fs.Device implementation
	// is free to do (device.go's contract only requires ParentID): the
	// cache must build the tree itself rather than trust the caller.
	dev.folders[1] = []FolderRecord{
		{ID: 10, ParentID: 0, StorageID: 1, Name: "Music"},
		{ID: 11, ParentID: 10, StorageID: 1, Name: "Rock"},
		{ID: 12, ParentID: 10, StorageID: 1, Name: "Jazz"},
	}
	cache := NewObjectCache(dev)

	st, err := cache.Storage(context.Background(), 0)
	require.NoError(t, err)
	assert.ElementsMatch(t, []ObjID{11, 12}, st.Folders[10].Children)
	assert.Empty(t, st.Folders[11].Children)
	assert.Equal(t, []ObjID{10}, st.Roots)
}

func TestObjectCacheStoragesBeyondMaxAreDropped(t *testing.T) {
	dev := newFakeDevice()
	for i := 0; i < maxStorages+2; i++ {
		dev.storages = append(dev.storages, StorageArea{ID: uint32(i + 1)})
	}
	cache := NewObjectCache(dev)

	storages, err := cache.Storages(context.Background())
	require.NoError(t, err)
	assert.Len(t, storages, maxStorages)
}

func TestObjectCacheStoragesPreserveDeviceOrder(t *testing.T) {
	dev := newFakeDevice()
	dev.storages = []StorageArea{
		{ID: 1, Description: "Internal"},
		{ID: 2, Description: "SD card"},
	}
	cache := NewObjectCache(dev)

	storages, err := cache.Storages(context.Background())
	require.NoError(t, err)

	want := []uint32{1, 2}
	got := make([]uint32, 0, len(storages))
	for _, st := range storages {
		got = append(got, st.ID)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("storage order mismatch (-want +got):\n%s", diff)
	}
}
