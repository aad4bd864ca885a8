package fs

import (
	"context"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStagingStoreAttachNewCreatesEmptyFile(t *testing.T) {
	store := NewStagingStore(t.TempDir())
	f, err := store.AttachNew()
	require.NoError(t, err)
	defer store.Detach(f)

	info, err := f.Stat()
	require.NoError(t, err)
	assert.Equal(t, int64(0), info.Size())
}

func TestStagingStoreDetachRemovesFile(t *testing.T) {
	store := NewStagingStore(t.TempDir())
	f, err := store.AttachNew()
	require.NoError(t, err)
	name := f.Name()

	require.NoError(t, store.Detach(f))
	_, err = os.Stat(name)
	assert.True(t, os.IsNotExist(err))
}

func TestStagingStoreDetachNilIsNoop(t *testing.T) {
	store := NewStagingStore(t.TempDir())
	assert.NoError(t, store.Detach(nil))
}

func TestStagingStoreAttachDownloadFillsContent(t *testing.T) {
	dev := newFakeDevice()
	dev.files = []FileRecord{{ID: 1, Filename: "a.mp3"}}
	store := NewStagingStore(t.TempDir())

	f, err := store.AttachDownload(context.Background(), &writingFakeDevice{fakeDevice: dev, content: "hello"}, 1)
	require.NoError(t, err)
	defer store.Detach(f)

	buf := make([]byte, 5)
	n, err := f.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:n]))
}

// writingFakeDevice overrides DownloadToWriter to write fixed content,
// exercising AttachDownload's write-then-seek-to-start behavior.
type writingFakeDevice struct {
	*fakeDevice
	content string
}

func (d *writingFakeDevice) DownloadToWriter(ctx context.Context, id ObjID, w io.Writer) error {
	_, err := w.Write([]byte(d.content))
	return err
}
