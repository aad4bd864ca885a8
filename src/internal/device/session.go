// Package device wraps the MTP driver library as a thin typed session:
// enumerate storages, list/create/delete objects, transfer file and track
// content, all behind the fs.Device interface FSOps and ObjectCache
// consume.
package device

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/hanwen/go-mtpfs/mtp"
	l "github.com/sirupsen/logrus"

	"github.com/mtpfs-project/gomtpfs/src/internal/fs"
)

var log *l.Entry = l.WithFields(l.Fields{"srv": "device"})

// maxStorages mirrors fs.maxStorages: storages beyond the fourth are
// enumerated but discarded, a documented limitation inherited from the
// original implementation.
const maxStorages = 4

// Session is a thin typed wrapper over *mtp.Device.
type Session struct {
	dev         *mtp.Device
	openTimeout time.Duration
}

// Open enumerates attached MTP devices, selects the one at index, and
// opens a session against it. mtp.Detect/GetDeviceInfo/Configure take no
// context or deadline of their own, so the whole sequence runs on a
// goroutine bounded by openTimeout: a device that stalls mid-handshake
// fails the mount instead of hanging it forever. The handshake goroutine
// itself is leaked on timeout (the mtp package gives no way to cancel an
// in-flight USB transaction), matching openTimeout's doc'd contract of
// bounding how long Open *waits*; but if the handshake eventually does
// complete after the timeout has already been returned to the caller, its
// Session is closed rather than left holding the USB handle forever.
func Open(index int, openTimeout time.Duration) (*Session, error) {
	type result struct {
		sess *Session
		err  error
	}
	done := make(chan result, 1)

	go func() {
		devs, err := mtp.Detect()
		if err != nil {
			done <- result{err: fmt.Errorf("detecting MTP devices: %w", err)}
			return
		}
		if index < 0 || index >= len(devs) {
			done <- result{err: fmt.Errorf("device index %d out of range (%d devices found)", index, len(devs))}
			return
		}
		dev := devs[index]

		info, err := dev.GetDeviceInfo()
		if err == nil {
			log.Tracef("opening device %q (manufacturer %q)", info.Model, info.Manufacturer)
		}

		if err := dev.Configure(); err != nil {
			done <- result{err: fmt.Errorf("configuring MTP device: %w", err)}
			return
		}

		done <- result{sess: &Session{dev: dev, openTimeout: openTimeout}}
	}()

	select {
	case r := <-done:
		return r.sess, r.err
	case <-time.After(openTimeout):
		go func() {
			if r := <-done; r.sess != nil {
				log.Warnf("MTP handshake finished after the %s open timeout; closing it", openTimeout)
				r.sess.Close()
			}
		}()
		return nil, fmt.Errorf("opening MTP device: timed out after %s", openTimeout)
	}
}

// Close releases the underlying device handle.
func (s *Session) Close() {
	if s.dev != nil {
		s.dev.Close()
	}
}

// DumpAndClearErrorStack drains and clears the driver's accumulated error
// stack, for observability after a failed call.
func (s *Session) DumpAndClearErrorStack() []string {
	stack := s.dev.ErrorStack()
	s.dev.ClearErrorStack()
	out := make([]string, 0, len(stack))
	for _, e := range stack {
		out = append(out, e.Error())
	}
	return out
}

// EnumerateStorages implements fs.Device.
func (s *Session) EnumerateStorages(ctx context.Context) ([]fs.StorageArea, error) {
	sids, err := s.dev.ListStorage()
	if err != nil {
		return nil, wrap("ListStorage", err)
	}
	if len(sids) > maxStorages {
		sids = sids[:maxStorages]
	}
	areas := make([]fs.StorageArea, 0, len(sids))
	for _, sid := range sids {
		info, err := s.dev.GetStorageInfo(sid)
		if err != nil {
			return nil, wrap("GetStorageInfo", err)
		}
		areas = append(areas, fs.StorageArea{
			Handle:             sid,
			ID:                 sid,
			Description:        info.StorageDescription,
			MaxCapacity:        info.MaxCapacity,
			FreeSpace:          info.FreeSpaceInBytes,
			FreeSpaceInObjects: info.FreeSpaceInObjects,
		})
	}
	return areas, nil
}

// ListFiles implements fs.Device: the global file list across all
// storages (MTP has no per-folder listing; every object carries its own
// parent and storage IDs).
func (s *Session) ListFiles(ctx context.Context) ([]fs.FileRecord, error) {
	objIDs, err := s.dev.ListObjects()
	if err != nil {
		return nil, err
	}
	files := make([]fs.FileRecord, 0, len(objIDs))
	for _, id := range objIDs {
		info, err := s.dev.GetObjectInfo(id)
		if err != nil {
			log.Warnf("object %d: %v", id, err)
			continue
		}
		if info.IsFolder() || info.IsAssociation() {
			continue
		}
		files = append(files, recordFromInfo(id, info))
	}
	return files, nil
}

// ListFolders implements fs.Device: every folder in one storage, as a flat
// slice with each entry's ParentID set. ObjectCache links the Children
// slices itself, so this need not (and does not) build them.
func (s *Session) ListFolders(ctx context.Context, storageID uint32) ([]fs.FolderRecord, error) {
	objIDs, err := s.dev.ListObjectsForStorage(storageID)
	if err != nil {
		return nil, err
	}
	folders := make([]fs.FolderRecord, 0)
	for _, id := range objIDs {
		info, err := s.dev.GetObjectInfo(id)
		if err != nil {
			log.Warnf("object %d: %v", id, err)
			continue
		}
		if !info.IsFolder() {
			continue
		}
		folders = append(folders, fs.FolderRecord{
			ID:        id,
			ParentID:  info.ParentObject,
			StorageID: storageID,
			Name:      info.Filename,
		})
	}
	return folders, nil
}

// ListPlaylists implements fs.Device.
func (s *Session) ListPlaylists(ctx context.Context) ([]fs.Playlist, error) {
	objIDs, err := s.dev.ListObjects()
	if err != nil {
		return nil, err
	}
	var playlists []fs.Playlist
	for _, id := range objIDs {
		info, err := s.dev.GetObjectInfo(id)
		if err != nil || info.ObjectFormat != mtp.OFC_Playlist {
			continue
		}
		trackIDs, err := s.dev.GetPlaylistTracks(id)
		if err != nil {
			log.Warnf("playlist %d: %v", id, err)
			continue
		}
		playlists = append(playlists, fs.Playlist{
			ID:       id,
			Name:     info.Filename,
			TrackIDs: trackIDs,
		})
	}
	return playlists, nil
}

// CreateFolder implements fs.Device.
func (s *Session) CreateFolder(ctx context.Context, storageID, parentID uint32, name string) (fs.ObjID, error) {
	return s.dev.CreateFolder(storageID, parentID, name)
}

// DeleteObject implements fs.Device.
func (s *Session) DeleteObject(ctx context.Context, id fs.ObjID) error {
	return s.dev.DeleteObject(id)
}

// UploadFile implements fs.Device.
func (s *Session) UploadFile(ctx context.Context, storageID, parentID uint32, name string, r io.Reader, size int64) (fs.ObjID, error) {
	return s.dev.SendObject(storageID, parentID, name, r, size, fs.ExtensionFileType(name))
}

// UploadTrack implements fs.Device.
func (s *Session) UploadTrack(ctx context.Context, storageID, parentID uint32, name string, r io.Reader, size int64, md fs.TrackMetadata) (fs.ObjID, error) {
	return s.dev.SendTrack(storageID, parentID, name, r, size, mtp.TrackMetadata{
		Artist:      md.Artist,
		Title:       md.Title,
		Album:       md.Album,
		Genre:       md.Genre,
		Year:        md.Year,
		TrackNumber: md.TrackNumber,
		DurationMS:  md.DurationMS,
	})
}

// DownloadToWriter implements fs.Device.
func (s *Session) DownloadToWriter(ctx context.Context, id fs.ObjID, w io.Writer) error {
	return s.dev.GetObject(id, w)
}

// GetObjectMetadata implements fs.Device.
func (s *Session) GetObjectMetadata(ctx context.Context, id fs.ObjID) (fs.FileRecord, error) {
	info, err := s.dev.GetObjectInfo(id)
	if err != nil {
		return fs.FileRecord{}, err
	}
	return recordFromInfo(id, info), nil
}

// SavePlaylist implements fs.Device: create if no playlist of that name
// exists, update the track list in place otherwise.
func (s *Session) SavePlaylist(ctx context.Context, name string, trackIDs []fs.ObjID) (fs.ObjID, error) {
	existing, err := s.ListPlaylists(ctx)
	if err != nil {
		return 0, err
	}
	for _, pl := range existing {
		if pl.Name == name {
			if err := s.dev.SetPlaylistTracks(pl.ID, trackIDs); err != nil {
				return 0, err
			}
			return pl.ID, nil
		}
	}
	return s.dev.CreatePlaylist(name, trackIDs)
}

func recordFromInfo(id fs.ObjID, info *mtp.ObjectInfo) fs.FileRecord {
	return fs.FileRecord{
		ID:        id,
		ParentID:  info.ParentObject,
		StorageID: info.StorageID,
		Filename:  info.Filename,
		Size:      info.CompressedSize64(),
		ModTime:   info.ModificationDate,
		FileType:  info.ObjectFormat.String(),
	}
}
