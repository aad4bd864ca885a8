package fs

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/pkg/errors"
	"github.com/ushis/m3u"
)

// reconstructPath rebuilds a track's root-relative path by walking its
// parent_id chain through its own storage's folder tree. The storage-name
// component is deliberately omitted, an acknowledged lossy mapping on
// multi-storage devices carried forward unchanged from the original
// implementation (see DESIGN.md).
func reconstructPath(f *FileRecord, st *StorageArea) string {
	var comps []string
	id := f.ParentID
	for id != 0 {
		folder := st.Folders[id]
		if folder == nil {
			break
		}
		comps = append([]string{folder.Name}, comps...)
		id = folder.ParentID
	}
	comps = append(comps, f.Filename)
	return "/" + strings.Join(comps, "/")
}

// storageFor returns the *StorageArea owning storageID, refreshing its
// folder tree if necessary.
func (fsys *Filesystem) storageFor(c context.Context, storageID uint32) (*StorageArea, error) {
	storages, err := fsys.cache.Storages(c)
	if err != nil {
		return nil, err
	}
	for i, st := range storages {
		if st.ID == storageID {
			return fsys.cache.Storage(c, i)
		}
	}
	return nil, errors.Errorf("no storage with id %d", storageID)
}

// playlistContent reconstructs a playlist's .m3u body: one line per
// track, LF-terminated.
func (fsys *Filesystem) playlistContent(c context.Context, playlistID ObjID) (string, error) {
	playlists, err := fsys.cache.Playlists(c)
	if err != nil {
		return "", err
	}
	pl, ok := playlists[playlistID]
	if !ok {
		return "", errors.Errorf("no playlist with id %d", playlistID)
	}
	files, err := fsys.cache.Files(c)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, trackID := range pl.TrackIDs {
		f, ok := files[trackID]
		if !ok {
			// device-side track the file list no longer carries; skip it
			// rather than abort the whole reconstruction.
			continue
		}
		st, err := fsys.storageFor(c, f.StorageID)
		if err != nil {
			log.Warnf("playlist %s: track %d: %v", pl.Name, trackID, err)
			continue
		}
		sb.WriteString(reconstructPath(f, st))
		sb.WriteByte('\n')
	}
	return sb.String(), nil
}

// playlistSize implements the "size reporting" part of PlaylistBridge:
// getattr needs an accurate byte count before open.
func (fsys *Filesystem) playlistSize(c context.Context, playlistID ObjID) (uint64, error) {
	content, err := fsys.playlistContent(c, playlistID)
	if err != nil {
		return 0, err
	}
	return uint64(len(content)), nil
}

// writePlaylistContent implements PlaylistBridge's read path: synthesize
// the .m3u body and write it into the staging descriptor.
func (fsys *Filesystem) writePlaylistContent(c context.Context, f *os.File, playlistID ObjID) error {
	content, err := fsys.playlistContent(c, playlistID)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(content); err != nil {
		return err
	}
	return f.Sync()
}

// resolvePlaylistLine resolves one playlist line back to a track. Lines
// are the storage-name-less paths playlistContent/reconstructPath produce
// (the acknowledged lossy mapping, DESIGN.md's Open Question #3), so
// unlike Resolve/resolveStoragePath this does not treat the first
// component as a storage name: it walks every storage's folder tree in
// turn against the full relative path and returns the first match. On a
// single-storage device this always finds the intended track; on a
// multi-storage device with colliding folder layouts, the first storage
// (in device order) wins, which is the same ambiguity the reconstructed
// path already carries on the read side.
func (fsys *Filesystem) resolvePlaylistLine(c context.Context, line string) (ResolvedTarget, error) {
	comps := strings.Split(strings.Trim(line, "/"), "/")
	if len(comps) == 0 || comps[0] == "" {
		return ResolvedTarget{Kind: KindNotFound, Path: line}, nil
	}
	leaf := comps[len(comps)-1]
	dirs := comps[:len(comps)-1]

	storages, err := fsys.cache.Storages(c)
	if err != nil {
		return ResolvedTarget{}, err
	}
	files, err := fsys.cache.Files(c)
	if err != nil {
		return ResolvedTarget{}, err
	}

	for i := range storages {
		st, err := fsys.cache.Storage(c, i)
		if err != nil {
			return ResolvedTarget{}, err
		}

		var parentID ObjID
		if len(dirs) > 0 {
			folderID, _, found := lookupFolderID(st, dirs)
			if !found {
				continue
			}
			if folderID != storageRootSentinel {
				parentID = folderID
			}
		}

		for _, f := range files {
			if f.StorageID == st.ID && f.ParentID == parentID && foldEqual(f.Filename, leaf) {
				return ResolvedTarget{Kind: KindFile, StorageIndex: i, FileID: f.ID}, nil
			}
		}
	}
	return ResolvedTarget{Kind: KindNotFound, Path: line}, nil
}

// commitPlaylist implements PlaylistBridge's write path: parse the body
// written to the staging descriptor with github.com/ushis/m3u back into
// track IDs via resolvePlaylistLine, then create or update the named
// playlist. Blank lines are skipped silently; every other line that does
// not resolve to a track (including URLs, which are not checked
// separately) is skipped with a Warn log entry.
func (fsys *Filesystem) commitPlaylist(c context.Context, p string, f *os.File) error {
	name := strings.TrimSuffix(path.Base(p), ".m3u")

	if _, err := f.Seek(0, 0); err != nil {
		return err
	}

	playlist, err := m3u.Parse(f)
	if err != nil {
		return errors.Wrapf(err, "cannot parse playlist %q", name)
	}

	var trackIDs []ObjID
	for _, item := range playlist {
		line := strings.TrimSpace(item.Path)
		if line == "" {
			continue
		}
		target, err := fsys.resolvePlaylistLine(c, line)
		if err != nil {
			log.Warnf("playlist %s: cannot resolve line %q: %v", name, line, err)
			continue
		}
		if target.Kind != KindFile {
			log.Warnf("playlist %s: line %q does not resolve to a track: skip", name, line)
			continue
		}
		trackIDs = append(trackIDs, target.FileID)
	}

	if _, err := fsys.dev.SavePlaylist(c, name, trackIDs); err != nil {
		return &DeviceError{Op: "SavePlaylist", Err: err}
	}
	fsys.cache.MarkPlaylistsDirty()
	return nil
}

// commitUpload implements the non-playlist branch of spec.md's release
// contract: resolve the parent folder (it must already exist; creating a
// multi-component new path on upload is not supported, matching the
// original implementation's parent_id=0 fallback being treated as
// unsupported rather than silently reproduced), classify the filetype,
// dispatch to TagEnricher for .mp3 or straight to UploadFile otherwise.
func (fsys *Filesystem) commitUpload(c context.Context, p string, f *os.File) error {
	dir, leaf := path.Split(strings.TrimSuffix(p, "/"))
	parent, err := fsys.Resolve(c, strings.TrimSuffix(dir, "/"))
	if err != nil {
		return err
	}

	var storageIdx int
	var parentID ObjID
	switch parent.Kind {
	case KindStorageRoot:
		storageIdx = parent.StorageIndex
		parentID = 0
	case KindFolder:
		storageIdx = parent.StorageIndex
		parentID = parent.FolderID
	default:
		return fmt.Errorf("parent directory of %s does not exist", p)
	}

	st, err := fsys.cache.Storage(c, storageIdx)
	if err != nil {
		return err
	}

	info, err := f.Stat()
	if err != nil {
		return err
	}
	if _, err := f.Seek(0, 0); err != nil {
		return err
	}

	fileType := ExtensionFileType(leaf)
	if fileType == "MP3" && fsys.enrich != nil {
		md, err := fsys.enrich(leaf, info.Size(), f, fsys.tagSeparator)
		if err != nil {
			log.Warnf("tag extraction failed for %s, uploading with defaults: %v", p, err)
			md = defaultTrackMetadata()
		}
		if _, err := f.Seek(0, 0); err != nil {
			return err
		}
		if _, err := fsys.dev.UploadTrack(c, st.ID, parentID, leaf, f, info.Size(), md); err != nil {
			return &DeviceError{Op: "UploadTrack", Err: err}
		}
	} else {
		if _, err := fsys.dev.UploadFile(c, st.ID, parentID, leaf, f, info.Size()); err != nil {
			return &DeviceError{Op: "UploadFile", Err: err}
		}
	}

	fsys.cache.MarkFilesDirty()
	return nil
}

func defaultTrackMetadata() TrackMetadata {
	return TrackMetadata{
		Artist:      UnknownTag,
		Title:       UnknownTag,
		Album:       UnknownTag,
		Genre:       UnknownTag,
		Year:        UnknownTag,
		TrackNumber: UnknownTag,
	}
}
