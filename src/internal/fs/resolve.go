package fs

import (
	"context"
	"path"
	"strings"

	"golang.org/x/text/cases"
)

// foldCaser folds case for all comparisons PathResolver makes, in place of
// ASCII-only strings.EqualFold: MTP device and folder names are free-form
// UTF-8 text supplied by firmware or whatever wrote the object.
var foldCaser = cases.Fold()

func foldEqual(a, b string) bool { return foldCaser.String(a) == foldCaser.String(b) }

// Resolve maps path to a ResolvedTarget. It never returns an error for an
// unresolvable path: KindNotFound is itself part of the result, matching
// spec's "ResolvedTarget | NotFound | Pending" as one sum type.
func (fsys *Filesystem) Resolve(ctx context.Context, p string) (ResolvedTarget, error) {
	p = cleanPath(p)

	if p == "/" {
		return ResolvedTarget{Kind: KindRoot}, nil
	}
	if _, pending := fsys.pending[p]; pending {
		return ResolvedTarget{Kind: KindPending, Path: p}, nil
	}

	switch {
	case p == "/"+fsys.playlistDirName:
		return ResolvedTarget{Kind: KindVirtualDir, VDir: VDPlaylists}, nil
	case strings.HasPrefix(p, "/"+fsys.playlistDirName+"/"):
		return fsys.resolvePlaylistFile(ctx, p)
	case p == "/"+fsys.lostFoundName:
		return ResolvedTarget{Kind: KindVirtualDir, VDir: VDLostFound}, nil
	case strings.HasPrefix(p, "/"+fsys.lostFoundName+"/"):
		return fsys.resolveLostFile(ctx, p)
	}

	return fsys.resolveStoragePath(ctx, p)
}

func cleanPath(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

func (fsys *Filesystem) resolvePlaylistFile(ctx context.Context, p string) (ResolvedTarget, error) {
	name := strings.TrimSuffix(path.Base(p), ".m3u")
	playlists, err := fsys.cache.Playlists(ctx)
	if err != nil {
		return ResolvedTarget{}, err
	}
	for id, pl := range playlists {
		if foldEqual(pl.Name, name) {
			return ResolvedTarget{Kind: KindPlaylistFile, PlaylistID: id}, nil
		}
	}
	return ResolvedTarget{Kind: KindNotFound, Path: p}, nil
}

func (fsys *Filesystem) resolveLostFile(ctx context.Context, p string) (ResolvedTarget, error) {
	name := path.Base(p)
	lost, err := fsys.LostFiles(ctx)
	if err != nil {
		return ResolvedTarget{}, err
	}
	for _, f := range lost {
		if foldEqual(lostFilename(f), name) {
			return ResolvedTarget{Kind: KindLostFile, FileID: f.ID}, nil
		}
	}
	return ResolvedTarget{Kind: KindNotFound, Path: p}, nil
}

// resolveStoragePath implements spec step 5: find the storage whose
// description matches the first path component by the same length-clamped
// comparison the original source used (clamped on runes, not bytes, so
// multi-byte UTF-8 characters never get split mid-encoding), then walk the
// remaining components against that storage's folder tree via
// lookupFolderID.
func (fsys *Filesystem) resolveStoragePath(ctx context.Context, p string) (ResolvedTarget, error) {
	comps := strings.Split(strings.Trim(p, "/"), "/")
	if len(comps) == 0 || comps[0] == "" {
		return ResolvedTarget{Kind: KindNotFound, Path: p}, nil
	}

	storages, err := fsys.cache.Storages(ctx)
	if err != nil {
		return ResolvedTarget{}, err
	}

	compRunes := []rune(comps[0])
	storageIdx := -1
	for i, st := range storages {
		descRunes := []rune(st.Description)
		n := len(descRunes)
		if m := len(compRunes); m < n {
			n = m
		}
		if n > 0 && foldEqual(string(descRunes[:n]), string(compRunes[:n])) {
			storageIdx = i
			break
		}
	}
	if storageIdx == -1 {
		return ResolvedTarget{Kind: KindNotFound, Path: p}, nil
	}

	st, err := fsys.cache.Storage(ctx, storageIdx)
	if err != nil {
		return ResolvedTarget{}, err
	}

	rel := comps[1:]
	if len(rel) == 0 {
		return ResolvedTarget{Kind: KindStorageRoot, StorageIndex: storageIdx}, nil
	}

	folderID, parentID, found := lookupFolderID(st, rel)
	if found {
		if folderID == storageRootSentinel {
			return ResolvedTarget{Kind: KindStorageRoot, StorageIndex: storageIdx}, nil
		}
		return ResolvedTarget{Kind: KindFolder, StorageIndex: storageIdx, FolderID: folderID}, nil
	}

	// last component didn't match a folder: try a file under the deepest
	// resolved parent
	files, err := fsys.cache.Files(ctx)
	if err != nil {
		return ResolvedTarget{}, err
	}
	leaf := rel[len(rel)-1]
	for _, f := range files {
		if f.StorageID == st.ID && f.ParentID == parentID && foldEqual(f.Filename, leaf) {
			return ResolvedTarget{Kind: KindFile, StorageIndex: storageIdx, FileID: f.ID}, nil
		}
	}
	return ResolvedTarget{Kind: KindNotFound, Path: p}, nil
}

// storageRootSentinel stands for "the path named only the storage root,
// not any folder below it", matching the original source's "-2" special
// case. lookupFolderID itself never returns it: its callers handle a
// path that names only the storage root before calling it.
const storageRootSentinel = ObjID(0xFFFFFFFF)

// lookupFolderID walks st's folder tree matching each element of relpath,
// case-insensitively, against folder names, depth-first, first match wins.
// It returns the deepest matched folder ID, the parent ID that a trailing
// filename should be looked up under, and whether every component matched
// a folder.
// lookupFolderID walks relpath through st's folder tree one path component
// at a time. Callers always guard the empty-relpath case themselves (the
// storage root sentinel lives at the call sites, not here), so relpath is
// never empty and the loop always returns from its last iteration.
func lookupFolderID(st *StorageArea, relpath []string) (folderID, parentID ObjID, found bool) {
	siblings := st.Roots
	parentID = 0
	for i, comp := range relpath {
		var next *FolderRecord
		for _, id := range siblings {
			f := st.Folders[id]
			if f != nil && foldEqual(f.Name, comp) {
				next = f
				break
			}
		}
		if next == nil {
			return 0, parentID, false
		}
		parentID = next.ID
		siblings = next.Children
		if i == len(relpath)-1 {
			return next.ID, parentID, true
		}
	}
	panic("lookupFolderID: relpath must not be empty")
}
