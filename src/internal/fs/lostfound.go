package fs

import "context"

// lostFilePlaceholder substitutes for a FileRecord whose Filename the
// device reported as empty — MTP firmware is allowed to omit it.
const lostFilePlaceholder = "(no name)"

func lostFilename(f *FileRecord) string {
	if f.Filename == "" {
		return lostFilePlaceholder
	}
	return f.Filename
}

// LostFiles computes, on demand, the set of files whose parent folder
// reference doesn't resolve in any storage's folder tree (Invariant 2). It
// never caches its own result: it is derived fresh from ObjectCache's
// current file and folder-tree state every time, which is cheap compared
// to a device round trip.
func (fsys *Filesystem) LostFiles(ctx context.Context) ([]*FileRecord, error) {
	files, err := fsys.cache.FilesOrdered(ctx)
	if err != nil {
		return nil, err
	}
	storages, err := fsys.cache.Storages(ctx)
	if err != nil {
		return nil, err
	}
	// force every storage's folder tree to be current before judging
	// lostness, since a stale tree would misclassify a freshly-rmdir'd
	// folder's former children as lost.
	for i := range storages {
		if _, err := fsys.cache.Storage(ctx, i); err != nil {
			return nil, err
		}
	}
	storages, _ = fsys.cache.Storages(ctx)

	var lost []*FileRecord
	for _, f := range files {
		if f.ParentID == 0 {
			continue
		}
		if !folderExistsAnywhere(storages, f.ParentID) {
			lost = append(lost, f)
		}
	}
	return lost, nil
}

func folderExistsAnywhere(storages []StorageArea, id ObjID) bool {
	for _, st := range storages {
		if _, ok := st.Folders[id]; ok {
			return true
		}
	}
	return false
}
