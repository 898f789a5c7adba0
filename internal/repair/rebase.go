// Package repair implements the Path Rebaser, Orphan Recovery, and Reset
// commands (C6). Transaction shape follows the teacher's database.go
// BeginBatch/EndBatch pattern: one short write transaction per operation,
// rolled back whole on any failure.
package repair

import (
	"context"
	"fmt"
	"strings"

	"findit/internal/logging"
	"findit/internal/storage"
)

var log = logging.For("repair")

// normalizePath trims a trailing path separator, per §4.4's rebase rule.
func normalizePath(p string) string {
	return strings.TrimRight(p, "/")
}

// Rebaser rewrites absolute-path columns in a folder DB when the folder's
// root has moved.
type Rebaser struct {
	folder *storage.FolderDB
}

func NewRebaser(folder *storage.FolderDB) *Rebaser {
	return &Rebaser{folder: folder}
}

// Rebase compares the stored watched_folders.folder_path against
// currentPath. If they differ, every path column with the old path as its
// prefix is rewritten in a single transaction: folder_path, every video's
// file_path and (when its prefix matches) srt_path, and every clip's
// thumbnail_path. Sidecar paths under a separate user-library root are left
// untouched since their prefix never matches the folder root.
func (r *Rebaser) Rebase(ctx context.Context, currentPath string) (bool, error) {
	wf, err := r.folder.GetWatchedFolder(ctx)
	if err != nil {
		return false, fmt.Errorf("read watched folder: %w", err)
	}

	oldPath := normalizePath(wf.FolderPath)
	newPath := normalizePath(currentPath)
	if oldPath == newPath {
		return false, nil
	}

	videos, err := r.folder.ListAllVideos(ctx, wf.ID)
	if err != nil {
		return false, err
	}
	clipsByVideo := make(map[string][]*storage.Clip, len(videos))
	for _, v := range videos {
		clips, err := r.folder.ListClipsForVideo(ctx, v.ID)
		if err != nil {
			return false, err
		}
		clipsByVideo[v.ID] = clips
	}

	tx, err := r.folder.BeginTx(ctx)
	if err != nil {
		return false, fmt.Errorf("begin rebase tx: %w", err)
	}

	if err := r.folder.RewriteFolderPath(ctx, tx, wf.ID, newPath); err != nil {
		return false, r.folder.EndTx(tx, err)
	}

	for _, v := range videos {
		newFilePath := rewritePrefix(v.FilePath, oldPath, newPath)
		newSRTPath := v.SRTPath
		if strings.HasPrefix(v.SRTPath, oldPath) {
			newSRTPath = rewritePrefix(v.SRTPath, oldPath, newPath)
		}
		if err := r.folder.RewriteVideoPaths(ctx, tx, v.ID, newFilePath, newSRTPath); err != nil {
			return false, r.folder.EndTx(tx, fmt.Errorf("rewrite video %s: %w", v.ID, err))
		}

		for _, c := range clipsByVideo[v.ID] {
			if c.ThumbnailPath == "" || !strings.HasPrefix(c.ThumbnailPath, oldPath) {
				continue
			}
			newThumb := rewritePrefix(c.ThumbnailPath, oldPath, newPath)
			if err := r.folder.RewriteClipThumbnailPath(ctx, tx, c.ID, newThumb); err != nil {
				return false, r.folder.EndTx(tx, fmt.Errorf("rewrite clip %s thumbnail: %w", c.ID, err))
			}
		}
	}

	if err := r.folder.EndTx(tx, nil); err != nil {
		return false, fmt.Errorf("commit rebase: %w", err)
	}
	log.Info("rebased folder from %q to %q", oldPath, newPath)
	return true, nil
}

func rewritePrefix(path, oldPrefix, newPrefix string) string {
	if !strings.HasPrefix(path, oldPrefix) {
		return path
	}
	return newPrefix + strings.TrimPrefix(path, oldPrefix)
}
