// Package storage implements the dual-database storage model (C3) and its
// migration engine (C4): folder-local authoritative stores plus a global
// aggregated search index. Schema and transaction handling follow the
// teacher's database.go (WAL pragmas, a custom sqlite3 driver hook,
// observeQuery-style metrics wrapping around every statement).
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"findit/internal/mediatypes"
	"findit/internal/metrics"
)

// FolderDB is the authoritative per-folder store, rooted at
// "<folder>/.clip-index/index.sqlite" (§6).
type FolderDB struct {
	db         *sql.DB
	path       string
	folderPath string
	mu         sync.RWMutex
}

// FolderDBPath returns the canonical on-disk path for a folder's index DB.
func FolderDBPath(folderPath string) string {
	return filepath.Join(folderPath, ".clip-index", "index.sqlite")
}

// OpenFolderDB opens (creating if needed) the folder DB for folderPath,
// enabling WAL mode and foreign keys, then runs migrations.
func OpenFolderDB(ctx context.Context, folderPath string) (*FolderDB, error) {
	dbPath := FolderDBPath(folderPath)
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("cannot create index directory: %w", err)
	}

	db, err := openWAL(dbPath)
	if err != nil {
		return nil, fmt.Errorf("database open failed: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("database open failed: %w", err)
	}

	f := &FolderDB{db: db, path: dbPath, folderPath: folderPath}
	if err := applyMigrations(ctx, db, "folder", folderMigrations); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}
	return f, nil
}

// OpenFolderDBInMemory opens an in-memory folder DB for tests, per §4.2's
// requirement that both DB kinds support in-memory instances.
func OpenFolderDBInMemory(ctx context.Context, folderPath string) (*FolderDB, error) {
	db, err := sql.Open("sqlite3", "file::memory:?_foreign_keys=ON")
	if err != nil {
		return nil, fmt.Errorf("database open failed: %w", err)
	}
	db.SetMaxOpenConns(1)
	f := &FolderDB{db: db, path: ":memory:", folderPath: folderPath}
	if err := applyMigrations(ctx, db, "folder", folderMigrations); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}
	return f, nil
}

func (f *FolderDB) Close() error { return f.db.Close() }

func (f *FolderDB) FolderPath() string { return f.folderPath }

var folderMigrations = []migrationStep{
	{
		name: "0001_initial_schema",
		run: func(ctx context.Context, db *sql.DB) error {
			_, err := db.ExecContext(ctx, `
			CREATE TABLE IF NOT EXISTS watched_folders (
				id TEXT PRIMARY KEY,
				folder_path TEXT NOT NULL UNIQUE,
				volume_name TEXT,
				volume_uuid TEXT,
				available INTEGER NOT NULL DEFAULT 1,
				total_files INTEGER NOT NULL DEFAULT 0,
				indexed_files INTEGER NOT NULL DEFAULT 0,
				created_at INTEGER NOT NULL DEFAULT (strftime('%s','now')),
				updated_at INTEGER NOT NULL DEFAULT (strftime('%s','now'))
			);

			CREATE TABLE IF NOT EXISTS videos (
				id TEXT PRIMARY KEY,
				folder_id TEXT NOT NULL REFERENCES watched_folders(id) ON DELETE CASCADE,
				file_path TEXT NOT NULL,
				file_name TEXT NOT NULL,
				duration_seconds REAL NOT NULL DEFAULT 0,
				file_size_bytes INTEGER NOT NULL DEFAULT 0,
				file_hash TEXT,
				mod_time INTEGER NOT NULL DEFAULT 0,
				created_at INTEGER NOT NULL DEFAULT (strftime('%s','now')),
				indexed_at INTEGER,
				index_status TEXT NOT NULL DEFAULT 'pending',
				index_layer INTEGER NOT NULL DEFAULT 0,
				last_processed_clip TEXT,
				index_error TEXT,
				srt_path TEXT,
				stt_skipped_no_audio INTEGER NOT NULL DEFAULT 0,
				orphaned_at INTEGER,
				status_before_orphan TEXT,
				UNIQUE(folder_id, file_path)
			);

			CREATE INDEX IF NOT EXISTS idx_videos_status ON videos(index_status);
			CREATE INDEX IF NOT EXISTS idx_videos_hash ON videos(file_hash);

			CREATE TABLE IF NOT EXISTS clips (
				id TEXT PRIMARY KEY,
				video_id TEXT NOT NULL REFERENCES videos(id) ON DELETE CASCADE,
				start_sec REAL NOT NULL,
				end_sec REAL NOT NULL,
				thumbnail_path TEXT,
				scene TEXT, subjects TEXT, actions TEXT, objects TEXT,
				mood TEXT, shot_type TEXT, lighting TEXT, colors TEXT,
				description TEXT, transcript TEXT,
				tags TEXT NOT NULL DEFAULT '[]',
				user_tags TEXT NOT NULL DEFAULT '[]',
				rating INTEGER NOT NULL DEFAULT 0,
				color_label TEXT NOT NULL DEFAULT '',
				embedding BLOB,
				embedding_model TEXT,
				created_at INTEGER NOT NULL DEFAULT (strftime('%s','now')),
				CHECK (start_sec < end_sec),
				CHECK ((embedding IS NULL) = (embedding_model IS NULL))
			);

			CREATE INDEX IF NOT EXISTS idx_clips_video ON clips(video_id);
			CREATE INDEX IF NOT EXISTS idx_clips_embedding_model ON clips(embedding_model);
			CREATE INDEX IF NOT EXISTS idx_clips_rating ON clips(rating);
			CREATE INDEX IF NOT EXISTS idx_clips_color_label ON clips(color_label);
			`)
			return err
		},
	},
	{
		name: "0002_status_before_orphan",
		run: func(ctx context.Context, db *sql.DB) error {
			exists, err := columnExists(ctx, db, "videos", "status_before_orphan")
			if err != nil {
				return err
			}
			if exists {
				return nil
			}
			_, err = db.ExecContext(ctx, `ALTER TABLE videos ADD COLUMN status_before_orphan TEXT`)
			return err
		},
	},
}

func observeFolderQuery(op string) func(error) {
	start := time.Now()
	return func(err error) {
		status := "success"
		if err != nil {
			status = "error"
		}
		metrics.DBQueryTotal.WithLabelValues("folder", op, status).Inc()
		metrics.DBQueryDuration.WithLabelValues("folder", op).Observe(time.Since(start).Seconds())
	}
}

// BeginTx starts a short write transaction. Callers must Commit or Rollback
// promptly — per §5, write transactions are never long-held.
func (f *FolderDB) BeginTx(ctx context.Context) (*sql.Tx, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.db.BeginTx(ctx, nil)
}

// EndTx commits on nil err, otherwise rolls back, mirroring the teacher's
// EndBatch helper.
func (f *FolderDB) EndTx(tx *sql.Tx, err error) error {
	start := time.Now()
	if err != nil {
		rbErr := tx.Rollback()
		metrics.DBTransactionDuration.WithLabelValues("folder", "rollback").Observe(time.Since(start).Seconds())
		if rbErr != nil {
			return fmt.Errorf("%w (rollback also failed: %v)", err, rbErr)
		}
		return err
	}
	commitErr := tx.Commit()
	metrics.DBTransactionDuration.WithLabelValues("folder", "commit").Observe(time.Since(start).Seconds())
	return commitErr
}

// --- WatchedFolder ---

// UpsertWatchedFolder creates the folder record if absent, returning its id.
func (f *FolderDB) UpsertWatchedFolder(ctx context.Context, folderPath, volumeName, volumeUUID string) (string, error) {
	done := observeFolderQuery("upsert_watched_folder")
	defer func() { done(nil) }()

	f.mu.Lock()
	defer f.mu.Unlock()

	var id string
	err := f.db.QueryRowContext(ctx, `SELECT id FROM watched_folders WHERE folder_path = ?`, folderPath).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return "", err
	}

	id = uuid.NewString()
	_, err = f.db.ExecContext(ctx, `
		INSERT INTO watched_folders (id, folder_path, volume_name, volume_uuid, available)
		VALUES (?, ?, ?, ?, 1)
	`, id, folderPath, volumeName, volumeUUID)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (f *FolderDB) GetWatchedFolder(ctx context.Context) (*WatchedFolder, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	row := f.db.QueryRowContext(ctx, `
		SELECT id, folder_path, COALESCE(volume_name,''), COALESCE(volume_uuid,''),
		       available, total_files, indexed_files, created_at, updated_at
		FROM watched_folders LIMIT 1
	`)
	var wf WatchedFolder
	var created, updated int64
	var available int
	if err := row.Scan(&wf.ID, &wf.FolderPath, &wf.VolumeName, &wf.VolumeUUID,
		&available, &wf.TotalFiles, &wf.IndexedFiles, &created, &updated); err != nil {
		return nil, err
	}
	wf.Available = available != 0
	wf.CreatedAt = time.Unix(created, 0)
	wf.UpdatedAt = time.Unix(updated, 0)
	return &wf, nil
}

// UpdateFolderCounters updates the total/indexed file counters.
func (f *FolderDB) UpdateFolderCounters(ctx context.Context, folderID string, total, indexed int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, err := f.db.ExecContext(ctx, `
		UPDATE watched_folders SET total_files = ?, indexed_files = ?, updated_at = strftime('%s','now')
		WHERE id = ?
	`, total, indexed, folderID)
	return err
}

// RewriteFolderPath updates folder_path in place, used by the rebaser (C6).
func (f *FolderDB) RewriteFolderPath(ctx context.Context, tx *sql.Tx, folderID, newPath string) error {
	_, err := tx.ExecContext(ctx, `UPDATE watched_folders SET folder_path = ?, updated_at = strftime('%s','now') WHERE id = ?`, newPath, folderID)
	return err
}

// --- Videos ---

// UpsertVideoMetadata creates or updates a Video row from Layer 0 (Metadata)
// output. Returns the video's id.
func (f *FolderDB) UpsertVideoMetadata(ctx context.Context, tx *sql.Tx, folderID, filePath, fileName string, durationSec float64, sizeBytes int64, hash string, modTime time.Time) (string, error) {
	done := observeFolderQuery("upsert_video_metadata")
	defer func() { done(nil) }()

	var id string
	err := tx.QueryRowContext(ctx, `SELECT id FROM videos WHERE folder_id = ? AND file_path = ?`, folderID, filePath).Scan(&id)
	switch {
	case err == sql.ErrNoRows:
		id = uuid.NewString()
		_, err = tx.ExecContext(ctx, `
			INSERT INTO videos (id, folder_id, file_path, file_name, duration_seconds, file_size_bytes, file_hash, mod_time, index_status, index_layer)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, 'metadata_done', 1)
		`, id, folderID, filePath, fileName, durationSec, sizeBytes, nullableString(hash), modTime.Unix())
		return id, err
	case err != nil:
		return "", err
	default:
		_, err = tx.ExecContext(ctx, `
			UPDATE videos SET file_name = ?, duration_seconds = ?, file_size_bytes = ?, file_hash = ?, mod_time = ?,
			                   index_status = 'metadata_done', index_layer = MAX(index_layer, 1)
			WHERE id = ?
		`, fileName, durationSec, sizeBytes, nullableString(hash), modTime.Unix(), id)
		return id, err
	}
}

// RegisterDiscoveredVideo inserts a bare placeholder row for a file a
// directory scan just found, left at index_status='pending'/index_layer=0
// so Process's triage runs the full Metadata layer (probe, hash, stat)
// rather than skipping it the way UpsertVideoMetadata's metadata_done
// shortcut would. A no-op if the path is already registered.
func (f *FolderDB) RegisterDiscoveredVideo(ctx context.Context, folderID, filePath, fileName string) (string, error) {
	done := observeFolderQuery("register_discovered_video")
	defer func() { done(nil) }()

	f.mu.Lock()
	defer f.mu.Unlock()

	var id string
	err := f.db.QueryRowContext(ctx, `SELECT id FROM videos WHERE folder_id = ? AND file_path = ?`, folderID, filePath).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return "", err
	}

	id = uuid.NewString()
	_, err = f.db.ExecContext(ctx, `
		INSERT INTO videos (id, folder_id, file_path, file_name)
		VALUES (?, ?, ?, ?)
	`, id, folderID, filePath, fileName)
	return id, err
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// GetVideoByPath fetches a video by its folder-relative unique path.
func (f *FolderDB) GetVideoByPath(ctx context.Context, folderID, filePath string) (*Video, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return scanVideoRow(f.db.QueryRowContext(ctx, videoSelectColumns+` WHERE folder_id = ? AND file_path = ?`, folderID, filePath))
}

func (f *FolderDB) GetVideo(ctx context.Context, id string) (*Video, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return scanVideoRow(f.db.QueryRowContext(ctx, videoSelectColumns+` WHERE id = ?`, id))
}

const videoSelectColumns = `
	SELECT id, folder_id, file_path, file_name, duration_seconds, file_size_bytes,
	       COALESCE(file_hash,''), mod_time, created_at, COALESCE(indexed_at,0),
	       index_status, index_layer, COALESCE(last_processed_clip,''), COALESCE(index_error,''),
	       COALESCE(srt_path,''), stt_skipped_no_audio, COALESCE(orphaned_at,0), COALESCE(status_before_orphan,'')
	FROM videos`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanVideoRow(row rowScanner) (*Video, error) {
	var v Video
	var modTime, created, indexed, orphaned int64
	var sttSkipped int
	var layer int
	if err := row.Scan(&v.ID, &v.FolderID, &v.FilePath, &v.FileName, &v.DurationSeconds, &v.FileSizeBytes,
		&v.FileHash, &modTime, &created, &indexed, &v.IndexStatus, &layer,
		&v.LastProcessedClip, &v.IndexError, &v.SRTPath, &sttSkipped, &orphaned, &v.StatusBeforeOrphan); err != nil {
		return nil, err
	}
	v.IndexLayer = mediatypes.Layer(layer)
	v.ModTime = time.Unix(modTime, 0)
	v.CreatedAt = time.Unix(created, 0)
	if indexed > 0 {
		v.IndexedAt = time.Unix(indexed, 0)
	}
	v.STTSkippedNoAudio = sttSkipped != 0
	if orphaned > 0 {
		v.OrphanedAt = time.Unix(orphaned, 0)
	}
	return &v, nil
}

// ListVideosByStatus returns videos in a folder matching an index status,
// ordered by file_path, used by the indexer to find pending/failed work.
func (f *FolderDB) ListVideosByStatus(ctx context.Context, folderID string, status mediatypes.IndexStatus) ([]*Video, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	rows, err := f.db.QueryContext(ctx, videoSelectColumns+` WHERE folder_id = ? AND index_status = ? ORDER BY file_path`, folderID, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Video
	for rows.Next() {
		v, err := scanVideoRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// ListAllVideos returns every video of the folder, orphaned ones included,
// used by the path rebaser and by the demo's indexing pass.
func (f *FolderDB) ListAllVideos(ctx context.Context, folderID string) ([]*Video, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	rows, err := f.db.QueryContext(ctx, videoSelectColumns+` WHERE folder_id = ? ORDER BY file_path`, folderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Video
	for rows.Next() {
		v, err := scanVideoRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// VideoRowID returns the implicit sqlite rowid for a video, used by the sync
// engine as the monotonic cursor for incremental replication.
func (f *FolderDB) VideoRowID(ctx context.Context, id string) (int64, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	var rowid int64
	err := f.db.QueryRowContext(ctx, `SELECT rowid FROM videos WHERE id = ?`, id).Scan(&rowid)
	return rowid, err
}

// VideosSince returns videos whose rowid exceeds after, ascending, capped at
// limit — the sync engine's incremental-batch read (§4.3).
func (f *FolderDB) VideosSince(ctx context.Context, after int64, limit int) ([]*Video, []int64, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	rows, err := f.db.QueryContext(ctx, `
		`+videoSelectColumnsWithRowid+`
		WHERE rowid > ? ORDER BY rowid ASC LIMIT ?
	`, after, limit)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var vids []*Video
	var rowids []int64
	for rows.Next() {
		var rowid int64
		v, err := scanVideoRowWithRowid(rows, &rowid)
		if err != nil {
			return nil, nil, err
		}
		vids = append(vids, v)
		rowids = append(rowids, rowid)
	}
	return vids, rowids, rows.Err()
}

const videoSelectColumnsWithRowid = `
	SELECT rowid, id, folder_id, file_path, file_name, duration_seconds, file_size_bytes,
	       COALESCE(file_hash,''), mod_time, created_at, COALESCE(indexed_at,0),
	       index_status, index_layer, COALESCE(last_processed_clip,''), COALESCE(index_error,''),
	       COALESCE(srt_path,''), stt_skipped_no_audio, COALESCE(orphaned_at,0), COALESCE(status_before_orphan,'')
	FROM videos`

func scanVideoRowWithRowid(row rowScanner, rowid *int64) (*Video, error) {
	var v Video
	var modTime, created, indexed, orphaned int64
	var sttSkipped int
	var layer int
	if err := row.Scan(rowid, &v.ID, &v.FolderID, &v.FilePath, &v.FileName, &v.DurationSeconds, &v.FileSizeBytes,
		&v.FileHash, &modTime, &created, &indexed, &v.IndexStatus, &layer,
		&v.LastProcessedClip, &v.IndexError, &v.SRTPath, &sttSkipped, &orphaned, &v.StatusBeforeOrphan); err != nil {
		return nil, err
	}
	v.IndexLayer = mediatypes.Layer(layer)
	v.ModTime = time.Unix(modTime, 0)
	v.CreatedAt = time.Unix(created, 0)
	if indexed > 0 {
		v.IndexedAt = time.Unix(indexed, 0)
	}
	v.STTSkippedNoAudio = sttSkipped != 0
	if orphaned > 0 {
		v.OrphanedAt = time.Unix(orphaned, 0)
	}
	return &v, nil
}

// UpdateVideoIndexState advances a video's status/layer/checkpoint after a
// layer completes, per §4.6's resumability contract.
func (f *FolderDB) UpdateVideoIndexState(ctx context.Context, id string, status mediatypes.IndexStatus, layer mediatypes.Layer, lastProcessedClip string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, err := f.db.ExecContext(ctx, `
		UPDATE videos SET index_status = ?, index_layer = ?, last_processed_clip = ?, indexed_at = strftime('%s','now')
		WHERE id = ?
	`, status, int(layer), nullableString(lastProcessedClip), id)
	return err
}

// UpdateVideoSRTPath records where Layer 2 (STT) wrote the subtitle file.
func (f *FolderDB) UpdateVideoSRTPath(ctx context.Context, id, srtPath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, err := f.db.ExecContext(ctx, `UPDATE videos SET srt_path = ? WHERE id = ?`, nullableString(srtPath), id)
	return err
}

// ResetVideoForReindex rewinds a video to layer 0 for a forced full rebuild,
// clearing its checkpoint and cached hash (§4.6).
func (f *FolderDB) ResetVideoForReindex(ctx context.Context, tx *sql.Tx, videoID string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE videos SET index_status = 'pending', index_layer = 0, last_processed_clip = NULL,
		                   file_hash = NULL, index_error = NULL, stt_skipped_no_audio = 0
		WHERE id = ?
	`, videoID)
	return err
}

// DeleteAllClipsForVideo removes every clip belonging to a video, used ahead
// of a forced full reindex.
func (f *FolderDB) DeleteAllClipsForVideo(ctx context.Context, tx *sql.Tx, videoID string) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM clips WHERE video_id = ?`, videoID)
	return err
}

// MarkVideoFailed records a terminal failure with its error message (§7).
func (f *FolderDB) MarkVideoFailed(ctx context.Context, id string, cause error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, err := f.db.ExecContext(ctx, `UPDATE videos SET index_status = 'failed', index_error = ? WHERE id = ?`, cause.Error(), id)
	return err
}

// MarkVideoSTTSkipped records that Layer 2 (STT) found no audio stream and
// was intentionally skipped rather than failed (§4.6).
func (f *FolderDB) MarkVideoSTTSkipped(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, err := f.db.ExecContext(ctx, `UPDATE videos SET stt_skipped_no_audio = 1 WHERE id = ?`, id)
	return err
}

// MarkVideoOrphaned sets orphaned_at for a video whose source file
// disappeared (§4.6/C6); it is not deleted so a later hash match can restore
// it. The video's current index_status is preserved in status_before_orphan
// so RestoreOrphanedVideo can put it back (§4.4).
func (f *FolderDB) MarkVideoOrphaned(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, err := f.db.ExecContext(ctx, `
		UPDATE videos SET status_before_orphan = index_status, index_status = 'orphaned',
		                   orphaned_at = strftime('%s','now')
		WHERE id = ?
	`, id)
	return err
}

// RestoreOrphanedVideo clears orphaned_at and rewrites file_path/file_name
// after a hash-matched restore finds the file moved rather than deleted,
// returning the video to the status it held before orphaning (§4.4). A video
// orphaned before status_before_orphan existed falls back to 'pending'.
func (f *FolderDB) RestoreOrphanedVideo(ctx context.Context, id, newPath, newName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, err := f.db.ExecContext(ctx, `
		UPDATE videos SET orphaned_at = NULL, index_status = COALESCE(NULLIF(status_before_orphan, ''), 'pending'),
		                   status_before_orphan = NULL, file_path = ?, file_name = ?
		WHERE id = ?
	`, newPath, newName, id)
	return err
}

// ListOrphansExpiredBefore returns orphaned videos whose orphaned_at predates
// cutoff, candidates for the retention cleanup job (§4.6).
func (f *FolderDB) ListOrphansExpiredBefore(ctx context.Context, folderID string, cutoff time.Time) ([]*Video, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	rows, err := f.db.QueryContext(ctx, videoSelectColumns+`
		WHERE folder_id = ? AND orphaned_at IS NOT NULL AND orphaned_at < ?
	`, folderID, cutoff.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Video
	for rows.Next() {
		v, err := scanVideoRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// DeleteVideo removes a video and (via ON DELETE CASCADE) its clips.
func (f *FolderDB) DeleteVideo(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, err := f.db.ExecContext(ctx, `DELETE FROM videos WHERE id = ?`, id)
	return err
}

// RewriteVideoPaths updates file_path/srt_path for a rebase (C6), called
// within the caller's transaction.
func (f *FolderDB) RewriteVideoPaths(ctx context.Context, tx *sql.Tx, id, newFilePath, newSRTPath string) error {
	_, err := tx.ExecContext(ctx, `UPDATE videos SET file_path = ?, srt_path = ? WHERE id = ?`, newFilePath, nullableString(newSRTPath), id)
	return err
}

// --- Clips ---

// InsertClip inserts a Layer 1 (Scene) clip row with only the time range and
// thumbnail populated; later layers fill in descriptors via UpdateClip*.
func (f *FolderDB) InsertClip(ctx context.Context, tx *sql.Tx, videoID string, startSec, endSec float64, thumbnailPath string) (string, error) {
	id := uuid.NewString()
	_, err := tx.ExecContext(ctx, `
		INSERT INTO clips (id, video_id, start_sec, end_sec, thumbnail_path)
		VALUES (?, ?, ?, ?, ?)
	`, id, videoID, startSec, endSec, nullableString(thumbnailPath))
	return id, err
}

// UpdateClipSTT writes Layer 2 (STT) output: the transcript segment mapped
// onto this clip's time range.
func (f *FolderDB) UpdateClipSTT(ctx context.Context, tx *sql.Tx, clipID, transcript string) error {
	_, err := tx.ExecContext(ctx, `UPDATE clips SET transcript = ? WHERE id = ?`, nullableString(transcript), clipID)
	return err
}

// UpdateClipVision writes Layer 3 (Vision) descriptors and the normalized
// tag list that came with them.
func (f *FolderDB) UpdateClipVision(ctx context.Context, tx *sql.Tx, clipID string, scene, subjects, actions, objects, mood, shotType, lighting, colors, description string, tags []string) error {
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE clips SET scene = ?, subjects = ?, actions = ?, objects = ?, mood = ?,
		                  shot_type = ?, lighting = ?, colors = ?, description = ?, tags = ?
		WHERE id = ?
	`, nullableString(scene), nullableString(subjects), nullableString(actions), nullableString(objects),
		nullableString(mood), nullableString(shotType), nullableString(lighting), nullableString(colors),
		nullableString(description), string(tagsJSON), clipID)
	return err
}

// UpdateClipEmbedding writes Layer 4 (Embeddings) output: the little-endian
// float32 vector plus the model identifier that produced it (§4.6).
func (f *FolderDB) UpdateClipEmbedding(ctx context.Context, tx *sql.Tx, clipID string, embedding []float32, model string) error {
	blob, err := encodeEmbedding(embedding)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `UPDATE clips SET embedding = ?, embedding_model = ? WHERE id = ?`, blob, model, clipID)
	return err
}

// UpdateClipUserMetadata writes user-editable fields: tags, rating, color label.
func (f *FolderDB) UpdateClipUserMetadata(ctx context.Context, clipID string, userTags []string, rating mediatypes.Rating, colorLabel mediatypes.ColorLabel) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	tagsJSON, err := json.Marshal(userTags)
	if err != nil {
		return err
	}
	_, err = f.db.ExecContext(ctx, `
		UPDATE clips SET user_tags = ?, rating = ?, color_label = ? WHERE id = ?
	`, string(tagsJSON), int(rating), string(colorLabel), clipID)
	return err
}

// ListClipsForVideo returns every clip belonging to a video, ordered by
// start_sec, used by the indexer to resume from last_processed_clip.
func (f *FolderDB) ListClipsForVideo(ctx context.Context, videoID string) ([]*Clip, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	rows, err := f.db.QueryContext(ctx, clipSelectColumns+` WHERE video_id = ? ORDER BY start_sec ASC`, videoID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Clip
	for rows.Next() {
		c, err := scanClipRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ClipsSince mirrors VideosSince for the clips table, used by the sync
// engine's incremental replication of clips (§4.3).
func (f *FolderDB) ClipsSince(ctx context.Context, after int64, limit int) ([]*Clip, []int64, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	rows, err := f.db.QueryContext(ctx, `SELECT rowid, `+clipSelectColumnsInner+` FROM clips WHERE rowid > ? ORDER BY rowid ASC LIMIT ?`, after, limit)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var clips []*Clip
	var rowids []int64
	for rows.Next() {
		var rowid int64
		c, err := scanClipRowWithRowid(rows, &rowid)
		if err != nil {
			return nil, nil, err
		}
		clips = append(clips, c)
		rowids = append(rowids, rowid)
	}
	return clips, rowids, rows.Err()
}

const clipSelectColumnsInner = `
	id, video_id, start_sec, end_sec, COALESCE(thumbnail_path,''),
	COALESCE(scene,''), COALESCE(subjects,''), COALESCE(actions,''), COALESCE(objects,''),
	COALESCE(mood,''), COALESCE(shot_type,''), COALESCE(lighting,''), COALESCE(colors,''),
	COALESCE(description,''), COALESCE(transcript,''),
	tags, user_tags, rating, color_label, embedding, COALESCE(embedding_model,''), created_at
`

const clipSelectColumns = `SELECT ` + clipSelectColumnsInner + ` FROM clips`

func scanClipRow(row rowScanner) (*Clip, error) {
	return scanClipRowInner(row, nil)
}

func scanClipRowWithRowid(row rowScanner, rowid *int64) (*Clip, error) {
	return scanClipRowInner(row, rowid)
}

func scanClipRowInner(row rowScanner, rowid *int64) (*Clip, error) {
	var c Clip
	var tagsJSON, userTagsJSON string
	var embeddingBlob []byte
	var created int64
	var rating int

	dest := []interface{}{}
	if rowid != nil {
		dest = append(dest, rowid)
	}
	dest = append(dest,
		&c.ID, &c.VideoID, &c.StartSec, &c.EndSec, &c.ThumbnailPath,
		&c.Scene, &c.Subjects, &c.Actions, &c.Objects,
		&c.Mood, &c.ShotType, &c.Lighting, &c.Colors,
		&c.Description, &c.Transcript,
		&tagsJSON, &userTagsJSON, &rating, &c.ColorLabel, &embeddingBlob, &c.EmbeddingModel, &created,
	)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	if tagsJSON != "" {
		if err := json.Unmarshal([]byte(tagsJSON), &c.Tags); err != nil {
			return nil, fmt.Errorf("decode tags: %w", err)
		}
	}
	if userTagsJSON != "" {
		if err := json.Unmarshal([]byte(userTagsJSON), &c.UserTags); err != nil {
			return nil, fmt.Errorf("decode user_tags: %w", err)
		}
	}
	c.Rating = mediatypes.Rating(rating)
	c.CreatedAt = time.Unix(created, 0)
	if len(embeddingBlob) > 0 {
		emb, err := decodeEmbedding(embeddingBlob)
		if err != nil {
			return nil, err
		}
		c.Embedding = emb
	}
	return &c, nil
}

// RewriteClipThumbnailPath updates a clip's thumbnail path during a rebase (C6).
func (f *FolderDB) RewriteClipThumbnailPath(ctx context.Context, tx *sql.Tx, clipID, newPath string) error {
	_, err := tx.ExecContext(ctx, `UPDATE clips SET thumbnail_path = ? WHERE id = ?`, newPath, clipID)
	return err
}

// DeleteClipsFrom removes every clip at or after startSec for a video,
// used when re-running scene detection truncates a stale tail.
func (f *FolderDB) DeleteClipsFrom(ctx context.Context, tx *sql.Tx, videoID string, startSec float64) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM clips WHERE video_id = ? AND start_sec >= ?`, videoID, startSec)
	return err
}
