package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"findit/internal/mediatypes"
	"findit/internal/metrics"
)

// GlobalDB is the single aggregated, lossy search index shared across all
// watched folders, rooted at the app support directory (§3, §6).
type GlobalDB struct {
	db *sql.DB
	mu sync.RWMutex
}

// OpenGlobalDB opens (creating if needed) the global DB at path, enabling
// WAL mode, and runs its migration ladder including the clips_fts virtual
// table and its sync triggers.
func OpenGlobalDB(ctx context.Context, path string) (*GlobalDB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("cannot create index directory: %w", err)
	}
	db, err := openWAL(path)
	if err != nil {
		return nil, fmt.Errorf("database open failed: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("database open failed: %w", err)
	}
	g := &GlobalDB{db: db}
	if err := applyMigrations(ctx, db, "global", globalMigrations); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}
	return g, nil
}

// OpenGlobalDBInMemory opens an in-memory global DB for tests.
func OpenGlobalDBInMemory(ctx context.Context) (*GlobalDB, error) {
	db, err := sql.Open("sqlite3", "file::memory:?_foreign_keys=ON")
	if err != nil {
		return nil, fmt.Errorf("database open failed: %w", err)
	}
	db.SetMaxOpenConns(1)
	g := &GlobalDB{db: db}
	if err := applyMigrations(ctx, db, "global", globalMigrations); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}
	return g, nil
}

func (g *GlobalDB) Close() error { return g.db.Close() }

var globalMigrations = []migrationStep{
	{
		name: "0001_initial_schema",
		run: func(ctx context.Context, db *sql.DB) error {
			_, err := db.ExecContext(ctx, `
			CREATE TABLE IF NOT EXISTS videos (
				source_folder TEXT NOT NULL,
				source_video_id TEXT NOT NULL,
				file_path TEXT NOT NULL,
				file_name TEXT NOT NULL,
				duration_seconds REAL NOT NULL DEFAULT 0,
				index_status TEXT NOT NULL DEFAULT 'pending',
				PRIMARY KEY (source_folder, source_video_id)
			);

			CREATE TABLE IF NOT EXISTS clips (
				source_folder TEXT NOT NULL,
				source_clip_id TEXT NOT NULL,
				source_video_id TEXT NOT NULL,
				start_sec REAL NOT NULL,
				end_sec REAL NOT NULL,
				thumbnail_path TEXT,
				scene TEXT, subjects TEXT, actions TEXT, objects TEXT,
				mood TEXT, shot_type TEXT, lighting TEXT, colors TEXT,
				description TEXT, transcript TEXT,
				tags_text TEXT NOT NULL DEFAULT '',
				user_tags_text TEXT NOT NULL DEFAULT '',
				rating INTEGER NOT NULL DEFAULT 0,
				color_label TEXT NOT NULL DEFAULT '',
				embedding BLOB,
				embedding_model TEXT,
				created_at INTEGER NOT NULL DEFAULT (strftime('%s','now')),
				PRIMARY KEY (source_folder, source_clip_id),
				FOREIGN KEY (source_folder, source_video_id) REFERENCES videos(source_folder, source_video_id) ON DELETE CASCADE
			);

			CREATE INDEX IF NOT EXISTS idx_global_clips_video ON clips(source_folder, source_video_id);
			CREATE INDEX IF NOT EXISTS idx_global_clips_rating ON clips(rating);
			CREATE INDEX IF NOT EXISTS idx_global_clips_color_label ON clips(color_label);
			CREATE INDEX IF NOT EXISTS idx_global_clips_embedding_model ON clips(embedding_model);

			CREATE TABLE IF NOT EXISTS sync_meta (
				folder_path TEXT PRIMARY KEY,
				last_video_rowid INTEGER NOT NULL DEFAULT 0,
				last_clip_rowid INTEGER NOT NULL DEFAULT 0,
				last_synced_at INTEGER,
				volume_identity TEXT
			);

			CREATE TABLE IF NOT EXISTS search_history (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				query_text TEXT NOT NULL,
				timestamp INTEGER NOT NULL DEFAULT (strftime('%s','now')),
				result_count INTEGER NOT NULL DEFAULT 0
			);
			`)
			return err
		},
	},
	{
		// trigram tokenizer chosen per the resolved Open Question (see
		// SPEC_FULL.md): matches the teacher's own files_fts table and
		// tolerates partial-word and CJK matches without a stemmer.
		name: "0002_clips_fts",
		run: func(ctx context.Context, db *sql.DB) error {
			_, err := db.ExecContext(ctx, `
			CREATE VIRTUAL TABLE IF NOT EXISTS clips_fts USING fts5(
				tags, description, transcript, user_tags,
				scene, subjects, actions, objects, mood, shot_type,
				source_folder UNINDEXED,
				source_clip_id UNINDEXED,
				tokenize='trigram'
			);

			CREATE TRIGGER IF NOT EXISTS clips_fts_ai AFTER INSERT ON clips BEGIN
				INSERT INTO clips_fts(rowid, tags, description, transcript, user_tags,
				                      scene, subjects, actions, objects, mood, shot_type,
				                      source_folder, source_clip_id)
				VALUES (new.rowid, new.tags_text, new.description, new.transcript, new.user_tags_text,
				        new.scene, new.subjects, new.actions, new.objects, new.mood, new.shot_type,
				        new.source_folder, new.source_clip_id);
			END;

			CREATE TRIGGER IF NOT EXISTS clips_fts_ad AFTER DELETE ON clips BEGIN
				DELETE FROM clips_fts WHERE rowid = old.rowid;
			END;

			CREATE TRIGGER IF NOT EXISTS clips_fts_au AFTER UPDATE ON clips BEGIN
				DELETE FROM clips_fts WHERE rowid = old.rowid;
				INSERT INTO clips_fts(rowid, tags, description, transcript, user_tags,
				                      scene, subjects, actions, objects, mood, shot_type,
				                      source_folder, source_clip_id)
				VALUES (new.rowid, new.tags_text, new.description, new.transcript, new.user_tags_text,
				        new.scene, new.subjects, new.actions, new.objects, new.mood, new.shot_type,
				        new.source_folder, new.source_clip_id);
			END;
			`)
			return err
		},
	},
}

func observeGlobalQuery(op string) func(error) {
	start := time.Now()
	return func(err error) {
		status := "success"
		if err != nil {
			status = "error"
		}
		metrics.DBQueryTotal.WithLabelValues("global", op, status).Inc()
		metrics.DBQueryDuration.WithLabelValues("global", op).Observe(time.Since(start).Seconds())
	}
}

func (g *GlobalDB) BeginTx(ctx context.Context) (*sql.Tx, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.db.BeginTx(ctx, nil)
}

func (g *GlobalDB) EndTx(tx *sql.Tx, err error) error {
	start := time.Now()
	if err != nil {
		rbErr := tx.Rollback()
		metrics.DBTransactionDuration.WithLabelValues("global", "rollback").Observe(time.Since(start).Seconds())
		if rbErr != nil {
			return fmt.Errorf("%w (rollback also failed: %v)", err, rbErr)
		}
		return err
	}
	commitErr := tx.Commit()
	metrics.DBTransactionDuration.WithLabelValues("global", "commit").Observe(time.Since(start).Seconds())
	return commitErr
}

// --- sync_meta ---

// GetSyncMeta returns the replication cursor for a folder, or a zero-valued
// cursor if the folder has never synced.
func (g *GlobalDB) GetSyncMeta(ctx context.Context, folderPath string) (*SyncMeta, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var m SyncMeta
	var lastSynced sql.NullInt64
	var volumeIdentity sql.NullString
	err := g.db.QueryRowContext(ctx, `
		SELECT folder_path, last_video_rowid, last_clip_rowid, last_synced_at, volume_identity
		FROM sync_meta WHERE folder_path = ?
	`, folderPath).Scan(&m.FolderPath, &m.LastVideoRowID, &m.LastClipRowID, &lastSynced, &volumeIdentity)
	if err == sql.ErrNoRows {
		return &SyncMeta{FolderPath: folderPath}, nil
	}
	if err != nil {
		return nil, err
	}
	if lastSynced.Valid {
		m.LastSyncedAt = time.Unix(lastSynced.Int64, 0)
	}
	m.VolumeIdentity = volumeIdentity.String
	return &m, nil
}

// AdvanceSyncMeta upserts the replication cursor within the caller's
// transaction, advancing it monotonically (watermarks never move backward).
func (g *GlobalDB) AdvanceSyncMeta(ctx context.Context, tx *sql.Tx, folderPath string, lastVideoRowID, lastClipRowID int64, volumeIdentity string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO sync_meta (folder_path, last_video_rowid, last_clip_rowid, last_synced_at, volume_identity)
		VALUES (?, ?, ?, strftime('%s','now'), ?)
		ON CONFLICT(folder_path) DO UPDATE SET
			last_video_rowid = MAX(last_video_rowid, excluded.last_video_rowid),
			last_clip_rowid = MAX(last_clip_rowid, excluded.last_clip_rowid),
			last_synced_at = excluded.last_synced_at,
			volume_identity = excluded.volume_identity
	`, folderPath, lastVideoRowID, lastClipRowID, volumeIdentity)
	return err
}

// ResetSyncMeta zeroes a folder's cursor, forcing the next sync to replay
// from the beginning (used by force_sync and the reset commands, C6).
func (g *GlobalDB) ResetSyncMeta(ctx context.Context, folderPath string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, err := g.db.ExecContext(ctx, `
		INSERT INTO sync_meta (folder_path, last_video_rowid, last_clip_rowid)
		VALUES (?, 0, 0)
		ON CONFLICT(folder_path) DO UPDATE SET last_video_rowid = 0, last_clip_rowid = 0
	`, folderPath)
	return err
}

// --- videos/clips mirror ---

// UpsertGlobalVideo mirrors a folder-DB video row within tx, keyed by
// (source_folder, source_video_id) (§4.3).
func (g *GlobalDB) UpsertGlobalVideo(ctx context.Context, tx *sql.Tx, folderPath string, v *Video) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO videos (source_folder, source_video_id, file_path, file_name, duration_seconds, index_status)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_folder, source_video_id) DO UPDATE SET
			file_path = excluded.file_path, file_name = excluded.file_name,
			duration_seconds = excluded.duration_seconds, index_status = excluded.index_status
	`, folderPath, v.ID, v.FilePath, v.FileName, v.DurationSeconds, string(v.IndexStatus))
	return err
}

// DeleteGlobalVideo removes a mirrored video and (via cascade) its clips,
// used when a folder-DB video is permanently removed.
func (g *GlobalDB) DeleteGlobalVideo(ctx context.Context, tx *sql.Tx, folderPath, sourceVideoID string) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM videos WHERE source_folder = ? AND source_video_id = ?`, folderPath, sourceVideoID)
	return err
}

// UpsertGlobalClip mirrors a folder-DB clip row within tx, keyed by
// (source_folder, source_clip_id). Tags/user_tags are flattened to
// whitespace-joined text so FTS can index them (§3).
func (g *GlobalDB) UpsertGlobalClip(ctx context.Context, tx *sql.Tx, folderPath string, c *Clip) error {
	blob, err := encodeEmbedding(c.Embedding)
	if err != nil {
		return err
	}
	tagsText := strings.Join(c.Tags, " ")
	userTagsText := strings.Join(c.UserTags, " ")

	_, err = tx.ExecContext(ctx, `
		INSERT INTO clips (
			source_folder, source_clip_id, source_video_id, start_sec, end_sec, thumbnail_path,
			scene, subjects, actions, objects, mood, shot_type, lighting, colors,
			description, transcript, tags_text, user_tags_text, rating, color_label,
			embedding, embedding_model
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_folder, source_clip_id) DO UPDATE SET
			start_sec = excluded.start_sec, end_sec = excluded.end_sec, thumbnail_path = excluded.thumbnail_path,
			scene = excluded.scene, subjects = excluded.subjects, actions = excluded.actions, objects = excluded.objects,
			mood = excluded.mood, shot_type = excluded.shot_type, lighting = excluded.lighting, colors = excluded.colors,
			description = excluded.description, transcript = excluded.transcript,
			tags_text = excluded.tags_text, user_tags_text = excluded.user_tags_text,
			rating = excluded.rating, color_label = excluded.color_label,
			embedding = excluded.embedding, embedding_model = excluded.embedding_model
	`, folderPath, c.ID, c.VideoID, c.StartSec, c.EndSec, nullableString(c.ThumbnailPath),
		nullableString(c.Scene), nullableString(c.Subjects), nullableString(c.Actions), nullableString(c.Objects),
		nullableString(c.Mood), nullableString(c.ShotType), nullableString(c.Lighting), nullableString(c.Colors),
		nullableString(c.Description), nullableString(c.Transcript), tagsText, userTagsText,
		int(c.Rating), string(c.ColorLabel), blob, nullableString(c.EmbeddingModel))
	return err
}

// DeleteFolderData removes every video/clip mirrored from folderPath and
// resets its sync cursor, all within a single transaction (C6 remove_folder_data).
func (g *GlobalDB) DeleteFolderData(ctx context.Context, folderPath string) error {
	done := observeGlobalQuery("delete_folder_data")
	tx, err := g.BeginTx(ctx)
	if err != nil {
		done(err)
		return err
	}
	_, err = tx.ExecContext(ctx, `DELETE FROM videos WHERE source_folder = ?`, folderPath)
	if err == nil {
		_, err = tx.ExecContext(ctx, `DELETE FROM sync_meta WHERE folder_path = ?`, folderPath)
	}
	commitErr := g.EndTx(tx, err)
	done(commitErr)
	return commitErr
}

// --- FTS + vector search support ---

// BM25Hit is one ranked result from a full-text query over clips_fts.
type BM25Hit struct {
	SourceFolder string
	SourceClipID string
	Score        float64 // BM25 raw score; lower is more relevant (sqlite convention)
}

// SearchFTS runs a MATCH query against clips_fts using the fixed
// column-weighted bm25() ranking from §4.2, returning up to limit hits
// ordered by ascending (best-first) score.
func (g *GlobalDB) SearchFTS(ctx context.Context, matchQuery string, limit int) ([]BM25Hit, error) {
	done := observeGlobalQuery("search_fts")
	g.mu.RLock()
	defer g.mu.RUnlock()

	weightArgs := make([]interface{}, len(FTSColumnWeights))
	placeholders := make([]string, len(FTSColumnWeights))
	for i, w := range FTSColumnWeights {
		weightArgs[i] = w
		placeholders[i] = "?"
	}
	query := fmt.Sprintf(`
		SELECT source_folder, source_clip_id, bm25(clips_fts, %s) AS score
		FROM clips_fts WHERE clips_fts MATCH ?
		ORDER BY score ASC LIMIT ?
	`, strings.Join(placeholders, ", "))

	args := append([]interface{}{}, weightArgs...)
	args = append(args, matchQuery, limit)

	rows, err := g.db.QueryContext(ctx, query, args...)
	if err != nil {
		done(err)
		return nil, err
	}
	defer rows.Close()

	var out []BM25Hit
	for rows.Next() {
		var h BM25Hit
		if err := rows.Scan(&h.SourceFolder, &h.SourceClipID, &h.Score); err != nil {
			done(err)
			return nil, err
		}
		out = append(out, h)
	}
	err = rows.Err()
	done(err)
	return out, err
}

// VectorHit is one clip with its stored embedding, read from the global
// DB's embedding/embedding_model columns by ListClipsWithEmbeddingModel.
// The search engine does not read it; it takes vector-channel hits from the
// caller (§4.8).
type VectorHit struct {
	SourceFolder   string
	SourceClipID   string
	Embedding      []float32
	EmbeddingModel string
}

// ListClipsWithEmbeddingModel returns every clip whose embedding_model
// matches model, the candidate set for a vector-channel search pass.
func (g *GlobalDB) ListClipsWithEmbeddingModel(ctx context.Context, model string) ([]VectorHit, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	rows, err := g.db.QueryContext(ctx, `
		SELECT source_folder, source_clip_id, embedding FROM clips WHERE embedding_model = ?
	`, model)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []VectorHit
	for rows.Next() {
		var h VectorHit
		var blob []byte
		if err := rows.Scan(&h.SourceFolder, &h.SourceClipID, &blob); err != nil {
			return nil, err
		}
		h.EmbeddingModel = model
		emb, err := decodeEmbedding(blob)
		if err != nil {
			return nil, err
		}
		h.Embedding = emb
		out = append(out, h)
	}
	return out, rows.Err()
}

// HydrateFilter narrows a hydration pass to clips belonging to one of
// FolderPaths (nil means "no folder restriction"; a non-nil empty slice
// means "restrict to nothing") and whose video path has
// PathPrefix as a `prefix/%` match (empty string means "no restriction").
type HydrateFilter struct {
	FolderPaths []string
	PathPrefix  string
}

// HydrateClips batches ids into chunks of at most 900 (sqlite's variable
// limit headroom, §4.8) and returns the matching GlobalClip rows keyed by
// "source_folder\x00source_clip_id", joined against videos for display
// metadata (§4.8's `clips ⋈ videos`) and narrowed by filter.
func (g *GlobalDB) HydrateClips(ctx context.Context, keys [][2]string, filter HydrateFilter) (map[string]*GlobalClip, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if filter.FolderPaths != nil && len(filter.FolderPaths) == 0 {
		return map[string]*GlobalClip{}, nil
	}

	const batchSize = 900
	out := make(map[string]*GlobalClip, len(keys))
	for start := 0; start < len(keys); start += batchSize {
		end := start + batchSize
		if end > len(keys) {
			end = len(keys)
		}
		batch := keys[start:end]

		var sb strings.Builder
		sb.WriteString(`SELECT c.source_folder, c.source_clip_id, c.source_video_id, c.start_sec, c.end_sec, COALESCE(c.thumbnail_path,''),
			COALESCE(c.scene,''), COALESCE(c.subjects,''), COALESCE(c.actions,''), COALESCE(c.objects,''),
			COALESCE(c.mood,''), COALESCE(c.shot_type,''), COALESCE(c.lighting,''), COALESCE(c.colors,''),
			COALESCE(c.description,''), COALESCE(c.transcript,''), c.tags_text, c.user_tags_text,
			c.rating, c.color_label, c.embedding, COALESCE(c.embedding_model,''), c.created_at, v.file_path
			FROM clips c JOIN videos v ON v.source_folder = c.source_folder AND v.source_video_id = c.source_video_id
			WHERE (c.source_folder, c.source_clip_id) IN (`)
		args := make([]interface{}, 0, len(batch)*2+len(filter.FolderPaths)+1)
		for i, k := range batch {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString("(?, ?)")
			args = append(args, k[0], k[1])
		}
		sb.WriteString(")")

		if len(filter.FolderPaths) > 0 {
			placeholders := make([]string, len(filter.FolderPaths))
			for i, f := range filter.FolderPaths {
				placeholders[i] = "?"
				args = append(args, f)
			}
			sb.WriteString(" AND c.source_folder IN (" + strings.Join(placeholders, ", ") + ")")
		}
		if filter.PathPrefix != "" {
			sb.WriteString(" AND v.file_path LIKE ? ESCAPE '\\'")
			args = append(args, escapeLike(filter.PathPrefix)+"/%")
		}

		rows, err := g.db.QueryContext(ctx, sb.String(), args...)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			var c GlobalClip
			var created int64
			var rating int
			var blob []byte
			if err := rows.Scan(&c.SourceFolder, &c.SourceClipID, &c.SourceVideoID, &c.StartSec, &c.EndSec, &c.ThumbnailPath,
				&c.Scene, &c.Subjects, &c.Actions, &c.Objects, &c.Mood, &c.ShotType, &c.Lighting, &c.Colors,
				&c.Description, &c.Transcript, &c.TagsText, &c.UserTagsText,
				&rating, &c.ColorLabel, &blob, &c.EmbeddingModel, &created, &c.FilePath); err != nil {
				rows.Close()
				return nil, err
			}
			c.Rating = mediatypes.Rating(rating)
			c.CreatedAt = time.Unix(created, 0)
			if len(blob) > 0 {
				emb, err := decodeEmbedding(blob)
				if err != nil {
					rows.Close()
					return nil, err
				}
				c.Embedding = emb
			}
			out[c.SourceFolder+"\x00"+c.SourceClipID] = &c
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}
	return out, nil
}

// escapeLike escapes LIKE metacharacters in a user-supplied path prefix.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "%", "\\%")
	s = strings.ReplaceAll(s, "_", "\\_")
	return s
}

// RebuildFTS runs FTS5's 'rebuild' command, which discards the clips_fts
// index and rebuilds it from the text stored in clips_fts itself, used
// after a bulk restore or a tokenizer-affecting schema change, mirroring
// the teacher's RebuildFTS.
func (g *GlobalDB) RebuildFTS(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, err := g.db.ExecContext(ctx, `INSERT INTO clips_fts(clips_fts) VALUES ('rebuild')`)
	return err
}

// --- search history ---

// RecordSearch appends a search history entry (§3).
func (g *GlobalDB) RecordSearch(ctx context.Context, queryText string, resultCount int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, err := g.db.ExecContext(ctx, `INSERT INTO search_history (query_text, result_count) VALUES (?, ?)`, queryText, resultCount)
	return err
}

// RecentSearches returns the most recent n search history entries, newest first.
func (g *GlobalDB) RecentSearches(ctx context.Context, n int) ([]SearchHistory, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	rows, err := g.db.QueryContext(ctx, `SELECT id, query_text, timestamp, result_count FROM search_history ORDER BY timestamp DESC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SearchHistory
	for rows.Next() {
		var h SearchHistory
		var ts int64
		if err := rows.Scan(&h.ID, &h.QueryText, &ts, &h.ResultCount); err != nil {
			return nil, err
		}
		h.Timestamp = time.Unix(ts, 0)
		out = append(out, h)
	}
	return out, rows.Err()
}

// --- reset support (C6) ---

// ResetAll drops every row from the global DB's mirror/search-history tables
// (clips_fts is emptied through its delete trigger), used by the reset
// command's global-only scope.
func (g *GlobalDB) ResetAll(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, err := g.db.ExecContext(ctx, `DELETE FROM clips`); err != nil {
		return err
	}
	if _, err := g.db.ExecContext(ctx, `DELETE FROM videos`); err != nil {
		return err
	}
	if _, err := g.db.ExecContext(ctx, `DELETE FROM sync_meta`); err != nil {
		return err
	}
	if _, err := g.db.ExecContext(ctx, `DELETE FROM search_history`); err != nil {
		return err
	}
	return nil
}

// ListSyncMeta returns every folder's sync cursor, used by the reset
// command's dry-run report (rendered as YAML by the repair package).
func (g *GlobalDB) ListSyncMeta(ctx context.Context) ([]SyncMeta, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	rows, err := g.db.QueryContext(ctx, `SELECT folder_path, last_video_rowid, last_clip_rowid, volume_identity FROM sync_meta ORDER BY folder_path`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SyncMeta
	for rows.Next() {
		var m SyncMeta
		var volumeIdentity sql.NullString
		if err := rows.Scan(&m.FolderPath, &m.LastVideoRowID, &m.LastClipRowID, &volumeIdentity); err != nil {
			return nil, err
		}
		m.VolumeIdentity = volumeIdentity.String
		out = append(out, m)
	}
	return out, rows.Err()
}
