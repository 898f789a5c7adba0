package storage

import (
	"time"

	"findit/internal/mediatypes"
)

// WatchedFolder identifies a root directory the user registered (§3).
type WatchedFolder struct {
	ID           string
	FolderPath   string
	VolumeName   string
	VolumeUUID   string
	Available    bool
	TotalFiles   int
	IndexedFiles int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Video is one record per source file within a folder (§3).
type Video struct {
	ID                string
	FolderID          string
	FilePath          string
	FileName          string
	DurationSeconds   float64
	FileSizeBytes     int64
	FileHash          string // empty means unknown/null
	ModTime           time.Time
	CreatedAt         time.Time
	IndexedAt         time.Time
	IndexStatus       mediatypes.IndexStatus
	IndexLayer        mediatypes.Layer
	LastProcessedClip string // clip id, empty means none
	IndexError        string
	SRTPath           string
	STTSkippedNoAudio bool
	OrphanedAt        time.Time // zero value means not orphaned

	// StatusBeforeOrphan holds the index_status a video carried the moment
	// it was orphaned, restored verbatim by RestoreOrphanedVideo (§4.4).
	// Empty when the video has never been orphaned.
	StatusBeforeOrphan mediatypes.IndexStatus
}

// Clip is the core search unit: a time range within a Video plus descriptors (§3).
type Clip struct {
	ID          string
	VideoID     string
	StartSec    float64
	EndSec      float64
	ThumbnailPath string

	Scene       string
	Subjects    string
	Actions     string
	Objects     string
	Mood        string
	ShotType    string
	Lighting    string
	Colors      string
	Description string
	Transcript  string

	Tags     []string
	UserTags []string

	Rating     mediatypes.Rating
	ColorLabel mediatypes.ColorLabel

	Embedding      []float32
	EmbeddingModel string

	CreatedAt time.Time
}

// HasEmbedding reports the invariant: embedding present iff embedding_model present.
func (c *Clip) HasEmbedding() bool { return c.EmbeddingModel != "" && len(c.Embedding) > 0 }

// SyncMeta is the per-folder replication cursor held by the global DB (§3).
type SyncMeta struct {
	FolderPath          string
	LastVideoRowID      int64
	LastClipRowID       int64
	LastSyncedAt        time.Time
	VolumeIdentity      string
}

// SearchHistory is an append-only log entry in the global DB (§3).
type SearchHistory struct {
	ID          int64
	QueryText   string
	Timestamp   time.Time
	ResultCount int
}

// GlobalVideo is a lossy mirror of a folder-DB Video row, keyed by
// (source_folder, source_video_id).
type GlobalVideo struct {
	SourceFolder  string
	SourceVideoID string
	FilePath      string
	FileName      string
	DurationSec   float64
	IndexStatus   mediatypes.IndexStatus
}

// GlobalClip is a lossy mirror of a folder-DB Clip row, keyed by
// (source_folder, source_clip_id). Tags/UserTags are stored as
// whitespace-joined tokens to feed FTS (§3).
type GlobalClip struct {
	SourceFolder  string
	SourceClipID  string
	SourceVideoID string

	StartSec, EndSec float64
	ThumbnailPath    string
	FilePath         string

	Scene, Subjects, Actions, Objects, Mood, ShotType, Lighting, Colors string
	Description, Transcript                                            string
	TagsText, UserTagsText                                             string

	Rating     mediatypes.Rating
	ColorLabel mediatypes.ColorLabel

	Embedding      []float32
	EmbeddingModel string

	CreatedAt time.Time
}

// FTSColumnWeights are the column-weighted BM25 weights in the order the ten
// clips_fts columns are declared (§4.2): tags, description, transcript,
// user_tags, scene, subjects, actions, objects, mood, shot_type.
var FTSColumnWeights = []float64{10, 5, 3, 8, 4, 3, 3, 2, 2, 1}

// FTSColumns names the ten columns in the same fixed order as FTSColumnWeights.
var FTSColumns = []string{
	"tags", "description", "transcript", "user_tags",
	"scene", "subjects", "actions", "objects", "mood", "shot_type",
}
