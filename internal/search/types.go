// Package search implements the hybrid three-way fusion search engine
// (C11): clip-image vector hits, text-embedding vector hits, and a
// full-text BM25 channel over the global DB, fused by adaptive weights
// keyed on query shape (§4.8). The engine does no neural work itself;
// callers supply the vector-hit lists from an external vector index.
package search

import (
	"findit/internal/query"
	"findit/internal/storage"
)

// Hit is one caller-supplied vector similarity for a clip, in [0, 1].
type Hit struct {
	ClipID     string // "source_folder\x00source_clip_id"
	Similarity float64
}

// Weights are the fusion coefficients applied to the three normalized
// channels: clip-image vector, full-text, text-embedding vector.
type Weights struct {
	Clip float64
	FTS  float64
	Text float64
}

// Mode pins an explicit search mode that overrides adaptive weight
// selection (§4.8); ModeAuto lets the engine choose from query shape.
type Mode int

const (
	ModeAuto Mode = iota
	ModeFTS
	ModeVector
	ModeImage
)

// Filter narrows which clips are eligible for hydration: FolderPaths
// restricts to a set of watched-folder paths (nil means unrestricted, a
// non-nil empty slice means "match nothing"); PathPrefix restricts to
// videos whose file path starts with "prefix/".
type Filter struct {
	FolderPaths []string
	PathPrefix  string
}

// Result is one fused, hydrated search hit, ready for display.
type Result struct {
	Clip  *storage.GlobalClip
	Final float64
}

// Request bundles the inputs to Search (§4.8's search() signature).
type Request struct {
	Parsed      query.ParsedQuery
	ClipVecHits []Hit  // from an external CLIP-image vector index; nil if unavailable
	TextVecHits []Hit  // from an external text-embedding vector index; nil if unavailable
	ExpandedFTS string // optional expanded/translated FTS variant, recorded at 0.8x weight
	Mode        Mode
	Filter      Filter
	Limit       int
}
