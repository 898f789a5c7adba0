package search

import (
	"context"
	"sort"
	"time"

	"findit/internal/logging"
	"findit/internal/metrics"
	"findit/internal/query"
	"findit/internal/storage"
)

var log = logging.For("search")

// Engine runs the three-way hybrid fusion search over one GlobalDB.
type Engine struct {
	db *storage.GlobalDB
}

// New builds a search Engine bound to a global DB.
func New(db *storage.GlobalDB) *Engine {
	return &Engine{db: db}
}

// Search runs the fusion algorithm (§4.8): collect three score channels,
// hydrate display metadata, normalize each channel independently, and
// blend by adaptive or explicit weights. An empty query with no vector
// input returns no results rather than erroring (§7's "empty query" kind).
func (e *Engine) Search(ctx context.Context, req Request) ([]Result, error) {
	modeLabel := modeLabelFor(req.Mode)
	start := time.Now()
	metrics.SearchQueriesTotal.WithLabelValues(modeLabel).Inc()
	defer func() {
		metrics.SearchQueryDuration.WithLabelValues(modeLabel).Observe(time.Since(start).Seconds())
	}()

	if req.Parsed.PositiveText == "" && len(req.ClipVecHits) == 0 && len(req.TextVecHits) == 0 {
		return nil, nil
	}

	clipScores := scoresFromHits(req.ClipVecHits)
	textScores := scoresFromHits(req.TextVecHits)
	ftsScores, err := e.ftsScores(ctx, req.Parsed.PositiveText, req.ExpandedFTS)
	if err != nil {
		return nil, err
	}

	keySet := make(map[string]struct{}, len(clipScores)+len(textScores)+len(ftsScores))
	for k := range clipScores {
		keySet[k] = struct{}{}
	}
	for k := range textScores {
		keySet[k] = struct{}{}
	}
	for k := range ftsScores {
		keySet[k] = struct{}{}
	}
	if len(keySet) == 0 {
		return nil, nil
	}

	hydrated, err := e.hydrate(ctx, keySet, req.Filter)
	if err != nil {
		return nil, err
	}

	nClip := normalize(clipScores, false)
	nText := normalize(textScores, false)
	nFTS := normalize(ftsScores, true)

	weights := selectWeights(req.Mode, len(clipScores) > 0, len(textScores) > 0,
		req.Parsed.HasQuotedPhrase, query.IsLong(req.Parsed.PositiveText))

	results := make([]Result, 0, len(keySet))
	for k := range keySet {
		clip, ok := hydrated[k]
		if !ok {
			continue // filtered out during hydration (folder_filter / path_prefix)
		}
		final := weights.Clip*nClip[k] + weights.FTS*nFTS[k] + weights.Text*nText[k]
		results = append(results, Result{Clip: clip, Final: final})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Final != results[j].Final {
			return results[i].Final > results[j].Final
		}
		return clipKey(results[i].Clip) < clipKey(results[j].Clip)
	})

	limit := req.Limit
	if limit <= 0 || limit > len(results) {
		limit = len(results)
	}
	results = results[:limit]

	metrics.SearchResultsReturned.Observe(float64(len(results)))
	log.Debug("search %q mode=%s returned %d of %d candidates", req.Parsed.RawQuery, modeLabel, len(results), len(keySet))
	return results, nil
}

// ImageSearch runs the fusion with an empty parsed query and weights
// (1, 0, 0), the image-as-query entry point (§4.8).
func (e *Engine) ImageSearch(ctx context.Context, clipVecHits []Hit, filter Filter, limit int) ([]Result, error) {
	return e.Search(ctx, Request{
		ClipVecHits: clipVecHits,
		Mode:        ModeImage,
		Filter:      filter,
		Limit:       limit,
	})
}

func modeLabelFor(m Mode) string {
	switch m {
	case ModeFTS:
		return "fts"
	case ModeVector:
		return "vector"
	case ModeImage:
		return "image"
	default:
		return "auto"
	}
}

func scoresFromHits(hits []Hit) map[string]float64 {
	if len(hits) == 0 {
		return nil
	}
	out := make(map[string]float64, len(hits))
	for _, h := range hits {
		out[h.ClipID] = h.Similarity
	}
	return out
}

// ftsScores runs the primary FTS query and, if an expanded/translated
// variant is supplied, a second pass whose hits are recorded at 0.8x
// weight when the clip wasn't already present from the primary pass
// (§4.8 step 1).
func (e *Engine) ftsScores(ctx context.Context, matchQuery, expanded string) (map[string]float64, error) {
	out := make(map[string]float64)
	if matchQuery == "" && expanded == "" {
		return out, nil
	}

	const ftsLimit = 500
	if matchQuery != "" {
		hits, err := e.db.SearchFTS(ctx, matchQuery, ftsLimit)
		if err != nil {
			return nil, err
		}
		for _, h := range hits {
			out[h.SourceFolder+"\x00"+h.SourceClipID] = h.Score
		}
	}
	if expanded != "" && expanded != matchQuery {
		hits, err := e.db.SearchFTS(ctx, expanded, ftsLimit)
		if err != nil {
			return nil, err
		}
		for _, h := range hits {
			key := h.SourceFolder + "\x00" + h.SourceClipID
			if _, already := out[key]; already {
				continue
			}
			out[key] = h.Score * 0.8
		}
	}
	return out, nil
}

func (e *Engine) hydrate(ctx context.Context, keySet map[string]struct{}, filter Filter) (map[string]*storage.GlobalClip, error) {
	keys := make([][2]string, 0, len(keySet))
	for k := range keySet {
		folder, clipID := splitKey(k)
		keys = append(keys, [2]string{folder, clipID})
	}
	return e.db.HydrateClips(ctx, keys, storage.HydrateFilter{
		FolderPaths: filter.FolderPaths,
		PathPrefix:  filter.PathPrefix,
	})
}

func splitKey(k string) (folder, clipID string) {
	for i := 0; i < len(k); i++ {
		if k[i] == 0 {
			return k[:i], k[i+1:]
		}
	}
	return k, ""
}

func clipKey(c *storage.GlobalClip) string {
	if c == nil {
		return ""
	}
	return c.SourceFolder + "\x00" + c.SourceClipID
}

// normalize min-max scales scores to [0, 1]. When negate is true (the FTS
// channel, whose raw scores are smaller-is-better), scores are negated
// before normalizing. A zero-range channel (including a single-result
// channel) maps every present key to 1.0 rather than zeroing it out
// (§4.8 step 3).
func normalize(scores map[string]float64, negate bool) map[string]float64 {
	out := make(map[string]float64, len(scores))
	if len(scores) == 0 {
		return out
	}

	vals := make(map[string]float64, len(scores))
	min, max := 0.0, 0.0
	first := true
	for k, v := range scores {
		if negate {
			v = -v
		}
		vals[k] = v
		if first {
			min, max = v, v
			first = false
			continue
		}
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}

	rangeVal := max - min
	for k, v := range vals {
		if rangeVal == 0 {
			out[k] = 1.0
			continue
		}
		out[k] = (v - min) / rangeVal
	}
	return out
}
