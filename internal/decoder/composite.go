package decoder

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"findit/internal/apperrors"
	"findit/internal/logging"
	"findit/internal/metrics"
)

var log = logging.For("decoder")

// CompositeMediaService holds a priority-sorted registry of decoders and
// picks one per file by probe score, caching the decision by extension
// (§4.1).
type CompositeMediaService struct {
	decoders []MediaDecoder // sorted by priority desc, then registration order

	mu           sync.Mutex
	byExtension  map[string]MediaDecoder // selection cache
	audioRefusers map[string]bool        // decoder names statically known to refuse audio extraction
}

// NewCompositeMediaService builds a registry from decoders, sorting by
// descending priority (ties keep registration order, which sort.SliceStable
// preserves).
func NewCompositeMediaService(decoders ...MediaDecoder) *CompositeMediaService {
	sorted := make([]MediaDecoder, len(decoders))
	copy(sorted, decoders)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Capability().Priority > sorted[j].Capability().Priority
	})
	return &CompositeMediaService{
		decoders:      sorted,
		byExtension:   make(map[string]MediaDecoder),
		audioRefusers: make(map[string]bool),
	}
}

// MarkAudioRefuser records that a decoder (by capability name) is statically
// known never to produce audio, so ExtractAudio skips it.
func (c *CompositeMediaService) MarkAudioRefuser(decoderName string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.audioRefusers[decoderName] = true
}

// candidates returns decoders whose extensions include ext, or the full
// registry if none match (§4.1's fallback rule).
func (c *CompositeMediaService) candidates(ext string) []MediaDecoder {
	var matched []MediaDecoder
	for _, d := range c.decoders {
		for _, e := range d.Capability().FileExtensions {
			if strings.EqualFold(e, ext) {
				matched = append(matched, d)
				break
			}
		}
	}
	if len(matched) == 0 {
		return c.decoders
	}
	return matched
}

// Select probes every candidate decoder for path and returns the
// highest-scoring one, caching the decision per extension. Ties are broken
// by priority (candidates arrive priority-sorted) then registration order
// (stable within equal priority).
func (c *CompositeMediaService) Select(ctx context.Context, path string) (MediaDecoder, ProbeResult, error) {
	ext := strings.ToLower(filepath.Ext(path))

	c.mu.Lock()
	if cached, ok := c.byExtension[ext]; ok {
		c.mu.Unlock()
		result, err := cached.Probe(ctx, path)
		return cached, result, err
	}
	c.mu.Unlock()

	var best MediaDecoder
	var bestResult ProbeResult
	for _, d := range c.candidates(ext) {
		result, err := d.Probe(ctx, path)
		name := d.Capability().Name
		if err != nil || result.Score <= 0 {
			metrics.DecoderProbeTotal.WithLabelValues(name, "no_support").Inc()
			continue
		}
		metrics.DecoderProbeTotal.WithLabelValues(name, "supported").Inc()
		if best == nil || result.Score > bestResult.Score {
			best = d
			bestResult = result
		}
	}
	if best == nil {
		return nil, ProbeResult{}, fmt.Errorf("%w: no decoder could handle %s", apperrors.ErrNoDecoderAvailable, path)
	}

	c.mu.Lock()
	c.byExtension[ext] = best
	c.mu.Unlock()

	metrics.DecoderSelected.WithLabelValues(best.Capability().Name).Inc()
	return best, bestResult, nil
}

// Probe selects and probes in one step.
func (c *CompositeMediaService) Probe(ctx context.Context, path string) (ProbeResult, error) {
	_, result, err := c.Select(ctx, path)
	return result, err
}

// ExtractKeyframes delegates to the selected decoder.
func (c *CompositeMediaService) ExtractKeyframes(ctx context.Context, path string, times []float64, outDir string, maxDim int) ([]Keyframe, error) {
	d, _, err := c.Select(ctx, path)
	if err != nil {
		return nil, err
	}
	return d.ExtractKeyframes(ctx, path, times, outDir, maxDim)
}

// ExtractAudio delegates to the selected decoder, skipping any candidate
// statically known to refuse audio and retrying with the next best (§4.1).
func (c *CompositeMediaService) ExtractAudio(ctx context.Context, path, outPath string, sampleRate int) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))

	var lastErr error
	for _, d := range c.candidates(ext) {
		name := d.Capability().Name
		c.mu.Lock()
		refuses := c.audioRefusers[name]
		c.mu.Unlock()
		if refuses {
			continue
		}
		result, err := d.Probe(ctx, path)
		if err != nil || result.Score <= 0 {
			continue
		}
		out, err := d.ExtractAudio(ctx, path, outPath, sampleRate)
		if err == nil {
			return out, nil
		}
		lastErr = err
	}
	if lastErr != nil {
		return "", fmt.Errorf("%w: %v", apperrors.ErrOperationNotSupported, lastErr)
	}
	return "", fmt.Errorf("%w: no decoder available for audio extraction from %s", apperrors.ErrOperationNotSupported, path)
}

// DetectScenes delegates to the first candidate implementing SceneDetectable
// (in priority order), or fails with ErrOperationNotSupported (§4.1).
func (c *CompositeMediaService) DetectScenes(ctx context.Context, path string, durationSec float64) ([]Scene, error) {
	ext := strings.ToLower(filepath.Ext(path))
	for _, d := range c.candidates(ext) {
		sd, ok := d.(SceneDetectable)
		if !ok {
			continue
		}
		result, err := d.Probe(ctx, path)
		if err != nil || result.Score <= 0 {
			continue
		}
		return sd.DetectScenes(ctx, path, durationSec)
	}
	return nil, fmt.Errorf("%w: scene detection", apperrors.ErrOperationNotSupported)
}
