// Package scene wraps decoder-level scene detection and keyframe extraction
// with the policy §4.1 specifies: non-overlapping segments covering the
// full duration, and up to maxFramesPerScene JPEGs per scene named
// scene_{NNN}_frame_{MM}.jpg.
package scene

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"findit/internal/apperrors"
	"findit/internal/decoder"
	"findit/internal/logging"
	"findit/internal/metrics"
)

var log = logging.For("scene")

// Detector produces scenes and their keyframes for one video.
type Detector struct {
	media            *decoder.CompositeMediaService
	maxFramesPerScene int
	thumbnailShortEdge int
}

func NewDetector(media *decoder.CompositeMediaService, maxFramesPerScene, thumbnailShortEdge int) *Detector {
	return &Detector{media: media, maxFramesPerScene: maxFramesPerScene, thumbnailShortEdge: thumbnailShortEdge}
}

// Segment is one detected scene plus the keyframes extracted for it.
type Segment struct {
	Index     int
	Start     float64
	End       float64
	Keyframes []decoder.Keyframe
}

// Detect runs scene detection, validates the non-overlapping/full-coverage
// invariant, and extracts keyframes for each resulting segment.
func (d *Detector) Detect(ctx context.Context, path string, durationSec float64, outDir string) ([]Segment, error) {
	start := time.Now()
	defer func() { metrics.SceneDetectionDuration.Observe(time.Since(start).Seconds()) }()

	scenes, err := d.media.DetectScenes(ctx, path, durationSec)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrSceneDetectionUnsupported, err)
	}
	if err := validateCoverage(scenes, durationSec); err != nil {
		return nil, fmt.Errorf("scene detection produced invalid segmentation: %w", err)
	}

	segments := make([]Segment, len(scenes))
	for i, s := range scenes {
		times := framesForScene(s, d.maxFramesPerScene)
		keyframes, err := d.media.ExtractKeyframes(ctx, path, times, outDir, d.thumbnailShortEdge)
		if err != nil {
			return nil, fmt.Errorf("extract keyframes for scene %d: %w", i, err)
		}
		for j := range keyframes {
			if keyframes[j].Path == "" || keyframes[j].Err != nil {
				continue
			}
			canonical := filepath.Join(outDir, fmt.Sprintf("scene_%03d_frame_%02d.jpg", i, j))
			if err := normalizeKeyframe(keyframes[j].Path, canonical, d.thumbnailShortEdge); err != nil {
				log.Warn("normalize keyframe %s: %v", keyframes[j].Path, err)
				continue
			}
			keyframes[j].Path = canonical
		}
		segments[i] = Segment{Index: i, Start: s.Start, End: s.End, Keyframes: keyframes}
	}
	log.Debug("detected %d scenes for %s", len(segments), path)
	return segments, nil
}

// framesForScene picks up to max evenly spaced timestamps within [s.Start, s.End).
func framesForScene(s decoder.Scene, max int) []float64 {
	if max <= 0 {
		max = 1
	}
	span := s.End - s.Start
	if span <= 0 {
		return []float64{s.Start}
	}
	times := make([]float64, 0, max)
	for i := 0; i < max; i++ {
		frac := (float64(i) + 0.5) / float64(max)
		times = append(times, s.Start+span*frac)
	}
	return times
}

// validateCoverage checks §4.1's invariant: segments ordered by start, no
// gaps, no overlaps, union equals [0,duration].
func validateCoverage(scenes []decoder.Scene, duration float64) error {
	if len(scenes) == 0 {
		return fmt.Errorf("no segments produced")
	}
	if scenes[0].Start != 0 {
		return fmt.Errorf("first segment must start at 0, got %v", scenes[0].Start)
	}
	for i, s := range scenes {
		if s.End <= s.Start {
			return fmt.Errorf("segment %d has non-positive length [%v,%v)", i, s.Start, s.End)
		}
		if i > 0 && s.Start != scenes[i-1].End {
			return fmt.Errorf("segment %d starts at %v, expected %v (gap or overlap)", i, s.Start, scenes[i-1].End)
		}
	}
	last := scenes[len(scenes)-1].End
	if last != duration {
		return fmt.Errorf("last segment ends at %v, expected duration %v", last, duration)
	}
	return nil
}
