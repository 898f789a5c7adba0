package scene

import (
	"fmt"
	"os"
	"sync"

	"github.com/davidbyttow/govips/v2/vips"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // vendor CLI decoders may emit webp stills
)

var (
	vipsInitOnce  sync.Once
	vipsAvailable bool
)

// initVips starts libvips with conservative memory settings, mirroring the
// teacher's one-process-at-a-time cache budget. A failed Startup (missing
// libvips shared library) leaves vipsAvailable false and every keyframe
// falls back to the imaging-package resizer.
func initVips() {
	vipsInitOnce.Do(func() {
		defer func() {
			if r := recover(); r != nil {
				log.Warn("libvips unavailable, falling back to imaging: %v", r)
				vipsAvailable = false
			}
		}()
		vips.Startup(&vips.Config{
			ConcurrencyLevel: 1,
			MaxCacheMem:      50 * 1024 * 1024,
			MaxCacheSize:     100,
		})
		vipsAvailable = true
		log.Debug("libvips initialized (version %s)", vips.Version)
	})
}

// normalizeKeyframe resizes the image at srcPath to shortEdge on its
// shortest side, writes a fresh JPEG at dstPath, and removes srcPath.
// Decoders write keyframes under their own naming scheme; this is the one
// place the on-disk layout is forced to the canonical
// scene_NNN_frame_MM.jpg the rest of the indexer depends on.
func normalizeKeyframe(srcPath, dstPath string, shortEdge int) error {
	initVips()
	if vipsAvailable {
		if err := normalizeWithVips(srcPath, dstPath, shortEdge); err != nil {
			log.Debug("vips resize failed for %s, falling back to imaging: %v", srcPath, err)
		} else {
			return nil
		}
	}
	return normalizeWithImaging(srcPath, dstPath, shortEdge)
}

func normalizeWithVips(srcPath, dstPath string, shortEdge int) error {
	ref, err := vips.LoadImageFromFile(srcPath, vips.NewImportParams())
	if err != nil {
		return fmt.Errorf("vips load: %w", err)
	}
	defer ref.Close()

	width, height := shortEdge, shortEdge
	if ref.Width() > ref.Height() {
		width = 0
	} else {
		height = 0
	}
	if err := ref.Thumbnail(width, height, vips.InterestingNone); err != nil {
		return fmt.Errorf("vips thumbnail: %w", err)
	}
	buf, _, err := ref.ExportJpeg(&vips.JpegExportParams{Quality: 90, StripMetadata: true})
	if err != nil {
		return fmt.Errorf("vips export: %w", err)
	}
	if err := writeFile(dstPath, buf); err != nil {
		return err
	}
	removeIfDifferent(srcPath, dstPath)
	return nil
}

func normalizeWithImaging(srcPath, dstPath string, shortEdge int) error {
	img, err := imaging.Open(srcPath, imaging.AutoOrientation(true))
	if err != nil {
		return fmt.Errorf("imaging open: %w", err)
	}
	bounds := img.Bounds()
	var resized = img
	if bounds.Dx() > 0 && bounds.Dy() > 0 {
		if bounds.Dx() < bounds.Dy() {
			resized = imaging.Resize(img, shortEdge, 0, imaging.Lanczos)
		} else {
			resized = imaging.Resize(img, 0, shortEdge, imaging.Lanczos)
		}
	}
	if err := imaging.Save(resized, dstPath); err != nil {
		return fmt.Errorf("imaging save: %w", err)
	}
	removeIfDifferent(srcPath, dstPath)
	return nil
}

func writeFile(path string, data []byte) error {
	return os.WriteFile(path, data, 0o644)
}

func removeIfDifferent(srcPath, dstPath string) {
	if srcPath == dstPath {
		return
	}
	_ = os.Remove(srcPath)
}
