// Command findit-demo wires the indexing pipeline and search engine
// together over a single folder, the way the teacher's main.go wires
// database/indexer/transcoder/thumbnail generator into one process. It is
// an illustrative harness, not the CLI/MCP driver: point it at a folder of
// video files, let it index, then optionally run one search against the
// result.
//
// Configuration is resolved the same way as the rest of the module, via
// environment variables (see internal/config):
//   - FINDIT_APP_SUPPORT_DIR, FINDIT_PERFORMANCE_MODE, FINDIT_RATE_LIMIT_*,
//     FINDIT_ORPHAN_RETENTION_DAYS, FINDIT_MAX_FRAMES_PER_SCENE,
//     FINDIT_THUMBNAIL_SHORT_EDGE, LOG_LEVEL
package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"findit/internal/config"
	"findit/internal/decoder"
	"findit/internal/indexer"
	"findit/internal/logging"
	"findit/internal/metrics"
	"findit/internal/query"
	"findit/internal/ratelimit"
	"findit/internal/repair"
	"findit/internal/scene"
	"findit/internal/scheduler"
	"findit/internal/search"
	"findit/internal/storage"
	syncengine "findit/internal/sync"
)

const appVersion = "0.1.0-demo"

var log = logging.For("findit-demo")

func main() {
	folderPath, searchQuery, limit := parseArgs()

	start := time.Now()
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal("configuration error: %v", err)
	}
	metrics.SetAppInfo(appVersion, runtime.Version())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go waitForShutdownSignal(cancel)

	global, err := storage.OpenGlobalDB(ctx, cfg.GlobalDBPath())
	if err != nil {
		logging.Fatal("open global db: %v", err)
	}
	defer global.Close()

	folder, err := storage.OpenFolderDB(ctx, folderPath)
	if err != nil {
		logging.Fatal("open folder db: %v", err)
	}
	defer folder.Close()

	folderID, err := folder.UpsertWatchedFolder(ctx, folderPath, "", "")
	if err != nil {
		logging.Fatal("register watched folder: %v", err)
	}
	log.Info("databases ready in %s", time.Since(start))

	media, extensions := buildMediaService()

	discovered, err := discoverVideos(ctx, folder, folderID, folderPath, extensions)
	if err != nil {
		logging.Fatal("discover videos: %v", err)
	}
	log.Info("discovered %d candidate video(s) under %s", discovered, folderPath)

	rl, err := ratelimit.New(ratelimit.DefaultConfig(
		cfg.RateLimitMaxRequests, time.Duration(cfg.RateLimitWindowSeconds)*time.Second))
	if err != nil {
		logging.Fatal("build rate limiter: %v", err)
	}
	netMon := ratelimit.NewNetworkMonitor()
	netMon.SetStatus(ratelimit.StatusConnected)

	sceneDetector := scene.NewDetector(media, cfg.MaxFramesPerScene, cfg.ThumbnailShortEdge)
	workDir := func(videoID string) string { return filepath.Join(cfg.AppSupportDir, "work", videoID) }

	// No STT/vision/embedding providers are wired in: those call out to real
	// ML backends, which this demo does not stand up. Every clip runs
	// through Metadata and Scene only, the layers that need no provider.
	ix := indexer.New(folder, media, sceneDetector, nil, nil, nil, rl, netMon, workDir)
	sched := scheduler.New(ix, cfg.PerformanceMode)

	videos, err := folder.ListAllVideos(ctx, folderID)
	if err != nil {
		logging.Fatal("list videos: %v", err)
	}

	runStart := time.Now()
	totals := sched.Run(ctx, folderID, videos, false, func(r indexer.Result) {
		log.Debug("%s: %s", r.VideoPath, r.Outcome)
	})
	log.Info("indexing finished in %s: %+v", time.Since(runStart), totals)

	if expired, err := repair.NewOrphanRecovery(folder, time.Duration(cfg.OrphanRetentionDays)*24*time.Hour).
		CleanupExpired(ctx, folderID); err != nil {
		log.Warn("orphan cleanup: %v", err)
	} else if expired > 0 {
		log.Info("hard-deleted %d expired orphan(s)", expired)
	}

	syncer := syncengine.New(folder, global, folderPath)
	if err := syncer.Run(ctx); err != nil {
		logging.Fatal("sync folder into global db: %v", err)
	}

	if searchQuery != "" {
		runSearch(ctx, global, searchQuery, limit)
	}
}

func parseArgs() (folderPath, searchQuery string, limit int) {
	args := os.Args[1:]
	limit = 20
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: findit-demo <folder> [query] [limit]")
		os.Exit(2)
	}

	var err error
	folderPath, err = filepath.Abs(args[0])
	if err != nil {
		logging.Fatal("resolve folder path: %v", err)
	}
	if len(args) > 1 {
		searchQuery = args[1]
	}
	if len(args) > 2 {
		if _, err := fmt.Sscanf(args[2], "%d", &limit); err != nil || limit <= 0 {
			limit = 20
		}
	}
	return folderPath, searchQuery, limit
}

// waitForShutdownSignal cancels ctx on SIGINT/SIGTERM, so in-flight
// scheduler work stops at its next cancellation check (after its current
// transaction commits) and is reported as cancelled rather than being
// killed mid-write (§4.7's cooperative-cancellation contract).
func waitForShutdownSignal(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Info("received %s, finishing in-flight work before exit", sig)
	cancel()
}

// buildMediaService registers every decoder backend and returns the set of
// file extensions any of them recognizes, for the discovery walk.
func buildMediaService() (*decoder.CompositeMediaService, map[string]bool) {
	ffmpegDec := decoder.NewFFmpegDecoder()
	nativeDec := decoder.NewNativeDecoder()
	brawDec := decoder.NewBRAWDecoder()
	redDec := decoder.NewREDDecoder()

	media := decoder.NewCompositeMediaService(ffmpegDec, nativeDec, brawDec, redDec)
	media.MarkAudioRefuser(brawDec.Capability().Name)
	media.MarkAudioRefuser(redDec.Capability().Name)

	extensions := make(map[string]bool)
	for _, d := range []decoder.MediaDecoder{ffmpegDec, nativeDec, brawDec, redDec} {
		for _, ext := range d.Capability().FileExtensions {
			extensions[strings.ToLower(ext)] = true
		}
	}
	return media, extensions
}

// discoverVideos walks folderPath for files any registered decoder
// recognizes and registers each as a pending Video row, mirroring the
// teacher's walkAndIndex scan but without its fsnotify follow-up (watching
// for changes after the initial scan is out of scope here).
func discoverVideos(ctx context.Context, folder *storage.FolderDB, folderID, folderPath string, extensions map[string]bool) (int, error) {
	count := 0
	err := filepath.WalkDir(folderPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			return nil
		}
		if !extensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		if _, err := folder.RegisterDiscoveredVideo(ctx, folderID, path, d.Name()); err != nil {
			return fmt.Errorf("register %s: %w", path, err)
		}
		count++
		return nil
	})
	return count, err
}

func runSearch(ctx context.Context, global *storage.GlobalDB, q string, limit int) {
	parsed := query.Parse(q)
	engine := search.New(global)
	results, err := engine.Search(ctx, search.Request{
		Parsed: parsed,
		Mode:   search.ModeAuto,
		Limit:  limit,
	})
	if err != nil {
		log.Warn("search %q failed: %v", q, err)
		return
	}

	fmt.Printf("%d result(s) for %q:\n", len(results), q)
	for i, r := range results {
		clip := r.Clip
		fmt.Printf("%3d. %.3f  %s [%.1fs-%.1fs]  %s\n",
			i+1, r.Final, clip.FilePath, clip.StartSec, clip.EndSec, clip.Description)
	}
}
