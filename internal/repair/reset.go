package repair

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"findit/internal/storage"
)

// ResetScope selects what a Reset operation tears down (§4.4).
type ResetScope string

const (
	ScopeGlobalOnly ResetScope = "global_only"
	ScopeVectorsOnly ResetScope = "vectors_only"
	ScopeFolder      ResetScope = "folder"
	ScopeAll         ResetScope = "all"
)

// ResetPlan is a dry-run report: what Reset would do without doing it,
// rendered as YAML for operator review (DOMAIN STACK: gopkg.in/yaml.v3).
type ResetPlan struct {
	Scope          ResetScope      `yaml:"scope"`
	DryRun         bool            `yaml:"dry_run"`
	FilesToRemove  []string        `yaml:"files_to_remove"`
	FoldersAffected []string       `yaml:"folders_affected,omitempty"`
	SyncCursors    []storage.SyncMeta `yaml:"sync_cursors,omitempty"`
}

func (p *ResetPlan) YAML() ([]byte, error) { return yaml.Marshal(p) }

// Reset implements the four reset scopes from §4.4, each runnable as a
// dry-run (returns the plan without touching disk/DB) or executed for real.
type Reset struct {
	global          *storage.GlobalDB
	appSupportDir   string
	clipVectorPath  string
	textVectorPath  string
}

func NewReset(global *storage.GlobalDB, appSupportDir, clipVectorPath, textVectorPath string) *Reset {
	return &Reset{global: global, appSupportDir: appSupportDir, clipVectorPath: clipVectorPath, textVectorPath: textVectorPath}
}

// Plan builds the dry-run report for a scope without mutating anything.
func (r *Reset) Plan(ctx context.Context, scope ResetScope, folderPath string) (*ResetPlan, error) {
	plan := &ResetPlan{Scope: scope, DryRun: true}

	switch scope {
	case ScopeGlobalOnly:
		plan.FilesToRemove = append(plan.FilesToRemove, r.globalDBPath(), r.clipVectorPath, r.textVectorPath)
	case ScopeVectorsOnly:
		plan.FilesToRemove = append(plan.FilesToRemove, r.clipVectorPath, r.textVectorPath)
	case ScopeFolder:
		if folderPath == "" {
			return nil, fmt.Errorf("folder scope requires a folder path")
		}
		plan.FoldersAffected = []string{folderPath}
		plan.FilesToRemove = append(plan.FilesToRemove, storage.FolderDBPath(folderPath))
	case ScopeAll:
		plan.FilesToRemove = append(plan.FilesToRemove, r.globalDBPath(), r.clipVectorPath, r.textVectorPath)
	default:
		return nil, fmt.Errorf("unknown reset scope %q", scope)
	}

	cursors, err := r.global.ListSyncMeta(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sync cursors: %w", err)
	}
	plan.SyncCursors = cursors
	return plan, nil
}

func (r *Reset) globalDBPath() string { return filepath.Join(r.appSupportDir, "search.sqlite") }

// Execute performs the reset for real. For ScopeFolder it removes the
// folder's global rows and sync cursor (GlobalDB.DeleteFolderData) and then
// the folder's on-disk .clip-index directory.
func (r *Reset) Execute(ctx context.Context, scope ResetScope, folderPath string) error {
	switch scope {
	case ScopeGlobalOnly:
		if err := r.global.ResetAll(ctx); err != nil {
			return fmt.Errorf("reset global db: %w", err)
		}
		return r.removeVectorFiles()
	case ScopeVectorsOnly:
		return r.removeVectorFiles()
	case ScopeFolder:
		if folderPath == "" {
			return fmt.Errorf("folder scope requires a folder path")
		}
		if err := r.global.DeleteFolderData(ctx, folderPath); err != nil {
			return fmt.Errorf("remove global rows for %s: %w", folderPath, err)
		}
		indexDir := filepath.Dir(storage.FolderDBPath(folderPath))
		if err := os.RemoveAll(indexDir); err != nil {
			return fmt.Errorf("remove index dir %s: %w", indexDir, err)
		}
		return nil
	case ScopeAll:
		if err := r.global.ResetAll(ctx); err != nil {
			return fmt.Errorf("reset global db: %w", err)
		}
		if err := r.removeVectorFiles(); err != nil {
			return err
		}
		log.Info("reset scope=all completed; source video files and folder .clip-index directories are left untouched")
		return nil
	default:
		return fmt.Errorf("unknown reset scope %q", scope)
	}
}

func (r *Reset) removeVectorFiles() error {
	for _, p := range []string{r.clipVectorPath, r.textVectorPath} {
		if p == "" {
			continue
		}
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove vector index %s: %w", p, err)
		}
	}
	return nil
}
