// Package cleanup removes files from a staging tree according to a rule set
// and then prunes the directories left empty.
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"releng-kit/internal/database"
	"releng-kit/internal/fsops"
	"releng-kit/internal/metrics"
	"releng-kit/internal/rules"
	"releng-kit/internal/safety"
)

var ErrInvalidRoot = errors.New("input directory does not exist or is not a directory")

// Result summarizes one cleaner run
type Result struct {
	RunID        string
	Mode         rules.Mode
	FilesRemoved int
	DirsPruned   int
	BytesFreed   int64
}

// Cleaner performs tree cleanup with structured logging
type Cleaner struct {
	fs        afero.Fs
	logger    zerolog.Logger
	deleter   fsops.Deleter
	dryRun    bool
	db        *database.HistoryDB // Database for recording removal history, optional
	protected []string
}

// NewCleaner creates a Cleaner operating on fs. Removals go through an
// FsDeleter on the same filesystem unless SetDeleter overrides it.
func NewCleaner(fs afero.Fs, logger zerolog.Logger, dryRun bool, db *database.HistoryDB) *Cleaner {
	metrics.Init()
	return &Cleaner{
		fs:      fs,
		logger:  logger,
		deleter: fsops.FsDeleter{Fs: fs},
		dryRun:  dryRun,
		db:      db,
	}
}

// SetDeleter replaces the deleter used for removals
func (c *Cleaner) SetDeleter(d fsops.Deleter) {
	c.deleter = d
}

// SetProtectedPaths adds directories the cleaner must refuse as a root
func (c *Cleaner) SetProtectedPaths(paths []string) {
	c.protected = paths
}

// run carries the state of a single Run call
type run struct {
	*Result
	root    string
	absRoot string // as stored in history rows
	guard   *safety.Guard
	gone    map[string]bool // paths a dry run pretends to have removed
}

// Run cleans the tree under root: validate, expand rules, delete pass, prune.
// The context is checked between entries; a cancelled run stops where it is
// and leaves the tree partially cleaned.
func (c *Cleaner) Run(ctx context.Context, root string, rs rules.RuleSet) (*Result, error) {
	start := time.Now()

	if err := rs.Validate(); err != nil {
		return nil, err
	}

	info, err := c.fs.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidRoot, root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRoot, root)
	}

	guard := safety.NewGuard(root, c.protected)
	if err := guard.ValidateRoot(); err != nil {
		return nil, fmt.Errorf("refusing to clean %s: %w", root, err)
	}

	tree, err := rules.Walk(c.fs, root)
	if err != nil {
		return nil, err
	}
	set, err := rules.Expand(tree, rs.Patterns)
	if err != nil {
		return nil, err
	}

	r := &run{
		Result: &Result{RunID: uuid.NewString(), Mode: rs.Mode},
		root:   filepath.Clean(root),
		guard:  guard,
		gone:   make(map[string]bool),
	}
	if r.absRoot, err = safety.NormalizePath(root); err != nil {
		r.absRoot = r.root
	}

	c.logger.Info().
		Str("run_id", r.RunID).
		Str("root", r.absRoot).
		Str("mode", rs.Mode.String()).
		Int("patterns", len(rs.Patterns)).
		Int("entries", len(tree)).
		Int("matched", len(set)).
		Bool("dry_run", c.dryRun).
		Msg("Starting cleanup")

	if err := c.apply(ctx, r, tree, set, rs.Mode); err != nil {
		return r.Result, err
	}
	if err := c.prune(ctx, r); err != nil {
		return r.Result, err
	}

	if !c.dryRun {
		metrics.RecordCleanupRun(start)
	}

	c.logger.Info().
		Str("run_id", r.RunID).
		Int("files_removed", r.FilesRemoved).
		Int("dirs_pruned", r.DirsPruned).
		Int64("bytes_freed", r.BytesFreed).
		Dur("duration", time.Since(start)).
		Msg("Cleanup complete")

	return r.Result, nil
}

// apply is the selective deletion pass. Every entry is visited once and the
// first failed removal aborts the run.
func (c *Cleaner) apply(ctx context.Context, r *run, tree []rules.Entry, set rules.Set, mode rules.Mode) error {
	for _, e := range tree {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("cleanup interrupted: %w", err)
		}

		reason, ok := decide(mode, set, e)
		if !ok {
			continue
		}

		path := filepath.Join(r.root, filepath.FromSlash(e.Path))
		if err := c.remove(r, path, e.Kind(), e.Size, reason); err != nil {
			return err
		}

		r.FilesRemoved++
		r.BytesFreed += e.Size
		if !c.dryRun {
			metrics.RecordFileRemoved(mode.String(), e.Size)
		}
	}
	return nil
}

// prune removes directories left empty, children before parents. The root
// itself is kept even when it ends up empty.
func (c *Cleaner) prune(ctx context.Context, r *run) error {
	_, err := c.pruneDir(ctx, r, r.root)
	return err
}

// pruneDir reports whether dir was removed
func (c *Cleaner) pruneDir(ctx context.Context, r *run, dir string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("cleanup interrupted: %w", err)
	}

	infos, err := afero.ReadDir(c.fs, dir)
	if err != nil {
		return false, fmt.Errorf("read directory %s: %w", dir, err)
	}

	remaining := 0
	for _, info := range infos {
		child := filepath.Join(dir, info.Name())
		if r.gone[child] {
			continue
		}
		// Symlinks to directories report a non-directory mode and count as content
		if info.IsDir() {
			removed, err := c.pruneDir(ctx, r, child)
			if err != nil {
				return false, err
			}
			if removed {
				continue
			}
		}
		remaining++
	}

	if remaining > 0 || dir == r.root {
		return false, nil
	}

	if err := c.remove(r, dir, "directory", 0, ReasonEmptyDirectory); err != nil {
		return false, err
	}
	r.DirsPruned++
	if !c.dryRun {
		metrics.DirsPrunedTotal.Inc()
	}
	return true, nil
}

// remove deletes a single entry, or only logs it in dry-run mode
func (c *Cleaner) remove(r *run, path, objectType string, size int64, reason Reason) error {
	if err := r.guard.ValidateDeleteTarget(path); err != nil {
		c.record(r, database.ActionError, path, objectType, size, reason, err.Error())
		return fmt.Errorf("refusing to remove %s: %w", path, err)
	}

	action := database.ActionDelete
	if objectType == "directory" {
		action = database.ActionPrune
	}

	if c.dryRun {
		action = database.ActionDryRun
		r.gone[path] = true
		c.logger.Info().
			Str("path", path).
			Str("object", objectType).
			Int64("size", size).
			Str("reason", string(reason)).
			Msg("[DRY RUN] Would remove")
	} else if err := c.deleter.Remove(path); err != nil {
		c.logger.Error().Err(err).Str("path", path).Msg("Failed to remove")
		c.record(r, database.ActionError, path, objectType, size, reason, err.Error())
		return fmt.Errorf("remove %s: %w", path, err)
	} else {
		c.logger.Debug().
			Str("path", path).
			Str("object", objectType).
			Int64("size", size).
			Str("reason", string(reason)).
			Msg("Removed")
	}

	c.record(r, action, path, objectType, size, reason, "")
	return nil
}

// record writes a history row. A failed write is logged and does not fail
// the run.
func (c *Cleaner) record(r *run, action, path, objectType string, size int64, reason Reason, errMsg string) {
	if c.db == nil {
		return
	}
	rel, err := filepath.Rel(r.root, path)
	if err != nil {
		rel = path
	}
	err = c.db.RecordRemoval(database.Removal{
		RunID:        r.RunID,
		Action:       action,
		Root:         r.absRoot,
		Path:         filepath.ToSlash(rel),
		ObjectType:   objectType,
		Size:         size,
		Mode:         r.Mode.String(),
		Reason:       string(reason),
		ErrorMessage: errMsg,
	})
	if err != nil {
		c.logger.Error().Err(err).Str("path", path).Msg("Failed to record to database")
	}
}
