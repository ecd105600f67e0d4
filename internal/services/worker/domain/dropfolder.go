package domain

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/louisbranch/vvebeheer/internal/services/vve/domain/banking"
)

// Drop folder layout: statements land in <root>/<association-slug>/ and
// move to one of these subdirectories once handled.
const (
	ProcessedDir = "processed"
	FailedDir    = "failed"

	defaultProfile = "generic"
	defaultSettle  = 2 * time.Second
)

// Importer imports and reconciles statements without a caller.
type Importer interface {
	ImportSystem(ctx context.Context, associationID, profile, filename string, body io.Reader, createdBy string) (banking.ImportResult, error)
	ReconcilePendingSystem(ctx context.Context, associationID string) (banking.ReconcileReport, error)
}

// DropFolder imports bank statements dropped into per-association folders.
type DropFolder struct {
	root         string
	associations AssociationLister
	importer     Importer
	// settle skips files modified this recently; they may still be written.
	settle time.Duration
}

// NewDropFolder builds the import job rooted at dir.
func NewDropFolder(dir string, associations AssociationLister, importer Importer) *DropFolder {
	return &DropFolder{
		root:         strings.TrimSpace(dir),
		associations: associations,
		importer:     importer,
		settle:       defaultSettle,
	}
}

// WithSettle overrides how long a file must be untouched before import.
func (j *DropFolder) WithSettle(settle time.Duration) *DropFolder {
	if j != nil && settle >= 0 {
		j.settle = settle
	}
	return j
}

// Root returns the watched directory.
func (j *DropFolder) Root() string {
	if j == nil {
		return ""
	}
	return j.root
}

// Name implements Job.
func (j *DropFolder) Name() string { return JobImport }

// Run imports every settled statement, then reconciles each association
// that received new transactions.
func (j *DropFolder) Run(ctx context.Context, now time.Time) (Result, error) {
	if j == nil || j.associations == nil || j.importer == nil {
		return Result{}, Permanentf("drop folder import is not configured")
	}
	if j.root == "" {
		return Result{}, Permanentf("drop folder directory is required")
	}
	if err := os.MkdirAll(j.root, 0o755); err != nil {
		return Result{}, Permanent(fmt.Errorf("create drop folder: %w", err))
	}
	assocs, err := j.associations.All(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("list associations: %w", err)
	}

	var result Result
	var errs []error
	matched := 0
	for _, assoc := range assocs {
		dir := filepath.Join(j.root, assoc.Slug)
		files, err := j.pending(dir, now)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		imported := 0
		for _, name := range files {
			if err := ctx.Err(); err != nil {
				return result, err
			}
			count, err := j.importFile(ctx, assoc.ID, dir, name, now)
			if err != nil {
				result.Failed++
				errs = append(errs, fmt.Errorf("%s/%s: %w", assoc.Slug, name, err))
				continue
			}
			result.Processed++
			imported += count
		}
		if imported == 0 {
			continue
		}
		report, err := j.importer.ReconcilePendingSystem(ctx, assoc.ID)
		if err != nil {
			errs = append(errs, fmt.Errorf("reconcile %s: %w", assoc.Slug, err))
			continue
		}
		matched += report.Matched
	}
	result.Detail = fmt.Sprintf("files=%d failed=%d matched=%d", result.Processed, result.Failed, matched)
	return result, errors.Join(errs...)
}

// pending lists settled statement files in dir, oldest name first.
func (j *DropFolder) pending(dir string, now time.Time) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !IsStatement(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) < j.settle {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}

func (j *DropFolder) importFile(ctx context.Context, associationID, dir, name string, now time.Time) (int, error) {
	path := filepath.Join(dir, name)
	file, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open statement: %w", err)
	}
	result, importErr := j.importer.ImportSystem(ctx, associationID, ProfileFromName(name), name, file, Actor)
	_ = file.Close()
	if importErr != nil {
		if err := moveStatement(dir, name, FailedDir, now); err != nil {
			return 0, errors.Join(importErr, err)
		}
		failedPath := filepath.Join(dir, FailedDir, name+".error")
		_ = os.WriteFile(failedPath, []byte(importErr.Error()+"\n"), 0o644)
		return 0, importErr
	}
	if err := moveStatement(dir, name, ProcessedDir, now); err != nil {
		return result.Imported, err
	}
	return result.Imported, nil
}

// moveStatement files name under dir/sub. An existing file of the same name
// is kept and the new one gets a timestamp prefix.
func moveStatement(dir, name, sub string, now time.Time) error {
	target := filepath.Join(dir, sub)
	if err := os.MkdirAll(target, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", target, err)
	}
	dest := filepath.Join(target, name)
	if _, err := os.Stat(dest); err == nil {
		dest = filepath.Join(target, now.UTC().Format("20060102T150405")+"-"+name)
	}
	if err := os.Rename(filepath.Join(dir, name), dest); err != nil {
		return fmt.Errorf("move statement: %w", err)
	}
	return nil
}

// IsStatement reports whether name looks like a CSV bank statement.
func IsStatement(name string) bool {
	return !strings.HasPrefix(name, ".") && strings.EqualFold(filepath.Ext(name), ".csv")
}

// ProfileFromName reads the import profile from a "<name>.<profile>.csv"
// file name, defaulting to the generic profile.
func ProfileFromName(name string) string {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	dot := strings.LastIndex(base, ".")
	if dot <= 0 || dot == len(base)-1 {
		return defaultProfile
	}
	return strings.ToLower(base[dot+1:])
}
