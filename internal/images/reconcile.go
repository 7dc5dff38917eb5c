package images

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/leca/imagehost/internal/storage"
)

// DefaultReconcileMinAge keeps Reconcile away from uploads still in flight.
const DefaultReconcileMinAge = time.Hour

// ReconcileOptions controls a Reconcile run.
type ReconcileOptions struct {
	// MinAge skips blobs modified more recently than this.
	MinAge time.Duration
	// DryRun reports what would be removed without removing it.
	DryRun bool
}

// ReconcileReport lists what a Reconcile run found.
type ReconcileReport struct {
	Scanned       int
	OrphanedBlobs []string
	StaleStaged   []string
	PartialWrites []string
	Failed        []string
}

// Reconcile removes permanent blobs no record references, staged uploads
// left behind by interrupted pipelines and partial files from interrupted
// writes. Only blobs older than MinAge are
// considered, so a pipeline between its blob write and its record write is
// not mistaken for an orphan.
func (s *Service) Reconcile(ctx context.Context, opts ReconcileOptions) (*ReconcileReport, error) {
	if opts.MinAge <= 0 {
		opts.MinAge = DefaultReconcileMinAge
	}
	cutoff := s.now().Add(-opts.MinAge)
	report := &ReconcileReport{}

	blobs, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list image blobs: %w", err)
	}
	for _, b := range blobs {
		report.Scanned++
		if b.ModTime.After(cutoff) {
			continue
		}
		referenced, err := s.db.FilenameExists(ctx, b.Name)
		if err != nil {
			return report, fmt.Errorf("check blob %s: %w", b.Name, err)
		}
		if referenced {
			continue
		}
		report.OrphanedBlobs = append(report.OrphanedBlobs, b.Name)
		if !opts.DryRun {
			s.sweep(ctx, s.store, b.Name, report)
		}
	}

	staged, err := s.staging.List(ctx)
	if err != nil {
		return report, fmt.Errorf("list staged uploads: %w", err)
	}
	for _, b := range staged {
		report.Scanned++
		if b.ModTime.After(cutoff) {
			continue
		}
		report.StaleStaged = append(report.StaleStaged, b.Name)
		if !opts.DryRun {
			s.sweep(ctx, s.staging, b.Name, report)
		}
	}

	for _, st := range []storage.Storage{s.store, s.staging} {
		ps, ok := st.(storage.PartialSweeper)
		if !ok {
			continue
		}
		partial, err := ps.ListPartial(ctx)
		if err != nil {
			return report, fmt.Errorf("list partial writes: %w", err)
		}
		for _, b := range partial {
			report.Scanned++
			if b.ModTime.After(cutoff) {
				continue
			}
			report.PartialWrites = append(report.PartialWrites, b.Name)
			if opts.DryRun {
				continue
			}
			if err := ps.DeletePartial(ctx, b.Name); err != nil && !errors.Is(err, storage.ErrNotFound) {
				s.log.Warn("reconcile: failed to remove partial write", "name", b.Name, "error", err)
				report.Failed = append(report.Failed, b.Name)
			}
		}
	}

	s.log.Info("reconcile finished",
		"scanned", report.Scanned,
		"orphaned_blobs", len(report.OrphanedBlobs),
		"stale_staged", len(report.StaleStaged),
		"partial_writes", len(report.PartialWrites),
		"failed", len(report.Failed),
		"dry_run", opts.DryRun,
	)
	return report, nil
}

func (s *Service) sweep(ctx context.Context, st storage.Storage, name string, report *ReconcileReport) {
	if err := st.Delete(ctx, name); err != nil && !errors.Is(err, storage.ErrNotFound) {
		s.log.Warn("reconcile: failed to remove blob", "locator", name, "error", err)
		report.Failed = append(report.Failed, name)
	}
}
