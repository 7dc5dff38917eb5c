package main

import (
	"fmt"

	"github.com/leca/imagehost/internal/images"
	"github.com/spf13/cobra"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Removes orphaned image blobs and stale staged uploads",
	RunE: func(cmd *cobra.Command, args []string) error {
		minAge, err := cmd.Flags().GetDuration("min-age")
		if err != nil {
			return err
		}
		dryRun, err := cmd.Flags().GetBool("dry-run")
		if err != nil {
			return err
		}

		svc, db, err := newService(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		report, err := svc.Reconcile(cmd.Context(), images.ReconcileOptions{MinAge: minAge, DryRun: dryRun})
		if err != nil {
			return fmt.Errorf("reconcile: %w", err)
		}

		out := cmd.OutOrStdout()
		verb := "removed"
		if dryRun {
			verb = "would remove"
		}
		for _, name := range report.OrphanedBlobs {
			fmt.Fprintf(out, "%s orphaned blob %s\n", verb, name)
		}
		for _, name := range report.StaleStaged {
			fmt.Fprintf(out, "%s staged upload %s\n", verb, name)
		}
		for _, name := range report.PartialWrites {
			fmt.Fprintf(out, "%s partial write %s\n", verb, name)
		}
		fmt.Fprintf(out, "scanned %d, orphaned %d, stale staged %d, partial %d, failed %d\n",
			report.Scanned, len(report.OrphanedBlobs), len(report.StaleStaged), len(report.PartialWrites), len(report.Failed))
		if len(report.Failed) > 0 {
			return fmt.Errorf("%d blobs could not be removed", len(report.Failed))
		}
		return nil
	},
}

func init() {
	reconcileCmd.Flags().Duration("min-age", images.DefaultReconcileMinAge, "only consider blobs older than this")
	reconcileCmd.Flags().Bool("dry-run", false, "report without removing anything")
}
