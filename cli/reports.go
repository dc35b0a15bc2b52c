package cli

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"
)

var errAuditFailed = errors.New("availability audit found mismatches")

type reportFunc func(ctx context.Context, a *app) error

var reports = map[string]reportFunc{
	"catalog": func(ctx context.Context, a *app) error {
		rows, err := a.mgr.Reports().Catalog(ctx)
		if err != nil {
			return err
		}
		return a.printBooks(rows)
	},
	"members": func(ctx context.Context, a *app) error {
		rows, err := a.mgr.Reports().MemberList(ctx)
		if err != nil {
			return err
		}
		return a.printMembers(rows)
	},
	"history": func(ctx context.Context, a *app) error {
		rows, err := a.mgr.Reports().BorrowHistory(ctx)
		if err != nil {
			return err
		}
		return a.printBorrows(rows)
	},
	"available": func(ctx context.Context, a *app) error {
		rows, err := a.mgr.Reports().CurrentlyAvailable(ctx)
		if err != nil {
			return err
		}
		return a.printBooks(rows)
	},
	"borrowed": func(ctx context.Context, a *app) error {
		rows, err := a.mgr.Reports().CurrentlyBorrowed(ctx)
		if err != nil {
			return err
		}
		return a.printBorrows(rows)
	},
	"most-borrowed": func(ctx context.Context, a *app) error {
		rows, err := a.mgr.Reports().MostBorrowed(ctx)
		if err != nil {
			return err
		}
		return a.printTitleCounts(rows)
	},
	"ranking": func(ctx context.Context, a *app) error {
		rows, err := a.mgr.Reports().MembersByBorrowCount(ctx)
		if err != nil {
			return err
		}
		return a.printMemberCounts(rows)
	},
	"holders": func(ctx context.Context, a *app) error {
		rows, err := a.mgr.Ledger().MembersWithOpenBorrows(ctx)
		if err != nil {
			return err
		}
		return a.printMembers(rows)
	},
	"mismatches": func(ctx context.Context, a *app) error {
		rows, err := a.mgr.Reports().AvailabilityMismatches(ctx)
		if err != nil {
			return err
		}
		return a.printMismatches(rows)
	},
	"snapshot": func(ctx context.Context, a *app) error {
		snap, err := a.mgr.Snapshot(ctx)
		if err != nil {
			return err
		}
		if a.jsonOutput() {
			return a.printJSON(snap)
		}
		section(a.out, "Catalog")
		_ = a.printBooks(snap.Catalog)
		section(a.out, "Open borrows")
		_ = a.printBorrows(snap.OpenBorrows)
		section(a.out, "Most borrowed")
		_ = a.printTitleCounts(snap.MostBorrowed)
		section(a.out, "Members by borrow count")
		_ = a.printMemberCounts(snap.Ranking)
		section(a.out, "Availability audit")
		return a.printMismatches(snap.Mismatches)
	},
}

func reportNames() []string {
	names := make([]string, 0, len(reports))
	for name := range reports {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (a *app) reportCommand() *cobra.Command {
	names := reportNames()
	return &cobra.Command{
		Use:       "report <name>",
		Short:     "Print a read-only report",
		Long:      "Available reports: " + strings.Join(names, ", "),
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: names,
		RunE: func(cmd *cobra.Command, args []string) error {
			return reports[args[0]](cmd.Context(), a)
		},
	}
}

func (a *app) auditCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "audit",
		Short: "Check that every copy's availability flag agrees with its open borrows",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rows, err := a.mgr.Reports().AvailabilityMismatches(cmd.Context())
			if err != nil {
				return err
			}
			if err := a.printMismatches(rows); err != nil {
				return err
			}
			if len(rows) > 0 {
				a.logger.Warn("availability audit failed", "mismatches", len(rows))
				return fmt.Errorf("%w: %d copies", errAuditFailed, len(rows))
			}
			return nil
		},
	}
}
