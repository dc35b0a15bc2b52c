package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"library-ledger/library"
)

func parseDay(s string) (library.Date, error) {
	if s == "" {
		return library.Today(), nil
	}
	return library.ParseDate(s)
}

func (a *app) borrowCommand() *cobra.Command {
	var date, password string
	cmd := &cobra.Command{
		Use:   "borrow <member-id> <book-id>",
		Short: "Lend a copy to a member",
		Long: "Lend a copy to a member on --date (default today). Members with a password\n" +
			"are asked for it unless --password is given.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			memberID, err := parseID("member", args[0])
			if err != nil {
				return err
			}
			bookID, err := parseID("book", args[1])
			if err != nil {
				return err
			}
			day, err := parseDay(date)
			if err != nil {
				return err
			}

			member, err := a.mgr.Members().Get(ctx, memberID)
			if err != nil {
				return err
			}
			if member.HasPassword() {
				if !cmd.Flags().Changed("password") {
					if password, err = a.readPassword("Enter your password: "); err != nil {
						return fmt.Errorf("failed to read password: %w", err)
					}
				}
				if err := a.mgr.Members().Authenticate(ctx, memberID, password); err != nil {
					return err
				}
			}

			borrowID, err := a.mgr.Borrow(ctx, memberID, bookID, day)
			if err != nil {
				return err
			}
			if a.jsonOutput() {
				return a.printJSON(map[string]int64{"borrow_id": borrowID})
			}
			fmt.Fprintf(a.out, "Book ID %d borrowed by %s (borrow ID %d)\n", bookID, member.Name, borrowID)
			return nil
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "borrow date YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&password, "password", "", "member password (prompted when omitted)")
	return cmd
}

func (a *app) returnCommand() *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "return <borrow-id>",
		Short: "Close a borrow record and make its copy available",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			borrowID, err := parseID("borrow", args[0])
			if err != nil {
				return err
			}
			day, err := parseDay(date)
			if err != nil {
				return err
			}
			returned, err := a.mgr.ReturnBook(cmd.Context(), borrowID, day)
			if err != nil {
				return err
			}
			if a.jsonOutput() {
				return a.printJSON(map[string]bool{"returned": returned})
			}
			if !returned {
				return fmt.Errorf("no open borrow with ID %d", borrowID)
			}
			fmt.Fprintf(a.out, "Borrow ID %d returned on %s\n", borrowID, day)
			return nil
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "return date YYYY-MM-DD (default today)")
	return cmd
}
