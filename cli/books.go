package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"library-ledger/library"
)

func parseID(kind, s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s ID: %s", kind, s)
	}
	return id, nil
}

func parseYear(s string) (int, error) {
	year, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid year: %s", s)
	}
	return year, nil
}

func (a *app) bookCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "book",
		Short: "Manage book copies",
	}
	cmd.AddCommand(
		a.bookAddCommand(),
		&cobra.Command{
			Use:   "list",
			Short: "List every copy",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				books, err := a.mgr.Books().List(cmd.Context())
				if err != nil {
					return err
				}
				return a.printBooks(books)
			},
		},
		&cobra.Command{
			Use:   "find <keyword>",
			Short: "Find copies whose title contains keyword",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				books, err := a.mgr.Books().Find(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return a.printBooks(books)
			},
		},
		&cobra.Command{
			Use:   "available",
			Short: "List copies that can be borrowed now",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				books, err := a.mgr.Books().Available(cmd.Context())
				if err != nil {
					return err
				}
				return a.printBooks(books)
			},
		},
		&cobra.Command{
			Use:   "by-author <author>",
			Short: "List copies by one author, oldest first",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				books, err := a.mgr.Books().ByAuthor(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return a.printBooks(books)
			},
		},
		&cobra.Command{
			Use:   "between <from-year> <to-year>",
			Short: "List copies published in a year range (inclusive)",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				from, err := parseYear(args[0])
				if err != nil {
					return err
				}
				to, err := parseYear(args[1])
				if err != nil {
					return err
				}
				books, err := a.mgr.Books().BetweenYears(cmd.Context(), from, to)
				if err != nil {
					return err
				}
				return a.printBooks(books)
			},
		},
		&cobra.Command{
			Use:   "history <book-id>",
			Short: "Show who borrowed a copy and when",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID("book", args[0])
				if err != nil {
					return err
				}
				if _, err := a.mgr.Books().Get(cmd.Context(), id); err != nil {
					return err
				}
				rows, err := a.mgr.Ledger().BorrowersOfBook(cmd.Context(), id)
				if err != nil {
					return err
				}
				return a.printBorrows(rows)
			},
		},
		&cobra.Command{
			Use:   "delete <book-id>",
			Short: "Delete a copy that was never borrowed",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID("book", args[0])
				if err != nil {
					return err
				}
				if err := a.mgr.Books().Delete(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Fprintf(a.out, "Deleted book ID %d\n", id)
				return nil
			},
		},
		a.bookOverrideCommand(),
	)
	return cmd
}

func (a *app) bookAddCommand() *cobra.Command {
	var title, author, year string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a new copy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			nb := library.NewBook{Title: title, Author: author}
			if year != "" {
				y, err := parseYear(year)
				if err != nil {
					return err
				}
				nb.Year = &y
			}
			id, err := a.mgr.Books().Add(cmd.Context(), nb)
			if err != nil {
				return err
			}
			if a.jsonOutput() {
				return a.printJSON(map[string]int64{"book_id": id})
			}
			fmt.Fprintf(a.out, "Added book ID %d\n", id)
			return nil
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "book title")
	cmd.Flags().StringVar(&author, "author", "", "book author")
	cmd.Flags().StringVar(&year, "year", "", "publication year (optional)")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("author")
	return cmd
}

func (a *app) bookOverrideCommand() *cobra.Command {
	var available bool
	cmd := &cobra.Command{
		Use:   "override <book-id>",
		Short: "Set a copy's availability flag directly (administrative)",
		Long: "Take a copy out of circulation with --available=false, or put it back with --available=true.\n" +
			"A copy held by an open borrow record cannot be marked available; return it instead.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("book", args[0])
			if err != nil {
				return err
			}
			if err := a.mgr.Books().OverrideAvailability(cmd.Context(), id, available); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Book ID %d available: %s\n", id, yesNo(available))
			return nil
		},
	}
	cmd.Flags().BoolVar(&available, "available", true, "new availability")
	return cmd
}
