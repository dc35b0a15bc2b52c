package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"library-ledger/library"
)

func (a *app) demoCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Run an end-to-end borrow and return walkthrough against the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runDemo(cmd.Context())
		},
	}
}

func strRef(s string) *string { return &s }
func intRef(i int) *int       { return &i }

func (a *app) runDemo(ctx context.Context) error {
	books, members := a.mgr.Books(), a.mgr.Members()

	var bookIDs []int64
	for _, nb := range []library.NewBook{
		{Title: "Harry Potter", Author: "J.K. Rowling", Year: intRef(1997)},
		{Title: "Harry Potter", Author: "J.K. Rowling", Year: intRef(1997)}, // second copy
		{Title: "Clean Code", Author: "Robert C. Martin", Year: intRef(2008)},
	} {
		id, err := books.Add(ctx, nb)
		if err != nil {
			return err
		}
		bookIDs = append(bookIDs, id)
	}
	b1, b2, b3 := bookIDs[0], bookIDs[1], bookIDs[2]
	fmt.Fprintf(a.out, "Books added: %d, %d, %d\n", b1, b2, b3)

	u1, err := members.Add(ctx, library.NewMember{Name: "Alice Cohen", Phone: strRef("050-1111111")})
	if err != nil {
		return err
	}
	u2, err := members.Add(ctx, library.NewMember{Name: "Bob Levi", Phone: strRef("052-2222222")})
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Members created: %d, %d\n", u1, u2)

	if err := a.demoSection("All books:", func() error { return printList(ctx, books.List, a.printBooks) }); err != nil {
		return err
	}
	if err := a.demoSection("Currently available books:", func() error { return printList(ctx, books.Available, a.printBooks) }); err != nil {
		return err
	}

	day := library.NewDate(2025, 12, 19)
	borrow1, err := a.mgr.Borrow(ctx, u1, b1, day)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "\nBorrow: member %d -> book %d => borrow ID %d\n", u1, b1, borrow1)

	_, err = a.mgr.Borrow(ctx, u2, b1, day)
	fmt.Fprintf(a.out, "Borrow same copy again (expected rejection): %v\n", err)
	if err != nil && !library.IsRejection(err) {
		return err
	}

	borrow2, err := a.mgr.Borrow(ctx, u2, b2, day)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Borrow second copy: member %d -> book %d => borrow ID %d\n", u2, b2, borrow2)

	if err := a.demoSection("Open borrows:", func() error { return printList(ctx, a.mgr.Ledger().OpenBorrows, a.printBorrows) }); err != nil {
		return err
	}
	for _, m := range []int64{u1, u2} {
		err := a.demoSection(fmt.Sprintf("Open borrows of member %d:", m), func() error {
			rows, err := a.mgr.Ledger().MemberBorrows(ctx, m, true)
			if err != nil {
				return err
			}
			return a.printBorrows(rows)
		})
		if err != nil {
			return err
		}
	}

	returned, err := a.mgr.ReturnBook(ctx, borrow1, library.NewDate(2025, 12, 20))
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "\nReturn borrow ID %d => %t\n", borrow1, returned)
	returned, err = a.mgr.ReturnBook(ctx, borrow1, library.NewDate(2025, 12, 21))
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Return same borrow again (expected false) => %t\n", returned)

	rep := a.mgr.Reports()
	if err := a.demoSection("Available books after return:", func() error { return printList(ctx, rep.CurrentlyAvailable, a.printBooks) }); err != nil {
		return err
	}
	if err := a.demoSection("Full borrow history:", func() error { return printList(ctx, rep.BorrowHistory, a.printBorrows) }); err != nil {
		return err
	}
	if err := a.demoSection("Most borrowed books:", func() error { return printList(ctx, rep.MostBorrowed, a.printTitleCounts) }); err != nil {
		return err
	}
	if err := a.demoSection("All members:", func() error { return printList(ctx, members.List, a.printMembers) }); err != nil {
		return err
	}
	return a.demoSection("Availability audit:", func() error { return printList(ctx, rep.AvailabilityMismatches, a.printMismatches) })
}

func (a *app) demoSection(title string, body func() error) error {
	section(a.out, title)
	return body()
}

func printList[T any](ctx context.Context, load func(context.Context) ([]T, error), show func([]T) error) error {
	rows, err := load(ctx)
	if err != nil {
		return err
	}
	return show(rows)
}
