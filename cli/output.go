package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"library-ledger/library"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (a *app) printBooks(books []library.Book) error {
	if a.jsonOutput() {
		return a.printJSON(books)
	}
	if len(books) == 0 {
		fmt.Fprintln(a.out, "No books found.")
		return nil
	}
	fmt.Fprintf(a.out, "%-5s %-40s %-25s %-6s %-10s\n", "ID", "Title", "Author", "Year", "Available")
	fmt.Fprintln(a.out, strings.Repeat("-", 90))
	for _, b := range books {
		fmt.Fprintf(a.out, "%-5d %-40s %-25s %-6s %-10s\n",
			b.ID,
			truncateString(b.Title, 40),
			truncateString(b.Author, 25),
			optInt(b.Year),
			yesNo(b.Available))
	}
	return nil
}

func (a *app) printMembers(members []library.Member) error {
	if a.jsonOutput() {
		return a.printJSON(members)
	}
	if len(members) == 0 {
		fmt.Fprintln(a.out, "No members registered.")
		return nil
	}
	fmt.Fprintf(a.out, "%-5s %-30s %-15s %-30s %-12s\n", "ID", "Name", "Phone", "Email", "Password Set")
	fmt.Fprintln(a.out, strings.Repeat("-", 95))
	for _, m := range members {
		fmt.Fprintf(a.out, "%-5d %-30s %-15s %-30s %-12s\n",
			m.ID,
			truncateString(m.Name, 30),
			optString(m.Phone),
			truncateString(optString(m.Email), 30),
			yesNo(m.HasPassword()))
	}
	return nil
}

func (a *app) printBorrows(rows []library.BorrowDetail) error {
	if a.jsonOutput() {
		return a.printJSON(rows)
	}
	if len(rows) == 0 {
		fmt.Fprintln(a.out, "No borrow records.")
		return nil
	}
	fmt.Fprintf(a.out, "%-7s %-6s %-30s %-25s %-11s %-11s\n", "Borrow", "Book", "Title", "Member", "Borrowed", "Returned")
	fmt.Fprintln(a.out, strings.Repeat("-", 95))
	for _, r := range rows {
		returned := "-"
		if r.ReturnDate != nil {
			returned = r.ReturnDate.String()
		}
		fmt.Fprintf(a.out, "%-7d %-6d %-30s %-25s %-11s %-11s\n",
			r.BorrowID,
			r.BookID,
			truncateString(r.Title, 30),
			truncateString(memberLabel(r), 25),
			r.BorrowDate.String(),
			returned)
	}
	return nil
}

func (a *app) printTitleCounts(rows []library.TitleCount) error {
	if a.jsonOutput() {
		return a.printJSON(rows)
	}
	if len(rows) == 0 {
		fmt.Fprintln(a.out, "No borrows yet.")
		return nil
	}
	fmt.Fprintf(a.out, "%-40s %-25s %s\n", "Title", "Author", "Borrows")
	fmt.Fprintln(a.out, strings.Repeat("-", 75))
	for _, r := range rows {
		fmt.Fprintf(a.out, "%-40s %-25s %d\n", truncateString(r.Title, 40), truncateString(r.Author, 25), r.BorrowCount)
	}
	return nil
}

func (a *app) printMemberCounts(rows []library.MemberCount) error {
	if a.jsonOutput() {
		return a.printJSON(rows)
	}
	if len(rows) == 0 {
		fmt.Fprintln(a.out, "No members registered.")
		return nil
	}
	fmt.Fprintf(a.out, "%-5s %-30s %s\n", "ID", "Name", "Borrows")
	fmt.Fprintln(a.out, strings.Repeat("-", 45))
	for _, r := range rows {
		fmt.Fprintf(a.out, "%-5d %-30s %d\n", r.MemberID, truncateString(r.Name, 30), r.BorrowCount)
	}
	return nil
}

func (a *app) printMismatches(rows []library.AvailabilityMismatch) error {
	if a.jsonOutput() {
		return a.printJSON(rows)
	}
	if len(rows) == 0 {
		fmt.Fprintln(a.out, "Availability flags agree with open borrows.")
		return nil
	}
	fmt.Fprintf(a.out, "%-5s %-40s %-10s %s\n", "ID", "Title", "Available", "Open borrows")
	fmt.Fprintln(a.out, strings.Repeat("-", 70))
	for _, r := range rows {
		fmt.Fprintf(a.out, "%-5d %-40s %-10s %d\n", r.BookID, truncateString(r.Title, 40), yesNo(r.Available), r.OpenBorrows)
	}
	return nil
}

// section prints a banner heading, as the demo and snapshot output use.
func section(w io.Writer, title string) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, strings.Repeat("=", 60))
	fmt.Fprintln(w, title)
	fmt.Fprintln(w, strings.Repeat("=", 60))
}

func memberLabel(r library.BorrowDetail) string {
	switch {
	case r.MemberID == nil:
		return "(deleted member)"
	case r.MemberName == nil:
		return fmt.Sprintf("ID: %d", *r.MemberID)
	default:
		return fmt.Sprintf("%s (ID: %d)", *r.MemberName, *r.MemberID)
	}
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

func optInt(p *int) string {
	if p == nil {
		return "-"
	}
	return strconv.Itoa(*p)
}

func optString(p *string) string {
	if p == nil {
		return "-"
	}
	return *p
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
