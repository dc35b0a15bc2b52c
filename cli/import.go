package cli

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"library-ledger/library"
)

// ImportRow is the outcome of importing one CSV record.
type ImportRow struct {
	Line   int    `json:"line"`
	Title  string `json:"title"`
	Author string `json:"author"`
	BookID int64  `json:"book_id,omitempty"`
	Err    error  `json:"-"`
	Error  string `json:"error,omitempty"`
}

// ImportCSV registers one copy per record of r. Records are
// title,author[,year]; a leading header row starting with "title" is
// skipped. A bad record is reported in its row and does not stop the import.
func ImportCSV(ctx context.Context, books *library.Books, r io.Reader) ([]ImportRow, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var rows []ImportRow
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				rows = append(rows, ImportRow{Line: parseErr.Line, Err: err, Error: err.Error()})
				continue
			}
			return rows, fmt.Errorf("read csv: %w", err)
		}
		line, _ := reader.FieldPos(0)
		if len(rows) == 0 && line == 1 && strings.EqualFold(strings.TrimSpace(record[0]), "title") {
			continue
		}
		row := ImportRow{Line: line}
		row.BookID, row.Err = importRecord(ctx, books, record, &row)
		if row.Err != nil {
			row.Error = row.Err.Error()
		}
		rows = append(rows, row)
	}
}

func importRecord(ctx context.Context, books *library.Books, record []string, row *ImportRow) (int64, error) {
	if len(record) < 2 || len(record) > 3 {
		return 0, fmt.Errorf("want title,author[,year], got %d fields", len(record))
	}
	row.Title, row.Author = record[0], record[1]
	nb := library.NewBook{Title: record[0], Author: record[1]}
	if len(record) == 3 && strings.TrimSpace(record[2]) != "" {
		year, err := parseYear(record[2])
		if err != nil {
			return 0, err
		}
		nb.Year = &year
	}
	return books.Add(ctx, nb)
}

func (a *app) importCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.csv>",
		Short: "Register copies from a CSV file of title,author,year",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			return a.importFrom(cmd.Context(), f)
		},
	}
}

func (a *app) importFrom(ctx context.Context, r io.Reader) error {
	rows, err := ImportCSV(ctx, a.mgr.Books(), r)
	if err != nil {
		return err
	}
	if a.jsonOutput() {
		return a.printJSON(rows)
	}

	successCount, errorCount := 0, 0
	for _, row := range rows {
		if row.Err != nil {
			fmt.Fprintf(a.out, "Line %d: ERROR - %v\n", row.Line, row.Err)
			errorCount++
			continue
		}
		fmt.Fprintf(a.out, "Importing: %s by %s... SUCCESS (ID: %d)\n", row.Title, row.Author, row.BookID)
		successCount++
	}
	fmt.Fprintf(a.out, "\nImport complete!\n")
	fmt.Fprintf(a.out, "Successfully imported: %d books\n", successCount)
	fmt.Fprintf(a.out, "Errors: %d\n", errorCount)
	return nil
}
