// Command import_books loads a catalog CSV (title,author,year) into a fresh
// or existing library database.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	flag "github.com/spf13/pflag"

	"library-ledger/cli"
	"library-ledger/library"
)

func main() {
	dbPath := flag.String("db", "library.db", "path to the SQLite database")
	reset := flag.Bool("reset", false, "remove the existing database files first")
	flag.Parse()
	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: import_books [--db library.db] [--reset] catalog.csv")
		os.Exit(2)
	}

	if *reset {
		fmt.Println("Cleaning up existing database files...")
		for _, file := range []string{*dbPath, *dbPath + "-shm", *dbPath + "-wal"} {
			if err := os.Remove(file); err != nil && !os.IsNotExist(err) {
				fmt.Printf("Warning: Could not remove %s: %v\n", file, err)
			}
		}
		fmt.Println("Database cleanup complete.")
	}

	manager, err := library.NewLibraryManager(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating database: %v\n", err)
		os.Exit(1)
	}
	defer manager.Close()

	f, err := os.Open(flag.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading catalog: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	fmt.Printf("Importing books from %s...\n", flag.Arg(0))
	rows, err := cli.ImportCSV(context.Background(), manager.Books(), f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error importing: %v\n", err)
		return
	}

	successCount, errorCount := 0, 0
	for _, row := range rows {
		if row.Err != nil {
			fmt.Printf("Line %d: ERROR - %v\n", row.Line, row.Err)
			errorCount++
			continue
		}
		fmt.Printf("Importing: %s by %s... SUCCESS (ID: %d)\n", row.Title, row.Author, row.BookID)
		successCount++
	}

	fmt.Printf("\nImport complete!\n")
	fmt.Printf("Successfully imported: %d books\n", successCount)
	fmt.Printf("Errors: %d\n", errorCount)

	if successCount > 0 {
		fmt.Println("\nCatalog:")
		books, err := manager.Books().List(context.Background())
		if err != nil {
			fmt.Printf("Error retrieving books: %v\n", err)
			return
		}
		fmt.Printf("%-5s %-50s %-30s\n", "ID", "Title", "Author")
		fmt.Println(strings.Repeat("-", 87))
		for _, book := range books {
			fmt.Printf("%-5d %-50s %-30s\n", book.ID, truncateString(book.Title, 50), truncateString(book.Author, 30))
		}
	}
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
