package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/extua/itchy-crawler/internal/config"
	"github.com/extua/itchy-crawler/internal/targets"
)

// runStatus prints the saved cursor and, when the input list is readable,
// how much of it is left.
func runStatus(args []string) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)

	var common commonFlags
	common.register(fs)

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: itchy-crawler status [options]

Show the saved cursor and the number of remaining input lines.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return ExitSuccess
		}
		return ExitInvalidArgs
	}

	cfg, err := loadConfig(&common, config.Config{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}

	ctx := context.Background()
	tracker, closeTracker, err := openTracker(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitStorageError
	}
	defer closeTracker()

	cursor, err := tracker.Load(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitStorageError
	}

	fmt.Printf("State key: %s\n", tracker.Key())
	fmt.Printf("Cursor:    %d\n", cursor)

	list, err := targets.ReadFile(cfg.Input)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		return ExitSuccess
	}

	remaining := 0
	for _, t := range list.Targets {
		if t.Index >= cursor {
			remaining++
		}
	}
	fmt.Printf("Lines:     %d\n", list.Lines)
	fmt.Printf("Targets:   %d\n", len(list.Targets))
	fmt.Printf("Remaining: %d\n", remaining)
	if remaining == 0 {
		fmt.Println("Status:    complete")
	} else {
		fmt.Println("Status:    pending")
	}

	return ExitSuccess
}
