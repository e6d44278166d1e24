package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/extua/itchy-crawler/internal/config"
)

// runReset moves the saved cursor. This is the only way the cursor goes
// backwards.
func runReset(args []string) int {
	fs := flag.NewFlagSet("reset", flag.ContinueOnError)

	var common commonFlags
	common.register(fs)
	to := fs.Int("to", 0, "Index to move the cursor to")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: itchy-crawler reset [options]

Move the saved cursor back to 0, or to the index given with -to. The next run
reprocesses every target from that index on.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return ExitSuccess
		}
		return ExitInvalidArgs
	}
	if *to < 0 {
		fmt.Fprintln(os.Stderr, "Error: -to cannot be negative")
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

	if *to == 0 {
		err = tracker.Reset(ctx)
	} else {
		err = tracker.Set(ctx, *to)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitStorageError
	}

	fmt.Printf("Cursor reset to %d\n", *to)
	return ExitSuccess
}
