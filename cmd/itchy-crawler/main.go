package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// Exit codes
const (
	ExitSuccess        = 0
	ExitGeneralError   = 1
	ExitInvalidArgs    = 2
	ExitInputError     = 3
	ExitStorageError   = 4
	ExitInterrupted    = 5
	ExitCircuitBreaker = 6
)

func main() {
	_ = godotenv.Load()
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return ExitInvalidArgs
	}

	command := args[0]
	cmdArgs := args[1:]

	switch command {
	case "run":
		return runCrawl(cmdArgs)
	case "status":
		return runStatus(cmdArgs)
	case "reset":
		return runReset(cmdArgs)
	case "help", "-h", "--help":
		printUsage()
		return ExitSuccess
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		return ExitInvalidArgs
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `Usage: itchy-crawler <command> [options]

Commands:
  run     Fetch every target's page and data.json, resuming from the saved cursor
  status  Show the saved cursor and how many input lines remain
  reset   Move the saved cursor back to 0 or to a given index

Run 'itchy-crawler <command> -h' for command-specific help.`)
}
