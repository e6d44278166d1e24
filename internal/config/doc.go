// Package config defines configuration structures for the itchy-crawler CLI.
//
// Configuration can be provided via, in increasing precedence:
//   - YAML configuration file (${VAR} references are expanded)
//   - Environment variables (ITCHY_ prefix, optionally from a .env file)
//   - Command-line flags
//
// # Structure
//
//	type Config struct {
//	    Input       string
//	    OutputDir   string
//	    Bucket      string
//	    StateDir    string
//	    StateBucket string
//	    StateKey    string
//	    Commit      string
//	    Pacing      PacingConfig
//	    Retry       RetryConfig
//	    ...
//	}
package config
