// Package cli parses command-line arguments into an app configuration.
package cli

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/laebshade/pants/internal/app"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// goalList accumulates repeated -goal flags, also accepting comma-separated
// values.
type goalList []string

func (g *goalList) String() string {
	return strings.Join(*g, ",")
}

func (g *goalList) Set(value string) error {
	for _, goal := range strings.Split(value, ",") {
		goal = strings.TrimSpace(goal)
		if goal != "" {
			*g = append(*g, goal)
		}
	}
	return nil
}

// Parse processes command-line arguments. It returns a populated Config, a
// boolean indicating the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	flagSet := flag.NewFlagSet("pants", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
pants - a goal-driven build planner and executor.

Usage:
  pants [options] -goal GOAL ADDRESS [ADDRESS...]

Arguments:
  ADDRESS
    A root target address, e.g. //src/core:core.

Options:
`)
		flagSet.PrintDefaults()
	}

	var goals goalList
	flagSet.Var(&goals, "goal", "Goal to run (repeatable, or comma-separated).")
	rootFlag := flagSet.String("root", ".", "Build root directory containing BUILD.hcl files.")
	logFormatFlag := flagSet.String("log-format", "text", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	workersFlag := flagSet.Int("workers", 8, "Number of concurrent workers for the executor.")
	dryRunFlag := flagSet.Bool("dry-run", false, "Print the linearized execution plan without running it.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	if len(goals) == 0 && flagSet.NArg() == 0 {
		flagSet.Usage()
		return nil, true, nil
	}

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}

	config, err := app.NewConfig(app.Config{
		RootPath:  *rootFlag,
		Goals:     goals,
		Addresses: flagSet.Args(),
		LogFormat: logFormat,
		LogLevel:  logLevel,
		Workers:   *workersFlag,
		DryRun:    *dryRunFlag,
	})
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	return config, false, nil
}
