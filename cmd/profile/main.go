// Command profile aggregates metric lines from a file or standard input and
// prints the per-path statistics table on end of input.
package main

import (
	"fmt"
	"os"

	"distributed-job-dispatcher/internal/logging"
	"distributed-job-dispatcher/internal/profile"
)

func main() {
	logger := logging.New(os.Getenv("APP_ENV"))
	defer func() { _ = logger.Sync() }()

	input := os.Stdin
	if len(os.Args) > 1 {
		f, err := os.Open(os.Args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "open %s: %v\n", os.Args[1], err)
			os.Exit(1)
		}
		defer f.Close()
		input = f
	}

	agg := profile.NewAggregator(logger)
	if err := profile.ReadInto(agg, input); err != nil {
		fmt.Fprintf(os.Stderr, "read input: %v\n", err)
		os.Exit(1)
	}
	if err := profile.WriteReport(os.Stdout, agg.Snapshot()); err != nil {
		fmt.Fprintf(os.Stderr, "write report: %v\n", err)
		os.Exit(1)
	}
}
