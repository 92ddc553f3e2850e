package profile

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
)

// ReadInto consumes lines of the metrics protocol from r and merges every
// valid sample into the aggregator.
func ReadInto(a *Aggregator, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		a.Ingest(scanner.Text())
	}
	return scanner.Err()
}

// WriteReport renders the snapshot as an aligned table, one row per path in
// sorted order.
func WriteReport(w io.Writer, aggregates []Aggregate) error {
	if _, err := fmt.Fprintf(w, "%7s %7s %7s %7s %7s %7s\n",
		"Count", "Mean", "Min", "Max", "StdDev", "Total"); err != nil {
		return err
	}
	for _, agg := range aggregates {
		_, err := fmt.Fprintf(w, "%7s %7s %7s %7s %7s %7s  %s\n",
			strconv.FormatInt(agg.Count, 10),
			Encode(agg.Mean(), true),
			Encode(agg.Min, true),
			Encode(agg.Max, true),
			Encode(agg.StdDev(), true),
			Encode(agg.Sum, true),
			agg.Path)
		if err != nil {
			return err
		}
	}
	return nil
}
