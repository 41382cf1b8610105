// Package utils holds the output boundary for computed QC metrics.
package utils

import (
	"bufio"
	"fmt"
	"os"

	"github.com/sbinet/npyio/npz"
)

// WriteMetricsTSV writes one tab-separated "name value" line per
// sample, six decimal places, in the order given.
func WriteMetricsTSV(path string, names []string, values []float64) error {
	if len(names) != len(values) {
		return fmt.Errorf("utils: %d names for %d values", len(names), len(values))
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("utils: create %s: %w", path, err)
	}
	bw := bufio.NewWriter(f)
	for i, name := range names {
		fmt.Fprintf(bw, "%s\t%.6f\n", name, values[i])
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("utils: write %s: %w", path, err)
	}
	return f.Close()
}

// WriteMetricsNpz bundles metric arrays into one .npz file, one entry
// per metric, values in sample read order.
func WriteMetricsNpz(path string, arrays map[string][]float64) error {
	out, err := npz.Create(path)
	if err != nil {
		return fmt.Errorf("utils: create %s: %w", path, err)
	}
	for key, values := range arrays {
		if err := out.Write(key, values); err != nil {
			out.Close()
			return fmt.Errorf("utils: write %s to %s: %w", key, path, err)
		}
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("utils: close %s: %w", path, err)
	}
	return nil
}
