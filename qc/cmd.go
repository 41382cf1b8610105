package qc

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/urfave/cli/v3"

	"github.com/keithj/simtools/sim"
	"github.com/keithj/simtools/utils"
)

var (
	infile string // Input .sim file
	prefix string // Prefix for metric output files
)

var Cmd = &cli.Command{
	Name:      "qc",
	Usage:     "Compute per-sample QC metrics from a .sim intensity file",
	UsageText: "simtools qc [options] <input.sim> <prefix>",
	ArgsUsage: "<input.sim> <prefix>",
	Arguments: []cli.Argument{
		&cli.StringArg{
			Name:        "input.sim",
			UsageText:   "Input .sim intensity file. Gzip- and xz-compressed files are read transparently.",
			Destination: &infile,
		},
		&cli.StringArg{
			Name:        "prefix",
			UsageText:   "Prefix for output files. The output will be <prefix>.magnitude.txt and <prefix>.xydiff.txt.",
			Destination: &prefix,
		},
	},
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "magnitude",
			Usage: "Compute the probe-normalized magnitude of each sample",
			Value: true,
		},
		&cli.BoolFlag{
			Name:  "xydiff",
			Usage: "Compute the XY intensity difference of each sample. Requires a two-channel dataset",
			Value: true,
		},
		&cli.BoolFlag{
			Name:  "npz",
			Usage: "Also bundle the computed metric arrays into <prefix>.qc.npz",
			Value: false,
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "Log progress while processing samples",
			Value:   false,
		},
	},
	Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
		// Check if the correct number of arguments is provided
		if cmd.Args().Len() != 2 {
			cli.ShowSubcommandHelp(cmd)
			return nil, cli.Exit("Error: Incorrect number of arguments. Expected 2 arguments while "+strconv.Itoa(cmd.Args().Len())+" were given", 1)
		}

		// Check if the input file exists
		if _, err := os.Stat(infile); os.IsNotExist(err) {
			return nil, cli.Exit("Error: Input file does not exist", 1)
		}

		// Check that at least one metric is requested
		if !cmd.Bool("magnitude") && !cmd.Bool("xydiff") {
			return nil, cli.Exit("Error: Nothing to do, both --magnitude and --xydiff are disabled", 1)
		}
		return ctx, nil
	},
	Action: func(ctx context.Context, cmd *cli.Command) error {
		if !cmd.Bool("verbose") {
			slog.SetLogLoggerLevel(slog.LevelWarn)
		}
		if err := Run(infile, prefix, cmd.Bool("magnitude"), cmd.Bool("xydiff"), cmd.Bool("npz")); err != nil {
			return cli.Exit("Error: "+err.Error(), 1)
		}
		return nil
	},
}

// Run sequences one QC run end-to-end: open the source, compute every
// requested metric (each starting with its own rewind), and only then
// hand the results to the output writers. A failure in any metric
// aborts the run before any output file is created.
func Run(infile, prefix string, magnitude, xydiff, npzBundle bool) error {
	r, err := sim.Open(infile)
	if err != nil {
		return err
	}
	defer r.Close()

	hdr := r.Header()
	if xydiff && hdr.NumChannels != 2 {
		return fmt.Errorf("qc: xydiff is only defined for exactly two channels, got %d", hdr.NumChannels)
	}

	var magMetrics, xydMetrics []Metric
	if magnitude {
		if magMetrics, err = Magnitudes(r); err != nil {
			return err
		}
	}
	if xydiff {
		if xydMetrics, err = XYDiffs(r); err != nil {
			return err
		}
	}

	arrays := make(map[string][]float64)
	if magnitude {
		names, values := split(magMetrics)
		if err := utils.WriteMetricsTSV(prefix+".magnitude.txt", names, values); err != nil {
			return err
		}
		arrays["magnitude"] = values
		slog.Info("qc: wrote magnitudes", "file", prefix+".magnitude.txt", "samples", len(magMetrics))
	}
	if xydiff {
		names, values := split(xydMetrics)
		if err := utils.WriteMetricsTSV(prefix+".xydiff.txt", names, values); err != nil {
			return err
		}
		arrays["xydiff"] = values
		slog.Info("qc: wrote xydiffs", "file", prefix+".xydiff.txt", "samples", len(xydMetrics))
	}
	if npzBundle {
		if err := utils.WriteMetricsNpz(prefix+".qc.npz", arrays); err != nil {
			return err
		}
		slog.Info("qc: wrote npz bundle", "file", prefix+".qc.npz")
	}
	return nil
}

func split(metrics []Metric) (names []string, values []float64) {
	names = make([]string, len(metrics))
	values = make([]float64, len(metrics))
	for i, m := range metrics {
		names[i] = m.Sample
		values[i] = m.Value
	}
	return names, values
}
