// Package view implements the simtools view command, a quick look at
// the header (and optionally the sample names) of a .sim file.
package view

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/keithj/simtools/sim"
)

var infile string // Input .sim file

var Cmd = &cli.Command{
	Name:      "view",
	Usage:     "Print the header of a .sim intensity file",
	UsageText: "simtools view [options] <input.sim>",
	ArgsUsage: "<input.sim>",
	Arguments: []cli.Argument{
		&cli.StringArg{
			Name:        "input.sim",
			UsageText:   "Input .sim intensity file. Gzip- and xz-compressed files are read transparently.",
			Destination: &infile,
		},
	},
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "names",
			Usage: "Also list sample names, one per line, in file order",
			Value: false,
		},
	},
	Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
		// Check if the correct number of arguments is provided
		if cmd.Args().Len() != 1 {
			cli.ShowSubcommandHelp(cmd)
			return nil, cli.Exit("Error: Incorrect number of arguments. Expected 1 argument while "+strconv.Itoa(cmd.Args().Len())+" were given", 1)
		}

		// Check if the input file exists
		if _, err := os.Stat(infile); os.IsNotExist(err) {
			return nil, cli.Exit("Error: Input file does not exist", 1)
		}
		return ctx, nil
	},
	Action: func(ctx context.Context, cmd *cli.Command) error {
		if err := View(os.Stdout, infile, cmd.Bool("names")); err != nil {
			return cli.Exit("Error: "+err.Error(), 1)
		}
		return nil
	},
}

// View prints the header of the named .sim file and, when names is set,
// streams one pass over the records to list sample names in file order.
func View(w io.Writer, path string, names bool) error {
	r, err := sim.Open(path)
	if err != nil {
		return err
	}
	defer r.Close()

	hdr := r.Header()
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintf(tw, "version\t%d\n", hdr.Version)
	fmt.Fprintf(tw, "name size\t%d\n", hdr.SampleNameSize)
	fmt.Fprintf(tw, "samples\t%d\n", hdr.NumSamples)
	fmt.Fprintf(tw, "probes\t%d\n", hdr.NumProbes)
	fmt.Fprintf(tw, "channels\t%d\n", hdr.NumChannels)
	fmt.Fprintf(tw, "format\t%s\n", sim.FormatName(hdr.NumberFormat))
	if err := tw.Flush(); err != nil {
		return err
	}

	if !names {
		return nil
	}
	for i := uint32(0); i < hdr.NumSamples; i++ {
		name, _, err := r.NextRecord()
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintln(w, name); err != nil {
			return err
		}
	}
	return nil
}
