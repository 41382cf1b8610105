package main

import (
	"context"
	"net/mail"
	"os"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/keithj/simtools/docs"
	"github.com/keithj/simtools/qc"
	"github.com/keithj/simtools/view"
)

func main() {
	cmd := &cli.Command{
		Name:    "simtools",
		Version: "1.0.0",
		Authors: []any{
			&mail.Address{
				Name:    "Keith James",
				Address: "kdj@sanger.ac.uk",
			},
			&mail.Address{
				Name:    "Iain Bancarz",
				Address: "ib5@sanger.ac.uk",
			},
		},
		Copyright: "Copyright (c) " + time.Now().Format("2006") + " Genome Research Ltd.",
		Usage:     "utilities for .sim genotyping intensity files",
		UsageText: "simtools [global options] command [command options] [arguments...]",
		ArgsUsage: "",
		Commands: []*cli.Command{
			qc.Cmd,
			view.Cmd,
			&docs.BuildCmd,
		},
		EnableShellCompletion: true,
		HideHelp:              false,
		HideVersion:           false,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cli.ShowAppHelp(cmd)
			return nil
		},
	}

	cmd.Run(context.Background(), os.Args)
}
