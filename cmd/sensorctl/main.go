package main

import (
	"context"
	"io"
	"log"
	"os"

	"github.com/urfave/cli/v3"
)

const (
	encodeJsonRaw    = "json-raw"
	encodeJsonPretty = "json"
	encodeNoHeader   = "no-header"
	encodeColumn     = "column"
)

// DefaultServiceURL is optionally set at build time using ldflags
var DefaultServiceURL = "http://localhost:8000"

func main() {
	if err := newApp(os.Stdout).Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:  "sensorctl",
		Usage: "reads and writes sensor readings through the readings API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "service-url",
				Value:   DefaultServiceURL,
				Usage:   "Api server URL",
				Sources: cli.EnvVars("SENSORCTL_SERVICE_URL"),
			},
			&cli.StringFlag{
				Name:  "output",
				Value: encodeColumn,
				Usage: "Output format: json, json-raw, no-header, column (default columns)",
			},
		},
		Commands: []*cli.Command{
			createWriteCommand(out),
			createListCommand(out),
			createMetricCommand(out, "min", "Show the lowest reading"),
			createMetricCommand(out, "max", "Show the highest reading"),
			createMetricCommand(out, "mean", "Show the mean reading value"),
			createMetricCommand(out, "median", "Show the median reading"),
			createQuartilesCommand(out),
			createSummaryCommand(out),
		},
	}
}
