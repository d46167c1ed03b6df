package main

import (
	"context"
	"fmt"
	"io"

	"CapIot.readings/pkg/client"
	"github.com/urfave/cli/v3"
)

func apiClient(command *cli.Command) *client.Client {
	return client.New(command.String("service-url"))
}

func queryFlags(required bool) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "type",
			Usage:    "sensor type: temperature or humidity",
			Required: required,
		},
		&cli.IntFlag{
			Name:  "start",
			Usage: "earliest date_created to include (epoch seconds)",
		},
		&cli.IntFlag{
			Name:  "end",
			Usage: "latest date_created to include (epoch seconds)",
		},
	}
}

func deviceFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "device",
		Aliases:  []string{"d"},
		Usage:    "device uuid",
		Required: true,
	}
}

func queryFromFlags(command *cli.Command) client.Query {
	q := client.Query{Type: command.String("type")}
	if command.IsSet("start") {
		start := int64(command.Int("start"))
		q.Start = &start
	}
	if command.IsSet("end") {
		end := int64(command.Int("end"))
		q.End = &end
	}
	return q
}

var readingFields = []TableField{
	{Header: "DEVICE", Field: "DeviceUUID"},
	{Header: "TYPE", Field: "Type"},
	{Header: "VALUE", Field: "Value"},
	{Header: "DATE CREATED", Field: "DateCreated"},
}

func createWriteCommand(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:  "write",
		Usage: "Store a reading",
		Flags: []cli.Flag{
			deviceFlag(),
			&cli.StringFlag{
				Name:     "type",
				Usage:    "sensor type: temperature or humidity",
				Required: true,
			},
			&cli.IntFlag{
				Name:     "value",
				Usage:    "reading value, 0 to 100",
				Required: true,
			},
			&cli.IntFlag{
				Name:  "date-created",
				Usage: "epoch seconds, defaults to the server's clock",
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			r := client.NewReading{
				Type:  command.String("type"),
				Value: int(command.Int("value")),
			}
			if command.IsSet("date-created") {
				date := int64(command.Int("date-created"))
				r.DateCreated = &date
			}
			stored, err := apiClient(command).Write(ctx, command.String("device"), r)
			if err != nil {
				return err
			}
			return showOutput(out, command, readingFields, stored)
		},
	}
}

func createListCommand(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List the readings of a device",
		Flags: append([]cli.Flag{deviceFlag()}, queryFlags(false)...),
		Action: func(ctx context.Context, command *cli.Command) error {
			readings, err := apiClient(command).List(ctx, command.String("device"), queryFromFlags(command))
			if err != nil {
				return err
			}
			return showOutput(out, command, readingFields, readings)
		},
	}
}

func createMetricCommand(out io.Writer, name, usage string) *cli.Command {
	return &cli.Command{
		Name:  name,
		Usage: usage,
		Flags: append([]cli.Flag{deviceFlag()}, queryFlags(true)...),
		Action: func(ctx context.Context, command *cli.Command) error {
			c := apiClient(command)
			device, q := command.String("device"), queryFromFlags(command)
			var (
				result any
				fields = readingFields
				found  bool
				err    error
			)
			switch name {
			case "min":
				result, found, err = c.Min(ctx, device, q)
			case "max":
				result, found, err = c.Max(ctx, device, q)
			case "median":
				result, found, err = c.Median(ctx, device, q)
			case "mean":
				result, found, err = c.Mean(ctx, device, q)
				fields = []TableField{{Header: "MEAN", Field: "Value"}}
			default:
				return fmt.Errorf("unknown metric %q", name)
			}
			if err != nil {
				return err
			}
			if !found {
				fmt.Fprintln(out, "no matching readings")
				return nil
			}
			return showOutput(out, command, fields, result)
		},
	}
}

func createQuartilesCommand(out io.Writer) *cli.Command {
	flags := queryFlags(true)
	for _, f := range flags {
		if intFlag, ok := f.(*cli.IntFlag); ok {
			intFlag.Required = true
		}
	}
	return &cli.Command{
		Name:  "quartiles",
		Usage: "Show the first and third quartile over a time range",
		Flags: append([]cli.Flag{deviceFlag()}, flags...),
		Action: func(ctx context.Context, command *cli.Command) error {
			q, found, err := apiClient(command).Quartiles(ctx, command.String("device"), queryFromFlags(command))
			if err != nil {
				return err
			}
			if !found {
				fmt.Fprintln(out, "no matching readings")
				return nil
			}
			return showOutput(out, command, []TableField{
				{Header: "QUARTILE 1", Field: "Quartile1"},
				{Header: "QUARTILE 3", Field: "Quartile3"},
			}, q)
		},
	}
}

func createSummaryCommand(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:  "summary",
		Usage: "Summarize readings per device",
		Flags: queryFlags(false),
		Action: func(ctx context.Context, command *cli.Command) error {
			summaries, err := apiClient(command).Summary(ctx, queryFromFlags(command))
			if err != nil {
				return err
			}
			return showOutput(out, command, []TableField{
				{Header: "DEVICE", Field: "DeviceUUID"},
				{Header: "READINGS", Field: "NumberOfReadings"},
				{Header: "MIN", Field: "MinReadingValue"},
				{Header: "MAX", Field: "MaxReadingValue"},
				{Header: "MEAN", Field: "MeanReadingValue"},
				{Header: "MEDIAN", Field: "MedianValue"},
				{Header: "Q1", Field: "Quartile1Value"},
				{Header: "Q3", Field: "Quartile3Value"},
			}, summaries)
		},
	}
}
