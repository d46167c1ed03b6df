package main

import (
	"encoding/json"
	"fmt"
	"io"
	"reflect"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v3"
)

type TableField struct {
	Header string
	Field  string
}

func showOutput(out io.Writer, command *cli.Command, fields []TableField, result any) error {
	output := command.String("output")
	switch output {
	case encodeJsonPretty:
		bytes, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode the ctl output: %w", err)
		}
		fmt.Fprintln(out, string(bytes))

	case encodeJsonRaw:
		bytes, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("failed to encode the ctl output: %w", err)
		}
		fmt.Fprintln(out, string(bytes))

	case encodeColumn, encodeNoHeader:
		table := tablewriter.NewWriter(out)
		table.SetBorders(tablewriter.Border{
			Left:   true,
			Right:  true,
			Top:    false,
			Bottom: false,
		})
		table.SetAutoWrapText(false)
		if output != encodeNoHeader {
			var headers []string
			for _, field := range fields {
				headers = append(headers, field.Header)
			}
			table.SetHeader(headers)
		}

		items := reflect.ValueOf(result)
		if items.Kind() != reflect.Slice {
			items = reflect.Append(reflect.MakeSlice(reflect.SliceOf(items.Type()), 0, 1), items)
		}
		for i := 0; i < items.Len(); i++ {
			item := items.Index(i)
			var line []string
			for _, field := range fields {
				value := item.FieldByName(field.Field)
				if !value.IsValid() {
					return fmt.Errorf("field %s not found", field.Field)
				}
				line = append(line, fieldFormatter(value))
			}
			table.Append(line)
		}
		table.Render()

	default:
		return fmt.Errorf("unknown --output option: %s", output)
	}
	return nil
}

func fieldFormatter(v reflect.Value) string {
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(v.Int(), 10)
	case reflect.Float32, reflect.Float64:
		return strconv.FormatFloat(v.Float(), 'f', -1, 64)
	case reflect.String:
		return v.String()
	default:
		return fmt.Sprintf("%v", v.Interface())
	}
}
