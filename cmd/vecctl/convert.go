package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/arena2036/vec-aas-uploader/pkg/converters"
	"github.com/arena2036/vec-aas-uploader/pkg/logger"
)

const (
	formatJSON = "json"
	formatYAML = "yaml"
)

func newConvertCmd(root *rootOptions) *cobra.Command {
	var (
		format string
		output string
		indent int
	)

	cmd := &cobra.Command{
		Use:   "convert FILE",
		Short: "Convert a VEC file to the generator document",
		Long:  "Convert a VEC file (or - for stdin) to JSON or YAML.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != formatJSON && format != formatYAML {
				return fmt.Errorf("unsupported format %q", format)
			}

			data, err := readInput(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}

			doc, err := converters.ParseXML(data)
			if err != nil {
				return fmt.Errorf("failed to convert %s: %w", args[0], err)
			}
			root.log.Debug("Converted document",
				logger.String("file", args[0]),
				logger.Int("bytes", len(data)),
			)

			out := cmd.OutOrStdout()
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("failed to create output: %w", err)
				}
				defer f.Close()
				out = f
			}

			return writeDocument(out, doc, format, indent)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", formatJSON, "output format: json or yaml")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to file instead of stdout")
	cmd.Flags().IntVar(&indent, "indent", 2, "indentation, 0 for compact json")
	return cmd
}

func readInput(stdin io.Reader, name string) ([]byte, error) {
	if name == "-" {
		return io.ReadAll(stdin)
	}
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	return data, nil
}

func writeDocument(w io.Writer, doc *converters.Node, format string, indent int) error {
	if format == formatYAML {
		enc := yaml.NewEncoder(w)
		if indent > 0 {
			enc.SetIndent(indent)
		}
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("failed to encode yaml: %w", err)
		}
		return enc.Close()
	}

	data, err := doc.MarshalJSON()
	if err != nil {
		return fmt.Errorf("failed to encode json: %w", err)
	}
	if indent > 0 {
		var buf bytes.Buffer
		if err := json.Indent(&buf, data, "", fmt.Sprintf("%*s", indent, "")); err != nil {
			return fmt.Errorf("failed to indent json: %w", err)
		}
		data = buf.Bytes()
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}
