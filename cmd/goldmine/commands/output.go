package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/copyleftdev/goldmine/internal/optimization"
)

type outputFormat string

const (
	formatText outputFormat = "text"
	formatJSON outputFormat = "json"
	formatYAML outputFormat = "yaml"
)

func parseFormat(s string) (outputFormat, error) {
	switch f := outputFormat(strings.ToLower(s)); f {
	case formatText, formatJSON, formatYAML:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want text, json or yaml)", s)
	}
}

// formatVector renders values as "[a, b, c]".
func formatVector(values []float64) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func writeStructured(w io.Writer, format outputFormat, v interface{}) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("unsupported structured format %q", format)
}

// writeResult prints the best allocation and its total yield.
func writeResult(w io.Writer, format outputFormat, result *optimization.OptimizationResult, withHistory bool) error {
	if !withHistory {
		trimmed := *result
		trimmed.History = nil
		result = &trimmed
	}

	if format != formatText {
		return writeStructured(w, format, result)
	}

	fmt.Fprintln(w, "Best solution:")
	fmt.Fprintln(w, formatVector(result.BestSolution.Parameters))
	fmt.Fprintf(w, "Total yield: %s\n", strconv.FormatFloat(result.BestSolution.Value, 'g', -1, 64))
	for _, h := range result.History {
		fmt.Fprintf(w, "iteration %3d  best %.4f  mean %.4f  stddev %.4f  abandoned %d\n",
			h.Iteration, h.Solution.Value, h.Mean, h.StdDev, h.Abandoned)
	}
	return nil
}

// writeYields prints a yield vector.
func writeYields(w io.Writer, format outputFormat, yields []float64) error {
	if format != formatText {
		return writeStructured(w, format, map[string][]float64{"yields": yields})
	}
	_, err := fmt.Fprintln(w, formatVector(yields))
	return err
}
