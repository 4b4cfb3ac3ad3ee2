// Package output renders evaluation results, cycle reports and the node type
// catalogue for the terminal.
package output

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/ritzau/hesiod/pkg/cycles"
	"github.com/ritzau/hesiod/pkg/registry"
	"github.com/ritzau/hesiod/pkg/runtime"
	"github.com/ritzau/hesiod/pkg/value"
)

// maxValueWidth keeps lists, maps and long texts on one line
const maxValueWidth = 72

var (
	bold   = color.New(color.Bold)
	red    = color.New(color.FgRed)
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	cyan   = color.New(color.FgCyan)
	faint  = color.New(color.Faint)
)

// PrintEvaluationReport prints every output of every returned node, sorted
// by node and port, followed by the cache statistics
func PrintEvaluationReport(w io.Writer, projectName string, results runtime.Results, stats runtime.Stats) {
	bold.Fprintf(w, "Hesiod - %s\n", projectName)
	bold.Fprintln(w, "=========================")
	faint.Fprintf(w, "Evaluation %s\n", stats.EvaluationID)
	fmt.Fprintln(w)

	for _, key := range slices.Sorted(maps.Keys(results)) {
		cyan.Fprintf(w, "%s\n", key)
		outputs := results[key]
		for _, port := range slices.Sorted(maps.Keys(outputs)) {
			fmt.Fprintf(w, "  %s = %s\n", port, describe(outputs[port]))
		}
	}
	if len(results) == 0 {
		yellow.Fprintln(w, "No nodes evaluated")
	}
	fmt.Fprintln(w)

	summary := green
	if stats.Evaluated > 0 && stats.Reused == 0 && stats.Total > 1 {
		summary = yellow
	}
	summary.Fprintf(w, "Summary: %d node(s), %d evaluated, %d reused from cache in %s\n",
		stats.Total, stats.Evaluated, stats.Reused, stats.Duration.Round(time.Microsecond))
}

// PrintCycles prints the cycle report produced by --validate
func PrintCycles(w io.Writer, found []cycles.Cycle) {
	if len(found) == 0 {
		green.Fprintln(w, "✓ No cycles found")
		return
	}
	red.Fprintf(w, "CYCLES (%d):\n", len(found))
	for _, c := range found {
		yellow.Fprintf(w, "  %s\n", formatCycle(c.Nodes))
	}
}

func formatCycle(keys []string) string {
	if len(keys) == 1 {
		return keys[0] + " -> " + keys[0]
	}
	return strings.Join(keys, ", ")
}

// PrintTypes lists every registered node type grouped by category, in
// registration order within a category
func PrintTypes(w io.Writer, reg *registry.Registry) {
	byCategory := make(map[string][]*registry.Definition)
	var categories []string
	for _, name := range reg.Types() {
		def, err := reg.Get(name)
		if err != nil {
			continue
		}
		category := "Uncategorized"
		if def.Metadata != nil && def.Metadata.Category != "" {
			category = def.Metadata.Category
		}
		if _, ok := byCategory[category]; !ok {
			categories = append(categories, category)
		}
		byCategory[category] = append(byCategory[category], def)
	}

	for _, category := range categories {
		bold.Fprintf(w, "%s\n", category)
		for _, def := range byCategory[category] {
			cyan.Fprintf(w, "  %-24s", def.Type)
			fmt.Fprintf(w, " %s\n", def.Description)
			if def.Metadata == nil {
				continue
			}
			for _, p := range def.Metadata.Inputs {
				faint.Fprintf(w, "      in  %s (%s)\n", p.Name, p.DataType)
			}
			for _, p := range def.Metadata.Outputs {
				faint.Fprintf(w, "      out %s (%s)\n", p.Name, p.DataType)
			}
			for _, p := range def.Metadata.Parameters {
				faint.Fprintf(w, "      %s: %s = %s\n", p.Name, p.Type, describe(p.Default))
			}
		}
	}
}

func describe(v value.Value) string {
	s := v.String()
	if arr, ok := v.AsArray(); ok {
		if data := arr.Float64s(); len(data) > 0 {
			s += fmt.Sprintf(" range [%g, %g]", slices.Min(data), slices.Max(data))
		}
		return s
	}
	if len(s) > maxValueWidth {
		return s[:maxValueWidth-3] + "..."
	}
	return s
}
