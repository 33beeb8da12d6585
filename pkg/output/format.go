// Package output renders what-if run results as tables, CSV or JSON.
package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/iwvelando/whatif/internal/config"
	"github.com/iwvelando/whatif/internal/runner"
	"github.com/iwvelando/whatif/pkg/constants"
	"github.com/iwvelando/whatif/pkg/format"
	"github.com/iwvelando/whatif/pkg/goalseek"
	"github.com/iwvelando/whatif/pkg/model"
	"github.com/iwvelando/whatif/pkg/montecarlo"
	"github.com/iwvelando/whatif/pkg/optimization"
	"github.com/iwvelando/whatif/pkg/scenario"
	"github.com/iwvelando/whatif/pkg/solver"
	"github.com/iwvelando/whatif/pkg/validation"
	"golang.org/x/text/language"
)

// Write renders result in outputFormat.
func Write(w io.Writer, outputFormat string, result *runner.Result) error {
	if err := validation.ValidateOutputFormat(outputFormat); err != nil {
		return err
	}
	switch outputFormat {
	case constants.OutputFormatCSV:
		return CsvFormat(w, result)
	case constants.OutputFormatJSON:
		return JSONFormat(w, result)
	default:
		return PrettyFormat(w, result, language.English)
	}
}

// PrettyFormat outputs a human-readable rather than machine-readable report.
func PrettyFormat(w io.Writer, result *runner.Result, tag language.Tag) error {
	if result == nil {
		return fmt.Errorf("no result to format")
	}
	nf := format.NewPrinter(tag, constants.DisplayPrecision)
	r := lipgloss.NewRenderer(w)
	title := r.NewStyle().Bold(true)
	newTable := func(headers ...string) *table.Table {
		return table.New().Border(lipgloss.NormalBorder()).BorderStyle(r.NewStyle()).Headers(headers...)
	}

	var b strings.Builder
	for i, s := range result.Summaries {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(title.Render(fmt.Sprintf("--- %s: %s ---", s.Tool, s.Target)))
		b.WriteString("\n")

		t := newTable("Field", "Value").
			Row("Status", s.Status).
			Row("Objective", nf.Number(s.Objective)).
			Row("Iterations", strconv.Itoa(s.Iterations)).
			Row("Converged", strconv.FormatBool(s.Converged))
		for _, c := range s.Changes {
			t.Row("Set "+string(model.NewCellRef(c.Sheet, c.Address)), nf.Value(c.Value))
		}
		for _, note := range s.Notes {
			t.Row("Note", note)
		}
		b.WriteString(t.String())
		b.WriteString("\n")

		switch s.Tool {
		case config.SectionScenarios:
			if result.Scenarios != nil {
				b.WriteString(scenarioTable(newTable, nf, result.Scenarios).String())
				b.WriteString("\n")
			}
		case config.SectionSimulation:
			if result.Simulation != nil {
				b.WriteString(simulationTable(newTable, nf, result.Simulation).String())
				b.WriteString("\n")
			}
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func scenarioTable(newTable func(...string) *table.Table, nf *format.Printer, report *scenario.SummaryReport) *table.Table {
	headers := append([]string{"Cell"}, report.Order...)
	t := newTable(headers...)
	for _, ref := range report.ChangingCells {
		row := []string{string(ref)}
		for _, name := range report.Order {
			row = append(row, nf.Value(report.ChangingValues[name][ref]))
		}
		t.Row(row...)
	}
	for _, ref := range report.ResultCells {
		row := []string{string(ref) + " (result)"}
		for _, name := range report.Order {
			row = append(row, nf.Value(report.Results[name][ref]))
		}
		t.Row(row...)
	}
	return t
}

func simulationTable(newTable func(...string) *table.Table, nf *format.Printer, res *montecarlo.Result) *table.Table {
	t := newTable("Cell", "Mean", "StdDev", "Min", "P5", "Median", "P95", "Max")
	for _, ref := range sortedOutputs(res) {
		s := res.OutputStats[ref]
		t.Row(string(ref), nf.Number(s.Mean), nf.Number(s.StdDev), nf.Number(s.Min),
			nf.Number(s.Percentiles.P5), nf.Number(s.Median), nf.Number(s.Percentiles.P95), nf.Number(s.Max))
	}
	return t
}

func sortedOutputs(res *montecarlo.Result) []model.CellRef {
	refs := make([]model.CellRef, 0, len(res.OutputStats))
	for ref := range res.OutputStats {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i] < refs[j] })
	return refs
}

// CsvFormat outputs one row per tool run, followed by the scenario report
// and simulation statistics blocks when present. Blocks are separated by an
// empty record.
func CsvFormat(w io.Writer, result *runner.Result) error {
	if result == nil {
		return fmt.Errorf("no result to format")
	}
	cw := csv.NewWriter(w)
	num := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

	records := [][]string{{"tool", "target", "status", "objective", "iterations", "converged", "changes", "notes"}}
	for _, s := range result.Summaries {
		changes := make([]string, len(s.Changes))
		for i, c := range s.Changes {
			changes[i] = string(model.NewCellRef(c.Sheet, c.Address)) + "=" + c.Value.String()
		}
		records = append(records, []string{
			s.Tool, s.Target, s.Status, num(s.Objective), strconv.Itoa(s.Iterations),
			strconv.FormatBool(s.Converged), strings.Join(changes, ";"), strings.Join(s.Notes, ";"),
		})
	}

	if report := result.Scenarios; report != nil {
		records = append(records, []string{})
		records = append(records, append([]string{"cell", "kind"}, report.Order...))
		for _, ref := range report.ChangingCells {
			row := []string{string(ref), "changing"}
			for _, name := range report.Order {
				row = append(row, report.ChangingValues[name][ref].String())
			}
			records = append(records, row)
		}
		for _, ref := range report.ResultCells {
			row := []string{string(ref), "result"}
			for _, name := range report.Order {
				row = append(row, report.Results[name][ref].String())
			}
			records = append(records, row)
		}
	}

	if sim := result.Simulation; sim != nil {
		records = append(records, []string{})
		records = append(records, []string{"cell", "mean", "stdDev", "min", "p5", "p10", "p25", "median", "p75", "p90", "p95", "max"})
		for _, ref := range sortedOutputs(sim) {
			s := sim.OutputStats[ref]
			p := s.Percentiles
			records = append(records, []string{
				string(ref), num(s.Mean), num(s.StdDev), num(s.Min), num(p.P5), num(p.P10), num(p.P25),
				num(s.Median), num(p.P75), num(p.P90), num(p.P95), num(s.Max),
			})
		}
	}

	for _, rec := range records {
		if len(rec) == 0 {
			cw.Flush()
			if _, err := io.WriteString(w, "\n"); err != nil {
				return err
			}
			continue
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

type jsonReport struct {
	Summaries  []optimization.Summary  `json:"summaries"`
	GoalSeek   *goalseek.Result        `json:"goalSeek,omitempty"`
	Scenarios  *scenario.SummaryReport `json:"scenarios,omitempty"`
	Simulation *montecarlo.Result      `json:"simulation,omitempty"`
	Solver     *solver.Outcome         `json:"solver,omitempty"`
	Cells      []model.CellChange      `json:"cells"`
}

// JSONFormat outputs the full result as indented JSON.
func JSONFormat(w io.Writer, result *runner.Result) error {
	if result == nil {
		return fmt.Errorf("no result to format")
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(jsonReport{
		Summaries:  result.Summaries,
		GoalSeek:   result.GoalSeek,
		Scenarios:  result.Scenarios,
		Simulation: result.Simulation,
		Solver:     result.Solver,
		Cells:      result.Cells,
	})
}
