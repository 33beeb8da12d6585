package output

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"

	"github.com/iwvelando/whatif/internal/runner"
	"github.com/iwvelando/whatif/pkg/model"
	"github.com/iwvelando/whatif/pkg/montecarlo"
	"github.com/iwvelando/whatif/pkg/optimization"
	"github.com/iwvelando/whatif/pkg/scenario"
	"golang.org/x/text/language"
)

func sampleResult() *runner.Result {
	return &runner.Result{
		Summaries: []optimization.Summary{
			{
				Tool:       "goalSeek",
				Target:     "Model!A2",
				Status:     "Converged",
				Objective:  1234567.891,
				Iterations: 3,
				Converged:  true,
				Changes:    []model.CellChange{{Sheet: "Model", Address: "A1", Value: model.Number(25)}},
			},
			{
				Tool:       "scenarios",
				Target:     "Model!A2",
				Status:     runner.StatusReported,
				Iterations: 1,
				Converged:  true,
				Notes:      []string{"scenario \"High\" left applied"},
			},
			{
				Tool:       "simulation",
				Target:     "Model!A2",
				Status:     runner.StatusCompleted,
				Objective:  20,
				Iterations: 100,
				Converged:  true,
			},
		},
		Scenarios: &scenario.SummaryReport{
			ChangingCells: []model.CellRef{"Model!A1"},
			ResultCells:   []model.CellRef{"Model!A2"},
			Order:         []string{"Base", "High"},
			ChangingValues: map[string]map[model.CellRef]model.CellValue{
				"Base": {"Model!A1": model.Number(10)},
				"High": {"Model!A1": model.Number(100)},
			},
			Results: map[string]map[model.CellRef]model.CellValue{
				"Base": {"Model!A2": model.Number(20)},
				"High": {"Model!A2": model.Number(200)},
			},
		},
		Simulation: &montecarlo.Result{
			Iterations: 100,
			OutputStats: map[model.CellRef]montecarlo.Statistics{
				"Model!A2": {Mean: 20, Median: 19.5, StdDev: 4, Min: 8, Max: 31},
			},
		},
		Cells: []model.CellChange{{Sheet: "Model", Address: "A1", Value: model.Number(25)}},
	}
}

func TestPrettyFormat(t *testing.T) {
	var buf bytes.Buffer
	if err := PrettyFormat(&buf, sampleResult(), language.English); err != nil {
		t.Fatalf("PrettyFormat() error = %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"--- goalSeek: Model!A2 ---",
		"1,234,567.891",
		"Set Model!A1",
		"Converged",
		"Model!A2 (result)",
		"High",
		"200",
		"StdDev",
		"19.5",
		"left applied",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("PrettyFormat output missing %q:\n%s", want, out)
		}
	}
}

func TestPrettyFormatLocale(t *testing.T) {
	var buf bytes.Buffer
	res := &runner.Result{Summaries: []optimization.Summary{{Tool: "solver", Target: "Model!B4", Objective: 1234.5}}}
	if err := PrettyFormat(&buf, res, language.German); err != nil {
		t.Fatalf("PrettyFormat() error = %v", err)
	}
	if !strings.Contains(buf.String(), "1.234,5") {
		t.Fatalf("German output missing grouped number:\n%s", buf.String())
	}
}

func TestCsvFormat(t *testing.T) {
	var buf bytes.Buffer
	if err := CsvFormat(&buf, sampleResult()); err != nil {
		t.Fatalf("CsvFormat() error = %v", err)
	}
	blocks := strings.Split(strings.TrimSpace(buf.String()), "\n\n")
	if len(blocks) != 3 {
		t.Fatalf("CsvFormat produced %d blocks, want 3:\n%s", len(blocks), buf.String())
	}

	summary, err := csv.NewReader(strings.NewReader(blocks[0])).ReadAll()
	if err != nil {
		t.Fatalf("summary block is not valid CSV: %v", err)
	}
	if len(summary) != 4 || summary[0][0] != "tool" {
		t.Fatalf("summary block = %v", summary)
	}
	if summary[1][3] != "1234567.891" || summary[1][6] != "Model!A1=25" {
		t.Errorf("goal seek row = %v", summary[1])
	}
	if summary[2][7] != `scenario "High" left applied` {
		t.Errorf("notes column = %q", summary[2][7])
	}

	matrix, err := csv.NewReader(strings.NewReader(blocks[1])).ReadAll()
	if err != nil {
		t.Fatalf("scenario block is not valid CSV: %v", err)
	}
	want := [][]string{
		{"cell", "kind", "Base", "High"},
		{"Model!A1", "changing", "10", "100"},
		{"Model!A2", "result", "20", "200"},
	}
	for i := range want {
		if strings.Join(matrix[i], ",") != strings.Join(want[i], ",") {
			t.Errorf("scenario row %d = %v, want %v", i, matrix[i], want[i])
		}
	}

	if !strings.HasPrefix(blocks[2], "cell,mean,stdDev") || !strings.Contains(blocks[2], "Model!A2,20,4,8") {
		t.Errorf("statistics block = %q", blocks[2])
	}
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	if err := JSONFormat(&buf, sampleResult()); err != nil {
		t.Fatalf("JSONFormat() error = %v", err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("JSONFormat output is not JSON: %v", err)
	}
	for _, key := range []string{"summaries", "scenarios", "simulation", "cells"} {
		if _, ok := decoded[key]; !ok {
			t.Errorf("JSON output missing %q", key)
		}
	}
	for _, key := range []string{"goalSeek", "solver"} {
		if _, ok := decoded[key]; ok {
			t.Errorf("JSON output has empty section %q", key)
		}
	}
}

func TestWrite(t *testing.T) {
	tests := []struct {
		format  string
		prefix  string
		wantErr bool
	}{
		{format: "csv", prefix: "tool,target"},
		{format: "json", prefix: "{"},
		{format: "pretty", prefix: "--- goalSeek"},
		{format: "xml", wantErr: true},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		err := Write(&buf, tt.format, sampleResult())
		if (err != nil) != tt.wantErr {
			t.Fatalf("Write(%s) error = %v, wantErr %v", tt.format, err, tt.wantErr)
		}
		if !tt.wantErr && !strings.Contains(buf.String(), tt.prefix) {
			t.Errorf("Write(%s) output does not contain %q", tt.format, tt.prefix)
		}
	}
	if err := Write(&bytes.Buffer{}, "csv", nil); err == nil {
		t.Fatalf("Write(nil) expected error")
	}
}
