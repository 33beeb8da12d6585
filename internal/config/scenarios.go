package config

import (
	"fmt"
	"strings"

	"github.com/iwvelando/whatif/pkg/model"
	"github.com/iwvelando/whatif/pkg/validation"
)

// DefaultCreatedBy is recorded on scenarios that do not name an author.
const DefaultCreatedBy = "whatif"

// ScenariosConfig declares named scenarios and the result cells captured
// for each of them in the summary report.
type ScenariosConfig struct {
	Definitions []ScenarioConfig `json:"definitions" yaml:"definitions" mapstructure:"definitions"`
	ResultCells []string         `json:"resultCells" yaml:"resultCells" mapstructure:"resultCells"`
	// Show names a scenario to leave applied after the report. Empty leaves
	// the workbook at its base values.
	Show string `json:"show,omitempty" yaml:"show,omitempty" mapstructure:"show"`
}

// ScenarioConfig is one named set of changing-cell values.
type ScenarioConfig struct {
	Name      string            `json:"name" yaml:"name" mapstructure:"name"`
	CreatedBy string            `json:"createdBy,omitempty" yaml:"createdBy,omitempty" mapstructure:"createdBy"`
	Comment   string            `json:"comment,omitempty" yaml:"comment,omitempty" mapstructure:"comment"`
	Cells     []CellValueConfig `json:"cells" yaml:"cells" mapstructure:"cells"`
}

// CellValueConfig assigns a literal to a cell.
type CellValueConfig struct {
	Cell  string      `json:"cell" yaml:"cell" mapstructure:"cell"`
	Value interface{} `json:"value" yaml:"value" mapstructure:"value"`
}

// Normalize trims names and fills in the default author.
func (s *ScenariosConfig) Normalize() {
	if s == nil {
		return
	}
	s.Show = strings.TrimSpace(s.Show)
	for i := range s.ResultCells {
		s.ResultCells[i] = strings.TrimSpace(s.ResultCells[i])
	}
	for i := range s.Definitions {
		d := &s.Definitions[i]
		d.Name = strings.TrimSpace(d.Name)
		d.CreatedBy = strings.TrimSpace(d.CreatedBy)
		if d.CreatedBy == "" {
			d.CreatedBy = DefaultCreatedBy
		}
		for j := range d.Cells {
			d.Cells[j].Cell = strings.TrimSpace(d.Cells[j].Cell)
		}
	}
}

// Validate returns an error when a scenario cannot be created or reported.
func (s *ScenariosConfig) Validate() error {
	if s == nil {
		return fmt.Errorf("scenarios configuration cannot be nil")
	}
	s.Normalize()
	if len(s.Definitions) == 0 {
		return model.InvalidParams("at least one scenario definition is required")
	}
	for i := range s.Definitions {
		if _, _, err := s.Definitions[i].Changes(); err != nil {
			return model.WithContext(err, "scenario %d", i)
		}
	}
	if len(s.ResultCells) == 0 {
		return model.InvalidParams("at least one result cell is required")
	}
	for i, ref := range s.Results() {
		if err := validation.CellRequired("result cell", ref); err != nil {
			return model.WithContext(err, "result %d", i)
		}
	}
	if s.Show != "" && s.find(s.Show) < 0 {
		return model.InvalidParams("show names unknown scenario %q", s.Show)
	}
	return nil
}

// Results returns the result cells as references.
func (s *ScenariosConfig) Results() []model.CellRef {
	out := make([]model.CellRef, len(s.ResultCells))
	for i, c := range s.ResultCells {
		out[i] = model.CellRef(c)
	}
	return out
}

func (s *ScenariosConfig) find(name string) int {
	for i, d := range s.Definitions {
		if strings.EqualFold(d.Name, name) {
			return i
		}
	}
	return -1
}

// Changes converts the cell list into the parallel slices scenario.Manager
// expects.
func (d ScenarioConfig) Changes() ([]model.CellRef, []model.CellValue, error) {
	if d.Name == "" {
		return nil, nil, model.InvalidParams("scenario name is required")
	}
	if len(d.Cells) == 0 {
		return nil, nil, model.InvalidParams("scenario %q needs at least one changing cell", d.Name)
	}
	cells := make([]model.CellRef, len(d.Cells))
	values := make([]model.CellValue, len(d.Cells))
	for i, c := range d.Cells {
		if err := validation.CellRequired("changing cell", model.CellRef(c.Cell)); err != nil {
			return nil, nil, model.WithContext(err, "scenario %q", d.Name)
		}
		v, err := model.FromInterface(c.Value)
		if err != nil {
			return nil, nil, model.InvalidParams("scenario %q cell %s: %v", d.Name, c.Cell, err)
		}
		cells[i] = model.CellRef(c.Cell)
		values[i] = v
	}
	return cells, values, nil
}
