// Package scenario stores named sets of input values and swaps them into a
// model, keeping a snapshot of the base state so it can always be restored.
package scenario

import (
	"time"

	"github.com/iwvelando/whatif/pkg/constants"
	"github.com/iwvelando/whatif/pkg/model"
	"go.uber.org/zap"
)

// ID identifies a scenario within one Manager. IDs increase monotonically
// and wrap on overflow; they are not unique across managers.
type ID uint32

// Scenario is a named set of changing-cell values.
type Scenario struct {
	ID            ID                                `json:"id"`
	Name          string                            `json:"name"`
	ChangingCells []model.CellRef                   `json:"changingCells"`
	Values        map[model.CellRef]model.CellValue `json:"values"`
	CreatedAt     time.Time                         `json:"createdAt"`
	CreatedBy     string                            `json:"createdBy"`
	Comment       string                            `json:"comment,omitempty"`
}

// SummaryReport captures result cells for the base state and each requested
// scenario. Rows are keyed by scenario name, so a later scenario with a
// duplicate name replaces the earlier row.
type SummaryReport struct {
	ChangingCells  []model.CellRef                              `json:"changingCells"`
	ResultCells    []model.CellRef                              `json:"resultCells"`
	Results        map[string]map[model.CellRef]model.CellValue `json:"results"`
	ChangingValues map[string]map[model.CellRef]model.CellValue `json:"changingValues"`
	// Order lists row names in report order, Base first.
	Order []string `json:"order"`
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the creation timestamp source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// Manager owns the scenario table and the base snapshot for one model. It is
// not safe for concurrent use.
type Manager struct {
	logger *zap.Logger
	model  model.Model
	now    func() time.Time

	nextID    ID
	scenarios map[ID]*Scenario
	order     []ID

	base      map[model.CellRef]model.CellValue
	baseOrder []model.CellRef
	current   ID
	applied   bool
}

// NewManager creates an empty manager bound to m.
func NewManager(logger *zap.Logger, m model.Model, opts ...Option) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	mgr := &Manager{
		logger:    logger,
		model:     m,
		now:       time.Now,
		nextID:    1,
		scenarios: make(map[ID]*Scenario),
	}
	for _, opt := range opts {
		opt(mgr)
	}
	return mgr
}

// Create stores a new scenario. values[i] is written to changingCells[i].
// A cell listed twice keeps its last value.
func (m *Manager) Create(name string, changingCells []model.CellRef, values []model.CellValue, createdBy, comment string) (ID, error) {
	if name == "" {
		return 0, model.InvalidParams("scenario name is required")
	}
	if len(changingCells) == 0 {
		return 0, model.InvalidParams("scenario %q needs at least one changing cell", name)
	}
	if len(changingCells) != len(values) {
		return 0, model.InvalidParams("scenario %q has %d changing cells but %d values", name, len(changingCells), len(values))
	}

	cells := make([]model.CellRef, 0, len(changingCells))
	byCell := make(map[model.CellRef]model.CellValue, len(changingCells))
	for i, ref := range changingCells {
		if ref == "" {
			return 0, model.InvalidParams("scenario %q changing cell %d is empty", name, i)
		}
		if _, seen := byCell[ref]; !seen {
			cells = append(cells, ref)
		}
		byCell[ref] = values[i]
	}

	id := m.allocateID()
	m.scenarios[id] = &Scenario{
		ID:            id,
		Name:          name,
		ChangingCells: cells,
		Values:        byCell,
		CreatedAt:     m.now(),
		CreatedBy:     createdBy,
		Comment:       comment,
	}
	m.order = append(m.order, id)

	m.logger.Debug("scenario created",
		zap.String("op", "scenario.Create"),
		zap.Uint32("id", uint32(id)),
		zap.String("name", name),
		zap.Int("cells", len(cells)),
	)
	return id, nil
}

func (m *Manager) allocateID() ID {
	for {
		id := m.nextID
		m.nextID++
		if id == 0 {
			continue
		}
		if _, taken := m.scenarios[id]; !taken {
			return id
		}
	}
}

// Get returns a copy of a stored scenario.
func (m *Manager) Get(id ID) (Scenario, bool) {
	s, ok := m.scenarios[id]
	if !ok {
		return Scenario{}, false
	}
	return s.clone(), true
}

// List returns copies of every scenario in creation order.
func (m *Manager) List() []Scenario {
	out := make([]Scenario, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.scenarios[id].clone())
	}
	return out
}

// Current returns the scenario applied most recently, if any.
func (m *Manager) Current() (ID, bool) {
	return m.current, m.current != 0
}

// Delete removes a scenario. Deleting the applied scenario clears the
// current marker but leaves the model untouched.
func (m *Manager) Delete(id ID) error {
	if _, ok := m.scenarios[id]; !ok {
		return model.InvalidParams("scenario %d does not exist", id)
	}
	delete(m.scenarios, id)
	for i, existing := range m.order {
		if existing == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	if m.current == id {
		m.current = 0
	}
	m.logger.Debug("scenario deleted", zap.String("op", "scenario.Delete"), zap.Uint32("id", uint32(id)))
	return nil
}

// Apply writes a scenario's values into the model and recalculates. The
// first apply snapshots the union of every known scenario's cells; later
// applies extend the snapshot with any cell it does not cover yet.
func (m *Manager) Apply(id ID) error {
	s, ok := m.scenarios[id]
	if !ok {
		return model.InvalidParams("scenario %d does not exist", id)
	}
	if err := m.requireModel(); err != nil {
		return err
	}

	if !m.applied {
		m.base = make(map[model.CellRef]model.CellValue)
		m.baseOrder = nil
		for _, sid := range m.order {
			if err := m.snapshot(m.scenarios[sid].ChangingCells); err != nil {
				return err
			}
		}
		m.applied = true
	} else if err := m.snapshot(s.ChangingCells); err != nil {
		return err
	}

	for _, ref := range s.ChangingCells {
		if err := m.model.Set(ref, s.Values[ref]); err != nil {
			return model.ModelFailuref(err, "writing %s", ref)
		}
	}
	if err := model.Recalculate(m.model); err != nil {
		return err
	}
	m.current = id

	m.logger.Debug("scenario applied",
		zap.String("op", "scenario.Apply"),
		zap.Uint32("id", uint32(id)),
		zap.String("name", s.Name),
	)
	return nil
}

func (m *Manager) snapshot(cells []model.CellRef) error {
	for _, ref := range cells {
		if _, ok := m.base[ref]; ok {
			continue
		}
		v, err := m.model.Get(ref)
		if err != nil {
			return model.ModelFailuref(err, "reading %s", ref)
		}
		m.base[ref] = v
		m.baseOrder = append(m.baseOrder, ref)
	}
	return nil
}

// RestoreBase writes the snapshot back and recalculates. It is a no-op until
// a scenario has been applied. The snapshot is kept, so it may be called
// repeatedly.
func (m *Manager) RestoreBase() error {
	if !m.applied {
		return nil
	}
	if err := m.requireModel(); err != nil {
		return err
	}
	for _, ref := range m.baseOrder {
		if err := m.model.Set(ref, m.base[ref]); err != nil {
			return model.ModelFailuref(err, "restoring %s", ref)
		}
	}
	if err := model.Recalculate(m.model); err != nil {
		return err
	}
	m.current = 0
	m.logger.Debug("scenario base restored", zap.String("op", "scenario.RestoreBase"), zap.Int("cells", len(m.baseOrder)))
	return nil
}

// SummaryReport captures resultCells for the base state and for each of ids
// in order, then leaves the model at its base state. All ids are checked
// before the model is touched.
func (m *Manager) SummaryReport(resultCells []model.CellRef, ids []ID) (*SummaryReport, error) {
	if len(resultCells) == 0 {
		return nil, model.InvalidParams("summary report needs at least one result cell")
	}
	for _, id := range ids {
		if _, ok := m.scenarios[id]; !ok {
			return nil, model.InvalidParams("scenario %d does not exist", id)
		}
	}
	if err := m.requireModel(); err != nil {
		return nil, err
	}

	report := &SummaryReport{
		ResultCells:    append([]model.CellRef(nil), resultCells...),
		Results:        make(map[string]map[model.CellRef]model.CellValue),
		ChangingValues: make(map[string]map[model.CellRef]model.CellValue),
	}
	seenCell := make(map[model.CellRef]bool)
	for _, id := range ids {
		for _, ref := range m.scenarios[id].ChangingCells {
			if !seenCell[ref] {
				seenCell[ref] = true
				report.ChangingCells = append(report.ChangingCells, ref)
			}
		}
	}

	if err := m.RestoreBase(); err != nil {
		return nil, err
	}
	if err := m.captureRow(report, constants.BaseScenarioName); err != nil {
		return nil, err
	}
	for _, id := range ids {
		err := m.Apply(id)
		if err == nil {
			err = m.captureRow(report, m.scenarios[id].Name)
		}
		if err != nil {
			if rerr := m.RestoreBase(); rerr != nil {
				m.logger.Warn("failed to restore base after summary error",
					zap.String("op", "scenario.SummaryReport"),
					zap.Uint32("id", uint32(id)),
					zap.Error(rerr),
				)
			}
			return nil, err
		}
	}
	if err := m.RestoreBase(); err != nil {
		return nil, err
	}

	m.logger.Info("scenario summary generated",
		zap.String("op", "scenario.SummaryReport"),
		zap.Int("scenarios", len(ids)),
		zap.Int("resultCells", len(resultCells)),
	)
	return report, nil
}

func (m *Manager) captureRow(report *SummaryReport, name string) error {
	results := make(map[model.CellRef]model.CellValue, len(report.ResultCells))
	for _, ref := range report.ResultCells {
		v, err := m.model.Get(ref)
		if err != nil {
			return model.ModelFailuref(err, "reading %s", ref)
		}
		results[ref] = v
	}
	inputs := make(map[model.CellRef]model.CellValue, len(report.ChangingCells))
	for _, ref := range report.ChangingCells {
		v, err := m.model.Get(ref)
		if err != nil {
			return model.ModelFailuref(err, "reading %s", ref)
		}
		inputs[ref] = v
	}

	if _, exists := report.Results[name]; !exists {
		report.Order = append(report.Order, name)
	}
	report.Results[name] = results
	report.ChangingValues[name] = inputs
	return nil
}

func (m *Manager) requireModel() error {
	if m.model == nil {
		return model.InvalidParams("scenario manager has no model")
	}
	return nil
}

func (s *Scenario) clone() Scenario {
	out := *s
	out.ChangingCells = append([]model.CellRef(nil), s.ChangingCells...)
	out.Values = make(map[model.CellRef]model.CellValue, len(s.Values))
	for k, v := range s.Values {
		out.Values[k] = v
	}
	return out
}
