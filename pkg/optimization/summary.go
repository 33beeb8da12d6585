// Package optimization provides shared data structures for what-if run results.
package optimization

import "github.com/iwvelando/whatif/pkg/model"

// Summary captures the outcome of a single what-if tool run.
type Summary struct {
	Tool       string             `json:"tool"`
	Target     string             `json:"target"`
	Status     string             `json:"status"`
	Objective  float64            `json:"objective"`
	Iterations int                `json:"iterations"`
	Converged  bool               `json:"converged"`
	Changes    []model.CellChange `json:"changes,omitempty"`
	Notes      []string           `json:"notes,omitempty"`
}

// AddNote appends a note when it is not empty.
func (s *Summary) AddNote(note string) {
	if note != "" {
		s.Notes = append(s.Notes, note)
	}
}
