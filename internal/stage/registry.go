package stage

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrNoStages is returned when a job selects no stage at all.
var ErrNoStages = errors.New("no stages selected for job")

// Registry is the ordered stage catalog.
type Registry struct {
	defs  []Definition
	index map[string]int
}

// NewRegistry validates and stores definitions in execution order.
func NewRegistry(defs ...Definition) (*Registry, error) {
	r := &Registry{index: make(map[string]int, len(defs))}
	for i, def := range defs {
		def.ID = strings.TrimSpace(def.ID)
		if def.ID == "" {
			return nil, fmt.Errorf("stage definition %d: id required", i)
		}
		if _, dup := r.index[def.ID]; dup {
			return nil, fmt.Errorf("stage %q: duplicate id", def.ID)
		}
		if def.Weight <= 0 {
			return nil, fmt.Errorf("stage %q: weight must be positive", def.ID)
		}
		if def.Work == nil {
			return nil, fmt.Errorf("stage %q: work function required", def.ID)
		}
		if def.Title == "" {
			def.Title = def.ID
		}
		r.index[def.ID] = len(r.defs)
		r.defs = append(r.defs, def)
	}
	return r, nil
}

// Definitions returns the catalog in execution order.
func (r *Registry) Definitions() []Definition {
	if r == nil {
		return nil
	}
	out := make([]Definition, len(r.defs))
	copy(out, r.defs)
	return out
}

// Lookup returns the definition registered under id.
func (r *Registry) Lookup(id string) (Definition, bool) {
	if r == nil {
		return Definition{}, false
	}
	idx, ok := r.index[id]
	if !ok {
		return Definition{}, false
	}
	return r.defs[idx], true
}

// Select returns the definitions included for job, in catalog order.
func (r *Registry) Select(job Job) []Definition {
	if r == nil {
		return nil
	}
	selected := make([]Definition, 0, len(r.defs))
	for _, def := range r.defs {
		if def.Include != nil && !def.Include(job) {
			continue
		}
		selected = append(selected, def)
	}
	return selected
}

// Build produces the pending stage list for job. Weights of the selected
// stages are re-apportioned so they sum to exactly 100.
func (r *Registry) Build(job Job) ([]Stage, error) {
	selected := r.Select(job)
	if len(selected) == 0 {
		return nil, ErrNoStages
	}
	weights := make([]int, len(selected))
	for i, def := range selected {
		weights[i] = def.Weight
	}
	shares := Apportion(weights)
	stages := make([]Stage, len(selected))
	for i, def := range selected {
		stages[i] = Stage{
			ID:          def.ID,
			Title:       def.Title,
			Description: def.Description,
			Source:      def.Source,
			Weight:      shares[i],
			Status:      StatusPending,
		}
	}
	return stages, nil
}

// Apportion scales weights to integer shares summing to 100 using the largest
// remainder method. Ties go to the earlier position.
func Apportion(weights []int) []int {
	shares := make([]int, len(weights))
	total := 0
	for _, w := range weights {
		if w > 0 {
			total += w
		}
	}
	if total == 0 {
		return shares
	}

	type remainder struct {
		idx int
		rem int
	}
	rems := make([]remainder, 0, len(weights))
	assigned := 0
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		scaled := w * 100
		shares[i] = scaled / total
		assigned += shares[i]
		rems = append(rems, remainder{idx: i, rem: scaled % total})
	}
	sort.SliceStable(rems, func(a, b int) bool {
		return rems[a].rem > rems[b].rem
	})
	for i := 0; assigned < 100 && len(rems) > 0; i++ {
		shares[rems[i%len(rems)].idx]++
		assigned++
	}
	return shares
}
