package widget

import (
	"encoding/json"
	"slices"
	"time"

	"jobcoach/internal/types"
)

// ChecklistData is the live checklist widget's data. The first three lists
// mirror the job cheat sheet; the covered lists hold the items the user
// ticked off during the interview.
type ChecklistData struct {
	Metrics         []string `json:"metrics"`
	Levers          []string `json:"levers"`
	Blockers        []string `json:"blockers"`
	CoveredMetrics  []string `json:"coveredMetrics"`
	CoveredLevers   []string `json:"coveredLevers"`
	CoveredBlockers []string `json:"coveredBlockers"`
}

// DeriveChecklist recomputes the checklist from the cheat sheet. Each
// covered list keeps, in its own order, only the items still present in
// the matching upstream list.
func DeriveChecklist(cheat types.CheatSheet, prev ChecklistData) ChecklistData {
	return ChecklistData{
		Metrics:         orEmpty(slices.Clone(cheat.Metrics)),
		Levers:          orEmpty(slices.Clone(cheat.Levers)),
		Blockers:        orEmpty(slices.Clone(cheat.Blockers)),
		CoveredMetrics:  pruneCovered(prev.CoveredMetrics, cheat.Metrics),
		CoveredLevers:   pruneCovered(prev.CoveredLevers, cheat.Levers),
		CoveredBlockers: pruneCovered(prev.CoveredBlockers, cheat.Blockers),
	}
}

// normalize drops covered items that are not in their list and repeats.
func (c ChecklistData) normalize() ChecklistData {
	c.Metrics = orEmpty(c.Metrics)
	c.Levers = orEmpty(c.Levers)
	c.Blockers = orEmpty(c.Blockers)
	c.CoveredMetrics = pruneCovered(c.CoveredMetrics, c.Metrics)
	c.CoveredLevers = pruneCovered(c.CoveredLevers, c.Levers)
	c.CoveredBlockers = pruneCovered(c.CoveredBlockers, c.Blockers)
	return c
}

func pruneCovered(covered, upstream []string) []string {
	out := make([]string, 0, len(covered))
	for _, item := range covered {
		if slices.Contains(upstream, item) && !slices.Contains(out, item) {
			out = append(out, item)
		}
	}
	return out
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// SetData replaces a widget's data and stamps it with now. An edit of the
// job cheat sheet re-derives the live checklist. An edit of the checklist
// itself keeps only its covered items; its lists are taken from the cheat
// sheet when one is registered, else from the edit.
func (s StateMap) SetData(reg *Registry, id WidgetID, data json.RawMessage, now time.Time) error {
	d, ok := reg.Get(id)
	if !ok {
		return unknownWidget(id)
	}
	if err := d.ValidateData(data); err != nil {
		return err
	}

	stamp := now.UTC().Format(time.RFC3339)

	derived := id == LiveChecklist && reg.Has(JobCheatSheet)
	if id == LiveChecklist && !derived {
		var cl ChecklistData
		if err := json.Unmarshal(data, &cl); err != nil {
			return err
		}
		normalized, err := json.Marshal(cl.normalize())
		if err != nil {
			return err
		}
		data = normalized
	}

	st := s[id]
	st.Data = slices.Clone(data)
	st.LastUpdated = stamp
	s[id] = st

	if derived {
		// The lists follow the cheat sheet; only the covered items come
		// from the edit.
		if _, err := s.syncChecklist(); err != nil {
			return err
		}
	}

	if id == JobCheatSheet && reg.Has(LiveChecklist) {
		changed, err := s.syncChecklist()
		if err != nil {
			return err
		}
		if changed {
			cl := s[LiveChecklist]
			cl.LastUpdated = stamp
			s[LiveChecklist] = cl
		}
	}
	return nil
}

// SyncChecklist re-derives the live checklist from the job cheat sheet
// when both widgets are registered, and reports whether it changed.
func (s StateMap) SyncChecklist(reg *Registry) (bool, error) {
	if !reg.Has(JobCheatSheet) || !reg.Has(LiveChecklist) {
		return false, nil
	}
	return s.syncChecklist()
}

// syncChecklist re-derives the live checklist from the current cheat
// sheet data and reports whether it changed.
func (s StateMap) syncChecklist() (bool, error) {
	var cheat types.CheatSheet
	if st, ok := s[JobCheatSheet]; ok && len(st.Data) > 0 {
		if err := json.Unmarshal(st.Data, &cheat); err != nil {
			return false, err
		}
	}

	var prev ChecklistData
	cur := s[LiveChecklist]
	if len(cur.Data) > 0 {
		if err := json.Unmarshal(cur.Data, &prev); err != nil {
			return false, err
		}
	}

	derived, err := json.Marshal(DeriveChecklist(cheat, prev))
	if err != nil {
		return false, err
	}
	if jsonEqual(derived, cur.Data) {
		return false, nil
	}
	cur.Data = derived
	s[LiveChecklist] = cur
	return true, nil
}

// SetCollapsed records an explicit collapsed flag for id.
func (s StateMap) SetCollapsed(reg *Registry, id WidgetID, collapsed bool) error {
	if !reg.Has(id) {
		return unknownWidget(id)
	}
	st := s[id]
	st.Collapsed = &collapsed
	s[id] = st
	return nil
}
