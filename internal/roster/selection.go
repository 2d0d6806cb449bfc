package roster

import "sort"

// Selection tracks the checked student ids of one caller. SelectAll is
// recomputed from the selected and visible sets after every mutation.
//
// Ids that drop out of the visible set stay selected; Effective reports the
// part of the selection that is currently visible.
type Selection struct {
	selected  map[uint]struct{}
	visible   []uint
	selectAll bool
}

// NewSelection returns a selection pre-populated with ids.
func NewSelection(ids ...uint) *Selection {
	s := &Selection{selected: make(map[uint]struct{}, len(ids))}
	for _, id := range ids {
		s.selected[id] = struct{}{}
	}
	s.recompute()
	return s
}

// SetVisible replaces the visible id set.
func (s *Selection) SetVisible(ids []uint) {
	s.visible = append([]uint(nil), ids...)
	s.recompute()
}

// ToggleOne adds or removes a single id.
func (s *Selection) ToggleOne(id uint, checked bool) {
	if checked {
		s.selected[id] = struct{}{}
	} else {
		delete(s.selected, id)
	}
	s.recompute()
}

// ToggleAll selects or deselects every id in visible. Ids outside visible
// are left untouched.
func (s *Selection) ToggleAll(checked bool, visible []uint) {
	s.visible = append([]uint(nil), visible...)
	for _, id := range visible {
		if checked {
			s.selected[id] = struct{}{}
		} else {
			delete(s.selected, id)
		}
	}
	s.recompute()
}

// Clear empties the selection.
func (s *Selection) Clear() {
	s.selected = make(map[uint]struct{})
	s.recompute()
}

// SelectAll reports whether every visible id is selected.
func (s *Selection) SelectAll() bool {
	return s.selectAll
}

// Has reports whether id is selected.
func (s *Selection) Has(id uint) bool {
	_, ok := s.selected[id]
	return ok
}

// IDs returns every selected id in ascending order, visible or not.
func (s *Selection) IDs() []uint {
	ids := make([]uint, 0, len(s.selected))
	for id := range s.selected {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Effective returns the selected ids that are currently visible, in visible order.
func (s *Selection) Effective() []uint {
	ids := make([]uint, 0, len(s.visible))
	for _, id := range s.visible {
		if _, ok := s.selected[id]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}

func (s *Selection) recompute() {
	if s.selected == nil {
		s.selected = make(map[uint]struct{})
	}
	if len(s.visible) == 0 {
		s.selectAll = false
		return
	}
	for _, id := range s.visible {
		if _, ok := s.selected[id]; !ok {
			s.selectAll = false
			return
		}
	}
	s.selectAll = true
}

// VisibleCount returns the size of the visible set.
func (s *Selection) VisibleCount() int {
	return len(s.visible)
}
