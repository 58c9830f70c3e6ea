package productview

import (
	"fmt"

	"github.com/geocoder89/shopadmin/internal/domain/product"
	"github.com/geocoder89/shopadmin/internal/state"
)

// PendingDelete is a row taken off the table whose remote removal has not
// answered yet. Position is the row's place in the fetched list, which later
// deletes do not shift.
type PendingDelete struct {
	Row      product.DisplayRow `json:"row"`
	Position int                `json:"position"`
}

type ListState struct {
	Loading     bool                 `json:"loading"`
	Loaded      bool                 `json:"loaded"`
	Rows        []product.DisplayRow `json:"rows"`
	Pending     []PendingDelete      `json:"pending,omitempty"`
	FetchError  string               `json:"fetchError,omitempty"`
	DeleteError string               `json:"deleteError,omitempty"`

	// Order maps row id to its position in the fetched list. Built once per
	// fetch and never written afterwards.
	Order map[string]int `json:"-"`

	// Revision counts the transitions the controller has applied.
	Revision uint64 `json:"-"`
}

type (
	FetchStarted   struct{}
	FetchSucceeded struct{ Rows []product.DisplayRow }
	FetchFailed    struct{ Err string }

	RowRemoved      struct{ ID string }
	RemoveConfirmed struct{ ID string }
	RemoveFailed    struct {
		ID     string
		Err    string
		Revert bool
	}
)

func (FetchStarted) Type() string    { return "adminProduct/fetchProducts/pending" }
func (FetchSucceeded) Type() string  { return "adminProduct/fetchProducts/fulfilled" }
func (FetchFailed) Type() string     { return "adminProduct/fetchProducts/rejected" }
func (RowRemoved) Type() string      { return "adminProduct/removeProduct/pending" }
func (RemoveConfirmed) Type() string { return "adminProduct/removeProduct/fulfilled" }
func (RemoveFailed) Type() string    { return "adminProduct/removeProduct/rejected" }

// Reduce never mutates the slices of s.
func Reduce(s ListState, action state.Action) ListState {
	switch a := action.(type) {
	case FetchStarted:
		s.Loading = true
		s.FetchError = ""

	case FetchSucceeded:
		s.Loading = false
		s.Loaded = true
		s.Rows = a.Rows
		if s.Rows == nil {
			s.Rows = []product.DisplayRow{}
		}
		s.Order = make(map[string]int, len(s.Rows))
		for i, r := range s.Rows {
			s.Order[r.ID] = i
		}

	case FetchFailed:
		s.Loading = false
		s.Loaded = true
		s.Rows = []product.DisplayRow{}
		s.Order = nil
		s.FetchError = a.Err

	case RowRemoved:
		rest, removed, idx := product.RemoveRow(s.Rows, a.ID)
		if idx < 0 {
			return s
		}
		pos, ok := s.Order[a.ID]
		if !ok {
			pos = idx
		}
		s.Rows = rest
		s.Pending = appendPending(s.Pending, PendingDelete{Row: removed, Position: pos})

	case RemoveConfirmed:
		s.Pending, _, _ = dropPending(s.Pending, a.ID)

	case RemoveFailed:
		var p PendingDelete
		var ok bool
		s.Pending, p, ok = dropPending(s.Pending, a.ID)
		s.DeleteError = fmt.Sprintf("could not delete product %s: %s", a.ID, a.Err)
		if ok && a.Revert {
			s.Rows = restoreRow(s.Rows, s.Order, p)
		}
	}
	return s
}

// restoreRow puts p back in front of the first row that came after it in the
// fetched list. Without a fetch order it falls back to the recorded position.
func restoreRow(rows []product.DisplayRow, order map[string]int, p PendingDelete) []product.DisplayRow {
	if order == nil {
		return product.InsertRow(rows, p.Position, p.Row)
	}

	at := len(rows)
	for i, r := range rows {
		if pos, ok := order[r.ID]; ok && pos > p.Position {
			at = i
			break
		}
	}
	return product.InsertRow(rows, at, p.Row)
}

func appendPending(pending []PendingDelete, p PendingDelete) []PendingDelete {
	out := make([]PendingDelete, 0, len(pending)+1)
	out = append(out, pending...)
	return append(out, p)
}

func dropPending(pending []PendingDelete, id string) ([]PendingDelete, PendingDelete, bool) {
	for i, p := range pending {
		if p.Row.ID != id {
			continue
		}
		out := make([]PendingDelete, 0, len(pending)-1)
		out = append(out, pending[:i]...)
		out = append(out, pending[i+1:]...)
		if len(out) == 0 {
			out = nil
		}
		return out, p, true
	}
	return pending, PendingDelete{}, false
}
