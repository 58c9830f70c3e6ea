package product

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var ErrNotFound = errors.New("product not found")

// ID is the product id exactly as the product api sent it. The api uses numeric
// ids today; strings are accepted so nothing is lost if that changes.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}

	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("product_id: %w", err)
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string { return string(id) }

// Record is one product as served by the product api.
type Record struct {
	ID        ID        `json:"product_id"`
	Name      string    `json:"name"`
	SKU       string    `json:"SKU"`
	Price     float64   `json:"price"`
	Quantity  int       `json:"quantity"`
	CreatedAt time.Time `json:"created_at"`
	Category  string    `json:"category"`
	Image     string    `json:"image"`

	// CreatedAtWallClock marks a created_at sent without a zone. It is shown
	// as sent rather than converted to the display zone.
	CreatedAtWallClock bool `json:"-"`
}

// createdAtLayouts are tried in order; the first three carry a zone.
var createdAtLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// UnmarshalJSON decodes a record leniently: a created_at in any of the
// createdAtLayouts, or unix milliseconds, is read; anything else leaves
// CreatedAt zero instead of failing the record.
func (r *Record) UnmarshalJSON(b []byte) error {
	type plain Record
	aux := struct {
		*plain
		CreatedAt json.RawMessage `json:"created_at"`
	}{plain: (*plain)(r)}

	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	r.CreatedAt, r.CreatedAtWallClock = parseCreatedAt(aux.CreatedAt)
	return nil
}

func parseCreatedAt(raw json.RawMessage) (time.Time, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return time.Time{}, false
	}

	if raw[0] != '"' {
		ms, err := strconv.ParseInt(string(raw), 10, 64)
		if err != nil {
			return time.Time{}, false
		}
		return time.UnixMilli(ms).UTC(), false
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return time.Time{}, false
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}

	for i, layout := range createdAtLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, i >= 3
		}
	}
	return time.Time{}, false
}

// DisplayRow is the table-ready shape of a Record.
type DisplayRow struct {
	ID        string `json:"id"`
	SKU       string `json:"SKU"`
	Name      string `json:"name"`
	Img       string `json:"img"`
	Category  string `json:"category"`
	Price     string `json:"price"`
	Stock     int    `json:"stock"`
	DateAdded string `json:"dateAdded"`
}

const DefaultDateTimeFormat = "2006-01-02 15:04:05"

type Projector struct {
	Layout   string
	Location *time.Location
}

func (p Projector) Row(r Record) DisplayRow {
	layout := p.Layout
	if layout == "" {
		layout = DefaultDateTimeFormat
	}
	loc := p.Location
	if loc == nil {
		loc = time.UTC
	}

	return DisplayRow{
		ID:        r.ID.String(),
		SKU:       r.SKU,
		Name:      r.Name,
		Img:       r.Image,
		Category:  r.Category,
		Price:     FormatPrice(r.Price),
		Stock:     r.Quantity,
		DateAdded: formatCreatedAt(r, loc, layout),
	}
}

func formatCreatedAt(r Record, loc *time.Location, layout string) string {
	switch {
	case r.CreatedAt.IsZero():
		return ""
	case r.CreatedAtWallClock:
		return r.CreatedAt.Format(layout)
	default:
		return r.CreatedAt.In(loc).Format(layout)
	}
}

func (p Projector) Project(records []Record) []DisplayRow {
	rows := make([]DisplayRow, 0, len(records))
	for _, r := range records {
		rows = append(rows, p.Row(r))
	}
	return rows
}

// FormatPrice renders a price with exactly two decimals.
func FormatPrice(price float64) string {
	return strconv.FormatFloat(price, 'f', 2, 64)
}

// RemoveRow returns rows without the row whose id matches, plus the removed row
// and its index. index is -1 when id is absent and rows is returned as is.
func RemoveRow(rows []DisplayRow, id string) (rest []DisplayRow, removed DisplayRow, index int) {
	index = -1
	for i, r := range rows {
		if r.ID == id {
			index = i
			removed = r
			break
		}
	}
	if index < 0 {
		return rows, DisplayRow{}, -1
	}

	rest = make([]DisplayRow, 0, len(rows)-1)
	rest = append(rest, rows[:index]...)
	rest = append(rest, rows[index+1:]...)
	return rest, removed, index
}

// InsertRow puts row back at index, clamped to the bounds of rows.
func InsertRow(rows []DisplayRow, index int, row DisplayRow) []DisplayRow {
	if index < 0 {
		index = 0
	}
	if index > len(rows) {
		index = len(rows)
	}

	out := make([]DisplayRow, 0, len(rows)+1)
	out = append(out, rows[:index]...)
	out = append(out, row)
	out = append(out, rows[index:]...)
	return out
}
