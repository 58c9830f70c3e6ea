package productview

import (
	"net/url"
	"strconv"

	"github.com/geocoder89/shopadmin/internal/domain/product"
)

const PageSize = 9

var PageSizeOptions = []int{PageSize}

type Column struct {
	Field  string `json:"field"`
	Header string `json:"headerName"`
	Width  int    `json:"width"`
}

var ActionColumn = Column{Field: "action", Header: "Action", Width: 200}

var ProductColumns = []Column{
	{Field: "id", Header: "ID", Width: 70},
	{Field: "SKU", Header: "SKU", Width: 120},
	{Field: "name", Header: "Product", Width: 230},
	{Field: "category", Header: "Category", Width: 130},
	{Field: "price", Header: "Price", Width: 100},
	{Field: "stock", Header: "Stock", Width: 90},
	{Field: "dateAdded", Header: "Date Added", Width: 170},
}

// Columns is the product columns followed by the action column.
func Columns() []Column {
	out := make([]Column, 0, len(ProductColumns)+1)
	out = append(out, ProductColumns...)
	return append(out, ActionColumn)
}

func EditURL(id string) string {
	return "/admin/edit-product/" + url.PathEscape(id)
}

type Page struct {
	Loading     bool                 `json:"loading"`
	Rows        []product.DisplayRow `json:"rows"`
	Columns     []Column             `json:"columns"`
	Page        int                  `json:"page"`
	PageCount   int                  `json:"pageCount"`
	PageSize    int                  `json:"pageSize"`
	Total       int                  `json:"total"`
	Selectable  bool                 `json:"checkboxSelection"`
	Notice      string               `json:"notice,omitempty"`
	DeleteError string               `json:"deleteError,omitempty"`

	// Version changes whenever the content of this page may have changed.
	Version string `json:"-"`
}

// Paginate slices s.Rows into the 1-based page. Out of range pages are clamped.
func Paginate(s ListState, page int) Page {
	total := len(s.Rows)
	pageCount := (total + PageSize - 1) / PageSize
	if pageCount < 1 {
		pageCount = 1
	}
	if page < 1 {
		page = 1
	}
	if page > pageCount {
		page = pageCount
	}

	start := (page - 1) * PageSize
	end := start + PageSize
	if end > total {
		end = total
	}

	rows := make([]product.DisplayRow, 0, end-start)
	rows = append(rows, s.Rows[start:end]...)

	p := Page{
		Loading:     s.Loading,
		Rows:        rows,
		Columns:     Columns(),
		Page:        page,
		PageCount:   pageCount,
		PageSize:    PageSize,
		Total:       total,
		Selectable:  true,
		DeleteError: s.DeleteError,
		Version:     strconv.FormatUint(s.Revision, 10) + "." + strconv.Itoa(page),
	}
	if s.FetchError != "" {
		p.Notice = "Products could not be loaded. Try reloading the page."
	}
	return p
}
