// Package templates holds the admin panel's server-rendered pages.
package templates

import (
	"embed"
	"html/template"

	"github.com/geocoder89/shopadmin/internal/productview"
)

//go:embed *.html
var files embed.FS

var funcs = template.FuncMap{
	"editURL": productview.EditURL,
	"add":     func(a, b int) int { return a + b },
}

// Load parses every page. Page names match their file names.
func Load() (*template.Template, error) {
	return template.New("").Funcs(funcs).ParseFS(files, "*.html")
}
