package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

type FieldError struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Param   string `json:"param,omitempty"`
	Message string `json:"message,omitempty"`
}

// BindJSON binds the request body; failures answer 400 with field errors named
// by json tag.
func BindJSON(ctx *gin.Context, out any) bool {
	if err := ctx.ShouldBindJSON(out); err != nil {
		RespondBadRequest(ctx, "Invalid request body", parseBindError(err, out, "json"))
		return false
	}
	return true
}

// BindQuery is BindJSON for the query string; fields are named by form tag.
func BindQuery(ctx *gin.Context, out any) bool {
	if err := ctx.ShouldBindQuery(out); err != nil {
		RespondBadRequest(ctx, "Invalid query parameters", parseBindError(err, out, "form"))
		return false
	}
	return true
}

// bindFormFields binds an html form. It returns nil on success; pages render
// the errors themselves.
func bindFormFields(ctx *gin.Context, out any) []FieldError {
	err := ctx.ShouldBind(out)
	if err == nil {
		return nil
	}
	if fields := validationFields(err, out, "form"); fields != nil {
		return fields
	}
	return []FieldError{{Field: "form", Rule: "parse", Message: "could not be read"}}
}

func parseBindError(err error, out any, tag string) any {
	if fields := validationFields(err, out, tag); fields != nil {
		return gin.H{"fields": fields}
	}

	var syntaxError *json.SyntaxError
	if errors.As(err, &syntaxError) {
		return gin.H{"json": "invalid_json_syntax"}
	}

	var typeError *json.UnmarshalTypeError
	if errors.As(err, &typeError) {
		field := taggedName(baseStructType(out), typeError.Field, tag)
		return gin.H{
			"json":  "invalid_json_type",
			"field": field,
			"fields": []FieldError{{
				Field:   field,
				Rule:    "type",
				Message: fmt.Sprintf("must be of type %s", typeError.Type.String()),
			}},
		}
	}

	return gin.H{"reason": err.Error()}
}

// validationFields returns nil when err is not a validator error.
func validationFields(err error, out any, tag string) []FieldError {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return nil
	}

	root := baseStructType(out)
	fields := make([]FieldError, 0, len(ve))
	for _, fe := range ve {
		fields = append(fields, FieldError{
			Field:   taggedName(root, fe.StructField(), tag),
			Rule:    fe.Tag(),
			Param:   fe.Param(),
			Message: validationMessage(fe.Tag(), fe.Param()),
		})
	}
	return fields
}

func baseStructType(v any) reflect.Type {
	t := reflect.TypeOf(v)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t != nil && t.Kind() == reflect.Struct {
		return t
	}
	return nil
}

// taggedName maps a top-level Go field name to its wire name under tag. The
// request types bound here are flat, so nested paths keep their Go names.
func taggedName(root reflect.Type, field, tag string) string {
	field = strings.TrimSpace(field)
	if root == nil || field == "" || strings.Contains(field, ".") {
		return field
	}

	sf, ok := root.FieldByName(field)
	if !ok {
		return field
	}
	name, _, _ := strings.Cut(sf.Tag.Get(tag), ",")
	if name == "" || name == "-" {
		return field
	}
	return name
}

func validationMessage(rule, param string) string {
	switch rule {
	case "required":
		return "is required"
	case "min":
		return "must be at least " + param
	case "max":
		return "must be at most " + param
	case "oneof":
		return "must be one of " + strings.ReplaceAll(param, " ", ", ")
	default:
		if param != "" {
			return fmt.Sprintf("failed %s validation (%s)", rule, param)
		}
		return "failed " + rule + " validation"
	}
}
