package handlers

import (
	"net/http"
	"strings"

	"github.com/geocoder89/shopadmin/internal/productview"
	"github.com/gin-gonic/gin"
)

// RespondPage answers with a product page, or 304 when the client already
// holds this version of it. The tag is weak: it follows the view's revision,
// not the bytes on the wire.
func RespondPage(ctx *gin.Context, status int, p productview.Page) {
	if p.Version == "" {
		ctx.JSON(status, p)
		return
	}

	etag := `W/"` + p.Version + `"`
	ctx.Header("ETag", etag)
	ctx.Header("Cache-Control", "private, no-cache")

	if ifNoneMatch(ctx.GetHeader("If-None-Match"), etag) {
		ctx.Status(http.StatusNotModified)
		return
	}

	ctx.JSON(status, p)
}

func ifNoneMatch(header, etag string) bool {
	header = strings.TrimSpace(header)
	if header == "" {
		return false
	}
	if header == "*" {
		return true
	}

	want := opaqueTag(etag)
	for _, part := range strings.Split(header, ",") {
		if opaqueTag(part) == want {
			return true
		}
	}
	return false
}

// opaqueTag drops the weak prefix; If-None-Match compares tags weakly.
func opaqueTag(raw string) string {
	return strings.TrimPrefix(strings.TrimSpace(raw), "W/")
}
