package middlewares

import (
	"net/http"

	"github.com/geocoder89/shopadmin/internal/http/flash"
	"github.com/gin-gonic/gin"
)

// Flash reads the flash cookie into the context and clears it, so a message
// shows exactly once. Handlers queue the next one with SetFlash.
func Flash(codec *flash.Codec) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(CtxFlashCodec, codec)

		if v, err := c.Cookie(codec.CookieName); err == nil && v != "" {
			if f, err := codec.Decode(v); err == nil {
				c.Set(CtxFlash, f)
			}
			// cleared even when invalid
			clearCookie(c, codec.CookieName, codec.Secure)
		}
		c.Next()
	}
}

func GetFlash(c *gin.Context) *flash.Flash {
	if v, ok := c.Get(CtxFlash); ok {
		if f, ok := v.(*flash.Flash); ok {
			return f
		}
	}
	return nil
}

// SetFlash is a no-op on routes without the Flash middleware.
func SetFlash(c *gin.Context, f flash.Flash) {
	v, ok := c.Get(CtxFlashCodec)
	if !ok {
		return
	}
	codec, ok := v.(*flash.Codec)
	if !ok {
		return
	}

	val, err := codec.Encode(f)
	if err != nil {
		return
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(codec.CookieName, val, codec.CookieMaxAge(), "/", "", codec.Secure, true)
}

func clearCookie(c *gin.Context, name string, secure bool) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(name, "", -1, "/", "", secure, true)
}
