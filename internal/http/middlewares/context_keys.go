package middlewares

const (
	CtxRequestID = "request_id"
	CtxSessionID = "session.id"
	CtxSession   = "session.slice"

	CtxFlash      = "flash"
	CtxFlashCodec = "flash.codec"
)
