package middleware

// HTTP header constants.
const (
	HeaderContentType = "Content-Type"
)

// Content type constants.
const (
	ContentTypeJSON = "application/json"
)

// Error response bodies.
const (
	ErrInternalServerError   = `{"status":500,"error":"Internal Server Error","message":"internal server error"}`
	ErrRequestEntityTooLarge = `{"status":413,"error":"Payload Too Large","message":"request body too large"}`
)
