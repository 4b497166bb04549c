package jwt

// Payload is everything the signed session cookie carries. Only the
// local user ID identifies the caller; anything else lives server-side.
type Payload struct {
	UserID   string `json:"id"`
	IssuedAt int64  `json:"iat"`
}
