package token

// TokenPair is the wire form of an issued access/refresh token pair.
// Access and refresh tokens are always issued, stored, and cleared together.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in,omitempty"` // Access token lifetime in seconds
}

const BearerTokenType = "bearer"
