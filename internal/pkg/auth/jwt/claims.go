package jwt

import "github.com/golang-jwt/jwt"

// Payload defines the structure of the JSON Web Token (JWT) claims accepted by the chat server.
// Tokens are minted by the platform's account service; the server only verifies them and
// reads the player's identity and priority tier from them.
type Payload struct {
	// StandardClaims embeds the necessary JWT standard fields such as Exp (Expiration),
	// Iat (Issued At), and Iss (Issuer). These are crucial for token validity checks.
	jwt.StandardClaims `json:"standard_claims"`

	// ID is the player's stable identifier (a UUID string).
	ID string `json:"id"`

	// Name is the player's display name.
	Name string `json:"name"`

	// Priority is the player's priority tier name ("direct", "staff", "admin").
	// An empty value means the lowest tier.
	Priority string `json:"priority,omitempty"`
}
