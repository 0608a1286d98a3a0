package core

import "time"

// Challenge is a sign-in nonce bound to one authentication attempt
type Challenge struct {
	Nonce     string    // Random value the wallet must embed in the signed message
	Binding   string    // Opaque id carried by the client, keys the stored nonce
	ExpiresAt time.Time // When the nonce stops being accepted
}

// Session represents an authenticated wallet session
type Session struct {
	ID        string    // Unique session identifier, used for revocation
	Address   string    // Lowercased wallet address
	IssuedAt  time.Time // When the session was created
	ExpiresAt time.Time // When the session stops being valid
}
