package ports

import "context"

// SignatureVerifier checks a personal_sign signature over message for address.
// It returns false for a well-formed but non-matching signature and an error
// when verification itself could not be carried out.
type SignatureVerifier interface {
	VerifyMessage(ctx context.Context, address, message, signature string) (bool, error)
}

// SecretCodec encrypts coupon codes at rest
type SecretCodec interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(envelope string) (string, error)
}
