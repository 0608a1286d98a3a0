package codec

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"github.com/layer-3/promox/core"
	"github.com/layer-3/promox/ports"
)

const (
	keySize = 32
	ivSize  = 16
	tagSize = 16
)

// ErrSecretTooShort is returned when the configured secret cannot yield a full AES-256 key
var ErrSecretTooShort = fmt.Errorf("encryption secret must be at least %d bytes: %w", keySize, core.ErrConfiguration)

// AESCodec seals coupon codes with AES-256-GCM.
// Envelopes have the form hex(iv):hex(tag):hex(ciphertext).
type AESCodec struct {
	secret string

	once    sync.Once
	aead    cipher.AEAD
	initErr error
}

// NewAESCodec creates a codec for secret. The key is derived on first use.
func NewAESCodec(secret string) *AESCodec {
	return &AESCodec{secret: secret}
}

var _ ports.SecretCodec = (*AESCodec)(nil)

// Validate derives the key and reports a configuration error, if any
func (c *AESCodec) Validate() error {
	_, err := c.cipher()
	return err
}

func (c *AESCodec) cipher() (cipher.AEAD, error) {
	c.once.Do(func() {
		if len(c.secret) < keySize {
			c.initErr = ErrSecretTooShort
			return
		}

		block, err := aes.NewCipher([]byte(c.secret[:keySize]))
		if err != nil {
			c.initErr = fmt.Errorf("failed to create cipher: %w", err)
			return
		}

		c.aead, c.initErr = cipher.NewGCMWithNonceSize(block, ivSize)
	})
	return c.aead, c.initErr
}

// Encrypt seals plaintext under a fresh random IV
func (c *AESCodec) Encrypt(plaintext string) (string, error) {
	aead, err := c.cipher()
	if err != nil {
		return "", err
	}

	iv := make([]byte, ivSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("failed to generate iv: %w", err)
	}

	sealed := aead.Seal(nil, iv, []byte(plaintext), nil)
	ct, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]

	return strings.Join([]string{
		hex.EncodeToString(iv),
		hex.EncodeToString(tag),
		hex.EncodeToString(ct),
	}, ":"), nil
}

// Decrypt opens an envelope produced by Encrypt
func (c *AESCodec) Decrypt(envelope string) (string, error) {
	aead, err := c.cipher()
	if err != nil {
		return "", err
	}

	parts := strings.Split(envelope, ":")
	if len(parts) != 3 {
		return "", fmt.Errorf("envelope has %d segments: %w", len(parts), core.ErrTamperedOrCorrupt)
	}

	iv, err := hex.DecodeString(parts[0])
	if err != nil || len(iv) != ivSize {
		return "", fmt.Errorf("bad iv: %w", core.ErrTamperedOrCorrupt)
	}
	tag, err := hex.DecodeString(parts[1])
	if err != nil || len(tag) != tagSize {
		return "", fmt.Errorf("bad tag: %w", core.ErrTamperedOrCorrupt)
	}
	ct, err := hex.DecodeString(parts[2])
	if err != nil {
		return "", fmt.Errorf("bad ciphertext: %w", core.ErrTamperedOrCorrupt)
	}

	plaintext, err := aead.Open(nil, iv, append(ct, tag...), nil)
	if err != nil {
		return "", fmt.Errorf("authentication failed: %w", core.ErrTamperedOrCorrupt)
	}

	return string(plaintext), nil
}
