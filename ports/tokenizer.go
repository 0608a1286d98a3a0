package ports

import "github.com/layer-3/promox/core"

// Tokenizer converts between sessions and signed credentials
type Tokenizer interface {
	SessionToToken(session *core.Session) (string, error)
	TokenToSession(token string) (*core.Session, error)
}
