package paygate

import "errors"

var (
	ErrUnsupportedNetwork = errors.New("unsupported network")
	ErrInvalidPrice       = errors.New("invalid price")
)
