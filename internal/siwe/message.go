// Package siwe parses and formats EIP-4361 sign-in messages.
package siwe

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/layer-3/promox/core"
)

const preambleSuffix = " wants you to sign in with your Ethereum account:"

// Message is a parsed sign-in request
type Message struct {
	Scheme         string
	Domain         string
	Address        common.Address
	Statement      string
	URI            string
	Version        string
	ChainID        int64
	Nonce          string
	IssuedAt       time.Time
	ExpirationTime *time.Time
	NotBefore      *time.Time
	RequestID      string
	Resources      []string
}

// Parse reads an EIP-4361 message. Domain, address, nonce and issued-at are required.
func Parse(raw string) (*Message, error) {
	lines := strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n")
	if len(lines) < 2 || !strings.HasSuffix(lines[0], preambleSuffix) {
		return nil, fmt.Errorf("missing preamble: %w", core.ErrMalformedMessage)
	}

	m := &Message{}
	m.Domain = strings.TrimSuffix(lines[0], preambleSuffix)
	if scheme, host, ok := strings.Cut(m.Domain, "://"); ok {
		m.Scheme, m.Domain = scheme, host
	}
	if m.Domain == "" {
		return nil, fmt.Errorf("missing domain: %w", core.ErrMalformedMessage)
	}

	addr := strings.TrimSpace(lines[1])
	if !common.IsHexAddress(addr) {
		return nil, fmt.Errorf("missing address: %w", core.ErrMalformedMessage)
	}
	m.Address = common.HexToAddress(addr)

	var statement []string
	inResources := false
	for _, line := range lines[2:] {
		if inResources {
			if r, ok := strings.CutPrefix(line, "- "); ok {
				m.Resources = append(m.Resources, r)
				continue
			}
			inResources = false
		}

		key, value, ok := strings.Cut(line, ": ")
		if !ok {
			if line == "Resources:" {
				inResources = true
			} else if line != "" && m.URI == "" {
				statement = append(statement, line)
			}
			continue
		}

		var err error
		switch key {
		case "URI":
			m.URI = value
		case "Version":
			m.Version = value
		case "Chain ID":
			m.ChainID, err = strconv.ParseInt(value, 10, 64)
		case "Nonce":
			m.Nonce = value
		case "Issued At":
			m.IssuedAt, err = parseTime(value)
		case "Expiration Time":
			var t time.Time
			t, err = parseTime(value)
			m.ExpirationTime = &t
		case "Not Before":
			var t time.Time
			t, err = parseTime(value)
			m.NotBefore = &t
		case "Request ID":
			m.RequestID = value
		default:
			if m.URI == "" {
				statement = append(statement, line)
			}
		}
		if err != nil {
			return nil, fmt.Errorf("bad %s: %w", strings.ToLower(key), core.ErrMalformedMessage)
		}
	}
	m.Statement = strings.Join(statement, "\n")

	if m.Nonce == "" {
		return nil, fmt.Errorf("missing nonce: %w", core.ErrMalformedMessage)
	}
	if m.IssuedAt.IsZero() {
		return nil, fmt.Errorf("missing issued at: %w", core.ErrMalformedMessage)
	}

	return m, nil
}

func parseTime(v string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, v)
}

// CheckTime rejects a message outside its validity window
func (m *Message) CheckTime(now time.Time) error {
	if m.ExpirationTime != nil && now.After(*m.ExpirationTime) {
		return core.ErrMessageExpired
	}
	if m.NotBefore != nil && now.Before(*m.NotBefore) {
		return core.ErrMessageExpired
	}
	return nil
}

// String formats the message the way wallets sign it
func (m *Message) String() string {
	var b strings.Builder

	domain := m.Domain
	if m.Scheme != "" {
		domain = m.Scheme + "://" + domain
	}
	b.WriteString(domain + preambleSuffix + "\n")
	b.WriteString(m.Address.Hex() + "\n\n")
	if m.Statement != "" {
		b.WriteString(m.Statement + "\n\n")
	}

	fmt.Fprintf(&b, "URI: %s\n", m.URI)
	fmt.Fprintf(&b, "Version: %s\n", m.Version)
	fmt.Fprintf(&b, "Chain ID: %d\n", m.ChainID)
	fmt.Fprintf(&b, "Nonce: %s\n", m.Nonce)
	fmt.Fprintf(&b, "Issued At: %s", m.IssuedAt.UTC().Format(time.RFC3339))
	if m.ExpirationTime != nil {
		fmt.Fprintf(&b, "\nExpiration Time: %s", m.ExpirationTime.UTC().Format(time.RFC3339))
	}
	if m.NotBefore != nil {
		fmt.Fprintf(&b, "\nNot Before: %s", m.NotBefore.UTC().Format(time.RFC3339))
	}
	if m.RequestID != "" {
		fmt.Fprintf(&b, "\nRequest ID: %s", m.RequestID)
	}
	if len(m.Resources) > 0 {
		b.WriteString("\nResources:")
		for _, r := range m.Resources {
			b.WriteString("\n- " + r)
		}
	}

	return b.String()
}

var timestampRe = regexp.MustCompile(`(?m)^Timestamp:\s*(\d+)\s*$`)

// Timestamp extracts the "Timestamp: <epoch-ms>" marker used by signed header requests
func Timestamp(raw string) (time.Time, error) {
	match := timestampRe.FindStringSubmatch(raw)
	if match == nil {
		return time.Time{}, fmt.Errorf("missing timestamp: %w", core.ErrMalformedMessage)
	}

	ms, err := strconv.ParseInt(match[1], 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad timestamp: %w", core.ErrMalformedMessage)
	}

	return time.UnixMilli(ms), nil
}
