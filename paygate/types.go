package paygate

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// X402Version is the protocol version advertised in 402 responses
const X402Version = 2

const (
	HeaderPaymentSignature = "PAYMENT-SIGNATURE"
	HeaderPaymentRequired  = "PAYMENT-REQUIRED"
	HeaderPaymentResponse  = "PAYMENT-RESPONSE"

	// v1 clients send X-PAYMENT and expect X-PAYMENT-RESPONSE
	HeaderLegacyPayment         = "X-PAYMENT"
	HeaderLegacyPaymentResponse = "X-PAYMENT-RESPONSE"
)

// ResourceInfo describes the resource being paid for
type ResourceInfo struct {
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// PaymentRequirements is one accepted way to pay for a resource.
// v2 carries Amount and a CAIP-2 network. v1 carries MaxAmountRequired,
// the network name and the resource fields.
type PaymentRequirements struct {
	Scheme            string                 `json:"scheme"`
	Network           string                 `json:"network"`
	Asset             string                 `json:"asset"`
	Amount            string                 `json:"amount,omitempty"`
	PayTo             string                 `json:"payTo"`
	MaxTimeoutSeconds int                    `json:"maxTimeoutSeconds,omitempty"`
	Extra             map[string]interface{} `json:"extra,omitempty"`

	MaxAmountRequired string `json:"maxAmountRequired,omitempty"`
	Resource          string `json:"resource,omitempty"`
	Description       string `json:"description,omitempty"`
	MimeType          string `json:"mimeType,omitempty"`
}

// PaymentRequired is the body of a 402 response
type PaymentRequired struct {
	X402Version int                   `json:"x402Version"`
	Error       string                `json:"error,omitempty"`
	Resource    *ResourceInfo         `json:"resource,omitempty"`
	Accepts     []PaymentRequirements `json:"accepts"`
}

// PaymentPayload is the client's signed payment proof. The gate never
// inspects Payload; it is forwarded to the facilitator as is.
type PaymentPayload struct {
	X402Version int                  `json:"x402Version"`
	Scheme      string               `json:"scheme,omitempty"`
	Network     string               `json:"network,omitempty"`
	Accepted    *PaymentRequirements `json:"accepted,omitempty"`
	Resource    *ResourceInfo        `json:"resource,omitempty"`
	Payload     json.RawMessage      `json:"payload"`
}

// VerifyResponse is the facilitator's verdict on a payment proof
type VerifyResponse struct {
	IsValid       bool   `json:"isValid"`
	InvalidReason string `json:"invalidReason,omitempty"`
	Payer         string `json:"payer,omitempty"`
}

// SettleResponse reports the outcome of settling a payment on chain
type SettleResponse struct {
	Success     bool   `json:"success"`
	ErrorReason string `json:"errorReason,omitempty"`
	Transaction string `json:"transaction"`
	Network     string `json:"network"`
	Payer       string `json:"payer,omitempty"`
}

// DecodePaymentPayload decodes a base64 JSON payment header
func DecodePaymentPayload(header string) (*PaymentPayload, error) {
	if header == "" {
		return nil, fmt.Errorf("payment header is empty")
	}

	raw, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return nil, fmt.Errorf("failed to decode payment header: %w", err)
	}

	var payload PaymentPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payment payload: %w", err)
	}
	if len(payload.Payload) == 0 {
		return nil, fmt.Errorf("payment payload is missing")
	}

	return &payload, nil
}

// EncodeHeader encodes v as base64 JSON
func EncodeHeader(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}
