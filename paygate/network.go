package paygate

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Network is a settlement chain with its stablecoin
type Network struct {
	Name         string
	CAIP2        string
	Asset        string
	Decimals     int32
	TokenName    string
	TokenVersion string
}

var networks = []Network{
	{
		Name:         "base",
		CAIP2:        "eip155:8453",
		Asset:        "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
		Decimals:     6,
		TokenName:    "USD Coin",
		TokenVersion: "2",
	},
	{
		Name:         "base-sepolia",
		CAIP2:        "eip155:84532",
		Asset:        "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
		Decimals:     6,
		TokenName:    "USDC",
		TokenVersion: "2",
	},
}

// LookupNetwork finds a network by short name or CAIP-2 id
func LookupNetwork(name string) (Network, error) {
	for _, n := range networks {
		if strings.EqualFold(n.Name, name) || n.CAIP2 == name {
			return n, nil
		}
	}
	return Network{}, fmt.Errorf("%w: %s", ErrUnsupportedNetwork, name)
}

// FormatPrice renders a USD amount as "$5.00"
func FormatPrice(amount decimal.Decimal) string {
	return "$" + amount.StringFixed(2)
}

// ParsePrice reads a "$5.00" or "5.00" price
func ParsePrice(price string) (decimal.Decimal, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(price), "$")

	amount, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %q", ErrInvalidPrice, price)
	}
	if amount.IsNegative() {
		return decimal.Decimal{}, fmt.Errorf("%w: negative amount %q", ErrInvalidPrice, price)
	}

	return amount, nil
}

// AtomicAmount converts a decimal amount into the asset's smallest unit
func (n Network) AtomicAmount(amount decimal.Decimal) string {
	return amount.Shift(n.Decimals).RoundDown(0).String()
}
