package tokenregistry

import "github.com/ethereum/go-ethereum/common"

// Token is the display metadata of a ledger asset. It plays no part in pricing.
type Token struct {
	ID       uint64         `json:"id"`
	Address  common.Address `json:"address"`
	Name     string         `json:"name"`
	Symbol   string         `json:"symbol"`
	Decimals uint8          `json:"decimals"`
}

// PairLabel joins the display names of two tokens in the order given, e.g. "Apples/Oranges".
func PairLabel(x, y Token) string {
	return x.Name + "/" + y.Name
}
