package clients

import (
	"github.com/adshao/go-binance/v2"
)

// NewPublicDataClient returns a keyless client for public market data.
// Paper trading prices its fills off it without exchange credentials.
func NewPublicDataClient() *binance.Client {
	return binance.NewClient("", "")
}
