// Package clients constructs the venue API clients the provider layer hands
// to pricers, traders and transferrers.
package clients

import (
	"github.com/adshao/go-binance/v2"
)

// NewBinanceClient returns a spot client authorized for trading and
// withdrawals.
func NewBinanceClient(apiKey, apiSecret string) *binance.Client {
	return binance.NewClient(apiKey, apiSecret)
}
