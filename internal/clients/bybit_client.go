package clients

import (
	"github.com/hirokisan/bybit/v2"
)

// NewBybitClient returns a V5 client with the signing credentials attached.
func NewBybitClient(apiKey, apiSecret string) *bybit.Client {
	return bybit.NewClient().WithAuth(apiKey, apiSecret)
}
