// Package domain defines core data structures used throughout the coordination core.
package domain

// Token identifies a tracked token by its on-chain mint/contract address.
type Token string

// Wallet is the address of an externally tracked wallet.
type Wallet string

func (t Token) String() string  { return string(t) }
func (w Wallet) String() string { return string(w) }
