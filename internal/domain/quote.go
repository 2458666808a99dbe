package domain

import "encoding/json"

// Quote is a priced swap route returned by the route service.
// It is transient and passed by value into transaction assembly.
type Quote struct {
	InputMint   string
	OutputMint  string
	InAmount    uint64
	OutAmount   uint64
	SlippageBps int

	// Route is the opaque route descriptor exchanged later for transaction bytes.
	Route json.RawMessage
}
