package model

// DecodeError records an event payload that could not be decoded.
type DecodeError struct {
	BlockNumber     uint64   `json:"block_number"`
	TransactionHash string   `json:"transaction_hash"`
	FromAddress     string   `json:"from_address"`
	ContractAddress string   `json:"contract_address"`
	Profile         string   `json:"profile"`
	Data            []string `json:"data"`
	Error           string   `json:"error"`
	RecordedAt      string   `json:"recorded_at"`
}
