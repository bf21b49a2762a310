package etherscan

import "encoding/json"

// apiResponse is the envelope of Etherscan's contract and logs modules.
// Example response:
//
//	{
//	  "status": "1",
//	  "message": "OK",
//	  "result": [...]
//	}
type apiResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

// sourceCodeEntry is one element of a getsourcecode result. Only the proxy
// fields are decoded.
// Example entry:
//
//	{
//	  "ContractName": "TransparentUpgradeableProxy",
//	  "Proxy": "1",
//	  "Implementation": "0x..."
//	}
type sourceCodeEntry struct {
	ContractName   string `json:"ContractName"`
	Proxy          string `json:"Proxy"`
	IsProxy        string `json:"IsProxy"`
	Implementation string `json:"Implementation"`
}

// logEntry is one element of a getLogs result. Numeric fields are hex strings.
// Example entry:
//
//	{
//	  "address": "0x...",
//	  "topics": ["0x...", "0x..."],
//	  "data": "0x...",
//	  "blockNumber": "0x1406f40",
//	  "transactionHash": "0x...",
//	  "logIndex": "0x1"
//	}
type logEntry struct {
	Address         string   `json:"address"`
	Topics          []string `json:"topics"`
	Data            string   `json:"data"`
	BlockNumber     string   `json:"blockNumber"`
	TransactionHash string   `json:"transactionHash"`
	LogIndex        string   `json:"logIndex"`
}

// etherscanError represents an error response from the Etherscan API.
// Example response:
//
//	{
//	  "status": "0",
//	  "message": "NOTOK",
//	  "result": "Invalid API Key"
//	}
type etherscanError struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Result  string `json:"result"`
}
