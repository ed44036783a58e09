package api

import "time"

// healthResponse is GET /health's always-open body.
type healthResponse struct {
	Status string  `json:"status"`
	Uptime float64 `json:"uptime"`
}

// statusResponse is GET /api/status's full agent snapshot.
type statusResponse struct {
	Authenticated   bool              `json:"authenticated"`
	Address         string            `json:"address,omitempty"`
	Network         string            `json:"network"`
	PublicURL       string            `json:"publicUrl"`
	UptimeSeconds   float64           `json:"uptimeSeconds"`
	RequirementsMet bool              `json:"requirementsMet"`
	Reasons         []string          `json:"reasons,omitempty"`
	Balances        map[string]string `json:"balances,omitempty"`
	Session         sessionStats      `json:"session"`
	Process         *processInfo      `json:"process,omitempty"`
}

type sessionStats struct {
	Sessions               int     `json:"sessions"`
	TotalTokens            uint64  `json:"totalTokens"`
	CheckpointsReached     int     `json:"checkpointsReached"`
	CheckpointsProcessed   int     `json:"checkpointsProcessed"`
	CheckpointsPending     int     `json:"checkpointsPending"`
	AvgTokensPerCheckpoint float64 `json:"avgTokensPerCheckpoint"`
}

type processInfo struct {
	PID           int     `json:"pid"`
	Port          int     `json:"port"`
	PublicURL     string  `json:"publicUrl"`
	UptimeSeconds float64 `json:"uptimeSeconds"`
	Status        string  `json:"status"`
}

// startRequest is POST /api/start's body.
type startRequest struct {
	Daemon bool `json:"daemon"`
}

// registerRequest is POST /api/register's body, per spec.md §4.5.
type registerRequest struct {
	WalletAddress          string            `json:"walletAddress"`
	PublicURL              string            `json:"publicUrl"`
	Models                 []string          `json:"models"`
	StakeAmount            string            `json:"stakeAmount"`
	Metadata               map[string]string `json:"metadata,omitempty"`
	PrivateKey             string            `json:"privateKey"`
	MinPricePerTokenNative string            `json:"minPricePerTokenNative"`
	MinPricePerTokenStable string            `json:"minPricePerTokenStable"`
}

type registerResponse struct {
	ApproveTxHash  string `json:"approveTxHash"`
	RegisterTxHash string `json:"registerTxHash"`
}

// updatePricingRequest is POST /api/update-pricing's body.
type updatePricingRequest struct {
	ModelID string `json:"modelId"`
	Token   string `json:"token"`
	// Price is the new minimum price per million tokens, in the token's base
	// units. An empty string clears the override.
	Price string `json:"price"`
}

type withdrawRequest struct {
	Tokens []string `json:"tokens"`
	All    bool     `json:"all"`
}

type withdrawResponse struct {
	TxHashes []string `json:"txHashes"`
}

type balanceResponse struct {
	Balances map[string]string `json:"balances"`
}

type earningsResponse struct {
	Balances map[string]string `json:"balances"`
}

// logEnvelope is every frame /ws/logs sends.
type logEnvelope struct {
	Type  string    `json:"type"` // "history" | "log"
	Lines []string  `json:"lines,omitempty"`
	Line  string    `json:"line,omitempty"`
	At    time.Time `json:"at"`
}
