package config

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"
)

// PricePrecision is the fixed multiplier converting human USD/million-token
// prices to the integer prices carried on-chain.
const PricePrecision = 1000

// CurrentVersion is the semver tag new configs are written with.
const CurrentVersion = "1.0.0"

var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// ContractAddresses is the set of on-chain contracts the agent calls.
type ContractAddresses struct {
	Marketplace  string `json:"marketplace" yaml:"marketplace"`
	Registry     string `json:"registry" yaml:"registry"`
	Proof        string `json:"proof" yaml:"proof"`
	Earnings     string `json:"earnings" yaml:"earnings"`
	FabricToken  string `json:"fabricToken" yaml:"fabricToken"`
	StableToken  string `json:"stableToken" yaml:"stableToken"`
}

func (c ContractAddresses) all() map[string]string {
	return map[string]string{
		"marketplace":  c.Marketplace,
		"registry":     c.Registry,
		"proof":        c.Proof,
		"earnings":     c.Earnings,
		"fabricToken":  c.FabricToken,
		"stableToken":  c.StableToken,
	}
}

// PriceEntry is one (model, token) -> minimum price mapping. TokenAddress
// being the zero address means the native coin.
type PriceEntry struct {
	ModelID                string `json:"modelId" yaml:"modelId"`
	TokenAddress           string `json:"tokenAddress" yaml:"tokenAddress"`
	MinPricePerMillionTokens BigInt `json:"minPricePerMillionTokens" yaml:"minPricePerMillionTokens"`
}

// ResilienceConfig exposes the per-endpoint cooldown and breaker thresholds
// as runtime knobs, editable only by hand-editing the config file.
type ResilienceConfig struct {
	RPCCooldownSeconds      int `json:"rpcCooldownSeconds" yaml:"rpcCooldownSeconds"`
	BreakerFailureThreshold int `json:"breakerFailureThreshold" yaml:"breakerFailureThreshold"`
	BreakerResetSeconds     int `json:"breakerResetSeconds" yaml:"breakerResetSeconds"`
	BreakerHalfOpenMax      int `json:"breakerHalfOpenMax" yaml:"breakerHalfOpenMax"`
}

// DefaultResilienceConfig matches the defaults named across the on-chain
// operator's design: 3 consecutive failures opens the breaker, a 5s cooldown
// before probing again, 2 half-open trial calls.
func DefaultResilienceConfig() ResilienceConfig {
	return ResilienceConfig{
		RPCCooldownSeconds:      30,
		BreakerFailureThreshold: 3,
		BreakerResetSeconds:     5,
		BreakerHalfOpenMax:      2,
	}
}

// OperatorConfig is the one durable blob describing this agent instance.
type OperatorConfig struct {
	Version string `json:"version" yaml:"version"`

	WalletAddress   string `json:"walletAddress" yaml:"walletAddress"`
	EncryptedKeystore string `json:"encryptedKeystore,omitempty" yaml:"encryptedKeystore,omitempty"`

	Network      string   `json:"network" yaml:"network"`
	RPCEndpoints []string `json:"rpcEndpoints" yaml:"rpcEndpoints"`

	Contracts ContractAddresses `json:"contracts" yaml:"contracts"`

	ListenPort int    `json:"listenPort" yaml:"listenPort"`
	PublicURL  string `json:"publicUrl" yaml:"publicUrl"`

	Models []string `json:"models" yaml:"models"`

	Prices []PriceEntry `json:"prices" yaml:"prices"`

	LastPID       int       `json:"lastPid,omitempty" yaml:"lastPid,omitempty"`
	LastStartedAt time.Time `json:"lastStartedAt,omitempty" yaml:"lastStartedAt,omitempty"`

	Resilience ResilienceConfig `json:"resilience" yaml:"resilience"`
}

// Validate enforces every invariant named for OperatorConfig: at least one
// model, exactly one network, all contract addresses non-zero, a valid
// absolute public URL, and well-formed RPC URLs/ports/prices.
func (c *OperatorConfig) Validate() error {
	var errs []string

	if strings.TrimSpace(c.Network) == "" {
		errs = append(errs, "network must be set")
	}

	if !addressPattern.MatchString(c.WalletAddress) {
		errs = append(errs, "walletAddress must be 0x + 40 hex chars")
	}

	for name, addr := range c.Contracts.all() {
		if !addressPattern.MatchString(addr) || isZeroAddress(addr) {
			errs = append(errs, fmt.Sprintf("contracts.%s must be a non-zero 20-byte address", name))
		}
	}

	if len(c.RPCEndpoints) == 0 {
		errs = append(errs, "at least one rpcEndpoint is required")
	}
	for _, ep := range c.RPCEndpoints {
		if err := validateAbsoluteURL(ep, "http", "https"); err != nil {
			errs = append(errs, fmt.Sprintf("rpcEndpoint %q: %v", ep, err))
		}
	}

	if c.ListenPort < 1 || c.ListenPort > 65535 {
		errs = append(errs, "listenPort must be in [1, 65535]")
	}

	if err := validateAbsoluteURL(c.PublicURL, "http", "https", "ws", "wss"); err != nil {
		errs = append(errs, fmt.Sprintf("publicUrl: %v", err))
	}

	if len(c.Models) == 0 {
		errs = append(errs, "at least one model is required")
	}

	for _, p := range c.Prices {
		if p.MinPricePerMillionTokens.Int == nil || p.MinPricePerMillionTokens.Sign() <= 0 {
			errs = append(errs, fmt.Sprintf("price for model %q / token %q must be positive", p.ModelID, p.TokenAddress))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid operator config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func isZeroAddress(addr string) bool {
	trimmed := strings.TrimPrefix(strings.ToLower(addr), "0x")
	return trimmed == strings.Repeat("0", 40)
}

func validateAbsoluteURL(raw string, allowedSchemes ...string) error {
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("must not be empty")
	}
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("must be an absolute URL")
	}
	for _, scheme := range allowedSchemes {
		if u.Scheme == scheme {
			return nil
		}
	}
	return fmt.Errorf("scheme %q not in %v", u.Scheme, allowedSchemes)
}
