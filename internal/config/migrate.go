package config

import (
	"fmt"
	"math/big"
)

// migrateFn upgrades a config one step forward in place, setting its Version
// to the version it produced. Each entry is a total function: it never fails
// on its declared input shape, only populates defaults for fields that are
// absent.
type migrateFn func(*OperatorConfig)

// migrations is keyed by the version a config declares on disk; it maps to
// the function that brings it to the next version. Load runs the chain
// starting at whatever version is found until it reaches CurrentVersion.
var migrations = map[string]migrateFn{
	"0.9.0": migrateV090ToV100,
}

// legacyNetworkTags renames network tags used before the agent adopted the
// current chain naming convention.
var legacyNetworkTags = map[string]string{
	"mainnet": "base",
	"testnet": "base-sepolia",
}

func migrateV090ToV100(c *OperatorConfig) {
	if renamed, ok := legacyNetworkTags[c.Network]; ok {
		c.Network = renamed
	}

	if c.Resilience == (ResilienceConfig{}) {
		c.Resilience = DefaultResilienceConfig()
	}

	if len(c.Prices) == 0 && len(c.Models) > 0 {
		c.Prices = make([]PriceEntry, 0, len(c.Models))
		for _, model := range c.Models {
			c.Prices = append(c.Prices, PriceEntry{
				ModelID:      model,
				TokenAddress: "0x0000000000000000000000000000000000000000",
				// 1 USD/million-tokens at PricePrecision scale.
				MinPricePerMillionTokens: NewBigInt(big.NewInt(PricePrecision)),
			})
		}
	}

	c.Version = "1.0.0"
}

// migrate runs c forward through the migration table until it reaches
// CurrentVersion. A version with no entry in the migration table returns an
// error, as does a version that the chain revisits.
func migrate(c *OperatorConfig) error {
	seen := map[string]bool{}
	for c.Version != CurrentVersion {
		if seen[c.Version] {
			return fmt.Errorf("config: migration loop detected at version %s", c.Version)
		}
		seen[c.Version] = true

		step, ok := migrations[c.Version]
		if !ok {
			return fmt.Errorf("config: no migration path from version %s to %s", c.Version, CurrentVersion)
		}
		step(c)
	}
	return nil
}
