package chainops

import "strings"

// retriableSubstrings are matched case-insensitively against an error's
// message. This mirrors how the upstream RPC/HTTP stack actually reports
// these conditions: as strings, not typed errors.
var retriableSubstrings = []string{
	"connection refused",
	"connection reset",
	"request timeout",
	"context deadline exceeded",
	"no such host",
	"dns",
	"nonce too low",
	"replacement transaction underpriced",
	"replacement fee too low",
	"gas required exceeds allowance",
	"network",
}

// nonRetriableSubstrings take priority over retriableSubstrings: these fail
// immediately regardless of any retriable phrase also present.
var nonRetriableSubstrings = []string{
	"invalid private key",
	"unauthorized",
	"forbidden",
	"invalid configuration",
	"missing required parameter",
}

// defaultClassify reports whether err should be retried under the default
// policy named in spec.md's §4.3 retry-classifier defaults.
func defaultClassify(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, s := range nonRetriableSubstrings {
		if strings.Contains(msg, s) {
			return false
		}
	}
	for _, s := range retriableSubstrings {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
