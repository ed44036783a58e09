// Package runtime provides environment/runtime detection helpers shared
// across the agent daemon.
package runtime

import "sync"

// strictIdentityModeOnce caches the strict identity mode check at startup.
var (
	strictIdentityModeOnce  sync.Once
	strictIdentityModeValue bool
)

// ResetStrictIdentityModeCache resets the cached strict identity mode value.
// This should only be used in tests.
func ResetStrictIdentityModeCache() {
	strictIdentityModeOnce = sync.Once{}
	strictIdentityModeValue = false
}

// StrictIdentityMode returns true when the service should fail closed on
// identity/security boundaries (e.g. only trust identity headers carried
// over verified mTLS). A mis-set FABHOST_ENV should never silently weaken
// trust boundaries, so this is pinned to the production environment check
// rather than a separate toggle.
func StrictIdentityMode() bool {
	strictIdentityModeOnce.Do(func() {
		strictIdentityModeValue = Env() == Production
	})
	return strictIdentityModeValue
}
