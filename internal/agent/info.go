package agent

import (
	"time"

	"github.com/fabhost/agent/internal/session"
	"github.com/fabhost/agent/internal/supervisor"
)

// AgentInfo is the aggregate status snapshot Info returns: authentication,
// address, network, public URL, uptime, the last requirements sample and its
// balances, session stats, and process state. It does not include
// registration status, stake, or earnings; Earnings reads accrued earnings
// separately.
type AgentInfo struct {
	Authenticated   bool
	Address         string
	Network         string
	PublicURL       string
	Uptime          time.Duration
	RequirementsMet bool
	Reasons         []string
	Balances        map[string]string
	Session         session.Stats
	Process         *supervisor.Info
}

// Info aggregates authentication, requirements, session, and process state into one
// snapshot for the CLI's `status`/`info` commands and the management API's
// `/api/status` endpoint.
func (a *Agent) Info() AgentInfo {
	a.mu.RLock()
	authenticated := a.authenticated
	address := ""
	if a.wallet != nil {
		address = a.wallet.Address().Hex()
	}
	network := a.cfg.Network
	publicURL := a.cfg.PublicURL
	engine := a.engine
	super := a.super
	a.mu.RUnlock()

	a.reqMu.Lock()
	met := a.lastReq.met
	reasons := a.lastReq.reasons
	balances := a.lastReq.balances
	a.reqMu.Unlock()

	info := AgentInfo{
		Authenticated:   authenticated,
		Address:         address,
		Network:         network,
		PublicURL:       publicURL,
		Uptime:          time.Since(a.startedAt),
		RequirementsMet: met,
		Reasons:         reasons,
		Balances:        balances,
	}
	if engine != nil {
		info.Session = engine.Stats()
	}
	if super != nil {
		snapshot := super.Info()
		info.Process = &snapshot
	}
	return info
}
