package agent

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/fabhost/agent/infrastructure/chain"
	envutil "github.com/fabhost/agent/infrastructure/config"
	"github.com/fabhost/agent/infrastructure/logging"
	"github.com/fabhost/agent/internal/chainerr"
	"github.com/fabhost/agent/internal/chainops"
	"github.com/fabhost/agent/internal/config"
	"github.com/fabhost/agent/internal/session"
	"github.com/fabhost/agent/internal/supervisor"
	"github.com/fabhost/agent/internal/wallet"
)

// Minimum balances for the requirements monitor, per spec.md §4.4.
// sampleRequirements checks the native and fabric balances against MinNative
// and MinFabric; MinFabricStake is carried in RequirementsConfig, but
// on-chain stake is not sampled or checked.
const (
	DefaultMinNativeBalance = 0.015
	DefaultMinFabricBalance = 1000
	DefaultMinFabricStaked  = 1000
)

// RequirementsConfig holds the monitor's configurable minima and poll
// interval.
type RequirementsConfig struct {
	MinNative      float64
	MinFabric      float64
	MinFabricStake float64
	PollInterval   time.Duration
	CacheTTL       time.Duration
}

// DefaultRequirementsConfig matches spec.md §4.4's named defaults.
func DefaultRequirementsConfig() RequirementsConfig {
	return RequirementsConfig{
		MinNative:      DefaultMinNativeBalance,
		MinFabric:      DefaultMinFabricBalance,
		MinFabricStake: DefaultMinFabricStaked,
		PollInterval:   30 * time.Second,
		CacheTTL:       30 * time.Second,
	}
}

// Agent wires the on-chain operator, inference supervisor, session engine,
// and wallet into one lifecycle. The Agent exclusively owns the ConfigStore,
// ProofHistory, and chain Operator, per spec.md §3's ownership rule; the
// session Engine holds only a shared reference to the submitter interfaces
// this package implements.
type Agent struct {
	mu sync.RWMutex

	store     *config.Store
	history   *config.ProofHistory
	failedTxs *config.FailedTransactionLog
	cfg       config.OperatorConfig

	op    *chainops.Operator
	pool  *chain.RPCPool
	super *supervisor.Handle

	engine *session.Engine
	bus    *bus
	logger *logging.Logger

	wallet        *wallet.Wallet
	vrfKey        *ecdsa.PrivateKey
	authenticated bool

	reqCfg       RequirementsConfig
	reqMu        sync.Mutex
	lastReq      requirementsSnapshot
	stopReqLoop  chan struct{}
	shutdownOnce sync.Once

	startedAt time.Time
}

type requirementsSnapshot struct {
	at       time.Time
	met      bool
	reasons  []string
	balances map[string]string
}

// Deps carries everything Initialize needs that isn't derivable from
// OperatorConfig alone.
type Deps struct {
	Store     *config.Store
	History   *config.ProofHistory
	FailedTxs *config.FailedTransactionLog
	Logger    *logging.Logger
}

// Initialize validates cfg and builds an unauthenticated Agent: the RPC pool
// and requirements monitor are running, but no Operator exists until
// Authenticate supplies a signer, and no session engine exists until
// NewSessionEngine is called after that.
func Initialize(ctx context.Context, cfg config.OperatorConfig, deps Deps) (*Agent, error) {
	if err := cfg.Validate(); err != nil {
		return nil, chainerr.Wrap(chainerr.Validation, "invalid operator configuration", err)
	}

	pool, err := chain.NewRPCPool(&chain.RPCPoolConfig{
		Endpoints:           cfg.RPCEndpoints,
		HealthCheckInterval: time.Duration(cfg.Resilience.RPCCooldownSeconds) * time.Second,
		MaxConsecutiveFails: cfg.Resilience.BreakerFailureThreshold,
	})
	if err != nil {
		return nil, chainerr.Wrap(chainerr.Validation, "building RPC pool", err)
	}
	pool.Start(ctx)

	vrfKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, chainerr.Wrap(chainerr.Validation, "generating checkpoint-proof key", err)
	}

	a := &Agent{
		store:       deps.Store,
		history:     deps.History,
		failedTxs:   deps.FailedTxs,
		cfg:         cfg,
		pool:        pool,
		bus:         newBus(),
		logger:      deps.Logger,
		vrfKey:      vrfKey,
		reqCfg:      DefaultRequirementsConfig(),
		stopReqLoop: make(chan struct{}),
		startedAt:   time.Now(),
	}

	a.bus.publish(Event{Kind: EventConnected, At: time.Now(), Address: cfg.WalletAddress})
	a.StartRequirementsMonitor(ctx)
	return a, nil
}

// AuthMethod selects how Authenticate obtains the operator's signing key.
type AuthMethod string

const (
	AuthPrivateKey AuthMethod = "privateKey"
	AuthEnvVar     AuthMethod = "envVar"
)

// AuthRequest is Authenticate's input.
type AuthRequest struct {
	Method  AuthMethod
	Payload string // hex private key, or the env var name to read it from
}

// Authenticate derives the operator's signing key, builds the chainops
// Operator around it, and unlocks the rest of Agent's public surface. On
// success it emits AuthChanged(true).
func (a *Agent) Authenticate(req AuthRequest) error {
	key := req.Payload
	if req.Method == AuthEnvVar {
		key = envutil.RequireEnvOrSecret(req.Payload)
		if key == "" {
			return chainerr.New(chainerr.Auth, fmt.Sprintf("environment variable %q is not set", req.Payload))
		}
	}

	w, err := wallet.ImportPrivateKey(key)
	if err != nil {
		return chainerr.Wrap(chainerr.Auth, "importing private key", err)
	}

	chainID, ok := new(big.Int).SetString(ChainIDFor(a.cfg.Network), 10)
	if !ok {
		chainID = big.NewInt(1)
	}

	op, err := chainops.NewOperator(chainops.OperatorConfig{
		Pool:      a.pool,
		ChainID:   chainID,
		Signer:    chainops.NewWalletSigner(w),
		FailedTxs: a.failedTxs,
		Logger:    a.logger,
	})
	if err != nil {
		return chainerr.Wrap(chainerr.Auth, "building on-chain operator", err)
	}

	a.mu.Lock()
	a.wallet = w
	a.op = op
	a.authenticated = true
	a.mu.Unlock()

	a.bus.publish(Event{Kind: EventAuthChanged, At: time.Now(), Authenticated: true, Address: w.Address().Hex()})
	return nil
}

// Subscribe returns a channel of every Event this Agent publishes.
func (a *Agent) Subscribe() <-chan Event {
	return a.bus.subscribe(128)
}

// AttachSupervisor wires a running inference process handle so Info() can
// report its status and Shutdown() can stop it.
func (a *Agent) AttachSupervisor(h *supervisor.Handle) {
	a.mu.Lock()
	a.super = h
	a.mu.Unlock()
}

// Supervisor returns the currently attached child-process handle, or nil if
// none is running.
func (a *Agent) Supervisor() *supervisor.Handle {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.super
}

// Config returns a copy of the agent's operator configuration.
func (a *Agent) Config() config.OperatorConfig {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cfg
}

// Wallet returns the authenticated wallet, or nil before Authenticate runs.
func (a *Agent) Wallet() *wallet.Wallet {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.wallet
}

// AttachEngine wires the session/checkpoint engine so Info() can report
// session stats.
func (a *Agent) AttachEngine(e *session.Engine) {
	a.mu.Lock()
	a.engine = e
	a.mu.Unlock()
}

func (a *Agent) requireAuth() error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if !a.authenticated {
		return chainerr.New(chainerr.Auth, "agent is not authenticated")
	}
	return nil
}

// Shutdown gracefully stops the child inference process, flushes
// ProofHistory, and closes RPC connections. It is idempotent.
func (a *Agent) Shutdown(ctx context.Context) error {
	a.shutdownOnce.Do(func() {
		close(a.stopReqLoop)

		a.mu.RLock()
		super := a.super
		history := a.history
		pool := a.pool
		a.mu.RUnlock()

		if super != nil {
			_ = super.Stop(supervisor.DefaultGracePeriod)
		}
		if history != nil {
			_ = history.Close()
		}
		if pool != nil {
			pool.Stop()
		}
	})
	return nil
}

// ChainIDFor maps a network name to its numeric chain ID, used both to
// build the chain-signing Operator and to configure the inference child's
// CHAIN_ID environment variable.
func ChainIDFor(network string) string {
	switch network {
	case "base":
		return "8453"
	case "base-sepolia":
		return "84532"
	default:
		return "1"
	}
}

