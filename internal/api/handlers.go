package api

import (
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fabhost/agent/infrastructure/httputil"
	"github.com/fabhost/agent/internal/agent"
	"github.com/fabhost/agent/internal/supervisor"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, healthResponse{
		Status: "ok",
		Uptime: time.Since(s.started).Seconds(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	info := s.agent.Info()

	resp := statusResponse{
		Authenticated:   info.Authenticated,
		Address:         info.Address,
		Network:         info.Network,
		PublicURL:       info.PublicURL,
		UptimeSeconds:   info.Uptime.Seconds(),
		RequirementsMet: info.RequirementsMet,
		Reasons:         info.Reasons,
		Balances:        info.Balances,
		Session: sessionStats{
			Sessions:               info.Session.Sessions,
			TotalTokens:            info.Session.TotalTokens,
			CheckpointsReached:     info.Session.CheckpointsReached,
			CheckpointsProcessed:   info.Session.CheckpointsProcessed,
			CheckpointsPending:     info.Session.CheckpointsPending,
			AvgTokensPerCheckpoint: info.Session.AvgTokensPerCheckpoint,
		},
	}
	if info.Process != nil {
		resp.Process = &processInfo{
			PID:           info.Process.PID,
			Port:          info.Process.Port,
			PublicURL:     info.Process.PublicURL,
			UptimeSeconds: info.Process.Uptime.Seconds(),
			Status:        string(info.Process.Status),
		}
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// handleStart spawns the child inference process if one isn't already
// running. A second call while the process is alive is a conflict, per
// spec.md §4.5's "already started" → 409 mapping.
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if !httputil.DecodeJSONOptional(w, r, &req) {
		return
	}

	if h := s.agent.Supervisor(); h != nil {
		if info := h.Info(); info.Status == supervisor.Running || info.Status == supervisor.Starting {
			httputil.WriteErrorWithCode(w, http.StatusConflict, "ALREADY_STARTED", "inference process is already running")
			return
		}
	}

	wallet := s.agent.Wallet()
	if wallet == nil {
		httputil.Unauthorized(w, "agent is not authenticated")
		return
	}
	cfg := s.agent.Config()

	handle, err := supervisor.Spawn(r.Context(), supervisor.SpawnConfig{
		BinaryName:  "fabstir-llm-node",
		Port:        cfg.ListenPort,
		PublicURL:   cfg.PublicURL,
		OperatorKey: wallet.PrivateKeyHex(),
		ContractAddresses: map[string]string{
			"marketplace": cfg.Contracts.Marketplace,
			"registry":    cfg.Contracts.Registry,
			"proof":       cfg.Contracts.Proof,
			"earnings":    cfg.Contracts.Earnings,
			"fabricToken": cfg.Contracts.FabricToken,
			"stableToken": cfg.Contracts.StableToken,
		},
		Daemon: req.Daemon,
	}, s.logger)
	if err != nil {
		httputil.WriteErrorWithCode(w, http.StatusInternalServerError, "START_FAILED", err.Error())
		return
	}

	s.agent.AttachSupervisor(handle)
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "started"})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	h := s.agent.Supervisor()
	if h == nil {
		httputil.WriteErrorWithCode(w, http.StatusConflict, "NOT_STARTED", "inference process is not running")
		return
	}
	if err := h.Stop(supervisor.DefaultGracePeriod); err != nil {
		httputil.WriteErrorWithCode(w, http.StatusInternalServerError, "STOP_FAILED", err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}

	if s.agent.Wallet() == nil {
		if req.PrivateKey == "" {
			httputil.BadRequest(w, "privateKey is required to authenticate before registering")
			return
		}
		if err := s.agent.Authenticate(agent.AuthRequest{Method: agent.AuthPrivateKey, Payload: req.PrivateKey}); err != nil {
			httputil.WriteErrorWithCode(w, http.StatusUnauthorized, "AUTH_FAILED", err.Error())
			return
		}
	}

	stake, ok := new(big.Int).SetString(req.StakeAmount, 10)
	if !ok {
		httputil.BadRequest(w, "stakeAmount must be a base-10 integer")
		return
	}

	cfg := s.agent.Config()
	var pricing []agent.PricingEntry
	if req.MinPricePerTokenNative != "" {
		price, ok := new(big.Int).SetString(req.MinPricePerTokenNative, 10)
		if !ok {
			httputil.BadRequest(w, "minPricePerTokenNative must be a base-10 integer")
			return
		}
		for _, model := range req.Models {
			pricing = append(pricing, agent.PricingEntry{ModelID: model, Token: common.Address{}, Price: price})
		}
	}
	if req.MinPricePerTokenStable != "" {
		price, ok := new(big.Int).SetString(req.MinPricePerTokenStable, 10)
		if !ok {
			httputil.BadRequest(w, "minPricePerTokenStable must be a base-10 integer")
			return
		}
		for _, model := range req.Models {
			pricing = append(pricing, agent.PricingEntry{ModelID: model, Token: common.HexToAddress(cfg.Contracts.StableToken), Price: price})
		}
	}

	result, err := s.agent.Register(r.Context(), agent.RegisterRequest{
		PublicURL: req.PublicURL,
		Models:    req.Models,
		Stake:     stake,
		Pricing:   pricing,
	})
	if err != nil {
		httputil.WriteErrorWithCode(w, http.StatusInternalServerError, "REGISTER_FAILED", err.Error())
		return
	}

	httputil.WriteJSON(w, http.StatusOK, registerResponse{
		ApproveTxHash:  result.ApproveTxHash,
		RegisterTxHash: result.RegisterTxHash,
	})
}

func (s *Server) handleUpdatePricing(w http.ResponseWriter, r *http.Request) {
	var req updatePricingRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	if req.ModelID == "" {
		httputil.BadRequest(w, "modelId is required")
		return
	}

	token := common.Address{}
	if req.Token != "" {
		token = common.HexToAddress(req.Token)
	}

	var price *big.Int
	if req.Price != "" {
		parsed, ok := new(big.Int).SetString(req.Price, 10)
		if !ok {
			httputil.BadRequest(w, "price must be a base-10 integer")
			return
		}
		price = parsed
	}

	if err := s.agent.UpdatePricing(r.Context(), req.ModelID, token, price); err != nil {
		httputil.WriteErrorWithCode(w, http.StatusInternalServerError, "UPDATE_PRICING_FAILED", err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req withdrawRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}

	cfg := s.agent.Config()
	tokens := make([]common.Address, 0, len(req.Tokens)+2)
	if req.All {
		tokens = append(tokens, common.HexToAddress(cfg.Contracts.FabricToken), common.HexToAddress(cfg.Contracts.StableToken))
	} else {
		for _, t := range req.Tokens {
			tokens = append(tokens, common.HexToAddress(t))
		}
	}
	if len(tokens) == 0 {
		httputil.BadRequest(w, "tokens is required unless all is true")
		return
	}

	result, err := s.agent.Withdraw(r.Context(), tokens)
	if err != nil {
		httputil.WriteErrorWithCode(w, http.StatusInternalServerError, "WITHDRAW_FAILED", err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, withdrawResponse{TxHashes: result.TxHashes})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	balances, err := s.agent.Balances(r.Context())
	if err != nil {
		httputil.WriteErrorWithCode(w, http.StatusInternalServerError, "BALANCE_FAILED", err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, balanceResponse{Balances: balances})
}

// handleEarnings reports accrued, unwithdrawn on-chain earnings. These are a
// distinct figure from Balances (wallet holdings): earnings live in the
// Earnings contract until Withdraw is called.
func (s *Server) handleEarnings(w http.ResponseWriter, r *http.Request) {
	earnings, err := s.agent.Earnings(r.Context())
	if err != nil {
		httputil.WriteErrorWithCode(w, http.StatusInternalServerError, "EARNINGS_FAILED", err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, earningsResponse{Balances: earnings})
}
