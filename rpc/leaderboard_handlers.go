package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	"github.com/holiman/uint256"

	"gmboard/crypto"
	nativecommon "gmboard/native/common"
	"gmboard/native/leaderboard"
	"gmboard/observability"
	"gmboard/observability/logging"
	"gmboard/services/journal"
)

func (s *Server) handleGetLeaderboard(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	limit, err := parseLimitParam(req.Params)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	entries := s.engine.GetLeaderboard()
	if limit > 0 && limit < len(entries) {
		entries = entries[:limit]
	}
	out := make([]EntryResult, len(entries))
	for i, entry := range entries {
		out[i] = entryResult(entry, i+1)
	}
	writeResult(w, req.ID, out)
}

func (s *Server) handleGetLeaderboardLength(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	writeResult(w, req.ID, s.engine.GetLeaderboardLength())
}

func (s *Server) handleGetEntry(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params walletParams
	if err := decodeParams(req.Params, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	wallet, err := crypto.ParseWallet(params.Wallet)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid wallet", err.Error())
		return
	}
	entry, ok := s.engine.Entry(wallet)
	if !ok {
		writeResult(w, req.ID, nil)
		return
	}
	writeResult(w, req.ID, entryResult(entry.Entry, entry.Rank))
}

func (s *Server) handleIsWhitelisted(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params walletParams
	if err := decodeParams(req.Params, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	wallet, err := crypto.ParseWallet(params.Wallet)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid wallet", err.Error())
		return
	}
	writeResult(w, req.ID, s.engine.IsWhitelisted(wallet))
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	writeResult(w, req.ID, statusResult(s.engine.Status()))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if s.history == nil {
		writeError(w, http.StatusNotImplemented, req.ID, codeServerError, "history journal not configured", nil)
		return
	}
	var params historyParams
	if len(req.Params) > 0 {
		if err := decodeParams(req.Params, &params); err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
			return
		}
	}
	limit := params.Limit
	if limit <= 0 || limit > s.historyLimit {
		limit = s.historyLimit
	}
	var (
		records []journal.Record
		err     error
	)
	if strings.TrimSpace(params.Wallet) != "" {
		wallet, parseErr := crypto.ParseWallet(params.Wallet)
		if parseErr != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid wallet", parseErr.Error())
			return
		}
		records, err = s.history.ByWallet(r.Context(), wallet, limit)
	} else {
		records, err = s.history.Recent(r.Context(), limit)
	}
	if err != nil {
		s.logger.Error("history query failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "failed to load history", nil)
		return
	}
	out := make([]HistoryRecord, len(records))
	for i, record := range records {
		out[i] = historyRecord(record)
	}
	writeResult(w, req.ID, out)
}

func (s *Server) handleSubmitScore(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params submitScoreParams
	if err := decodeParams(req.Params, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	wallet, err := crypto.ParseWallet(params.Wallet)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid wallet", err.Error())
		return
	}
	score, err := parseScore(params.Score)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid score", err.Error())
		return
	}
	caller, err := s.auth.Resolve(r, req.Method, params.authEnvelope, crypto.WalletField(wallet), score.Dec())
	if err != nil {
		s.writeAuthError(w, r, req, err)
		return
	}
	result, err := s.engine.SubmitScore(caller, wallet, score)
	if err != nil {
		s.metrics.ObserveSubmission("rejected", false)
		s.writeEngineError(w, req, err)
		return
	}
	s.metrics.ObserveSubmission(string(result.Outcome), result.Evicted != nil)
	if result.Outcome.Changed() {
		s.publishState()
		s.logger.Info("score recorded",
			slog.String("wallet", crypto.WalletField(wallet)),
			slog.String("caller", crypto.WalletField(caller)),
			slog.String("score", score.Dec()),
			slog.String("outcome", string(result.Outcome)))
	}
	out := SubmitScoreResult{Outcome: string(result.Outcome), Changed: result.Outcome.Changed()}
	if result.Outcome == leaderboard.OutcomeUpdated || result.Outcome == leaderboard.OutcomeUnchanged {
		out.Previous = result.Previous.Dec()
	}
	if result.Evicted != nil {
		evicted := entryResult(*result.Evicted, 0)
		out.Evicted = &evicted
	}
	writeResult(w, req.ID, out)
}

func (s *Server) handleAddToWhitelist(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	s.handleAllowlist(w, r, req, "whitelist_add", s.engine.AddToWhitelist)
}

func (s *Server) handleRemoveFromWhitelist(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	s.handleAllowlist(w, r, req, "whitelist_remove", s.engine.RemoveFromWhitelist)
}

func (s *Server) handleAllowlist(w http.ResponseWriter, r *http.Request, req *RPCRequest, operation string, apply func(caller, wallet [20]byte) error) {
	var params allowlistParams
	if err := decodeParams(req.Params, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	wallet, err := crypto.ParseWallet(params.Wallet)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid wallet", err.Error())
		return
	}
	caller, err := s.auth.Resolve(r, req.Method, params.authEnvelope, crypto.WalletField(wallet))
	if err != nil {
		s.writeAuthError(w, r, req, err)
		return
	}
	err = apply(caller, wallet)
	s.metrics.ObserveAdmin(operation, err)
	if err != nil {
		s.writeEngineError(w, req, err)
		return
	}
	s.publishState()
	writeResult(w, req.ID, map[string]interface{}{
		"wallet":      crypto.WalletAddress(wallet).String(),
		"whitelisted": s.engine.IsWhitelisted(wallet),
	})
}

func (s *Server) handlePauseSubmissions(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params pauseParams
	if err := decodeParams(req.Params, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if params.Paused == nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "paused flag required", nil)
		return
	}
	paused := *params.Paused
	caller, err := s.auth.Resolve(r, req.Method, params.authEnvelope, strconv.FormatBool(paused))
	if err != nil {
		s.writeAuthError(w, r, req, err)
		return
	}
	err = s.engine.PauseSubmissions(caller, paused)
	s.metrics.ObserveAdmin("pause", err)
	if err != nil {
		s.writeEngineError(w, req, err)
		return
	}
	s.publishState()
	s.logger.Info("submissions pause updated", slog.Bool("paused", paused), slog.String("caller", crypto.WalletField(caller)))
	writeResult(w, req.ID, map[string]bool{"paused": s.engine.Paused()})
}

func (s *Server) publishState() {
	status := s.engine.Status()
	s.metrics.SetState(status.Length, status.AllowlistSize, status.Paused)
}

func (s *Server) writeAuthError(w http.ResponseWriter, r *http.Request, req *RPCRequest, err error) {
	if errors.Is(err, ErrReplay) {
		observability.ModuleMetrics().RecordThrottle(moduleName, "replay")
	}
	s.logger.Warn("rpc caller authentication failed",
		slog.String("method", req.Method),
		slog.String("source", s.clientSource(r)),
		logging.MaskField("authorization", r.Header.Get("Authorization")),
		slog.Any("error", err))
	writeError(w, http.StatusUnauthorized, req.ID, codeUnauthorized, "caller authentication failed", err.Error())
}

func (s *Server) writeEngineError(w http.ResponseWriter, req *RPCRequest, err error) {
	switch {
	case errors.Is(err, leaderboard.ErrForbidden):
		writeError(w, http.StatusForbidden, req.ID, codeForbidden, "admin only", err.Error())
	case errors.Is(err, nativecommon.ErrModulePaused):
		writeError(w, http.StatusForbidden, req.ID, codeUnauthorized, "submissions paused", err.Error())
	case errors.Is(err, leaderboard.ErrUnauthorized):
		writeError(w, http.StatusForbidden, req.ID, codeUnauthorized, "not allowlisted", err.Error())
	case errors.Is(err, leaderboard.ErrInvalidScore),
		errors.Is(err, leaderboard.ErrInvalidWallet),
		errors.Is(err, leaderboard.ErrInvalidParams):
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
	default:
		s.logger.Error("leaderboard mutation failed", slog.String("method", req.Method), slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "internal error", nil)
	}
}

// decodeParams unmarshals the first positional parameter, which must be an
// object.
func decodeParams(params []json.RawMessage, out interface{}) error {
	if len(params) != 1 {
		return fmt.Errorf("parameter object required")
	}
	if err := json.Unmarshal(params[0], out); err != nil {
		return fmt.Errorf("invalid parameter object: %v", err)
	}
	return nil
}

// parseLimitParam accepts no params, a bare integer or {"limit": n}.
func parseLimitParam(params []json.RawMessage) (int, error) {
	if len(params) == 0 {
		return 0, nil
	}
	raw := params[0]
	var direct int
	if err := json.Unmarshal(raw, &direct); err == nil {
		if direct < 0 {
			return 0, fmt.Errorf("limit must not be negative")
		}
		return direct, nil
	}
	var wrapper struct {
		Limit *int `json:"limit"`
	}
	if err := json.Unmarshal(raw, &wrapper); err != nil {
		return 0, fmt.Errorf("invalid limit parameter")
	}
	if wrapper.Limit == nil {
		return 0, nil
	}
	if *wrapper.Limit < 0 {
		return 0, fmt.Errorf("limit must not be negative")
	}
	return *wrapper.Limit, nil
}

// parseScore accepts a JSON number or a string holding a decimal or 0x hex
// integer in [0, 2^256).
func parseScore(raw json.RawMessage) (*uint256.Int, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil, fmt.Errorf("score required")
	}
	if strings.HasPrefix(trimmed, `"`) {
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return nil, err
		}
		trimmed = strings.TrimSpace(text)
	}
	if trimmed == "" {
		return nil, fmt.Errorf("score required")
	}
	if strings.HasPrefix(trimmed, "0x") || strings.HasPrefix(trimmed, "0X") {
		value, ok := new(big.Int).SetString(trimmed[2:], 16)
		if !ok || value.Sign() < 0 {
			return nil, fmt.Errorf("invalid hex score")
		}
		out, overflow := uint256.FromBig(value)
		if overflow {
			return nil, fmt.Errorf("score exceeds 256 bits")
		}
		return out, nil
	}
	for _, ch := range trimmed {
		if ch < '0' || ch > '9' {
			return nil, fmt.Errorf("score must be a non-negative integer")
		}
	}
	return uint256.FromDecimal(trimmed)
}
