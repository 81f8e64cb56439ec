package rpc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"gmboard/crypto"
	"gmboard/native/leaderboard"
	"gmboard/services/journal"
)

func TestGetLeaderboardEmptyAndRanked(t *testing.T) {
	env := newTestEnv(t, leaderboard.Params{MaxSize: 5, Gating: leaderboard.GatingDisabled}, nil)

	var board []EntryResult
	status, reply := env.call(t, "lb_getLeaderboard", nil)
	expectResult(t, status, reply, &board)
	if len(board) != 0 {
		t.Fatalf("expected empty board, got %v", board)
	}

	admin := walletOf(env.admin)
	for i, v := range []uint64{10, 30, 20} {
		if _, err := env.engine.SubmitScore(admin, [20]byte{byte(i + 1)}, uint256.NewInt(v)); err != nil {
			t.Fatalf("submit: %v", err)
		}
	}
	status, reply = env.call(t, "lb_getLeaderboard", nil, map[string]int{"limit": 2})
	expectResult(t, status, reply, &board)
	if len(board) != 2 || board[0].Score != "30" || board[0].Rank != 1 || board[1].Score != "20" {
		t.Fatalf("unexpected board: %+v", board)
	}
	if board[0].Address != crypto.WalletField([20]byte{2}) {
		t.Fatalf("unexpected address %s", board[0].Address)
	}

	var length int
	status, reply = env.call(t, "lb_getLeaderboardLength", nil)
	expectResult(t, status, reply, &length)
	if length != 3 {
		t.Fatalf("expected length 3, got %d", length)
	}

	var entry EntryResult
	status, reply = env.call(t, "lb_getEntry", nil, map[string]string{"wallet": crypto.WalletField([20]byte{1})})
	expectResult(t, status, reply, &entry)
	if entry.Rank != 3 || entry.Score != "10" {
		t.Fatalf("unexpected entry: %+v", entry)
	}

	var st StatusResult
	status, reply = env.call(t, "lb_status", nil)
	expectResult(t, status, reply, &st)
	if st.Length != 3 || st.MaxSize != 5 || st.MinScore == nil || *st.MinScore != "10" || st.Gating != "disabled" {
		t.Fatalf("unexpected status: %+v", st)
	}
}

func TestSubmitScoreWithSignedEnvelope(t *testing.T) {
	env := newTestEnv(t, leaderboard.Params{MaxSize: 10, Gating: leaderboard.GatingWallet}, nil)
	player := mustKey(t)
	wallet := walletOf(player)
	if err := env.engine.AddToWhitelist(walletOf(env.admin), wallet); err != nil {
		t.Fatalf("whitelist: %v", err)
	}

	fields := []string{crypto.WalletField(wallet), "1000"}
	params := signed(t, player, "lb_submitScore", map[string]interface{}{"wallet": crypto.WalletField(wallet), "score": "1000"}, fields...)

	var result SubmitScoreResult
	status, reply := env.call(t, "lb_submitScore", nil, params)
	expectResult(t, status, reply, &result)
	if result.Outcome != "inserted" || !result.Changed {
		t.Fatalf("unexpected result: %+v", result)
	}

	status, reply = env.call(t, "lb_submitScore", nil, params)
	expectError(t, status, reply, http.StatusUnauthorized, codeUnauthorized)

	lower := signed(t, player, "lb_submitScore", map[string]interface{}{"wallet": crypto.WalletField(wallet), "score": 999}, crypto.WalletField(wallet), "999")
	status, reply = env.call(t, "lb_submitScore", nil, lower)
	expectResult(t, status, reply, &result)
	if result.Outcome != "unchanged" || result.Changed || result.Previous != "1000" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestSubmitScoreRejectsBadEnvelopes(t *testing.T) {
	env := newTestEnv(t, leaderboard.Params{MaxSize: 10, Gating: leaderboard.GatingDisabled}, nil)
	player := mustKey(t)
	other := mustKey(t)
	wallet := crypto.WalletField(walletOf(player))

	forged := signed(t, other, "lb_submitScore", map[string]interface{}{"wallet": wallet, "score": "5"}, wallet, "5")
	forged["caller"] = wallet
	status, reply := env.call(t, "lb_submitScore", nil, forged)
	expectError(t, status, reply, http.StatusUnauthorized, codeUnauthorized)

	tampered := signed(t, player, "lb_submitScore", map[string]interface{}{"wallet": wallet, "score": "500"}, wallet, "5")
	status, reply = env.call(t, "lb_submitScore", nil, tampered)
	expectError(t, status, reply, http.StatusUnauthorized, codeUnauthorized)

	stale := signed(t, player, "lb_submitScore", map[string]interface{}{"wallet": wallet, "score": "5"}, wallet, "5")
	stale["timestamp"] = time.Now().Add(-time.Hour).Unix()
	status, reply = env.call(t, "lb_submitScore", nil, stale)
	expectError(t, status, reply, http.StatusUnauthorized, codeUnauthorized)

	status, reply = env.call(t, "lb_submitScore", nil, map[string]interface{}{"wallet": wallet, "score": "5"})
	expectError(t, status, reply, http.StatusUnauthorized, codeUnauthorized)

	if env.engine.GetLeaderboardLength() != 0 {
		t.Fatalf("rejected submissions must not reach the engine")
	}
}

func TestSubmitScoreValidatesParams(t *testing.T) {
	env := newTestEnv(t, leaderboard.DefaultParams(), nil)
	cases := []map[string]interface{}{
		{"wallet": "nope", "score": "1"},
		{"wallet": crypto.WalletField([20]byte{1}), "score": "-1"},
		{"wallet": crypto.WalletField([20]byte{1}), "score": "1.5"},
		{"wallet": crypto.WalletField([20]byte{1})},
	}
	for i, params := range cases {
		status, reply := env.call(t, "lb_submitScore", nil, params)
		if status != http.StatusBadRequest || reply.Error == nil || reply.Error.Code != codeInvalidParams {
			t.Fatalf("case %d: expected invalid params, got HTTP %d %+v", i, status, reply.Error)
		}
	}
}

func TestAdminMethodsEnforceAdmin(t *testing.T) {
	env := newTestEnv(t, leaderboard.Params{MaxSize: 10, Gating: leaderboard.GatingWallet}, nil)
	player := mustKey(t)
	wallet := crypto.WalletField(walletOf(player))

	params := signed(t, player, "lb_addToWhitelist", map[string]interface{}{"wallet": wallet}, wallet)
	status, reply := env.call(t, "lb_addToWhitelist", nil, params)
	expectError(t, status, reply, http.StatusForbidden, codeForbidden)

	params = signed(t, env.admin, "lb_addToWhitelist", map[string]interface{}{"wallet": wallet}, wallet)
	var added map[string]interface{}
	status, reply = env.call(t, "lb_addToWhitelist", nil, params)
	expectResult(t, status, reply, &added)
	if added["whitelisted"] != true {
		t.Fatalf("expected whitelisted result, got %v", added)
	}

	var listed bool
	status, reply = env.call(t, "lb_isWhitelisted", nil, map[string]string{"wallet": wallet})
	expectResult(t, status, reply, &listed)
	if !listed {
		t.Fatalf("expected wallet to be whitelisted")
	}

	params = signed(t, env.admin, "lb_removeFromWhitelist", map[string]interface{}{"wallet": wallet}, wallet)
	status, reply = env.call(t, "lb_removeFromWhitelist", nil, params)
	expectResult(t, status, reply, nil)
	if env.engine.IsWhitelisted(walletOf(player)) {
		t.Fatalf("expected wallet removed")
	}
}

func TestPauseBlocksSubmissionsOverRPC(t *testing.T) {
	env := newTestEnv(t, leaderboard.Params{MaxSize: 10, Gating: leaderboard.GatingDisabled}, nil)

	params := signed(t, env.admin, "lb_pauseSubmissions", map[string]interface{}{"paused": true}, "true")
	var paused map[string]bool
	status, reply := env.call(t, "lb_pauseSubmissions", nil, params)
	expectResult(t, status, reply, &paused)
	if !paused["paused"] {
		t.Fatalf("expected paused result")
	}

	player := mustKey(t)
	wallet := crypto.WalletField(walletOf(player))
	submit := signed(t, player, "lb_submitScore", map[string]interface{}{"wallet": wallet, "score": "1"}, wallet, "1")
	status, reply = env.call(t, "lb_submitScore", nil, submit)
	expectError(t, status, reply, http.StatusForbidden, codeUnauthorized)
	if reply.Error.Message != "submissions paused" {
		t.Fatalf("unexpected message %q", reply.Error.Message)
	}

	status, reply = env.call(t, "lb_pauseSubmissions", nil, map[string]interface{}{})
	expectError(t, status, reply, http.StatusBadRequest, codeInvalidParams)
}

func TestMalleatedEnvelopeCannotReplayAdminCall(t *testing.T) {
	env := newTestEnv(t, leaderboard.Params{MaxSize: 10, Gating: leaderboard.GatingDisabled}, nil)

	pause := signed(t, env.admin, "lb_pauseSubmissions", map[string]interface{}{"paused": true}, "true")
	status, reply := env.call(t, "lb_pauseSubmissions", nil, pause)
	expectResult(t, status, reply, nil)

	unpause := signed(t, env.admin, "lb_pauseSubmissions", map[string]interface{}{"paused": false}, "false")
	status, reply = env.call(t, "lb_pauseSubmissions", nil, unpause)
	expectResult(t, status, reply, nil)
	if env.engine.Paused() {
		t.Fatalf("expected submissions to be resumed")
	}

	twin := make(map[string]interface{}, len(pause))
	for k, v := range pause {
		twin[k] = v
	}
	twin["signature"] = malleate(t, pause["signature"].(string))
	status, reply = env.call(t, "lb_pauseSubmissions", nil, twin)
	expectError(t, status, reply, http.StatusUnauthorized, codeUnauthorized)
	if env.engine.Paused() {
		t.Fatalf("replayed envelope must not pause submissions again")
	}
}

func TestJWTBearerResolvesCaller(t *testing.T) {
	const secret = "board-secret"
	env := newTestEnv(t, leaderboard.Params{MaxSize: 10, Gating: leaderboard.GatingDisabled}, func(cfg *Config) {
		cfg.Auth = AuthConfig{JWTEnabled: true, JWTSecret: secret, JWTIssuer: "gmboard"}
	})
	player := [20]byte{0x42}
	sign := func(key string, issuer string) string {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
			Subject:   crypto.WalletField(player),
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		})
		signedToken, err := token.SignedString([]byte(key))
		if err != nil {
			t.Fatalf("sign token: %v", err)
		}
		return "Bearer " + signedToken
	}

	params := map[string]interface{}{"wallet": crypto.WalletField(player), "score": "77"}
	status, reply := env.call(t, "lb_submitScore", map[string]string{"Authorization": sign(secret, "gmboard")}, params)
	expectResult(t, status, reply, nil)
	if entry, ok := env.engine.Entry(player); !ok || entry.Score.Uint64() != 77 {
		t.Fatalf("expected JWT submission to be recorded")
	}

	status, reply = env.call(t, "lb_submitScore", map[string]string{"Authorization": sign("wrong", "gmboard")}, params)
	expectError(t, status, reply, http.StatusUnauthorized, codeUnauthorized)

	status, reply = env.call(t, "lb_submitScore", map[string]string{"Authorization": sign(secret, "elsewhere")}, params)
	expectError(t, status, reply, http.StatusUnauthorized, codeUnauthorized)
}

func TestMutationsAreRateLimited(t *testing.T) {
	env := newTestEnv(t, leaderboard.Params{MaxSize: 10, Gating: leaderboard.GatingDisabled}, func(cfg *Config) {
		cfg.RateLimit = RateLimitConfig{RequestsPerSecond: 0.001, Burst: 1}
	})
	player := mustKey(t)
	wallet := crypto.WalletField(walletOf(player))

	first := signed(t, player, "lb_submitScore", map[string]interface{}{"wallet": wallet, "score": "1"}, wallet, "1")
	status, reply := env.call(t, "lb_submitScore", nil, first)
	expectResult(t, status, reply, nil)

	second := signed(t, player, "lb_submitScore", map[string]interface{}{"wallet": wallet, "score": "2"}, wallet, "2")
	status, reply = env.call(t, "lb_submitScore", nil, second)
	expectError(t, status, reply, http.StatusTooManyRequests, codeRateLimited)

	status, reply = env.call(t, "lb_getLeaderboardLength", nil)
	expectResult(t, status, reply, nil)
}

func TestSpoofedForwardedForDoesNotBypassRateLimit(t *testing.T) {
	env := newTestEnv(t, leaderboard.Params{MaxSize: 10, Gating: leaderboard.GatingDisabled}, func(cfg *Config) {
		cfg.RateLimit = RateLimitConfig{RequestsPerSecond: 0.001, Burst: 1}
	})
	player := mustKey(t)
	wallet := crypto.WalletField(walletOf(player))

	first := signed(t, player, "lb_submitScore", map[string]interface{}{"wallet": wallet, "score": "1"}, wallet, "1")
	status, reply := env.call(t, "lb_submitScore", map[string]string{"X-Forwarded-For": "198.51.100.1"}, first)
	expectResult(t, status, reply, nil)

	second := signed(t, player, "lb_submitScore", map[string]interface{}{"wallet": wallet, "score": "2"}, wallet, "2")
	status, reply = env.call(t, "lb_submitScore", map[string]string{"X-Forwarded-For": "198.51.100.2"}, second)
	expectError(t, status, reply, http.StatusTooManyRequests, codeRateLimited)
}

func TestClientSourceHonorsTrustedProxies(t *testing.T) {
	newServer := func(mutate func(*Config)) *Server {
		return newTestEnv(t, leaderboard.DefaultParams(), mutate).server
	}
	request := func(remote, forwarded string) *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/rpc", nil)
		req.RemoteAddr = remote
		if forwarded != "" {
			req.Header.Set("X-Forwarded-For", forwarded)
		}
		return req
	}

	untrusted := newServer(nil)
	if got := untrusted.clientSource(request("10.0.0.1:8080", "198.51.100.7")); got != "10.0.0.1" {
		t.Fatalf("untrusted peer must not be able to set its source, got %q", got)
	}

	trusted := newServer(func(cfg *Config) { cfg.TrustedProxies = []string{"10.0.0.1", "172.16.0.0/12"} })
	cases := []struct {
		name      string
		remote    string
		forwarded string
		want      string
	}{
		{name: "single hop", remote: "10.0.0.1:8080", forwarded: "198.51.100.7", want: "198.51.100.7"},
		{name: "cidr proxy", remote: "172.16.4.2:8080", forwarded: "198.51.100.8", want: "198.51.100.8"},
		{name: "port stripped", remote: "10.0.0.1:8080", forwarded: " 198.51.100.9:443 ", want: "198.51.100.9"},
		{name: "nearest untrusted hop", remote: "10.0.0.1:8080", forwarded: "203.0.113.5, 198.51.100.10, 172.16.0.9", want: "198.51.100.10"},
		{name: "garbage ignored", remote: "10.0.0.1:8080", forwarded: "not-an-ip", want: "10.0.0.1"},
		{name: "untrusted peer", remote: "192.0.2.10:7000", forwarded: "198.51.100.11", want: "192.0.2.10"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := trusted.clientSource(request(tc.remote, tc.forwarded)); got != tc.want {
				t.Fatalf("got %q want %q", got, tc.want)
			}
		})
	}

	hops := make([]string, maxForwardedForAddrs+1)
	for i := range hops {
		hops[i] = "198.51.100.12"
	}
	if got := trusted.clientSource(request("10.0.0.1:8080", strings.Join(hops, ","))); got != "10.0.0.1" {
		t.Fatalf("expected proxy fallback for oversized chain, got %q", got)
	}

	everyone := newServer(func(cfg *Config) { cfg.TrustProxyHeaders = true })
	if got := everyone.clientSource(request("192.0.2.10:7000", "198.51.100.13")); got != "198.51.100.13" {
		t.Fatalf("expected forwarded client when proxy headers are trusted, got %q", got)
	}
}

func TestNewServerRejectsBadTrustedProxy(t *testing.T) {
	engine, err := leaderboard.NewEngine([20]byte{0x01}, leaderboard.DefaultParams())
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if _, err := NewServer(Config{Engine: engine, TrustedProxies: []string{"proxy.internal"}}); err == nil {
		t.Fatalf("expected invalid trusted proxy to be rejected")
	}
}

func TestRequestValidation(t *testing.T) {
	env := newTestEnv(t, leaderboard.DefaultParams(), nil)

	status, reply := env.call(t, "lb_unknown", nil)
	expectError(t, status, reply, http.StatusNotFound, codeMethodNotFound)

	status, reply = env.post(t, []byte(`{"jsonrpc":"2.0","method":`), nil)
	expectError(t, status, reply, http.StatusBadRequest, codeParseError)

	status, reply = env.post(t, []byte(`   `), nil)
	expectError(t, status, reply, http.StatusBadRequest, codeInvalidRequest)

	status, reply = env.post(t, []byte(`{"jsonrpc":"1.0","method":"lb_status","id":1}`), nil)
	expectError(t, status, reply, http.StatusBadRequest, codeInvalidRequest)

	status, reply = env.call(t, "lb_getEntry", nil)
	expectError(t, status, reply, http.StatusBadRequest, codeInvalidParams)

	status, reply = env.call(t, "lb_getLeaderboard", nil, -1)
	expectError(t, status, reply, http.StatusBadRequest, codeInvalidParams)
}

type fakeHistory struct {
	wallet [20]byte
	limit  int
}

func (f *fakeHistory) Recent(_ context.Context, limit int) ([]journal.Record, error) {
	f.limit = limit
	return []journal.Record{{ID: uuid.New(), Type: "leaderboard.pauseUpdated", Attributes: `{"paused":"true"}`}}, nil
}

func (f *fakeHistory) ByWallet(_ context.Context, wallet [20]byte, limit int) ([]journal.Record, error) {
	f.wallet = wallet
	f.limit = limit
	return []journal.Record{{ID: uuid.New(), Type: "leaderboard.scoreRecorded", Score: "5", Attributes: `{"score":"5"}`}}, nil
}

func TestHistoryQueriesJournal(t *testing.T) {
	history := &fakeHistory{}
	env := newTestEnv(t, leaderboard.DefaultParams(), func(cfg *Config) {
		cfg.History = history
		cfg.HistoryLimit = 20
	})

	var records []HistoryRecord
	status, reply := env.call(t, "lb_history", nil)
	expectResult(t, status, reply, &records)
	if len(records) != 1 || records[0].Attributes["paused"] != "true" || history.limit != 20 {
		t.Fatalf("unexpected recent history: %+v limit=%d", records, history.limit)
	}

	status, reply = env.call(t, "lb_history", nil, map[string]interface{}{"wallet": crypto.WalletField([20]byte{9}), "limit": 5})
	expectResult(t, status, reply, &records)
	if history.wallet != ([20]byte{9}) || history.limit != 5 || records[0].Score != "5" {
		t.Fatalf("unexpected wallet history: %+v", history)
	}

	bare := newTestEnv(t, leaderboard.DefaultParams(), nil)
	status, reply = bare.call(t, "lb_history", nil)
	expectError(t, status, reply, http.StatusNotImplemented, codeServerError)
}

func TestHealthAndMetricsEndpoints(t *testing.T) {
	env := newTestEnv(t, leaderboard.DefaultParams(), nil)
	for _, path := range []string{"/healthz", "/metrics"} {
		rec := httptest.NewRecorder()
		env.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, rec.Code)
		}
	}
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "leaderboard_entries") {
		t.Fatalf("expected leaderboard metrics to be exported")
	}
}

func TestParseScore(t *testing.T) {
	cases := map[string]string{
		`"123"`:  "123",
		`456`:    "456",
		`"0x10"`: "16",
		`"0"`:    "0",
		`"115792089237316195423570985008687907853269984665640564039457584007913129639935"`: "115792089237316195423570985008687907853269984665640564039457584007913129639935",
	}
	for raw, want := range cases {
		got, err := parseScore([]byte(raw))
		if err != nil {
			t.Fatalf("%s: %v", raw, err)
		}
		if got.Dec() != want {
			t.Fatalf("%s: got %s want %s", raw, got.Dec(), want)
		}
	}
	for _, raw := range []string{``, `null`, `"-1"`, `"abc"`, `1e3`, `"0x-1"`,
		`"115792089237316195423570985008687907853269984665640564039457584007913129639936"`} {
		if _, err := parseScore([]byte(raw)); err == nil {
			t.Fatalf("%s: expected error", raw)
		}
	}
}
