package rpc

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gethcrypto "github.com/ethereum/go-ethereum/crypto"

	"gmboard/crypto"
	"gmboard/native/leaderboard"
)

type testEnv struct {
	server *Server
	engine *leaderboard.Engine
	admin  *crypto.PrivateKey
}

type rpcReply struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

func mustKey(t *testing.T) *crypto.PrivateKey {
	t.Helper()
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return key
}

func walletOf(key *crypto.PrivateKey) [20]byte {
	return key.PubKey().Address().Wallet()
}

func newTestEnv(t *testing.T, params leaderboard.Params, mutate func(*Config)) *testEnv {
	t.Helper()
	admin := mustKey(t)
	engine, err := leaderboard.NewEngine(walletOf(admin), params)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	cfg := Config{Engine: engine, RateLimit: RateLimitConfig{RequestsPerSecond: 1000, Burst: 1000}}
	if mutate != nil {
		mutate(&cfg)
	}
	server, err := NewServer(cfg)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return &testEnv{server: server, engine: engine, admin: admin}
}

// signed returns params merged with a fresh signed envelope from key.
func signed(t *testing.T, key *crypto.PrivateKey, method string, params map[string]interface{}, fields ...string) map[string]interface{} {
	t.Helper()
	ts := time.Now().Unix()
	sig, err := key.Sign(crypto.RequestDigest(method, ts, fields...))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	out := make(map[string]interface{}, len(params)+3)
	for k, v := range params {
		out[k] = v
	}
	out["caller"] = key.PubKey().Address().Hex()
	out["timestamp"] = ts
	out["signature"] = "0x" + hex.EncodeToString(sig)
	return out
}

// malleate returns the twin encoding of a signature: s' = N - s with the
// recovery id flipped. Both recover the same public key.
func malleate(t *testing.T, sigHex string) string {
	t.Helper()
	sig, err := hex.DecodeString(strings.TrimPrefix(sigHex, "0x"))
	if err != nil || len(sig) != gethcrypto.SignatureLength {
		t.Fatalf("decode signature %q: %v", sigHex, err)
	}
	s := new(big.Int).SetBytes(sig[32:64])
	s.Sub(gethcrypto.S256().Params().N, s)
	out := make([]byte, len(sig))
	copy(out, sig[:32])
	s.FillBytes(out[32:64])
	out[64] = sig[64] ^ 1
	return "0x" + hex.EncodeToString(out)
}

func (env *testEnv) call(t *testing.T, method string, headers map[string]string, params ...interface{}) (int, rpcReply) {
	t.Helper()
	raw := make([]json.RawMessage, 0, len(params))
	for _, p := range params {
		encoded, err := json.Marshal(p)
		if err != nil {
			t.Fatalf("marshal params: %v", err)
		}
		raw = append(raw, encoded)
	}
	body, err := json.Marshal(RPCRequest{JSONRPC: jsonRPCVersion, Method: method, Params: raw, ID: 1})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	return env.post(t, body, headers)
}

func (env *testEnv) post(t *testing.T, body []byte, headers map[string]string) (int, rpcReply) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/rpc", bytes.NewReader(body))
	req.RemoteAddr = "10.0.0.1:5555"
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	var reply rpcReply
	if err := json.Unmarshal(rec.Body.Bytes(), &reply); err != nil {
		t.Fatalf("decode reply %q: %v", rec.Body.String(), err)
	}
	return rec.Code, reply
}

func expectError(t *testing.T, status int, reply rpcReply, wantStatus, wantCode int) {
	t.Helper()
	if status != wantStatus {
		t.Fatalf("expected HTTP %d, got %d (%+v)", wantStatus, status, reply.Error)
	}
	if reply.Error == nil || reply.Error.Code != wantCode {
		t.Fatalf("expected error code %d, got %+v", wantCode, reply.Error)
	}
}

func expectResult(t *testing.T, status int, reply rpcReply, out interface{}) {
	t.Helper()
	if status != http.StatusOK || reply.Error != nil {
		t.Fatalf("expected success, got HTTP %d error %+v", status, reply.Error)
	}
	if out == nil {
		return
	}
	if err := json.Unmarshal(reply.Result, out); err != nil {
		t.Fatalf("decode result %s: %v", string(reply.Result), err)
	}
}
