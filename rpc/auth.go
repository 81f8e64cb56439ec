package rpc

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"gmboard/crypto"
)

// ErrAuthentication is returned when a caller cannot prove its wallet.
var ErrAuthentication = errors.New("rpc: authentication failed")

// ErrReplay is returned when a signed envelope is presented twice.
var ErrReplay = fmt.Errorf("%w: request already used", ErrAuthentication)

// AuthConfig controls caller identification for mutating methods.
type AuthConfig struct {
	JWTEnabled    bool
	JWTSecret     string
	JWTIssuer     string
	JWTAudience   string
	SignatureSkew time.Duration
}

// Authenticator resolves the calling wallet either from a bearer JWT whose
// subject is the wallet or from a signed request envelope.
type Authenticator struct {
	cfg    AuthConfig
	secret []byte
	now    func() time.Time

	mu   sync.Mutex
	seen map[string]time.Time
}

func NewAuthenticator(cfg AuthConfig) (*Authenticator, error) {
	secret := strings.TrimSpace(cfg.JWTSecret)
	if cfg.JWTEnabled && secret == "" {
		return nil, fmt.Errorf("rpc: jwt enabled but no secret configured")
	}
	if cfg.SignatureSkew <= 0 {
		cfg.SignatureSkew = 2 * time.Minute
	}
	return &Authenticator{
		cfg:    cfg,
		secret: []byte(secret),
		now:    time.Now,
		seen:   make(map[string]time.Time),
	}, nil
}

// Resolve returns the caller's wallet. fields are the method specific values
// covered by the envelope signature.
func (a *Authenticator) Resolve(r *http.Request, method string, env authEnvelope, fields ...string) ([20]byte, error) {
	if token := extractBearer(r.Header.Get("Authorization")); token != "" {
		return a.resolveToken(token)
	}
	return a.resolveEnvelope(method, env, fields...)
}

func (a *Authenticator) resolveToken(tokenString string) ([20]byte, error) {
	var zero [20]byte
	if !a.cfg.JWTEnabled {
		return zero, fmt.Errorf("%w: bearer tokens are not accepted", ErrAuthentication)
	}
	opts := []jwt.ParserOption{
		jwt.WithLeeway(a.cfg.SignatureSkew),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if a.cfg.JWTIssuer != "" {
		opts = append(opts, jwt.WithIssuer(a.cfg.JWTIssuer))
	}
	if a.cfg.JWTAudience != "" {
		opts = append(opts, jwt.WithAudience(a.cfg.JWTAudience))
	}
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, opts...)
	if err != nil {
		return zero, fmt.Errorf("%w: %v", ErrAuthentication, err)
	}
	subject, err := token.Claims.GetSubject()
	if err != nil || subject == "" {
		return zero, fmt.Errorf("%w: token subject required", ErrAuthentication)
	}
	wallet, err := crypto.ParseWallet(subject)
	if err != nil {
		return zero, fmt.Errorf("%w: token subject: %v", ErrAuthentication, err)
	}
	return wallet, nil
}

func (a *Authenticator) resolveEnvelope(method string, env authEnvelope, fields ...string) ([20]byte, error) {
	var zero [20]byte
	if strings.TrimSpace(env.Caller) == "" || strings.TrimSpace(env.Signature) == "" {
		return zero, fmt.Errorf("%w: caller and signature required", ErrAuthentication)
	}
	caller, err := crypto.ParseWallet(env.Caller)
	if err != nil {
		return zero, fmt.Errorf("%w: caller: %v", ErrAuthentication, err)
	}
	now := a.now()
	signedAt := time.Unix(env.Timestamp, 0)
	if env.Timestamp <= 0 || signedAt.Before(now.Add(-a.cfg.SignatureSkew)) || signedAt.After(now.Add(a.cfg.SignatureSkew)) {
		return zero, fmt.Errorf("%w: timestamp outside allowed window", ErrAuthentication)
	}
	sigHex := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(env.Signature)), "0x")
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return zero, fmt.Errorf("%w: signature encoding: %v", ErrAuthentication, err)
	}
	digest := crypto.RequestDigest(method, env.Timestamp, fields...)
	recovered, err := crypto.RecoverWallet(digest, sig)
	if err != nil {
		return zero, fmt.Errorf("%w: %v", ErrAuthentication, err)
	}
	if recovered != caller {
		return zero, fmt.Errorf("%w: signature does not match caller", ErrAuthentication)
	}
	if !a.remember(crypto.WalletField(caller)+":"+hex.EncodeToString(digest), now) {
		return zero, ErrReplay
	}
	return caller, nil
}

// remember records a signed request (caller and digest) for twice the skew
// window, which covers every timestamp that could still be accepted.
func (a *Authenticator) remember(key string, now time.Time) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for key, seenAt := range a.seen {
		if now.Sub(seenAt) > 2*a.cfg.SignatureSkew {
			delete(a.seen, key)
		}
	}
	if _, exists := a.seen[key]; exists {
		return false
	}
	a.seen[key] = now
	return true
}

func extractBearer(header string) string {
	header = strings.TrimSpace(header)
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}
