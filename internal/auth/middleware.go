// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package auth resolves the caller identity used for rate limiting and,
// when enabled, enforces API key authentication.
package auth

import (
	"bufio"
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
)

// ContextKey is the type for context keys
type ContextKey string

const (
	// PrincipalKey is the context key for the resolved caller
	PrincipalKey ContextKey = "principal"
)

// Authentication methods reported on a Principal
const (
	MethodDisabled = "disabled"
	MethodPublic   = "public_endpoint"
	MethodAPIKey   = "api_key"
	MethodLocal    = "local"
)

const hashedKeyPrefix = "sha256:"

// Principal is the authenticated caller
type Principal struct {
	// Identity keys rate limiting: "api_key:<hash>", "ip:<addr>" or "local:<user>"
	Identity string
	Method   string
	// KeyPrefix is a loggable prefix of the presented key
	KeyPrefix string
}

// Config controls API key authentication
type Config struct {
	Enabled   bool
	MasterKey string
	// Keys are plain keys or "sha256:<hex>" digests
	Keys []string
	// KeysFile lists one key per line; blank lines and # comments are skipped
	KeysFile string
}

// Authenticator validates API keys and derives caller identities
type Authenticator struct {
	enabled bool
	keys    []string
	hashes  [][]byte
	logger  *slog.Logger
}

// NewAuthenticator loads keys from the config and the optional keys file.
// A missing keys file is not an error.
func NewAuthenticator(cfg Config, logger *slog.Logger) (*Authenticator, error) {
	if logger == nil {
		logger = slog.Default()
	}

	all := append([]string{}, cfg.Keys...)
	if cfg.MasterKey != "" {
		all = append(all, cfg.MasterKey)
	}
	if cfg.KeysFile != "" {
		fileKeys, err := readKeysFile(cfg.KeysFile)
		if err != nil {
			return nil, err
		}
		all = append(all, fileKeys...)
	}

	a := &Authenticator{enabled: cfg.Enabled, logger: logger}
	seen := make(map[string]bool)
	for _, k := range all {
		k = strings.TrimSpace(k)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		if strings.HasPrefix(k, hashedKeyPrefix) {
			digest, err := hex.DecodeString(strings.TrimPrefix(k, hashedKeyPrefix))
			if err != nil || len(digest) != sha256.Size {
				return nil, fmt.Errorf("invalid sha256 key digest %q", k)
			}
			a.hashes = append(a.hashes, digest)
			continue
		}
		a.keys = append(a.keys, k)
	}

	if a.enabled && len(a.keys)+len(a.hashes) == 0 {
		logger.Warn("auth_enabled_but_no_keys")
	}
	logger.Info("api_auth_initialized", "auth_enabled", a.enabled, "key_count", len(a.keys)+len(a.hashes))
	return a, nil
}

func readKeysFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open keys file: %w", err)
	}
	defer f.Close()

	var keys []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		keys = append(keys, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read keys file: %w", err)
	}
	return keys, nil
}

// Enabled reports whether API keys are required
func (a *Authenticator) Enabled() bool {
	return a.enabled
}

// Validate reports whether key matches a configured key or digest
func (a *Authenticator) Validate(key string) bool {
	if key == "" {
		return false
	}
	ok := false
	for _, k := range a.keys {
		if subtle.ConstantTimeCompare([]byte(k), []byte(key)) == 1 {
			ok = true
		}
	}
	sum := sha256.Sum256([]byte(key))
	for _, h := range a.hashes {
		if subtle.ConstantTimeCompare(h, sum[:]) == 1 {
			ok = true
		}
	}
	return ok
}

// Resolve authenticates r. clientIP is the address used when no key
// identifies the caller.
func (a *Authenticator) Resolve(r *http.Request, clientIP string, public bool) (*Principal, error) {
	if !a.enabled {
		return &Principal{Identity: IPIdentity(clientIP), Method: MethodDisabled}, nil
	}
	if public {
		return &Principal{Identity: IPIdentity(clientIP), Method: MethodPublic}, nil
	}

	key := extractToken(r)
	if key == "" {
		return nil, ErrMissingKey
	}
	if !a.Validate(key) {
		return nil, ErrInvalidKey
	}
	return &Principal{Identity: KeyIdentity(key), Method: MethodAPIKey, KeyPrefix: keyPrefix(key)}, nil
}

// Authentication failures
var (
	ErrMissingKey = errors.New("API key required")
	ErrInvalidKey = errors.New("invalid API key")
)

// Middleware resolves the principal for every request. Requests for which
// isPublic returns true never need a key.
func (a *Authenticator) Middleware(isPublic func(path string) bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		public := isPublic != nil && isPublic(path)

		p, err := a.Resolve(c.Request, c.ClientIP(), public)
		if err != nil {
			a.logger.Warn("auth_failed", "path", path, "client_ip", c.ClientIP(), "error", err)
			c.Header("WWW-Authenticate", "Bearer")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success":    false,
				"error":      err.Error(),
				"error_type": "authentication_error",
			})
			return
		}
		if p.Method == MethodAPIKey {
			a.logger.Debug("auth_success", "path", path, "api_key_prefix", p.KeyPrefix)
		}

		c.Set(string(PrincipalKey), p)
		c.Request = c.Request.WithContext(WithPrincipal(c.Request.Context(), p))
		c.Next()
	}
}

// extractToken reads the key from the Authorization bearer header, the
// X-API-Key header or the api_key query parameter, in that order
func extractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.ToLower(parts[0]) == "bearer" {
			return strings.TrimSpace(parts[1])
		}
	}
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	return r.URL.Query().Get("api_key")
}

// KeyIdentity derives a rate limit identity that does not reveal the key
func KeyIdentity(key string) string {
	sum := sha256.Sum256([]byte(key))
	return "api_key:" + hex.EncodeToString(sum[:16])
}

// IPIdentity is the identity of an unauthenticated caller
func IPIdentity(ip string) string {
	if ip == "" {
		ip = "unknown"
	}
	return "ip:" + ip
}

// LocalIdentity is the identity of a local stdio caller
func LocalIdentity(user string) string {
	if user == "" {
		user = "default"
	}
	return "local:" + user
}

func keyPrefix(key string) string {
	if len(key) > 8 {
		return key[:8] + "..."
	}
	return "short_key"
}

// WithPrincipal adds a principal to a context
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, PrincipalKey, p)
}

// PrincipalFromContext extracts the principal from a context
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(PrincipalKey).(*Principal)
	return p, ok
}
