package identity

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"
)

type jwkSet struct {
	Keys []jwk `json:"keys"`
}

type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// minRefreshInterval is the least time between two JWKS fetches, so tokens
// with made-up kids cannot turn into a request flood against the issuer.
const minRefreshInterval = 30 * time.Second

// jwksCache holds the issuer's RSA signing keys by kid.
type jwksCache struct {
	httpClient *http.Client
	url        string
	ttl        time.Duration
	now        func() time.Time

	mu          sync.RWMutex
	keys        map[string]*rsa.PublicKey
	fetchedAt   time.Time
	lastAttempt time.Time

	refreshMu sync.Mutex
}

func newJWKSCache(httpClient *http.Client, url string, ttl time.Duration) *jwksCache {
	return &jwksCache{
		httpClient: httpClient,
		url:        url,
		ttl:        ttl,
		now:        time.Now,
		keys:       map[string]*rsa.PublicKey{},
	}
}

func (j *jwksCache) getKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	j.mu.RLock()
	key := j.keys[kid]
	fetchedAt := j.fetchedAt
	lastAttempt := j.lastAttempt
	j.mu.RUnlock()

	now := j.now()
	if key != nil && now.Sub(fetchedAt) <= j.ttl {
		return key, nil
	}
	if strings.TrimSpace(j.url) == "" {
		return nil, errors.New("jwks url not set")
	}
	if !lastAttempt.IsZero() && now.Sub(lastAttempt) < minRefreshInterval {
		if key != nil {
			return key, nil
		}
		return nil, fmt.Errorf("kid not found in jwks: %s", kid)
	}

	if err := j.refresh(ctx, fetchedAt); err != nil {
		// a stale key still beats failing every request while the issuer is down
		if key != nil {
			return key, nil
		}
		return nil, err
	}

	j.mu.RLock()
	defer j.mu.RUnlock()
	key = j.keys[kid]
	if key == nil {
		return nil, fmt.Errorf("kid not found in jwks: %s", kid)
	}
	return key, nil
}

// refresh fetches the key set unless another caller already did so after seen.
func (j *jwksCache) refresh(ctx context.Context, seen time.Time) error {
	j.refreshMu.Lock()
	defer j.refreshMu.Unlock()

	j.mu.RLock()
	already := j.fetchedAt.After(seen)
	j.mu.RUnlock()
	if already {
		return nil
	}
	j.mu.Lock()
	j.lastAttempt = j.now()
	j.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, j.url, nil)
	if err != nil {
		return err
	}
	res, err := j.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return fmt.Errorf("jwks fetch failed: %s", res.Status)
	}

	var set jwkSet
	if err := json.NewDecoder(res.Body).Decode(&set); err != nil {
		return err
	}

	next := map[string]*rsa.PublicKey{}
	for _, k := range set.Keys {
		if strings.TrimSpace(k.Kid) == "" || k.Kty != "RSA" {
			continue
		}
		if pub, err := rsaFromModExp(k.N, k.E); err == nil {
			next[k.Kid] = pub
		}
	}
	if len(next) == 0 {
		return fmt.Errorf("jwks contained no usable keys")
	}

	j.mu.Lock()
	j.keys = next
	j.fetchedAt = j.now()
	j.mu.Unlock()
	return nil
}

func rsaFromModExp(nB64, eB64 string) (*rsa.PublicKey, error) {
	nb, err := base64.RawURLEncoding.DecodeString(nB64)
	if err != nil {
		return nil, err
	}
	eb, err := base64.RawURLEncoding.DecodeString(eB64)
	if err != nil {
		return nil, err
	}
	e := 0
	for _, b := range eb {
		e = e<<8 + int(b)
	}
	if e == 0 {
		return nil, fmt.Errorf("invalid exponent")
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(nb), E: e}, nil
}
