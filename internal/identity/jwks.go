package identity

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/opsloom/codeterm/internal/cache"
)

const jwksCacheTTL = time.Hour

// errNoUsableKeys means the JWKS document was fetched but held no RSA key
// this client can use; refetching the same document does not change that.
var errNoUsableKeys = errors.New("no usable RSA keys")

// Retry bounds for the JWKS fetch, exponential backoff doubling from
// jwksFetchInitialBackoff up to jwksFetchMaxBackoff across at most
// jwksFetchMaxAttempts tries, mirroring the doubling-with-cap shape other
// workers in the pack use for transient-failure recovery.
const (
	jwksFetchMaxAttempts    = 4
	jwksFetchInitialBackoff = 200 * time.Millisecond
	jwksFetchMaxBackoff     = 2 * time.Second
)

// jwk is one entry of a JSON Web Key Set, restricted to the RSA fields
// the edge-issued access tokens actually use.
type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

type jwksDocument struct {
	Keys []jwk `json:"keys"`
}

// keySet is a JWKS response resolved into usable RSA public keys, keyed
// by kid.
type keySet map[string]*rsa.PublicKey

// jwksClient fetches and caches a team's JWKS document, matching the
// teacher's discovery.go fetch-and-decode shape generalized from OAuth
// server metadata to a key set, and reusing the teacher's generic
// Cache[K,V] for the single-entry 1-hour cache.
type jwksClient struct {
	url    string
	client *http.Client
	cache  *cache.Cache[string, keySet]
}

func newJWKSClient(jwksURL string) *jwksClient {
	return &jwksClient{
		url:    jwksURL,
		client: &http.Client{Timeout: 10 * time.Second},
		cache:  cache.New[string, keySet](1, jwksCacheTTL),
	}
}

// keyFunc returns a jwt.Keyfunc that resolves the token's kid header
// against the (cached) JWKS document.
func (j *jwksClient) keyFunc(ctx context.Context) jwt.Keyfunc {
	return func(token *jwt.Token) (any, error) {
		kid, ok := token.Header["kid"].(string)
		if !ok || kid == "" {
			return nil, fmt.Errorf("token missing kid header")
		}

		keys, err := j.cache.GetOrLoad("keys", func() (keySet, error) {
			return j.fetch(ctx)
		})
		if err != nil {
			return nil, fmt.Errorf("fetch jwks: %w", err)
		}

		key, ok := keys[kid]
		if !ok {
			// The key may have rotated since the cache was populated;
			// force one refetch before giving up.
			j.cache.Invalidate("keys")
			keys, err = j.cache.GetOrLoad("keys", func() (keySet, error) {
				return j.fetch(ctx)
			})
			if err != nil {
				return nil, fmt.Errorf("refetch jwks: %w", err)
			}
			key, ok = keys[kid]
			if !ok {
				return nil, fmt.Errorf("unknown key id: %s", kid)
			}
		}
		return key, nil
	}
}

// fetch retries fetchOnce with exponential backoff, since a transient
// network blip or edge hiccup shouldn't fail every in-flight token
// verification until the next cache expiry. A document that was fetched
// but holds no usable keys is returned as an error without a retry.
func (j *jwksClient) fetch(ctx context.Context) (keySet, error) {
	var lastErr error
	backoff := jwksFetchInitialBackoff
	for attempt := 1; attempt <= jwksFetchMaxAttempts; attempt++ {
		keys, err := j.fetchOnce(ctx)
		if err == nil {
			return keys, nil
		}
		if errors.Is(err, errNoUsableKeys) {
			return nil, err
		}
		lastErr = err
		if attempt == jwksFetchMaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > jwksFetchMaxBackoff {
			backoff = jwksFetchMaxBackoff
		}
	}
	return nil, fmt.Errorf("jwks fetch failed after %d attempts: %w", jwksFetchMaxAttempts, lastErr)
}

func (j *jwksClient) fetchOnce(ctx context.Context) (keySet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, j.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build jwks request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := j.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("jwks fetch %s: status %d", j.url, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read jwks response: %w", err)
	}

	var doc jwksDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("parse jwks: %w", err)
	}

	out := make(keySet, len(doc.Keys))
	for _, k := range doc.Keys {
		if k.Kty != "RSA" || k.Kid == "" {
			continue
		}
		pub, err := rsaPublicKeyFromJWK(k)
		if err != nil {
			continue
		}
		out[k.Kid] = pub
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("jwks document at %s: %w", j.url, errNoUsableKeys)
	}
	return out, nil
}

func rsaPublicKeyFromJWK(k jwk) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("decode modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("decode exponent: %w", err)
	}

	n := new(big.Int).SetBytes(nBytes)
	e := new(big.Int).SetBytes(eBytes)

	return &rsa.PublicKey{N: n, E: int(e.Int64())}, nil
}
