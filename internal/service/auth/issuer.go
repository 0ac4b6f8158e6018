package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

const (
	discoveryPath     = "/.well-known/openid-configuration"
	discoveryCacheKey = "discovery"
	keysCacheKey      = "jwks"
	maxMetadataBytes  = 1 << 20
)

type discoveryDocument struct {
	Issuer                string `json:"issuer"`
	JWKSURI               string `json:"jwks_uri"`
	IntrospectionEndpoint string `json:"introspection_endpoint"`
}

type jwk struct {
	Kty string `json:"kty"`
	Alg string `json:"alg"`
	Use string `json:"use"`
	Kid string `json:"kid"`
	N   string `json:"n"`
	E   string `json:"e"`
}

type jwkSet struct {
	Keys []jwk `json:"keys"`
}

// issuerClient talks to the token issuer. Discovery and key sets are cached;
// concurrent misses share one fetch.
type issuerClient struct {
	authority    string
	requireHTTPS bool
	timeout      time.Duration
	ttl          time.Duration
	http         *http.Client
	cache        *cache.Cache
	group        singleflight.Group
}

func newIssuerClient(authority string, requireHTTPS bool, timeout, ttl time.Duration, client *http.Client) *issuerClient {
	return &issuerClient{
		authority:    strings.TrimRight(authority, "/"),
		requireHTTPS: requireHTTPS,
		timeout:      timeout,
		ttl:          ttl,
		http:         client,
		cache:        cache.New(ttl, 2*ttl),
	}
}

func (c *issuerClient) discovery(ctx context.Context) (*discoveryDocument, error) {
	if v, ok := c.cache.Get(discoveryCacheKey); ok {
		return v.(*discoveryDocument), nil
	}

	v, err := c.shared(ctx, discoveryCacheKey, func(ctx context.Context) (any, error) {
		var doc discoveryDocument
		if err := c.getJSON(ctx, c.authority+discoveryPath, &doc); err != nil {
			return nil, err
		}
		if doc.JWKSURI == "" {
			return nil, fmt.Errorf("%w: discovery document has no jwks_uri", ErrIssuerUnavailable)
		}
		c.cache.Set(discoveryCacheKey, &doc, c.ttl)
		return &doc, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*discoveryDocument), nil
}

// signingKey returns the RSA key for kid, refreshing the key set once when
// kid is unknown so that issuer key rotation is picked up.
func (c *issuerClient) signingKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	keys, err := c.keys(ctx, false)
	if err != nil {
		return nil, err
	}
	if key := pickKey(keys, kid); key != nil {
		return key, nil
	}

	keys, err = c.keys(ctx, true)
	if err != nil {
		return nil, err
	}
	if key := pickKey(keys, kid); key != nil {
		return key, nil
	}
	return nil, fmt.Errorf("%w: unknown signing key %q", ErrInvalidToken, kid)
}

// pickKey matches kid, or the only key when the token names none.
func pickKey(keys map[string]*rsa.PublicKey, kid string) *rsa.PublicKey {
	if kid == "" && len(keys) == 1 {
		for _, k := range keys {
			return k
		}
	}
	return keys[kid]
}

func (c *issuerClient) keys(ctx context.Context, refresh bool) (map[string]*rsa.PublicKey, error) {
	if !refresh {
		if v, ok := c.cache.Get(keysCacheKey); ok {
			return v.(map[string]*rsa.PublicKey), nil
		}
	}

	doc, err := c.discovery(ctx)
	if err != nil {
		return nil, err
	}

	v, err := c.shared(ctx, keysCacheKey, func(ctx context.Context) (any, error) {
		var set jwkSet
		if err := c.getJSON(ctx, doc.JWKSURI, &set); err != nil {
			return nil, err
		}
		keys := make(map[string]*rsa.PublicKey, len(set.Keys))
		for _, k := range set.Keys {
			if !strings.EqualFold(k.Kty, "RSA") || (k.Use != "" && k.Use != "sig") {
				continue
			}
			pub, err := rsaPublicKey(k)
			if err != nil {
				continue
			}
			keys[k.Kid] = pub
		}
		c.cache.Set(keysCacheKey, keys, c.ttl)
		return keys, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(map[string]*rsa.PublicKey), nil
}

// shared runs fetch once for all concurrent callers of key. The fetch is
// detached from the first caller's cancellation and bounded by the issuer
// timeout in do; each caller stops waiting when its own ctx ends.
func (c *issuerClient) shared(ctx context.Context, key string, fetch func(context.Context) (any, error)) (any, error) {
	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		return fetch(detached)
	})
	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, classifyIssuerError(ctx.Err())
	}
}

func rsaPublicKey(k jwk) (*rsa.PublicKey, error) {
	nb, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, err
	}
	eb, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, err
	}
	e := 65537
	if len(eb) > 0 {
		e = 0
		for _, b := range eb {
			e = (e << 8) | int(b)
		}
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(nb), E: e}, nil
}

// introspect posts token to the RFC 7662 endpoint using client credentials.
func (c *issuerClient) introspect(
	ctx context.Context,
	endpoint, token, clientID, secret string,
) (map[string]any, error) {
	form := url.Values{}
	form.Set("token", token)
	form.Set("token_type_hint", "access_token")

	var out map[string]any
	err := c.do(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()), func(req *http.Request) {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.SetBasicAuth(clientID, secret)
	}, &out)
	return out, err
}

func (c *issuerClient) getJSON(ctx context.Context, target string, out any) error {
	return c.do(ctx, http.MethodGet, target, nil, nil, out)
}

// do runs one issuer call under the issuer timeout and decodes the JSON body.
func (c *issuerClient) do(
	ctx context.Context,
	method, target string,
	body io.Reader,
	prepare func(*http.Request),
	out any,
) error {
	u, err := url.Parse(target)
	if err != nil {
		return fmt.Errorf("%w: invalid metadata address: %v", ErrIssuerUnavailable, err)
	}
	if c.requireHTTPS && u.Scheme != "https" {
		return fmt.Errorf("%w: metadata address %s must use https", ErrIssuerUnavailable, u.Redacted())
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIssuerUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")
	if prepare != nil {
		prepare(req)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return classifyIssuerError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("%w: %s %s returned %d", ErrIssuerUnavailable, method, u.Path, resp.StatusCode)
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxMetadataBytes)).Decode(out); err != nil {
		return classifyIssuerError(err)
	}
	return nil
}

func classifyIssuerError(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %v", ErrIssuerTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrIssuerUnavailable, err)
}
