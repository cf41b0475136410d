// Package auth provides JWT verification and signing helpers.
package auth

import (
	"crypto"
	"crypto/hmac"
	"crypto/rsa"
	"crypto/sha256"
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

// Verifier validates bearer tokens and extracts the principal claims.
// Supports modes: dev (token is the raw user id), hmac (HS256), jwks (RS256
// from a JWKS URL). Only hmac mode can sign tokens.
type Verifier struct {
	Mode       string
	HMACSecret []byte
	JWKSURL    string
	http       *http.Client
	mu         sync.RWMutex
	jwks       jwks
	lastFetch  time.Time
	cacheTTL   time.Duration
}

type jwks struct {
	Keys []jwk `json:"keys"`
}
type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	N   string `json:"n"`
	E   string `json:"e"`
	Alg string `json:"alg"`
}

// Claims is the verified token principal. Subject is the user id the profile
// row is keyed by.
type Claims struct {
	Subject string
	Email   string
}

var ErrTokenInvalid = errors.New("invalid token")

func NewVerifier(mode, hmacSecret, jwksURL string) *Verifier {
	mode = strings.ToLower(strings.TrimSpace(mode))
	if mode == "" {
		mode = "dev"
	}
	return &Verifier{
		Mode:       mode,
		HMACSecret: []byte(hmacSecret),
		JWKSURL:    jwksURL,
		http:       &http.Client{Timeout: 5 * time.Second},
		cacheTTL:   10 * time.Minute,
	}
}

func (v *Verifier) Verify(token string) (Claims, error) {
	if v.Mode == "dev" {
		// token is the user id itself
		if strings.TrimSpace(token) == "" {
			return Claims{}, ErrTokenInvalid
		}
		return Claims{Subject: strings.TrimSpace(token)}, nil
	}
	segs := strings.Split(token, ".")
	if len(segs) != 3 {
		return Claims{}, ErrTokenInvalid
	}
	headerJSON, err := b64urlDecode(segs[0])
	if err != nil {
		return Claims{}, ErrTokenInvalid
	}
	payloadJSON, err := b64urlDecode(segs[1])
	if err != nil {
		return Claims{}, ErrTokenInvalid
	}
	sig, err := b64urlDecode(segs[2])
	if err != nil {
		return Claims{}, ErrTokenInvalid
	}
	var hdr map[string]any
	if err := json.Unmarshal(headerJSON, &hdr); err != nil {
		return Claims{}, ErrTokenInvalid
	}
	var claims map[string]any
	if err := json.Unmarshal(payloadJSON, &claims); err != nil {
		return Claims{}, ErrTokenInvalid
	}
	alg, _ := hdr["alg"].(string)
	kid, _ := hdr["kid"].(string)
	signingInput := []byte(segs[0] + "." + segs[1])
	switch v.Mode {
	case "hmac":
		if alg != "HS256" {
			return Claims{}, ErrTokenInvalid
		}
		mac := hmac.New(sha256.New, v.HMACSecret)
		mac.Write(signingInput)
		if !hmac.Equal(mac.Sum(nil), sig) {
			return Claims{}, ErrTokenInvalid
		}
	case "jwks":
		if alg != "RS256" {
			return Claims{}, ErrTokenInvalid
		}
		pub, err := v.getRSAPublicKey(kid)
		if err != nil {
			return Claims{}, err
		}
		h := sha256.Sum256(signingInput)
		if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, h[:], sig); err != nil {
			return Claims{}, ErrTokenInvalid
		}
	default:
		return Claims{}, errors.New("unsupported auth mode")
	}
	if exp, ok := claims["exp"].(float64); ok && time.Now().Unix() >= int64(exp) {
		return Claims{}, ErrTokenInvalid
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return Claims{}, ErrTokenInvalid
	}
	email, _ := claims["email"].(string)
	return Claims{Subject: sub, Email: email}, nil
}

// Sign issues a token for the subject. In dev mode tokens are the subject
// itself; hmac mode issues an HS256 JWT. jwks mode cannot sign.
func (v *Verifier) Sign(subject, email string, ttl time.Duration) (string, error) {
	switch v.Mode {
	case "dev":
		return subject, nil
	case "hmac":
		hdr, _ := json.Marshal(map[string]string{"alg": "HS256", "typ": "JWT"})
		payload, _ := json.Marshal(map[string]any{
			"sub":   subject,
			"email": email,
			"iat":   time.Now().Unix(),
			"exp":   time.Now().Add(ttl).Unix(),
		})
		signingInput := b64urlEncode(hdr) + "." + b64urlEncode(payload)
		mac := hmac.New(sha256.New, v.HMACSecret)
		mac.Write([]byte(signingInput))
		return signingInput + "." + b64urlEncode(mac.Sum(nil)), nil
	default:
		return "", fmt.Errorf("cannot sign tokens in %s mode", v.Mode)
	}
}

func b64urlDecode(s string) ([]byte, error) { return base64.RawURLEncoding.DecodeString(s) }
func b64urlEncode(b []byte) string          { return base64.RawURLEncoding.EncodeToString(b) }

// get RSAPublicKey from JWKS cache/fetch
func (v *Verifier) getRSAPublicKey(kid string) (*rsa.PublicKey, error) {
	v.mu.RLock()
	cached := v.jwks
	stale := time.Since(v.lastFetch) > v.cacheTTL
	v.mu.RUnlock()
	if len(cached.Keys) == 0 || stale {
		if err := v.fetchJWKS(); err != nil {
			return nil, err
		}
		v.mu.RLock()
		cached = v.jwks
		v.mu.RUnlock()
	}
	for _, k := range cached.Keys {
		if k.Kid == kid && strings.EqualFold(k.Kty, "RSA") {
			nBytes, err := base64.RawURLEncoding.DecodeString(k.N)
			if err != nil {
				return nil, err
			}
			eBytes, err := base64.RawURLEncoding.DecodeString(k.E)
			if err != nil {
				return nil, err
			}
			// exponent bytes are big-endian, typically 0x010001
			e := 0
			for _, b := range eBytes {
				e = (e << 8) | int(b)
			}
			n := new(big.Int).SetBytes(nBytes)
			return &rsa.PublicKey{N: n, E: e}, nil
		}
	}
	return nil, errors.New("kid not found in JWKS")
}

func (v *Verifier) fetchJWKS() error {
	if v.JWKSURL == "" {
		return errors.New("JWKS URL not configured")
	}
	req, _ := http.NewRequest(http.MethodGet, v.JWKSURL, nil)
	resp, err := v.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	var j jwks
	if err := json.NewDecoder(resp.Body).Decode(&j); err != nil {
		return err
	}
	v.mu.Lock()
	v.jwks = j
	v.lastFetch = time.Now()
	v.mu.Unlock()
	return nil
}
