// Package tunnel carries the bytes for shared ports: access URL
// signing, the requester/owner rendezvous and the bidirectional
// bridge. Authorization decisions stay in the voice core; this package
// only enforces that a presented token was minted by us and is still
// inside its window.
package tunnel

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mattias800/snacka-sub010/internal/domain"
)

const (
	purposeAccess = "tunnel_access"
	purposeServe  = "tunnel_serve"
)

var ErrBadToken = errors.New("bad tunnel token")

type claims struct {
	jwt.RegisteredClaims
	TunnelID string `json:"tun"`
	Purpose  string `json:"pur"`
	ConnID   string `json:"cid,omitempty"`
}

// Issuer signs and parses the single-purpose tokens embedded in tunnel
// URLs. Access tokens authorize one requester for one tunnel; serve
// tokens authorize the owner's dial-back for one proxied connection.
type Issuer struct {
	secret  []byte
	ttl     time.Duration
	baseURL string
}

func NewIssuer(secret string, ttl time.Duration, baseURL string) *Issuer {
	return &Issuer{secret: []byte(secret), ttl: ttl, baseURL: baseURL}
}

// AccessURL implements the voice core's AccessIssuer contract.
func (i *Issuer) AccessURL(share domain.TunnelShare, requester domain.UserID) (string, error) {
	token, err := i.sign(claims{
		RegisteredClaims: i.window(string(requester)),
		TunnelID:         string(share.ID),
		Purpose:          purposeAccess,
	})
	if err != nil {
		return "", err
	}
	return i.baseURL + "/api/tunnel/" + token, nil
}

// ServeURL is the owner's dial-back target for one accepted connection.
func (i *Issuer) ServeURL(share domain.TunnelShare, connID string) (string, error) {
	token, err := i.sign(claims{
		RegisteredClaims: i.window(string(share.OwnerID)),
		TunnelID:         string(share.ID),
		Purpose:          purposeServe,
		ConnID:           connID,
	})
	if err != nil {
		return "", err
	}
	return i.baseURL + "/api/tunnel/serve/" + token, nil
}

// Grant is a validated token: who, which tunnel, and (for serve
// tokens) which pending connection.
type Grant struct {
	UserID   domain.UserID
	TunnelID domain.TunnelID
	ConnID   string
}

func (i *Issuer) ParseAccess(token string) (Grant, error) {
	return i.parse(token, purposeAccess)
}

func (i *Issuer) ParseServe(token string) (Grant, error) {
	return i.parse(token, purposeServe)
}

func (i *Issuer) window(subject string) jwt.RegisteredClaims {
	now := time.Now()
	return jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
	}
}

func (i *Issuer) sign(c claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(i.secret)
}

func (i *Issuer) parse(token, purpose string) (Grant, error) {
	var c claims
	parsed, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return i.secret, nil
	})
	if err != nil || !parsed.Valid {
		return Grant{}, fmt.Errorf("%w: %v", ErrBadToken, err)
	}
	if c.Purpose != purpose {
		return Grant{}, fmt.Errorf("%w: wrong purpose", ErrBadToken)
	}
	return Grant{
		UserID:   domain.UserID(c.Subject),
		TunnelID: domain.TunnelID(c.TunnelID),
		ConnID:   c.ConnID,
	}, nil
}
