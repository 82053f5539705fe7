package proto

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// mojangRootKey is the base64 SPKI of the root that signs authentic
// Xbox Live login chains. Pinned at build time.
const mojangRootKey = "MHYwEAYHKoZIzj0CAQYFK4EEACIDYgAECRXueJeTDqNRRgJi/vlRufByu/2G0i2Ebt6YMar5QX/R0DIIyrJMcUpruK4QveTfJSTp3Shlq4Gk34cD/4GUWwkv0DVuzeuB+tXija7HBxii03NHDbPAD0AKnLr2wdAp"

// Identity is what the login chain proves about a peer.
type Identity struct {
	XUID        string
	UUID        string
	DisplayName string
	// PublicKey is the authoritative client key; the encryption
	// handshake derives the shared secret against it.
	PublicKey *ecdsa.PublicKey
}

type chainJSON struct {
	Chain []string `json:"chain"`
}

type certificateWrapper struct {
	AuthenticationType int    `json:"AuthenticationType"`
	Certificate        string `json:"Certificate"`
}

type identityClaims struct {
	ExtraData *struct {
		XUID        string `json:"XUID"`
		Identity    string `json:"identity"`
		DisplayName string `json:"displayName"`
	} `json:"extraData"`
	IdentityPublicKey string `json:"identityPublicKey"`
	jwt.RegisteredClaims
}

// ParsePublicKey decodes a base64 SPKI DER P-384 public key, the
// form every key in the chain travels as.
func ParsePublicKey(b64 string) (*ecdsa.PublicKey, error) {
	der, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("public key base64: %w", err)
	}
	key, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("public key der: %w", err)
	}
	ec, ok := key.(*ecdsa.PublicKey)
	if !ok || ec.Curve != elliptic.P384() {
		return nil, fmt.Errorf("public key is not ecdsa P-384")
	}
	return ec, nil
}

// MarshalPublicKey is the inverse of ParsePublicKey.
func MarshalPublicKey(key *ecdsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(key)
	if err != nil {
		return "", fmt.Errorf("public key der: %w", err)
	}
	return base64.StdEncoding.EncodeToString(der), nil
}

// ParseLoginChain validates a login packet's chain JSON.
//
// Each token is checked against the key embedded in the preceding
// token (the first against its own x5u header, making it
// self-signed). In online mode every token must verify and the chain
// is accepted only if some token verifies under the pinned root key;
// in offline mode a token that fails verification is still accepted
// and its claims are read unverified.
func ParseLoginChain(chainData []byte, online bool) (*Identity, error) {
	var wrapper certificateWrapper
	raw := chainData
	if err := json.Unmarshal(chainData, &wrapper); err == nil && wrapper.Certificate != "" {
		raw = []byte(wrapper.Certificate)
	}
	var chain chainJSON
	if err := json.Unmarshal(raw, &chain); err != nil {
		return nil, fmt.Errorf("chain json: %w", err)
	}
	if len(chain.Chain) == 0 || len(chain.Chain) > 4 {
		return nil, fmt.Errorf("chain of %d tokens", len(chain.Chain))
	}

	rootKey, err := ParsePublicKey(mojangRootKey)
	if err != nil {
		return nil, fmt.Errorf("pinned root key: %w", err)
	}

	parser := jwt.NewParser(jwt.WithValidMethods([]string{"ES384"}))

	var (
		verifyKey  *ecdsa.PublicKey
		rootSigned bool
		ident      Identity
	)
	for i, tokenStr := range chain.Chain {
		claims := &identityClaims{}

		if verifyKey == nil {
			// First token: self-signed under its x5u header key.
			unverified, _, err := parser.ParseUnverified(tokenStr, claims)
			if err != nil {
				return nil, fmt.Errorf("chain token %d: %w", i, err)
			}
			x5u, _ := unverified.Header["x5u"].(string)
			if x5u == "" {
				return nil, fmt.Errorf("chain token %d: no x5u header", i)
			}
			if verifyKey, err = ParsePublicKey(x5u); err != nil {
				return nil, fmt.Errorf("chain token %d: %w", i, err)
			}
		}

		key := verifyKey
		if _, err := parser.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (any, error) {
			return key, nil
		}); err != nil {
			if online {
				return nil, fmt.Errorf("chain token %d: %w", i, err)
			}
			// Offline mode still needs the claims.
			if _, _, err := parser.ParseUnverified(tokenStr, claims); err != nil {
				return nil, fmt.Errorf("chain token %d: %w", i, err)
			}
		} else if key.Equal(rootKey) {
			rootSigned = true
		}

		if claims.ExtraData != nil {
			ident.XUID = claims.ExtraData.XUID
			ident.UUID = claims.ExtraData.Identity
			ident.DisplayName = claims.ExtraData.DisplayName
		}
		if claims.IdentityPublicKey != "" {
			if verifyKey, err = ParsePublicKey(claims.IdentityPublicKey); err != nil {
				return nil, fmt.Errorf("chain token %d identityPublicKey: %w", i, err)
			}
		}
	}

	if online && !rootSigned {
		return nil, fmt.Errorf("login chain does not root in the pinned key: %w", ErrProtocolViolation)
	}
	if ident.UUID == "" || ident.DisplayName == "" {
		return nil, fmt.Errorf("login chain carries no identity data")
	}
	// The last identityPublicKey is the client's authoritative key.
	ident.PublicKey = verifyKey
	return &ident, nil
}

// NewEphemeralKey generates the server's per-session P-384 key.
func NewEphemeralKey() (*ecdsa.PrivateKey, error) {
	key, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("ephemeral key: %w", err)
	}
	return key, nil
}

// HandshakeJWT builds the server-to-client-handshake token: the
// server's public key in the x5u header and the salt in the claims,
// signed ES384 with the ephemeral private key.
func HandshakeJWT(serverKey *ecdsa.PrivateKey, salt []byte) (string, error) {
	pub, err := MarshalPublicKey(&serverKey.PublicKey)
	if err != nil {
		return "", err
	}
	token := jwt.NewWithClaims(jwt.SigningMethodES384, jwt.MapClaims{
		"salt":        base64.StdEncoding.EncodeToString(salt),
		"signedToken": pub,
	})
	token.Header["x5u"] = pub
	signed, err := token.SignedString(serverKey)
	if err != nil {
		return "", fmt.Errorf("handshake jwt: %w", err)
	}
	return signed, nil
}

// ParseHandshakeJWT reads a server-to-client-handshake token back,
// verifying it under the x5u key. The package tests use it to check
// HandshakeJWT output.
func ParseHandshakeJWT(tokenStr string) (serverKey *ecdsa.PublicKey, salt []byte, err error) {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{"ES384"}))
	claims := jwt.MapClaims{}
	unverified, _, err := parser.ParseUnverified(tokenStr, claims)
	if err != nil {
		return nil, nil, err
	}
	x5u, _ := unverified.Header["x5u"].(string)
	if serverKey, err = ParsePublicKey(x5u); err != nil {
		return nil, nil, err
	}
	if _, err = parser.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (any, error) {
		return serverKey, nil
	}); err != nil {
		return nil, nil, err
	}
	saltB64, _ := claims["salt"].(string)
	if salt, err = base64.StdEncoding.DecodeString(saltB64); err != nil {
		return nil, nil, fmt.Errorf("handshake salt: %w", err)
	}
	return serverKey, salt, nil
}
