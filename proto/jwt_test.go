package proto

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/json"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// selfSignedChain builds the kind of chain an offline client sends:
// one token, self-signed by the client's own key.
func selfSignedChain(t *testing.T, key *ecdsa.PrivateKey, name string) []byte {
	t.Helper()
	pub, err := MarshalPublicKey(&key.PublicKey)
	require.NoError(t, err)

	token := jwt.NewWithClaims(jwt.SigningMethodES384, jwt.MapClaims{
		"extraData": map[string]any{
			"XUID":        "123456789",
			"identity":    "aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee",
			"displayName": name,
		},
		"identityPublicKey": pub,
	})
	token.Header["x5u"] = pub
	signed, err := token.SignedString(key)
	require.NoError(t, err)

	data, err := json.Marshal(map[string]any{"chain": []string{signed}})
	require.NoError(t, err)
	return data
}

func testKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	require.NoError(t, err)
	return key
}

func TestParseLoginChainOffline(t *testing.T) {
	key := testKey(t)
	ident, err := ParseLoginChain(selfSignedChain(t, key, "Steve"), false)
	require.NoError(t, err)
	assert.Equal(t, "Steve", ident.DisplayName)
	assert.Equal(t, "123456789", ident.XUID)
	assert.Equal(t, "aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee", ident.UUID)
	require.NotNil(t, ident.PublicKey)
	assert.True(t, key.PublicKey.Equal(ident.PublicKey))
}

func TestParseLoginChainCertificateWrapper(t *testing.T) {
	key := testKey(t)
	inner := selfSignedChain(t, key, "Alex")
	wrapped, err := json.Marshal(map[string]any{
		"AuthenticationType": 0,
		"Certificate":        string(inner),
	})
	require.NoError(t, err)

	ident, err := ParseLoginChain(wrapped, false)
	require.NoError(t, err)
	assert.Equal(t, "Alex", ident.DisplayName)
}

func TestParseLoginChainOnlineRejectsSelfSigned(t *testing.T) {
	key := testKey(t)
	_, err := ParseLoginChain(selfSignedChain(t, key, "Steve"), true)
	assert.Error(t, err, "a self-signed chain must not pass online verification")
}

func TestParseLoginChainMalformed(t *testing.T) {
	_, err := ParseLoginChain([]byte(`not json`), false)
	assert.Error(t, err)
	_, err = ParseLoginChain([]byte(`{"chain":[]}`), false)
	assert.Error(t, err)
	_, err = ParseLoginChain([]byte(`{"nochain":1}`), false)
	assert.Error(t, err)
}

func TestParseLoginChainNoIdentity(t *testing.T) {
	key := testKey(t)
	pub, err := MarshalPublicKey(&key.PublicKey)
	require.NoError(t, err)
	token := jwt.NewWithClaims(jwt.SigningMethodES384, jwt.MapClaims{
		"identityPublicKey": pub,
	})
	token.Header["x5u"] = pub
	signed, err := token.SignedString(key)
	require.NoError(t, err)
	data, _ := json.Marshal(map[string]any{"chain": []string{signed}})

	_, err = ParseLoginChain(data, false)
	assert.Error(t, err)
}

func TestHandshakeJWTRoundTrip(t *testing.T) {
	key, err := NewEphemeralKey()
	require.NoError(t, err)
	salt, err := NewSalt()
	require.NoError(t, err)
	require.Len(t, salt, 16)

	token, err := HandshakeJWT(key, salt)
	require.NoError(t, err)

	serverPub, gotSalt, err := ParseHandshakeJWT(token)
	require.NoError(t, err)
	assert.Equal(t, salt, gotSalt)
	assert.True(t, key.PublicKey.Equal(serverPub))
}

func TestSharedSecretAgreement(t *testing.T) {
	server := testKey(t)
	client := testKey(t)

	s1, err := SharedSecret(server, &client.PublicKey)
	require.NoError(t, err)
	s2, err := SharedSecret(client, &server.PublicKey)
	require.NoError(t, err)
	assert.Equal(t, s1, s2)
	assert.Len(t, s1, 48)
}

func TestPublicKeyRoundTrip(t *testing.T) {
	key := testKey(t)
	b64, err := MarshalPublicKey(&key.PublicKey)
	require.NoError(t, err)
	parsed, err := ParsePublicKey(b64)
	require.NoError(t, err)
	assert.True(t, key.PublicKey.Equal(parsed))

	_, err = ParsePublicKey("!!!not base64!!!")
	assert.Error(t, err)
}
