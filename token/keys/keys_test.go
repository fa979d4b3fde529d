package keys_test

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/docketlabs/docket-idp/token/keys"
)

func TestKeyPairPEMRoundTrip(t *testing.T) {
	original, err := keys.GenerateRSAKeyPair(uuid.New().String(), 2048)
	require.NoError(t, err)

	pemData, err := original.ExportPrivateKeyPEM()
	require.NoError(t, err)

	loaded, err := keys.LoadKeyPairFromPEM("pinned-key", pemData)
	require.NoError(t, err)
	require.Equal(t, "pinned-key", loaded.KeyID)
	require.Equal(t, keys.RS256, loaded.Algorithm)
	require.Equal(t, original.PublicKey, loaded.PublicKey)

	// The pinned key must publish the same JWKS material.
	originalJWK, err := original.ToJWK()
	require.NoError(t, err)
	loadedJWK, err := loaded.ToJWK()
	require.NoError(t, err)
	require.Equal(t, originalJWK.N, loadedJWK.N)
	require.Equal(t, originalJWK.E, loadedJWK.E)
}

func TestExportPublicKeyPEMParses(t *testing.T) {
	keyPair, err := keys.GenerateRSAKeyPair("kid-1", 2048)
	require.NoError(t, err)

	pub, err := keyPair.ExportPublicKeyPEM()
	require.NoError(t, err)

	block, _ := pem.Decode([]byte(pub))
	require.NotNil(t, block)
	require.Equal(t, "PUBLIC KEY", block.Type)

	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	require.NoError(t, err)
	require.IsType(t, &rsa.PublicKey{}, parsed)
}

func TestLoadKeyPairFromPEMRejectsGarbage(t *testing.T) {
	_, err := keys.LoadKeyPairFromPEM("kid", "not a pem key")
	require.Error(t, err)
}
