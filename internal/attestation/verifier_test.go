package attestation

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/pem"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type testPKI struct {
	caPEM   string
	leafPEM string
	leafKey *rsa.PrivateKey
}

func newTestPKI(t *testing.T) testPKI {
	t.Helper()

	caKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	caTmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "Test Attestation Root"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
	}
	caDER, err := x509.CreateCertificate(rand.Reader, caTmpl, caTmpl, &caKey.PublicKey, caKey)
	require.NoError(t, err)

	leafKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	leafTmpl := &x509.Certificate{
		SerialNumber: big.NewInt(2),
		Subject:      pkix.Name{CommonName: "Test Attestation Leaf"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	leafDER, err := x509.CreateCertificate(rand.Reader, leafTmpl, caTmpl, &leafKey.PublicKey, caKey)
	require.NoError(t, err)

	return testPKI{
		caPEM:   string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: caDER})),
		leafPEM: string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: leafDER})),
		leafKey: leafKey,
	}
}

func signManifest(t *testing.T, key *rsa.PrivateKey, manifest map[string]any) string {
	t.Helper()
	manifestBytes, err := canonicalManifest(manifest)
	require.NoError(t, err)
	return signCanonical(t, key, manifestBytes)
}

func signCanonical(t *testing.T, key *rsa.PrivateKey, canonical []byte) string {
	t.Helper()
	manifestHash := sha256.Sum256(canonical)
	digest := sha256.Sum256(manifestHash[:])
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(sig)
}

func TestVerifyCertificateChain(t *testing.T) {
	pki := newTestPKI(t)

	res, err := VerifyCertificateChain([]string{pki.leafPEM, pki.caPEM})
	require.NoError(t, err)
	require.True(t, res.Verified)
	require.Equal(t, 2, res.CertCount)
	require.Equal(t, "CN=Test Attestation Leaf", res.LeafSubject)
	require.Equal(t, "CN=Test Attestation Root", res.RootSubject)
}

func TestVerifyCertificateChain_WrongIssuer(t *testing.T) {
	pki := newTestPKI(t)
	other := newTestPKI(t)

	res, err := VerifyCertificateChain([]string{pki.leafPEM, other.caPEM})
	require.NoError(t, err)
	require.False(t, res.Verified)
}

func TestVerifyCertificateChain_Invalid(t *testing.T) {
	_, err := VerifyCertificateChain(nil)
	require.ErrorContains(t, err, "no certificates")

	_, err = VerifyCertificateChain([]string{"garbage"})
	require.ErrorContains(t, err, "not a PEM certificate")
}

// TestCanonicalManifest pins the signer's canonical form: sorted keys,
// ", " and ": " separators, ASCII-only strings, no HTML escaping.
func TestCanonicalManifest(t *testing.T) {
	got, err := canonicalManifest(map[string]any{
		"z":     map[string]any{"b": true, "a": nil},
		"a":     []any{1.0, 2.5},
		"html":  "<tag> & más",
		"plain": "line\nbreak",
	})
	require.NoError(t, err)
	require.Equal(t,
		`{"a": [1, 2.5], "html": "<tag> & más", "plain": "line\nbreak", "z": {"a": null, "b": true}}`,
		string(got))
}

// A signature produced against the canonical bytes themselves (the way
// the proxy signs, independent of this package's encoder) must verify.
func TestVerifyManifestSignature_ExternalCanonicalForm(t *testing.T) {
	pki := newTestPKI(t)
	canonical := `{"components": ["<coordinator>"], "version": "1.0"}`
	sig := signCanonical(t, pki.leafKey, []byte(canonical))

	manifest := map[string]any{
		"version":    "1.0",
		"components": []any{"<coordinator>"},
	}
	require.NoError(t, VerifyManifestSignature(manifest, sig, []string{pki.leafPEM, pki.caPEM}))
}

func TestVerifyManifestSignature(t *testing.T) {
	pki := newTestPKI(t)
	manifest := map[string]any{"version": "1.0", "components": []any{"coordinator"}}
	sig := signManifest(t, pki.leafKey, manifest)

	require.NoError(t, VerifyManifestSignature(manifest, sig, []string{pki.leafPEM, pki.caPEM}))
}

func TestVerifyManifestSignature_Tampered(t *testing.T) {
	pki := newTestPKI(t)
	manifest := map[string]any{"version": "1.0"}
	sig := signManifest(t, pki.leafKey, manifest)

	tampered := map[string]any{"version": "2.0"}
	err := VerifyManifestSignature(tampered, sig, []string{pki.leafPEM})
	require.ErrorContains(t, err, "invalid manifest signature")
}

func TestVerifyManifestSignature_BadInputs(t *testing.T) {
	pki := newTestPKI(t)

	err := VerifyManifestSignature(map[string]any{}, "sig", nil)
	require.ErrorContains(t, err, "no certificates")

	err = VerifyManifestSignature(map[string]any{}, "%%%not-base64%%%", []string{pki.leafPEM})
	require.ErrorContains(t, err, "decode signature")
}

func TestVerify_Report(t *testing.T) {
	pki := newTestPKI(t)
	manifest := map[string]any{"version": "1.0"}

	doc := Document{
		Manifest:     manifest,
		Signature:    signManifest(t, pki.leafKey, manifest),
		Certificates: []string{pki.leafPEM, pki.caPEM},
	}
	report, err := Verify(doc)
	require.NoError(t, err)
	require.True(t, report.Verified)
	require.True(t, report.Chain.Verified)
	require.True(t, report.ManifestSignature)

	// Break the signature: the chain still holds, the report does not.
	doc.Signature = signManifest(t, pki.leafKey, map[string]any{"version": "evil"})
	report, err = Verify(doc)
	require.NoError(t, err)
	require.False(t, report.Verified)
	require.True(t, report.Chain.Verified)
	require.False(t, report.ManifestSignature)
}
