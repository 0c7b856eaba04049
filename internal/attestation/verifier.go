// Package attestation verifies attestation documents served by a
// confidential-computing LLM proxy: the certificate chain and the
// manifest signature it anchors.
package attestation

import (
	"bytes"
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"sort"
	"unicode/utf16"
)

// Document is the attestation payload fetched from the proxy. The
// certificate chain is PEM-encoded, leaf first, root last; the
// signature covers the SHA-256 digest of the canonical (sorted-keys)
// JSON encoding of the manifest.
type Document struct {
	Manifest     map[string]any `json:"manifest"`
	Signature    string         `json:"signature"`
	Certificates []string       `json:"certificates"`
	ManifestHash string         `json:"manifest_hash"`
	Timestamp    string         `json:"timestamp"`
}

// ChainResult describes the outcome of a certificate chain check.
type ChainResult struct {
	Verified    bool
	CertCount   int
	LeafSubject string
	RootSubject string
}

// Report aggregates the individual checks. Overall verification
// requires both the chain and the manifest signature to hold.
type Report struct {
	Verified          bool
	Chain             ChainResult
	ManifestSignature bool
}

// Verify runs every check against doc.
func Verify(doc Document) (Report, error) {
	chain, err := VerifyCertificateChain(doc.Certificates)
	if err != nil {
		return Report{Chain: chain}, err
	}

	sigOK := false
	if err := VerifyManifestSignature(doc.Manifest, doc.Signature, doc.Certificates); err == nil {
		sigOK = true
	}

	return Report{
		Verified:          chain.Verified && sigOK,
		Chain:             chain,
		ManifestSignature: sigOK,
	}, nil
}

// VerifyCertificateChain parses the PEM certificates and checks that
// each one is signed by its successor. A single self-signed certificate
// counts as a valid chain of one.
func VerifyCertificateChain(pems []string) (ChainResult, error) {
	if len(pems) == 0 {
		return ChainResult{}, fmt.Errorf("no certificates provided")
	}

	certs := make([]*x509.Certificate, 0, len(pems))
	for i, p := range pems {
		cert, err := parseCertificate(p)
		if err != nil {
			return ChainResult{}, fmt.Errorf("certificate %d: %w", i, err)
		}
		certs = append(certs, cert)
	}

	result := ChainResult{
		Verified:    true,
		CertCount:   len(certs),
		LeafSubject: certs[0].Subject.String(),
		RootSubject: certs[len(certs)-1].Subject.String(),
	}

	for i := 0; i < len(certs)-1; i++ {
		if err := certs[i].CheckSignatureFrom(certs[i+1]); err != nil {
			result.Verified = false
			break
		}
	}
	return result, nil
}

// VerifyManifestSignature checks the base64 signature against the leaf
// certificate's RSA public key. The signed message is the SHA-256
// digest of the canonical JSON manifest, itself signed with
// PKCS#1 v1.5 over SHA-256.
func VerifyManifestSignature(manifest map[string]any, signature string, pems []string) error {
	if len(pems) == 0 {
		return fmt.Errorf("no certificates for signature verification")
	}
	leaf, err := parseCertificate(pems[0])
	if err != nil {
		return fmt.Errorf("leaf certificate: %w", err)
	}
	pub, ok := leaf.PublicKey.(*rsa.PublicKey)
	if !ok {
		return fmt.Errorf("leaf certificate does not carry an RSA key")
	}

	manifestBytes, err := canonicalManifest(manifest)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	manifestHash := sha256.Sum256(manifestBytes)
	digest := sha256.Sum256(manifestHash[:])

	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("decode signature: %w", err)
	}

	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], sig); err != nil {
		return fmt.Errorf("invalid manifest signature: %w", err)
	}
	return nil
}

// canonicalManifest renders the manifest the way the proxy
// canonicalizes it before signing: object keys sorted, ", " and ": "
// separators, non-ASCII escaped, and no HTML escaping.
func canonicalManifest(manifest map[string]any) ([]byte, error) {
	var buf bytes.Buffer
	if err := canonicalJSON(&buf, manifest); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func canonicalJSON(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteString(", ")
			}
			writeJSONString(buf, k)
			buf.WriteString(": ")
			if err := canonicalJSON(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case []any:
		buf.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				buf.WriteString(", ")
			}
			if err := canonicalJSON(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case string:
		writeJSONString(buf, val)
	case nil:
		buf.WriteString("null")
	default:
		// Numbers and booleans render identically in both encoders.
		b, err := json.Marshal(val)
		if err != nil {
			return err
		}
		buf.Write(b)
	}
	return nil
}

func writeJSONString(buf *bytes.Buffer, s string) {
	buf.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\b':
			buf.WriteString(`\b`)
		case '\f':
			buf.WriteString(`\f`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		default:
			switch {
			case r < 0x20 || (r >= 0x80 && r <= 0xFFFF):
				fmt.Fprintf(buf, `\u%04x`, r)
			case r > 0xFFFF:
				r1, r2 := utf16.EncodeRune(r)
				fmt.Fprintf(buf, `\u%04x\u%04x`, r1, r2)
			default:
				buf.WriteRune(r)
			}
		}
	}
	buf.WriteByte('"')
}

func parseCertificate(pemData string) (*x509.Certificate, error) {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, fmt.Errorf("not a PEM certificate")
	}
	return x509.ParseCertificate(block.Bytes)
}
