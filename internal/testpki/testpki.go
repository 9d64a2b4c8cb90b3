// Package testpki issues throwaway certificate hierarchies for sealing tests.
package testpki

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/ocsp"
)

// KeyProfile defines the cryptographic settings for the PKI.
type KeyProfile string

const (
	RSA_2048   KeyProfile = "RSA_2048"
	ECDSA_P256 KeyProfile = "ECDSA_P256"
	ECDSA_P384 KeyProfile = "ECDSA_P384"
)

// TestPKI is a root CA with an optional intermediate.
type TestPKI struct {
	T                *testing.T
	RootKey          crypto.Signer
	RootCert         *x509.Certificate
	IntermediateKey  crypto.Signer
	IntermediateCert *x509.Certificate
	Profile          KeyProfile

	// Server answers CRL and OCSP requests for leaves issued after
	// StartRevocationServer.
	Server       *httptest.Server
	FailOCSP     bool
	OCSPRequests int
	CRLRequests  int

	mu      sync.Mutex
	revoked map[string]bool
}

// NewTestPKI creates a root and one intermediate CA using P-256 keys.
func NewTestPKI(t *testing.T) *TestPKI {
	return NewTestPKIWithProfile(t, ECDSA_P256)
}

// NewTestPKIWithProfile creates a root and one intermediate CA.
func NewTestPKIWithProfile(t *testing.T, profile KeyProfile) *TestPKI {
	t.Helper()
	p := &TestPKI{T: t, Profile: profile, revoked: make(map[string]bool)}

	p.RootKey = GenerateKey(t, profile)
	p.RootCert = p.issue(&x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject: pkix.Name{
			CommonName:   "Report Seal Test Root CA",
			Organization: []string{"Report Seal Test Org"},
		},
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
		SubjectKeyId:          []byte{1, 2, 3, 4},
	}, p.RootKey, nil, nil)

	p.IntermediateKey = GenerateKey(t, profile)
	p.IntermediateCert = p.issue(&x509.Certificate{
		SerialNumber: big.NewInt(2),
		Subject: pkix.Name{
			CommonName:   "Report Seal Test Intermediate CA",
			Organization: []string{"Report Seal Test Org"},
		},
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
		MaxPathLenZero:        true,
		SubjectKeyId:          []byte{5, 6, 7, 8},
		AuthorityKeyId:        p.RootCert.SubjectKeyId,
	}, p.IntermediateKey, p.RootCert, p.RootKey)

	return p
}

// IssueLeaf returns a document signing key and certificate issued by the
// intermediate CA.
func (p *TestPKI) IssueLeaf(commonName string) (crypto.Signer, *x509.Certificate) {
	p.T.Helper()
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		p.T.Fatalf("failed to generate serial: %v", err)
	}
	key := GenerateKey(p.T, p.Profile)
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			CommonName:   commonName,
			Organization: []string{"Report Seal Test Org"},
		},
		KeyUsage:    x509.KeyUsageDigitalSignature,
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageEmailProtection},
	}
	if p.Server != nil {
		template.CRLDistributionPoints = []string{p.Server.URL + "/crl"}
		template.OCSPServer = []string{p.Server.URL + "/ocsp"}
	}
	cert := p.issue(template, key, p.IntermediateCert, p.IntermediateKey)
	return key, cert
}

// Revoke marks cert as revoked in both the CRL and OCSP answers.
func (p *TestPKI) Revoke(cert *x509.Certificate) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.revoked[cert.SerialNumber.String()] = true
}

// StartRevocationServer serves a CRL at /crl and OCSP over POST at /ocsp,
// both signed by the intermediate CA. The server is closed with the test.
func (p *TestPKI) StartRevocationServer() {
	p.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/crl":
			p.mu.Lock()
			p.CRLRequests++
			p.mu.Unlock()
			w.Header().Set("Content-Type", "application/pkix-crl")
			_, _ = w.Write(p.crl())
		case "/ocsp":
			p.mu.Lock()
			p.OCSPRequests++
			fail := p.FailOCSP
			p.mu.Unlock()
			if fail {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			body, err := io.ReadAll(r.Body)
			if err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			resp, err := p.ocspResponse(body)
			if err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			w.Header().Set("Content-Type", "application/ocsp-response")
			_, _ = w.Write(resp)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	p.T.Cleanup(p.Server.Close)
}

func (p *TestPKI) crl() []byte {
	p.mu.Lock()
	var entries []x509.RevocationListEntry
	for serial := range p.revoked {
		n, _ := new(big.Int).SetString(serial, 10)
		entries = append(entries, x509.RevocationListEntry{SerialNumber: n, RevocationTime: time.Now().Add(-time.Minute)})
	}
	p.mu.Unlock()

	der, err := x509.CreateRevocationList(rand.Reader, &x509.RevocationList{
		Number:                    big.NewInt(1),
		ThisUpdate:                time.Now().Add(-time.Hour),
		NextUpdate:                time.Now().Add(24 * time.Hour),
		RevokedCertificateEntries: entries,
	}, p.IntermediateCert, p.IntermediateKey)
	if err != nil {
		p.T.Errorf("failed to create CRL: %v", err)
	}
	return der
}

func (p *TestPKI) ocspResponse(body []byte) ([]byte, error) {
	req, err := ocsp.ParseRequest(body)
	if err != nil {
		return nil, err
	}
	template := ocsp.Response{
		Status:       ocsp.Good,
		SerialNumber: req.SerialNumber,
		ThisUpdate:   time.Now().Add(-time.Hour),
		NextUpdate:   time.Now().Add(24 * time.Hour),
	}
	p.mu.Lock()
	if p.revoked[req.SerialNumber.String()] {
		template.Status = ocsp.Revoked
		template.RevokedAt = time.Now().Add(-time.Minute)
		template.RevocationReason = ocsp.KeyCompromise
	}
	p.mu.Unlock()
	return ocsp.CreateResponse(p.IntermediateCert, p.IntermediateCert, template, p.IntermediateKey)
}

// Chain returns the issuing chain of a leaf, intermediate first.
func (p *TestPKI) Chain() []*x509.Certificate {
	return []*x509.Certificate{p.IntermediateCert, p.RootCert}
}

// Roots returns a pool holding only the root CA.
func (p *TestPKI) Roots() *x509.CertPool {
	pool := x509.NewCertPool()
	pool.AddCert(p.RootCert)
	return pool
}

// WritePEM writes a leaf certificate followed by the chain, and its PKCS#8
// key, into dir and returns both paths.
func (p *TestPKI) WritePEM(dir string, key crypto.Signer, cert *x509.Certificate) (certPath, keyPath string) {
	p.T.Helper()
	var certPEM []byte
	for _, c := range append([]*x509.Certificate{cert}, p.Chain()...) {
		certPEM = append(certPEM, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: c.Raw})...)
	}
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		p.T.Fatalf("failed to marshal key: %v", err)
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})

	certPath = filepath.Join(dir, "seal.crt")
	keyPath = filepath.Join(dir, "seal.key")
	if err := os.WriteFile(certPath, certPEM, 0o600); err != nil {
		p.T.Fatal(err)
	}
	if err := os.WriteFile(keyPath, keyPEM, 0o600); err != nil {
		p.T.Fatal(err)
	}
	return certPath, keyPath
}

func (p *TestPKI) issue(template *x509.Certificate, key crypto.Signer, parent *x509.Certificate, parentKey crypto.Signer) *x509.Certificate {
	p.T.Helper()
	template.NotBefore = time.Now().Add(-1 * time.Hour)
	template.NotAfter = time.Now().Add(24 * time.Hour)
	if parent == nil {
		parent, parentKey = template, key
	}
	der, err := x509.CreateCertificate(rand.Reader, template, parent, key.Public(), parentKey)
	if err != nil {
		p.T.Fatalf("failed to create certificate %q: %v", template.Subject.CommonName, err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		p.T.Fatalf("failed to parse certificate %q: %v", template.Subject.CommonName, err)
	}
	return cert
}

// GenerateKey returns a fresh key for profile.
func GenerateKey(t *testing.T, profile KeyProfile) crypto.Signer {
	t.Helper()
	var (
		k   crypto.Signer
		err error
	)
	switch profile {
	case RSA_2048:
		k, err = rsa.GenerateKey(rand.Reader, 2048)
	case ECDSA_P256:
		k, err = ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	case ECDSA_P384:
		k, err = ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	default:
		err = fmt.Errorf("unknown key profile: %s", profile)
	}
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	return k
}
