package seal

import (
	"context"
	"crypto"
	"crypto/rsa"
	"crypto/x509"
	"encoding/asn1"
	"encoding/pem"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/digitorus/pdfreport"
	"github.com/digitorus/pdfreport/internal/testpki"
	"github.com/digitorus/pdfreport/revocation"
	"github.com/digitorus/pkcs7"
	"github.com/digitorus/timestamp"
	"golang.org/x/crypto/cryptobyte"
	cryptobyte_asn1 "golang.org/x/crypto/cryptobyte/asn1"
)

var report = []byte("%PDF-1.7\n% report body\n%%EOF\n")

func newSealer(t *testing.T, profile testpki.KeyProfile) (*Sealer, *testpki.TestPKI) {
	t.Helper()
	pki := testpki.NewTestPKIWithProfile(t, profile)
	key, cert := pki.IssueLeaf("Reimbursement Office")
	return &Sealer{Certificate: cert, Signer: key, Chain: pki.Chain()}, pki
}

func TestSealVerify(t *testing.T) {
	s, pki := newSealer(t, testpki.ECDSA_P256)

	sig, err := s.Seal(context.Background(), report)
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}

	v, err := Verify(report, sig, pki.Roots())
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if !v.Trusted {
		t.Error("Verify() Trusted = false")
	}
	if v.Signer == nil || v.Signer.Subject.CommonName != "Reimbursement Office" {
		t.Errorf("Verify() Signer = %v", v.Signer)
	}
	if v.TimeStamp != nil {
		t.Error("Verify() found a timestamp that was never requested")
	}

	v, err = Verify(report, sig, nil)
	if err != nil {
		t.Fatalf("Verify() without roots error = %v", err)
	}
	if v.Trusted {
		t.Error("Verify() without roots Trusted = true")
	}

	p7, err := pkcs7.Parse(sig)
	if err != nil {
		t.Fatal(err)
	}
	if len(p7.Content) != 0 {
		t.Error("signature is not detached")
	}
}

func TestVerifyRejects(t *testing.T) {
	s, pki := newSealer(t, testpki.ECDSA_P256)
	sig, err := s.Seal(context.Background(), report)
	if err != nil {
		t.Fatal(err)
	}

	tampered := append([]byte(nil), report...)
	tampered[10] ^= 0xff
	if _, err := Verify(tampered, sig, pki.Roots()); err == nil {
		t.Error("Verify() accepted a modified report")
	}

	other := testpki.NewTestPKI(t)
	if _, err := Verify(report, sig, other.Roots()); err == nil {
		t.Error("Verify() accepted an untrusted chain")
	}

	if _, err := Verify(report, []byte("not a signature"), nil); err == nil {
		t.Error("Verify() accepted garbage")
	}
}

func TestSealDigestAlgorithms(t *testing.T) {
	for _, hash := range []crypto.Hash{crypto.SHA256, crypto.SHA384, crypto.SHA512} {
		t.Run(hash.String(), func(t *testing.T) {
			s, pki := newSealer(t, testpki.ECDSA_P384)
			s.DigestAlgorithm = hash
			sig, err := s.Seal(context.Background(), report)
			if err != nil {
				t.Fatalf("Seal() error = %v", err)
			}
			if _, err := Verify(report, sig, pki.Roots()); err != nil {
				t.Errorf("Verify() error = %v", err)
			}
		})
	}

	s, _ := newSealer(t, testpki.ECDSA_P256)
	s.DigestAlgorithm = crypto.MD5
	if _, err := s.Seal(context.Background(), report); err == nil {
		t.Error("Seal() accepted MD5")
	}
}

func TestSigningCertificateAttribute(t *testing.T) {
	tests := []struct {
		hash    crypto.Hash
		oid     asn1.ObjectIdentifier
		withAlg bool
	}{
		{crypto.SHA1, oidSigningCertificate, false},
		{crypto.SHA256, oidSigningCertificateV2, false},
		{crypto.SHA512, oidSigningCertificateV2, true},
	}
	s, _ := newSealer(t, testpki.ECDSA_P256)
	for _, tt := range tests {
		t.Run(tt.hash.String(), func(t *testing.T) {
			s.DigestAlgorithm = tt.hash
			attr, err := s.signingCertificateAttribute()
			if err != nil {
				t.Fatal(err)
			}
			if !attr.Type.Equal(tt.oid) {
				t.Errorf("attribute type = %v, want %v", attr.Type, tt.oid)
			}

			value := attr.Value.(asn1.RawValue)
			in := cryptobyte.String(value.FullBytes)
			var signingCert, certs, certID cryptobyte.String
			if !in.ReadASN1(&signingCert, cryptobyte_asn1.SEQUENCE) ||
				!signingCert.ReadASN1(&certs, cryptobyte_asn1.SEQUENCE) ||
				!certs.ReadASN1(&certID, cryptobyte_asn1.SEQUENCE) {
				t.Fatal("malformed SigningCertificate")
			}
			if got := certID.PeekASN1Tag(cryptobyte_asn1.SEQUENCE); got != tt.withAlg {
				t.Errorf("hashAlgorithm present = %v, want %v", got, tt.withAlg)
			}
			if tt.withAlg {
				certID.SkipASN1(cryptobyte_asn1.SEQUENCE)
			}
			var digest []byte
			if !certID.ReadASN1Bytes(&digest, cryptobyte_asn1.OCTET_STRING) {
				t.Fatal("missing certHash")
			}
			h := tt.hash.New()
			h.Write(s.Certificate.Raw)
			if string(digest) != string(h.Sum(nil)) {
				t.Error("certHash does not match the signer certificate")
			}
		})
	}
}

func TestTSAFailure(t *testing.T) {
	var called bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		if got := r.Header.Get("Content-Type"); got != "application/timestamp-query" {
			t.Errorf("Content-Type = %q", got)
		}
		if user, pass, ok := r.BasicAuth(); !ok || user != "office" || pass != "secret" {
			t.Errorf("basic auth = %q, %q, %v", user, pass, ok)
		}
		body, _ := io.ReadAll(r.Body)
		if _, err := timestamp.ParseRequest(body); err != nil {
			t.Errorf("ParseRequest() error = %v", err)
		}
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	s, _ := newSealer(t, testpki.ECDSA_P256)
	s.TSA = TSA{URL: srv.URL, Username: "office", Password: "secret"}
	s.Client = srv.Client()

	_, err := s.Seal(context.Background(), report)
	if err == nil || !strings.Contains(err.Error(), "non success response (503)") {
		t.Errorf("Seal() error = %v", err)
	}
	if !called {
		t.Error("TSA was not called")
	}
}

func TestLoadPEM(t *testing.T) {
	pki := testpki.NewTestPKI(t)
	key, cert := pki.IssueLeaf("Reimbursement Office")
	dir := t.TempDir()
	certPath, keyPath := pki.WritePEM(dir, key, cert)

	s, err := LoadPEM(certPath, keyPath)
	if err != nil {
		t.Fatalf("LoadPEM() error = %v", err)
	}
	if !s.Certificate.Equal(cert) {
		t.Error("LoadPEM() returned the wrong leaf")
	}
	if len(s.Chain) != 2 {
		t.Errorf("LoadPEM() chain length = %d, want 2", len(s.Chain))
	}
	sig, err := s.Seal(context.Background(), report)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Verify(report, sig, pki.Roots()); err != nil {
		t.Errorf("Verify() error = %v", err)
	}

	// PKCS#1 RSA keys as written by older tooling.
	rsaPKI := testpki.NewTestPKIWithProfile(t, testpki.RSA_2048)
	rsaKey, rsaCert := rsaPKI.IssueLeaf("Reimbursement Office")
	rsaDir := t.TempDir()
	rsaCertPath, rsaKeyPath := rsaPKI.WritePEM(rsaDir, rsaKey, rsaCert)
	pkcs1 := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(rsaKey.(*rsa.PrivateKey))})
	if err := os.WriteFile(rsaKeyPath, pkcs1, 0o600); err != nil {
		t.Fatal(err)
	}
	s, err = LoadPEM(rsaCertPath, rsaKeyPath)
	if err != nil {
		t.Fatalf("LoadPEM() PKCS#1 error = %v", err)
	}
	if _, ok := s.Signer.(*rsa.PrivateKey); !ok {
		t.Errorf("LoadPEM() PKCS#1 signer = %T", s.Signer)
	}
}

func TestLoadPEMErrors(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty.pem")
	if err := os.WriteFile(empty, []byte("nothing here"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadPEM(filepath.Join(dir, "missing.crt"), empty); err == nil {
		t.Error("LoadPEM() accepted a missing certificate")
	}
	if _, err := LoadPEM(empty, empty); err == nil {
		t.Error("LoadPEM() accepted a file without certificates")
	}
	if _, err := parseKey(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: []byte{1, 2, 3}})); err == nil {
		t.Error("parseKey() accepted a malformed key")
	}
}

func TestSink(t *testing.T) {
	s, pki := newSealer(t, testpki.ECDSA_P256)
	var outs []pdfreport.Output
	next := pdfreport.SinkFunc(func(ctx context.Context, out pdfreport.Output) error {
		outs = append(outs, out)
		return nil
	})

	out := pdfreport.Output{Name: "claim_Org.pdf", MIMEType: pdfreport.MIMEType, Data: report}
	if err := (Sink{Sealer: s, Next: next}).Deliver(context.Background(), out); err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}
	if len(outs) != 2 {
		t.Fatalf("delivered %d outputs, want 2", len(outs))
	}
	if outs[0].Name != "claim_Org.pdf" || outs[1].Name != "claim_Org.p7s" {
		t.Errorf("names = %q, %q", outs[0].Name, outs[1].Name)
	}
	if outs[1].MIMEType != MIMEType {
		t.Errorf("signature MIME type = %q", outs[1].MIMEType)
	}
	if _, err := Verify(outs[0].Data, outs[1].Data, pki.Roots()); err != nil {
		t.Errorf("Verify() error = %v", err)
	}

	outs = nil
	broken := Sink{Sealer: &Sealer{}, Next: next}
	if err := broken.Deliver(context.Background(), out); err == nil {
		t.Error("Deliver() without a key succeeded")
	}
	if len(outs) != 0 {
		t.Errorf("failed seal delivered %d outputs", len(outs))
	}
}

func TestSealRevocation(t *testing.T) {
	pki := testpki.NewTestPKI(t)
	pki.StartRevocationServer()
	key, cert := pki.IssueLeaf("Reimbursement Office")
	s := &Sealer{Certificate: cert, Signer: key, Chain: pki.Chain(), Revocation: &revocation.Fetcher{}}

	sig, err := s.Seal(context.Background(), report)
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}
	v, err := Verify(report, sig, pki.Roots())
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if v.Revocation == nil || len(v.Revocation.OCSP) != 1 {
		t.Fatalf("Verify() Revocation = %+v, want one OCSP response", v.Revocation)
	}
	if v.Revoked {
		t.Error("Verify() Revoked = true for a good certificate")
	}

	// Without a revocation fetcher nothing is embedded.
	s.Revocation = nil
	sig, err = s.Seal(context.Background(), report)
	if err != nil {
		t.Fatal(err)
	}
	if v, err := Verify(report, sig, nil); err != nil || v.Revocation != nil {
		t.Errorf("Verify() = %+v, %v, want no revocation info", v, err)
	}

	pki.Revoke(cert)
	s.Revocation = &revocation.Fetcher{}
	if _, err := s.Seal(context.Background(), report); err == nil {
		t.Error("Seal() accepted a revoked certificate")
	}
}
