// Package seal adds a detached CMS signature to delivered reports, so a
// recipient can prove a report was issued by the service and not altered.
package seal

import (
	"bytes"
	"context"
	"crypto"
	"crypto/x509"
	"encoding/asn1"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/digitorus/pdfreport/revocation"
	"github.com/digitorus/pkcs7"
	"github.com/digitorus/timestamp"
	"golang.org/x/crypto/cryptobyte"
	cryptobyte_asn1 "golang.org/x/crypto/cryptobyte/asn1"
)

// Extension of the detached signature delivered next to a report.
const Extension = ".p7s"

// MIMEType of the detached signature.
const MIMEType = "application/pkcs7-signature"

var (
	oidSigningCertificate   = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 16, 2, 12}
	oidSigningCertificateV2 = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 16, 2, 47}
	oidTimeStampToken       = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 16, 2, 14}
	oidRevocationInfo       = asn1.ObjectIdentifier{1, 2, 840, 113583, 1, 1, 8}
)

var hashOIDs = map[crypto.Hash]asn1.ObjectIdentifier{
	crypto.SHA1:   asn1.ObjectIdentifier([]int{1, 3, 14, 3, 2, 26}),
	crypto.SHA256: asn1.ObjectIdentifier([]int{2, 16, 840, 1, 101, 3, 4, 2, 1}),
	crypto.SHA384: asn1.ObjectIdentifier([]int{2, 16, 840, 1, 101, 3, 4, 2, 2}),
	crypto.SHA512: asn1.ObjectIdentifier([]int{2, 16, 840, 1, 101, 3, 4, 2, 3}),
}

// TSA is an RFC 3161 time-stamping authority.
type TSA struct {
	URL      string
	Username string
	Password string
}

// Sealer signs report bytes.
type Sealer struct {
	Certificate *x509.Certificate
	Signer      crypto.Signer
	// Chain holds the issuing certificates embedded with the signature.
	Chain []*x509.Certificate
	// DigestAlgorithm defaults to SHA-256.
	DigestAlgorithm crypto.Hash
	TSA             TSA
	// Client is used for TSA requests; nil means http.DefaultClient.
	Client *http.Client
	// Revocation, when set, embeds the OCSP or CRL status of the signer and
	// its chain. Sealing fails when a status cannot be obtained.
	Revocation *revocation.Fetcher
}

// Seal returns a DER encoded detached signature over data.
func (s *Sealer) Seal(ctx context.Context, data []byte) ([]byte, error) {
	if s.Certificate == nil || s.Signer == nil {
		return nil, errors.New("sealer has no certificate or key")
	}
	hash := s.digest()
	oid, ok := hashOIDs[hash]
	if !ok {
		return nil, fmt.Errorf("unsupported digest algorithm %v", hash)
	}

	signedData, err := pkcs7.NewSignedData(data)
	if err != nil {
		return nil, fmt.Errorf("new signed data: %w", err)
	}
	signedData.SetDigestAlgorithm(oid)

	signingCertificate, err := s.signingCertificateAttribute()
	if err != nil {
		return nil, fmt.Errorf("signing certificate attribute: %w", err)
	}
	config := pkcs7.SignerInfoConfig{
		ExtraSignedAttributes: []pkcs7.Attribute{*signingCertificate},
	}
	if s.Revocation != nil {
		info, err := s.revocationInfo(ctx)
		if err != nil {
			return nil, err
		}
		config.ExtraSignedAttributes = append(config.ExtraSignedAttributes, pkcs7.Attribute{
			Type:  oidRevocationInfo,
			Value: info,
		})
	}
	if err := signedData.AddSignerChain(s.Certificate, s.Signer, s.Chain, config); err != nil {
		return nil, fmt.Errorf("add signer chain: %w", err)
	}
	signedData.Detach()

	if s.TSA.URL != "" {
		sd := signedData.GetSignedData()
		token, err := s.timestamp(ctx, sd.SignerInfos[0].EncryptedDigest)
		if err != nil {
			return nil, fmt.Errorf("get timestamp: %w", err)
		}
		attr := pkcs7.Attribute{
			Type:  oidTimeStampToken,
			Value: asn1.RawValue{FullBytes: token},
		}
		if err := sd.SignerInfos[0].SetUnauthenticatedAttributes([]pkcs7.Attribute{attr}); err != nil {
			return nil, err
		}
	}

	return signedData.Finish()
}

// revocationInfo collects the status of every certificate that has its
// issuer in the chain.
func (s *Sealer) revocationInfo(ctx context.Context) (revocation.InfoArchival, error) {
	var info revocation.InfoArchival
	certs := append([]*x509.Certificate{s.Certificate}, s.Chain...)
	for i, cert := range certs[:len(certs)-1] {
		if err := s.Revocation.Embed(ctx, cert, certs[i+1], &info); err != nil {
			return info, err
		}
	}
	return info, nil
}

func (s *Sealer) digest() crypto.Hash {
	if s.DigestAlgorithm == 0 {
		return crypto.SHA256
	}
	return s.DigestAlgorithm
}

// signingCertificateAttribute binds the signature to the signer certificate
// (RFC 5035). SHA-1 uses the original SigningCertificate attribute.
func (s *Sealer) signingCertificateAttribute() (*pkcs7.Attribute, error) {
	hash := s.digest()
	h := hash.New()
	h.Write(s.Certificate.Raw)

	var b cryptobyte.Builder
	b.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) { // SigningCertificate
		b.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) { // certs
			b.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) { // ESSCertID(v2)
				if hash != crypto.SHA1 && hash != crypto.SHA256 {
					b.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) { // hashAlgorithm
						b.AddASN1ObjectIdentifier(hashOIDs[hash])
					})
				}
				b.AddASN1OctetString(h.Sum(nil))
			})
		})
	})
	der, err := b.Bytes()
	if err != nil {
		return nil, err
	}

	attr := pkcs7.Attribute{
		Type:  oidSigningCertificateV2,
		Value: asn1.RawValue{FullBytes: der},
	}
	if hash == crypto.SHA1 {
		attr.Type = oidSigningCertificate
	}
	return &attr, nil
}

// timestamp requests a time-stamp token over digest and returns the token.
func (s *Sealer) timestamp(ctx context.Context, digest []byte) ([]byte, error) {
	tsReq, err := timestamp.CreateRequest(bytes.NewReader(digest), &timestamp.RequestOptions{
		Certificates: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.TSA.URL, bytes.NewReader(tsReq))
	if err != nil {
		return nil, fmt.Errorf("failed to prepare request (%s): %w", s.TSA.URL, err)
	}
	req.Header.Add("Content-Type", "application/timestamp-query")
	req.Header.Add("Content-Transfer-Encoding", "binary")
	if s.TSA.Username != "" && s.TSA.Password != "" {
		req.SetBasicAuth(s.TSA.Username, s.TSA.Password)
	}

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach %s: %w", s.TSA.URL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("non success response (%d): %s", resp.StatusCode, body)
	}

	ts, err := timestamp.ParseResponse(body)
	if err != nil {
		return nil, fmt.Errorf("parse timestamp: %w", err)
	}
	if _, err := pkcs7.Parse(ts.RawToken); err != nil {
		return nil, fmt.Errorf("parse timestamp token: %w", err)
	}
	return ts.RawToken, nil
}
