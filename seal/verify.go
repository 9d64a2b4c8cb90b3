package seal

import (
	"bytes"
	"crypto/x509"
	"fmt"

	"github.com/digitorus/pdfreport/revocation"
	"github.com/digitorus/pkcs7"
	"github.com/digitorus/timestamp"
)

// Verification describes a valid seal.
type Verification struct {
	Signer *x509.Certificate
	// Trusted is set when the signer chains to one of the given roots.
	Trusted bool
	// TimeStamp is the TSA counter-stamp, if any.
	TimeStamp *timestamp.Timestamp
	// Revocation is the status embedded at sealing time, if any.
	Revocation *revocation.InfoArchival
	// Revoked is set when the embedded status marks the signer as revoked.
	Revoked bool
}

// Verify checks a detached signature against the report bytes. With a nil
// roots pool only the signature itself is checked.
func Verify(data, signature []byte, roots *x509.CertPool) (*Verification, error) {
	p7, err := pkcs7.Parse(signature)
	if err != nil {
		return nil, fmt.Errorf("failed to parse signature: %w", err)
	}
	p7.Content = data

	v := &Verification{Signer: signerCertificate(p7)}
	if roots != nil {
		if err := p7.VerifyWithChain(roots); err != nil {
			return nil, fmt.Errorf("signature verification failed: %w", err)
		}
		v.Trusted = true
	} else if err := p7.Verify(); err != nil {
		return nil, fmt.Errorf("signature verification failed: %w", err)
	}

	var info revocation.InfoArchival
	if err := p7.UnmarshalSignedAttribute(oidRevocationInfo, &info); err == nil {
		v.Revocation = &info
		if v.Signer != nil {
			v.Revoked = info.IsRevoked(v.Signer, issuerOf(v.Signer, p7.Certificates))
		}
	}

	for _, s := range p7.Signers {
		for _, attr := range s.UnauthenticatedAttributes {
			if !attr.Type.Equal(oidTimeStampToken) {
				continue
			}
			ts, err := timestamp.Parse(attr.Value.Bytes)
			if err != nil {
				return nil, fmt.Errorf("failed to parse timestamp: %w", err)
			}
			h := ts.HashAlgorithm.New()
			h.Write(s.EncryptedDigest)
			if !bytes.Equal(h.Sum(nil), ts.HashedMessage) {
				return nil, fmt.Errorf("timestamp hash does not match")
			}
			v.TimeStamp = ts
		}
	}
	return v, nil
}

func signerCertificate(p7 *pkcs7.PKCS7) *x509.Certificate {
	if len(p7.Signers) > 0 {
		sn := p7.Signers[0].IssuerAndSerialNumber
		for _, cert := range p7.Certificates {
			if cert.SerialNumber.Cmp(sn.SerialNumber) == 0 && bytes.Equal(cert.RawIssuer, sn.IssuerName.FullBytes) {
				return cert
			}
		}
	}
	if len(p7.Certificates) > 0 {
		return p7.Certificates[0]
	}
	return nil
}

func issuerOf(cert *x509.Certificate, certs []*x509.Certificate) *x509.Certificate {
	for _, c := range certs {
		if c != cert && bytes.Equal(c.RawSubject, cert.RawIssuer) {
			return c
		}
	}
	return nil
}
