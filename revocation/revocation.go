// Package revocation fetches and embeds the revocation status of the
// certificates that seal a report.
package revocation

import (
	"bytes"
	"context"
	"crypto/x509"
	"encoding/asn1"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"golang.org/x/crypto/ocsp"
)

// InfoArchival is the adbe-revocationInfoArchival signed attribute holding
// the revocation information for the embedded certificates.
type InfoArchival struct {
	CRL   CRL   `asn1:"tag:0,optional,explicit"`
	OCSP  OCSP  `asn1:"tag:1,optional,explicit"`
	Other Other `asn1:"tag:2,optional,explicit"`
}

// CRL contains the raw bytes of certificate revocation lists.
type CRL []asn1.RawValue

// OCSP contains the raw bytes of OCSP responses.
type OCSP []asn1.RawValue

// Other is the ASN.1 OtherRevInfo.
type Other struct {
	Type  asn1.ObjectIdentifier
	Value []byte
}

// AddCRL embeds the bytes of a downloaded CRL.
func (r *InfoArchival) AddCRL(b []byte) {
	r.CRL = append(r.CRL, asn1.RawValue{FullBytes: b})
}

// AddOCSP embeds the raw bytes of an OCSP response.
func (r *InfoArchival) AddOCSP(b []byte) {
	r.OCSP = append(r.OCSP, asn1.RawValue{FullBytes: b})
}

// Empty reports whether nothing is embedded.
func (r *InfoArchival) Empty() bool {
	return len(r.CRL) == 0 && len(r.OCSP) == 0
}

// IsRevoked reports whether an embedded CRL or OCSP response marks c as
// revoked. OCSP responses are only considered when issuer is known.
func (r *InfoArchival) IsRevoked(c, issuer *x509.Certificate) bool {
	for _, raw := range r.CRL {
		crl, err := x509.ParseRevocationList(raw.FullBytes)
		if err != nil {
			continue
		}
		if issuer != nil && crl.CheckSignatureFrom(issuer) != nil {
			continue
		}
		for _, rc := range crl.RevokedCertificateEntries {
			if rc.SerialNumber.Cmp(c.SerialNumber) == 0 {
				return true
			}
		}
	}

	if issuer == nil {
		return false
	}
	for _, raw := range r.OCSP {
		resp, err := ocsp.ParseResponseForCert(raw.FullBytes, c, issuer)
		if err != nil {
			continue
		}
		if resp.Status == ocsp.Revoked {
			return true
		}
	}
	return false
}

// Cache stores downloaded revocation data by URL.
type Cache interface {
	Get(key string) ([]byte, bool)
	Put(key string, data []byte)
}

// MemoryCache is a Cache safe for concurrent use.
type MemoryCache struct {
	mu    sync.RWMutex
	items map[string][]byte
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{items: make(map[string][]byte)}
}

func (c *MemoryCache) Get(key string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	data, ok := c.items[key]
	return data, ok
}

func (c *MemoryCache) Put(key string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = data
}

// Fetcher downloads OCSP responses and CRLs.
type Fetcher struct {
	// Client defaults to http.DefaultClient.
	Client *http.Client
	// Cache is optional. OCSP responses are cached per certificate serial.
	Cache Cache
}

// Embed adds the revocation status of cert to i, trying OCSP before the CRL.
// A certificate without OCSP server or CRL distribution point is skipped. A
// certificate reported as revoked is an error.
func (f *Fetcher) Embed(ctx context.Context, cert, issuer *x509.Certificate, i *InfoArchival) error {
	var errs []error
	if issuer != nil && len(cert.OCSPServer) > 0 {
		body, err := f.OCSP(ctx, cert, issuer)
		if err == nil {
			i.AddOCSP(body)
			return nil
		}
		errs = append(errs, err)
	}
	if len(cert.CRLDistributionPoints) > 0 {
		body, err := f.CRL(ctx, cert, issuer)
		if err == nil {
			i.AddCRL(body)
			return nil
		}
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("revocation check failed for %s: %w", cert.Subject.CommonName, errors.Join(errs...))
	}
	return nil
}

// OCSP requests the status of cert and returns the response when it is good.
func (f *Fetcher) OCSP(ctx context.Context, cert, issuer *x509.Certificate) ([]byte, error) {
	key := "ocsp:" + cert.OCSPServer[0] + ":" + cert.SerialNumber.String()
	if data, ok := f.cached(key); ok {
		return data, nil
	}

	req, err := ocsp.CreateRequest(cert, issuer, nil)
	if err != nil {
		return nil, err
	}
	body, err := f.do(ctx, http.MethodPost, cert.OCSPServer[0], "application/ocsp-request", req)
	if err != nil {
		return nil, err
	}

	resp, err := ocsp.ParseResponseForCert(body, cert, issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to parse OCSP response: %w", err)
	}
	if resp.Status != ocsp.Good {
		return nil, fmt.Errorf("OCSP status is not 'Good': %v", resp.Status)
	}

	f.store(key, body)
	return body, nil
}

// CRL downloads the first CRL distribution point of cert, checks it was
// signed by issuer when known, and that cert is not listed.
func (f *Fetcher) CRL(ctx context.Context, cert, issuer *x509.Certificate) ([]byte, error) {
	url := cert.CRLDistributionPoints[0]
	body, ok := f.cached(url)
	if !ok {
		var err error
		if body, err = f.do(ctx, http.MethodGet, url, "", nil); err != nil {
			return nil, err
		}
	}

	crl, err := x509.ParseRevocationList(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse CRL: %w", err)
	}
	if issuer != nil {
		if err := crl.CheckSignatureFrom(issuer); err != nil {
			return nil, fmt.Errorf("CRL signature invalid: %w", err)
		}
	}
	for _, revoked := range crl.RevokedCertificateEntries {
		if revoked.SerialNumber.Cmp(cert.SerialNumber) == 0 {
			return nil, errors.New("certificate is revoked in CRL")
		}
	}

	f.store(url, body)
	return body, nil
}

func (f *Fetcher) do(ctx context.Context, method, url, contentType string, body []byte) ([]byte, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rd)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("non success response (%d) from %s", resp.StatusCode, url)
	}
	return data, nil
}

func (f *Fetcher) cached(key string) ([]byte, bool) {
	if f.Cache == nil {
		return nil, false
	}
	return f.Cache.Get(key)
}

func (f *Fetcher) store(key string, data []byte) {
	if f.Cache != nil {
		f.Cache.Put(key, data)
	}
}
