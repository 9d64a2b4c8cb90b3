// Package signers provides crypto.Signer implementations for sealing keys
// that never leave a key management service, an HSM or a remote signing
// service. The public key always comes from the sealing certificate.
package signers

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/crypto/cryptobyte/asn1"
)

// Key providers understood by Open.
const (
	AWS    = "aws"
	Azure  = "azure"
	GCP    = "gcp"
	PKCS11 = "pkcs11"
	CSC    = "csc"
)

// DefaultTimeout bounds a single remote signing operation.
const DefaultTimeout = 30 * time.Second

// Options locates a key at one of the providers.
type Options struct {
	Provider string
	// KeyID is the AWS key ID or ARN, the Key Vault key name, the Cloud KMS
	// key version resource name, the PKCS#11 key label or the CSC credential ID.
	KeyID string
	// KeyVersion selects a Key Vault key version; empty is the latest.
	KeyVersion string
	// Endpoint is the Key Vault URL or the CSC base URL. For AWS and GCP it
	// overrides the default service endpoint.
	Endpoint string
	Region   string
	// Module is the path of the PKCS#11 library.
	Module     string
	TokenLabel string
	PIN        string
	// AuthToken is the Key Vault access token or the CSC Authorization header.
	AuthToken string

	Timeout    time.Duration
	HTTPClient *http.Client
}

// Open returns a signer for the key described by o whose public half is pub.
// Signers holding connections implement io.Closer.
func Open(ctx context.Context, o Options, pub crypto.PublicKey) (crypto.Signer, error) {
	if pub == nil {
		return nil, errors.New("signers: public key is required")
	}
	k := remoteKey{pub: pub, timeout: o.Timeout}
	if k.timeout <= 0 {
		k.timeout = DefaultTimeout
	}

	switch o.Provider {
	case AWS:
		return openAWS(k, o)
	case Azure:
		return openAzure(k, o)
	case GCP:
		return openGCP(ctx, k, o)
	case PKCS11:
		return openPKCS11(k, o)
	case CSC:
		return openCSC(ctx, k, o)
	}
	return nil, fmt.Errorf("signers: unknown provider %q", o.Provider)
}

// remoteKey is the part every remote signer shares.
type remoteKey struct {
	pub     crypto.PublicKey
	timeout time.Duration
}

// Public returns the certificate's public key.
func (k remoteKey) Public() crypto.PublicKey {
	return k.pub
}

func (k remoteKey) context() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), k.timeout)
}

func (k remoteKey) isRSA() bool {
	_, ok := k.pub.(*rsa.PublicKey)
	return ok
}

func (k remoteKey) isECDSA() bool {
	_, ok := k.pub.(*ecdsa.PublicKey)
	return ok
}

func isPSS(opts crypto.SignerOpts) bool {
	_, ok := opts.(*rsa.PSSOptions)
	return ok
}

// ecdsaDER converts a raw r||s signature into the ASN.1 form crypto/ecdsa and
// CMS use.
func ecdsaDER(raw []byte) ([]byte, error) {
	if len(raw) == 0 || len(raw)%2 != 0 {
		return nil, fmt.Errorf("signers: malformed ecdsa signature of %d bytes", len(raw))
	}
	r := new(big.Int).SetBytes(raw[:len(raw)/2])
	s := new(big.Int).SetBytes(raw[len(raw)/2:])

	var b cryptobyte.Builder
	b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddASN1BigInt(r)
		b.AddASN1BigInt(s)
	})
	return b.Bytes()
}
