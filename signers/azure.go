package signers

import (
	"context"
	"crypto"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azkeys"
)

// VaultSigner is the part of the Key Vault keys client the signer uses.
type VaultSigner interface {
	Sign(ctx context.Context, name string, version string, parameters azkeys.SignParameters, options *azkeys.SignOptions) (azkeys.SignResponse, error)
}

// AzureSigner signs digests with a Key Vault or Managed HSM key.
type AzureSigner struct {
	remoteKey
	client  VaultSigner
	name    string
	version string
}

// NewAzure returns a signer for the key name at version; an empty version
// selects the latest.
func NewAzure(client VaultSigner, name, version string, pub crypto.PublicKey) (*AzureSigner, error) {
	if client == nil || name == "" {
		return nil, errors.New("signers: azure needs a client and a key name")
	}
	return &AzureSigner{
		remoteKey: remoteKey{pub: pub, timeout: DefaultTimeout},
		client:    client,
		name:      name,
		version:   version,
	}, nil
}

func openAzure(k remoteKey, o Options) (crypto.Signer, error) {
	if o.Endpoint == "" || o.AuthToken == "" {
		return nil, errors.New("signers: azure needs a vault url and an access token")
	}
	var opts azkeys.ClientOptions
	if o.HTTPClient != nil {
		opts.Transport = o.HTTPClient
	}
	client, err := azkeys.NewClient(o.Endpoint, staticToken(o.AuthToken), &opts)
	if err != nil {
		return nil, fmt.Errorf("signers: azure client: %w", err)
	}
	s, err := NewAzure(client, o.KeyID, o.KeyVersion, k.pub)
	if err != nil {
		return nil, err
	}
	s.timeout = k.timeout
	return s, nil
}

// staticToken is an access token obtained outside the process, for example
// with `az account get-access-token --resource https://vault.azure.net`.
type staticToken string

func (t staticToken) GetToken(context.Context, policy.TokenRequestOptions) (azcore.AccessToken, error) {
	return azcore.AccessToken{Token: string(t), ExpiresOn: time.Now().Add(time.Hour)}, nil
}

// Sign asks Key Vault to sign the precomputed digest. Elliptic curve
// signatures come back as r||s and are re-encoded as ASN.1.
func (s *AzureSigner) Sign(_ io.Reader, digest []byte, opts crypto.SignerOpts) ([]byte, error) {
	algo := s.algorithm(opts)
	if algo == "" {
		return nil, fmt.Errorf("signers: azure cannot sign %T with %v", s.pub, opts.HashFunc())
	}

	ctx, cancel := s.context()
	defer cancel()
	resp, err := s.client.Sign(ctx, s.name, s.version, azkeys.SignParameters{Algorithm: &algo, Value: digest}, nil)
	if err != nil {
		return nil, fmt.Errorf("signers: azure sign failed: %w", err)
	}
	if s.isECDSA() {
		return ecdsaDER(resp.Result)
	}
	return resp.Result, nil
}

func (s *AzureSigner) algorithm(opts crypto.SignerOpts) azkeys.SignatureAlgorithm {
	h := opts.HashFunc()
	switch {
	case s.isRSA() && isPSS(opts):
		return map[crypto.Hash]azkeys.SignatureAlgorithm{
			crypto.SHA256: azkeys.SignatureAlgorithmPS256,
			crypto.SHA384: azkeys.SignatureAlgorithmPS384,
			crypto.SHA512: azkeys.SignatureAlgorithmPS512,
		}[h]
	case s.isRSA():
		return map[crypto.Hash]azkeys.SignatureAlgorithm{
			crypto.SHA256: azkeys.SignatureAlgorithmRS256,
			crypto.SHA384: azkeys.SignatureAlgorithmRS384,
			crypto.SHA512: azkeys.SignatureAlgorithmRS512,
		}[h]
	case s.isECDSA():
		return map[crypto.Hash]azkeys.SignatureAlgorithm{
			crypto.SHA256: azkeys.SignatureAlgorithmES256,
			crypto.SHA384: azkeys.SignatureAlgorithmES384,
			crypto.SHA512: azkeys.SignatureAlgorithmES512,
		}[h]
	}
	return ""
}

var (
	_ crypto.Signer          = (*AzureSigner)(nil)
	_ azcore.TokenCredential = staticToken("")
)
