package signers

import (
	"context"
	"crypto"
	"errors"
	"fmt"
	"hash/crc32"
	"io"

	cloudkms "cloud.google.com/go/kms/apiv1"
	"cloud.google.com/go/kms/apiv1/kmspb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/api/option"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// CloudKMSSigner is the part of the Cloud KMS client the signer uses.
type CloudKMSSigner interface {
	AsymmetricSign(ctx context.Context, req *kmspb.AsymmetricSignRequest, opts ...gax.CallOption) (*kmspb.AsymmetricSignResponse, error)
}

// GCPSigner signs digests with a Cloud KMS asymmetric key version.
type GCPSigner struct {
	remoteKey
	client CloudKMSSigner
	name   string
	closer io.Closer
}

// NewGCP returns a signer for the key version resource name, for example
// projects/p/locations/l/keyRings/r/cryptoKeys/k/cryptoKeyVersions/1.
func NewGCP(client CloudKMSSigner, name string, pub crypto.PublicKey) (*GCPSigner, error) {
	if client == nil || name == "" {
		return nil, errors.New("signers: gcp needs a client and a key version name")
	}
	return &GCPSigner{remoteKey: remoteKey{pub: pub, timeout: DefaultTimeout}, client: client, name: name}, nil
}

// openGCP dials Cloud KMS with Application Default Credentials.
func openGCP(ctx context.Context, k remoteKey, o Options) (crypto.Signer, error) {
	var opts []option.ClientOption
	if o.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(o.Endpoint))
	}
	client, err := cloudkms.NewKeyManagementClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("signers: gcp client: %w", err)
	}
	s, err := NewGCP(client, o.KeyID, k.pub)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	s.timeout = k.timeout
	s.closer = client
	return s, nil
}

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// Sign asks Cloud KMS to sign the precomputed digest. The digest and the
// returned signature are protected by CRC32C checksums in both directions.
func (s *GCPSigner) Sign(_ io.Reader, digest []byte, opts crypto.SignerOpts) ([]byte, error) {
	d := &kmspb.Digest{}
	switch opts.HashFunc() {
	case crypto.SHA256:
		d.Digest = &kmspb.Digest_Sha256{Sha256: digest}
	case crypto.SHA384:
		d.Digest = &kmspb.Digest_Sha384{Sha384: digest}
	case crypto.SHA512:
		d.Digest = &kmspb.Digest_Sha512{Sha512: digest}
	default:
		return nil, fmt.Errorf("signers: gcp cannot sign with %v", opts.HashFunc())
	}

	ctx, cancel := s.context()
	defer cancel()
	resp, err := s.client.AsymmetricSign(ctx, &kmspb.AsymmetricSignRequest{
		Name:         s.name,
		Digest:       d,
		DigestCrc32C: wrapperspb.Int64(int64(crc32.Checksum(digest, castagnoli))),
	})
	if err != nil {
		return nil, fmt.Errorf("signers: gcp sign failed: %w", err)
	}
	if !resp.VerifiedDigestCrc32C {
		return nil, errors.New("signers: gcp did not verify the digest checksum")
	}
	if resp.SignatureCrc32C == nil || resp.SignatureCrc32C.Value != int64(crc32.Checksum(resp.Signature, castagnoli)) {
		return nil, errors.New("signers: gcp signature checksum mismatch")
	}
	return resp.Signature, nil
}

// Close closes the client connection opened by Open.
func (s *GCPSigner) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

var (
	_ crypto.Signer = (*GCPSigner)(nil)
	_ io.Closer     = (*GCPSigner)(nil)
)
