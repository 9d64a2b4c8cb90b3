package signers

import (
	"context"
	"crypto"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
)

// KMSSigner is the part of the AWS KMS client the signer uses.
type KMSSigner interface {
	Sign(ctx context.Context, params *kms.SignInput, optFns ...func(*kms.Options)) (*kms.SignOutput, error)
}

// AWSSigner signs digests with an asymmetric AWS KMS key.
type AWSSigner struct {
	remoteKey
	client KMSSigner
	keyID  string
}

// NewAWS returns a signer for keyID using client.
func NewAWS(client KMSSigner, keyID string, pub crypto.PublicKey) (*AWSSigner, error) {
	if client == nil || keyID == "" {
		return nil, errors.New("signers: aws needs a client and a key id")
	}
	return &AWSSigner{remoteKey: remoteKey{pub: pub, timeout: DefaultTimeout}, client: client, keyID: keyID}, nil
}

// openAWS builds a KMS client for o.Region. Credentials are read from the
// standard AWS_ environment variables when the client signs a request.
func openAWS(k remoteKey, o Options) (crypto.Signer, error) {
	if o.Region == "" {
		return nil, errors.New("signers: aws needs a region")
	}
	opts := kms.Options{
		Region:      o.Region,
		Credentials: aws.NewCredentialsCache(aws.CredentialsProviderFunc(envCredentials)),
	}
	if o.Endpoint != "" {
		opts.BaseEndpoint = aws.String(o.Endpoint)
	}
	if o.HTTPClient != nil {
		opts.HTTPClient = o.HTTPClient
	}
	s, err := NewAWS(kms.New(opts), o.KeyID, k.pub)
	if err != nil {
		return nil, err
	}
	s.timeout = k.timeout
	return s, nil
}

func envCredentials(ctx context.Context) (aws.Credentials, error) {
	id, secret := os.Getenv("AWS_ACCESS_KEY_ID"), os.Getenv("AWS_SECRET_ACCESS_KEY")
	if id == "" || secret == "" {
		return aws.Credentials{}, errors.New("AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY are not set")
	}
	return aws.Credentials{
		AccessKeyID:     id,
		SecretAccessKey: secret,
		SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
		Source:          "environment",
	}, nil
}

// Sign asks KMS to sign the precomputed digest.
func (s *AWSSigner) Sign(_ io.Reader, digest []byte, opts crypto.SignerOpts) ([]byte, error) {
	algo := s.algorithm(opts)
	if algo == "" {
		return nil, fmt.Errorf("signers: aws cannot sign %T with %v", s.pub, opts.HashFunc())
	}

	ctx, cancel := s.context()
	defer cancel()
	out, err := s.client.Sign(ctx, &kms.SignInput{
		KeyId:            aws.String(s.keyID),
		Message:          digest,
		MessageType:      types.MessageTypeDigest,
		SigningAlgorithm: algo,
	})
	if err != nil {
		return nil, fmt.Errorf("signers: aws sign failed: %w", err)
	}
	return out.Signature, nil
}

func (s *AWSSigner) algorithm(opts crypto.SignerOpts) types.SigningAlgorithmSpec {
	h := opts.HashFunc()
	switch {
	case s.isRSA() && isPSS(opts):
		return map[crypto.Hash]types.SigningAlgorithmSpec{
			crypto.SHA256: types.SigningAlgorithmSpecRsassaPssSha256,
			crypto.SHA384: types.SigningAlgorithmSpecRsassaPssSha384,
			crypto.SHA512: types.SigningAlgorithmSpecRsassaPssSha512,
		}[h]
	case s.isRSA():
		return map[crypto.Hash]types.SigningAlgorithmSpec{
			crypto.SHA256: types.SigningAlgorithmSpecRsassaPkcs1V15Sha256,
			crypto.SHA384: types.SigningAlgorithmSpecRsassaPkcs1V15Sha384,
			crypto.SHA512: types.SigningAlgorithmSpecRsassaPkcs1V15Sha512,
		}[h]
	case s.isECDSA():
		return map[crypto.Hash]types.SigningAlgorithmSpec{
			crypto.SHA256: types.SigningAlgorithmSpecEcdsaSha256,
			crypto.SHA384: types.SigningAlgorithmSpecEcdsaSha384,
			crypto.SHA512: types.SigningAlgorithmSpecEcdsaSha512,
		}[h]
	}
	return ""
}

var _ crypto.Signer = (*AWSSigner)(nil)
