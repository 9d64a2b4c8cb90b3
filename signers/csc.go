package signers

import (
	"bytes"
	"context"
	"crypto"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
)

// CSCSigner signs digests through a Cloud Signature Consortium remote
// signing service (API v1.0.4 and v2).
type CSCSigner struct {
	remoteKey
	client     *http.Client
	baseURL    string
	credential string
	auth       string
	pin        string

	// signAlgo is the first signature algorithm OID the credential offers.
	signAlgo string
	implicit bool
}

type cscInfo struct {
	Key struct {
		Status string   `json:"status"`
		Algo   []string `json:"algo"`
	} `json:"key"`
	Cert struct {
		Certificates []string `json:"certificates"`
	} `json:"cert"`
	AuthMode string `json:"authMode"`
}

// openCSC reads the credential info and checks that the credential's
// certificate, when the service returns one, carries the sealing key.
func openCSC(ctx context.Context, k remoteKey, o Options) (crypto.Signer, error) {
	if o.Endpoint == "" || o.KeyID == "" {
		return nil, errors.New("signers: csc needs a base url and a credential id")
	}
	s := &CSCSigner{
		remoteKey:  k,
		client:     o.HTTPClient,
		baseURL:    strings.TrimSuffix(o.Endpoint, "/"),
		credential: o.KeyID,
		auth:       o.AuthToken,
		pin:        o.PIN,
	}
	if s.client == nil {
		s.client = http.DefaultClient
	}

	var info cscInfo
	if err := s.call(ctx, "credentials/info", map[string]any{"credentialID": s.credential, "certificates": "single"}, &info); err != nil {
		return nil, err
	}
	if info.Key.Status != "" && info.Key.Status != "enabled" {
		return nil, fmt.Errorf("signers: csc credential key is %s", info.Key.Status)
	}
	if len(info.Key.Algo) == 0 {
		return nil, errors.New("signers: csc credential offers no signature algorithm")
	}
	s.signAlgo = info.Key.Algo[0]
	s.implicit = info.AuthMode == "implicit"

	if len(info.Cert.Certificates) > 0 {
		der, err := base64.StdEncoding.DecodeString(info.Cert.Certificates[0])
		if err != nil {
			return nil, fmt.Errorf("signers: csc certificate: %w", err)
		}
		cert, err := x509.ParseCertificate(der)
		if err != nil {
			return nil, fmt.Errorf("signers: csc certificate: %w", err)
		}
		if !publicKeyEqual(cert.PublicKey, k.pub) {
			return nil, errors.New("signers: csc credential does not match the sealing certificate")
		}
	}
	return s, nil
}

// Sign authorises the credential for one signature, unless the service uses
// implicit authorisation, then signs the digest.
func (s *CSCSigner) Sign(_ io.Reader, digest []byte, opts crypto.SignerOpts) ([]byte, error) {
	hashAlgo, ok := hashOIDs[opts.HashFunc()]
	if !ok {
		return nil, fmt.Errorf("signers: csc cannot sign with %v", opts.HashFunc())
	}

	ctx, cancel := s.context()
	defer cancel()

	var sad string
	if !s.implicit {
		var auth struct {
			SAD string `json:"SAD"`
		}
		req := map[string]any{"credentialID": s.credential, "numSignatures": 1}
		if s.pin != "" {
			req["PIN"] = s.pin
		}
		if err := s.call(ctx, "credentials/authorize", req, &auth); err != nil {
			return nil, err
		}
		sad = auth.SAD
	}

	var out struct {
		Signatures []string `json:"signatures"`
	}
	err := s.call(ctx, "signatures/signHash", map[string]any{
		"credentialID": s.credential,
		"SAD":          sad,
		"hash":         []string{base64.StdEncoding.EncodeToString(digest)},
		"hashAlgo":     hashAlgo,
		"signAlgo":     s.signAlgo,
	}, &out)
	if err != nil {
		return nil, err
	}
	if len(out.Signatures) != 1 {
		return nil, fmt.Errorf("signers: csc returned %d signatures", len(out.Signatures))
	}
	sig, err := base64.StdEncoding.DecodeString(out.Signatures[0])
	if err != nil {
		return nil, fmt.Errorf("signers: csc signature: %w", err)
	}
	return sig, nil
}

// call POSTs a JSON request to method and decodes the JSON response into out.
func (s *CSCSigner) call(ctx context.Context, method string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/"+method, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.auth != "" {
		req.Header.Set("Authorization", s.auth)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("signers: csc %s: %w", method, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("signers: csc %s: %w", method, err)
	}
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("signers: csc %s: %s: %s", method, resp.Status, bytes.TrimSpace(data))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("signers: csc %s: %w", method, err)
	}
	return nil
}

var hashOIDs = map[crypto.Hash]string{
	crypto.SHA256: "2.16.840.1.101.3.4.2.1",
	crypto.SHA384: "2.16.840.1.101.3.4.2.2",
	crypto.SHA512: "2.16.840.1.101.3.4.2.3",
}

func publicKeyEqual(a, b crypto.PublicKey) bool {
	if k, ok := a.(interface{ Equal(crypto.PublicKey) bool }); ok {
		return k.Equal(b)
	}
	return reflect.DeepEqual(a, b)
}

var _ crypto.Signer = (*CSCSigner)(nil)
