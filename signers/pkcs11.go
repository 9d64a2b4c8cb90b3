package signers

import (
	"crypto"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/miekg/pkcs11"
)

// Module is the part of a PKCS#11 library the signer uses. *pkcs11.Ctx
// implements it.
type Module interface {
	Initialize() error
	Finalize() error
	Destroy()
	GetSlotList(tokenPresent bool) ([]uint, error)
	GetTokenInfo(slotID uint) (pkcs11.TokenInfo, error)
	OpenSession(slotID uint, flags uint) (pkcs11.SessionHandle, error)
	CloseSession(sh pkcs11.SessionHandle) error
	Login(sh pkcs11.SessionHandle, userType uint, pin string) error
	Logout(sh pkcs11.SessionHandle) error
	FindObjectsInit(sh pkcs11.SessionHandle, temp []*pkcs11.Attribute) error
	FindObjects(sh pkcs11.SessionHandle, max int) ([]pkcs11.ObjectHandle, bool, error)
	FindObjectsFinal(sh pkcs11.SessionHandle) error
	SignInit(sh pkcs11.SessionHandle, m []*pkcs11.Mechanism, o pkcs11.ObjectHandle) error
	Sign(sh pkcs11.SessionHandle, message []byte) ([]byte, error)
}

// loadModule is replaced in tests.
var loadModule = func(path string) (Module, error) {
	ctx := pkcs11.New(path)
	if ctx == nil {
		return nil, fmt.Errorf("signers: failed to load pkcs11 module %s", path)
	}
	return ctx, nil
}

// PKCS11Signer signs digests with a private key on a PKCS#11 token. Each
// signature uses its own session; the module stays loaded until Close.
type PKCS11Signer struct {
	remoteKey
	module Module
	token  string
	label  string
	pin    string

	mu sync.Mutex
}

// NewPKCS11 initialises module and returns a signer for the private key
// labelled label on the token labelled token. Empty labels match the first
// token or key found.
func NewPKCS11(module Module, token, label, pin string, pub crypto.PublicKey) (*PKCS11Signer, error) {
	if module == nil {
		return nil, errors.New("signers: pkcs11 needs a module")
	}
	if err := module.Initialize(); err != nil {
		module.Destroy()
		return nil, fmt.Errorf("signers: pkcs11 initialize: %w", err)
	}
	return &PKCS11Signer{
		remoteKey: remoteKey{pub: pub, timeout: DefaultTimeout},
		module:    module,
		token:     token,
		label:     label,
		pin:       pin,
	}, nil
}

func openPKCS11(k remoteKey, o Options) (crypto.Signer, error) {
	if o.Module == "" {
		return nil, errors.New("signers: pkcs11 needs a module path")
	}
	m, err := loadModule(o.Module)
	if err != nil {
		return nil, err
	}
	s, err := NewPKCS11(m, o.TokenLabel, o.KeyID, o.PIN, k.pub)
	if err != nil {
		return nil, err
	}
	s.timeout = k.timeout
	return s, nil
}

// Sign signs the precomputed digest. RSA keys use CKM_RSA_PKCS over the
// DigestInfo of the digest. ECDSA signatures come back as r||s and are
// re-encoded as ASN.1.
func (s *PKCS11Signer) Sign(_ io.Reader, digest []byte, opts crypto.SignerOpts) ([]byte, error) {
	var (
		mech *pkcs11.Mechanism
		msg  []byte
	)
	switch {
	case s.isRSA() && !isPSS(opts):
		prefix, ok := digestInfoPrefix[opts.HashFunc()]
		if !ok {
			return nil, fmt.Errorf("signers: pkcs11 cannot sign with %v", opts.HashFunc())
		}
		mech = pkcs11.NewMechanism(pkcs11.CKM_RSA_PKCS, nil)
		msg = append(append([]byte{}, prefix...), digest...)
	case s.isECDSA():
		mech = pkcs11.NewMechanism(pkcs11.CKM_ECDSA, nil)
		msg = digest
	default:
		return nil, fmt.Errorf("signers: pkcs11 cannot sign %T", s.pub)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.session()
	if err != nil {
		return nil, err
	}
	defer func() { _ = s.module.CloseSession(session) }()
	if s.pin != "" {
		if err := s.module.Login(session, pkcs11.CKU_USER, s.pin); err != nil {
			return nil, fmt.Errorf("signers: pkcs11 login: %w", err)
		}
		defer func() { _ = s.module.Logout(session) }()
	}

	key, err := s.findKey(session)
	if err != nil {
		return nil, err
	}
	if err := s.module.SignInit(session, []*pkcs11.Mechanism{mech}, key); err != nil {
		return nil, fmt.Errorf("signers: pkcs11 sign init: %w", err)
	}
	sig, err := s.module.Sign(session, msg)
	if err != nil {
		return nil, fmt.Errorf("signers: pkcs11 sign: %w", err)
	}
	if s.isECDSA() {
		return ecdsaDER(sig)
	}
	return sig, nil
}

// session opens a session on the first present token matching s.token.
func (s *PKCS11Signer) session() (pkcs11.SessionHandle, error) {
	slots, err := s.module.GetSlotList(true)
	if err != nil {
		return 0, fmt.Errorf("signers: pkcs11 slots: %w", err)
	}
	for _, slot := range slots {
		info, err := s.module.GetTokenInfo(slot)
		if err != nil || (s.token != "" && info.Label != s.token) {
			continue
		}
		session, err := s.module.OpenSession(slot, pkcs11.CKF_SERIAL_SESSION)
		if err != nil {
			return 0, fmt.Errorf("signers: pkcs11 open session: %w", err)
		}
		return session, nil
	}
	return 0, fmt.Errorf("signers: pkcs11 token %q not found", s.token)
}

func (s *PKCS11Signer) findKey(session pkcs11.SessionHandle) (pkcs11.ObjectHandle, error) {
	template := []*pkcs11.Attribute{pkcs11.NewAttribute(pkcs11.CKA_CLASS, pkcs11.CKO_PRIVATE_KEY)}
	if s.label != "" {
		template = append(template, pkcs11.NewAttribute(pkcs11.CKA_LABEL, s.label))
	}
	if err := s.module.FindObjectsInit(session, template); err != nil {
		return 0, fmt.Errorf("signers: pkcs11 find: %w", err)
	}
	objs, _, err := s.module.FindObjects(session, 1)
	if ferr := s.module.FindObjectsFinal(session); err == nil {
		err = ferr
	}
	if err != nil {
		return 0, fmt.Errorf("signers: pkcs11 find: %w", err)
	}
	if len(objs) == 0 {
		return 0, fmt.Errorf("signers: pkcs11 private key %q not found", s.label)
	}
	return objs[0], nil
}

// Close finalises and unloads the module.
func (s *PKCS11Signer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.module.Finalize()
	s.module.Destroy()
	return err
}

// digestInfoPrefix holds the DER DigestInfo header for each hash, as in
// PKCS #1 v2.2 section 9.2.
var digestInfoPrefix = map[crypto.Hash][]byte{
	crypto.SHA256: {0x30, 0x31, 0x30, 0x0d, 0x06, 0x09, 0x60, 0x86, 0x48, 0x01, 0x65, 0x03, 0x04, 0x02, 0x01, 0x05, 0x00, 0x04, 0x20},
	crypto.SHA384: {0x30, 0x41, 0x30, 0x0d, 0x06, 0x09, 0x60, 0x86, 0x48, 0x01, 0x65, 0x03, 0x04, 0x02, 0x02, 0x05, 0x00, 0x04, 0x30},
	crypto.SHA512: {0x30, 0x51, 0x30, 0x0d, 0x06, 0x09, 0x60, 0x86, 0x48, 0x01, 0x65, 0x03, 0x04, 0x02, 0x03, 0x05, 0x00, 0x04, 0x40},
}

var (
	_ crypto.Signer = (*PKCS11Signer)(nil)
	_ io.Closer     = (*PKCS11Signer)(nil)
	_ Module        = (*pkcs11.Ctx)(nil)
)
