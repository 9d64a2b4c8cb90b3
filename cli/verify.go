package cli

import (
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/digitorus/pdfreport/seal"
)

var RootsFile string

func VerifyCommand() {
	verifyFlags := flag.NewFlagSet("verify", flag.ExitOnError)

	verifyFlags.StringVar(&RootsFile, "roots", "", "PEM file of trusted root certificates")

	verifyFlags.Usage = func() {
		fmt.Printf("Usage: %s verify [options] <report.pdf> [report.p7s]\n\n", os.Args[0])
		fmt.Println("Verify the detached seal of a delivered report")
		fmt.Println("\nOptions:")
		verifyFlags.PrintDefaults()
		fmt.Println("\nExamples:")
		fmt.Printf("  %s verify claim_2024-017.pdf\n", os.Args[0])
		fmt.Printf("  %s verify -roots ca.pem claim_2024-017.pdf claim_2024-017.p7s\n", os.Args[0])
	}

	if err := verifyFlags.Parse(os.Args[2:]); err != nil {
		log.Fatalf("Failed to parse verify flags: %v", err)
	}

	if len(verifyFlags.Args()) < 1 {
		verifyFlags.Usage()
		osExit(1)
		return
	}

	report := verifyFlags.Arg(0)
	signature := verifyFlags.Arg(1)
	if signature == "" {
		signature = seal.SignatureName(report)
	}
	VerifyReport(report, signature, RootsFile)
}

// Result is printed as JSON by the verify command.
type Result struct {
	Signer    string     `json:"signer"`
	Issuer    string     `json:"issuer"`
	Trusted   bool       `json:"trusted"`
	TimeStamp *time.Time `json:"timestamp,omitempty"`
	// Revocation is "good" or "revoked" when a status was embedded at
	// sealing time.
	Revocation string `json:"revocation,omitempty"`
}

func VerifyReport(report, signature, rootsFile string) {
	res, err := verifyReport(report, signature, rootsFile)
	if err != nil {
		fmt.Println(err)
		osExit(1)
		return
	}

	jsonData, err := json.Marshal(res)
	if err != nil {
		fmt.Println(err)
		osExit(1)
		return
	}
	fmt.Println(string(jsonData))
}

func verifyReport(report, signature, rootsFile string) (*Result, error) {
	data, err := os.ReadFile(report)
	if err != nil {
		return nil, err
	}
	sig, err := os.ReadFile(signature)
	if err != nil {
		return nil, err
	}

	var roots *x509.CertPool
	if rootsFile != "" {
		if roots, err = loadRoots(rootsFile); err != nil {
			return nil, err
		}
	}

	v, err := seal.Verify(data, sig, roots)
	if err != nil {
		return nil, err
	}
	res := &Result{Trusted: v.Trusted}
	if v.Signer != nil {
		res.Signer = v.Signer.Subject.String()
		res.Issuer = v.Signer.Issuer.String()
	}
	if v.TimeStamp != nil {
		t := v.TimeStamp.Time
		res.TimeStamp = &t
	}
	switch {
	case v.Revoked:
		res.Revocation = "revoked"
	case v.Revocation != nil:
		res.Revocation = "good"
	}
	return res, nil
}

func loadRoots(path string) (*x509.CertPool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	var n int
	for block, rest := pem.Decode(data); block != nil; block, rest = pem.Decode(rest) {
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse root certificate: %w", err)
		}
		pool.AddCert(cert)
		n++
	}
	if n == 0 {
		return nil, errors.New("no root certificates found")
	}
	return pool, nil
}
