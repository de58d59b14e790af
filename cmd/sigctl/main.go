package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/Ologywood-Platform/ologywoodv5-sub000/pkg/certify"
)

const usage = "usage: sigctl cert verify --cert <path> --payload <path> [--secret-env SIGNING_SECRET]"

func main() {
	if len(os.Args) < 3 || os.Args[1] != "cert" {
		failSummary("", usage)
		os.Exit(2)
	}
	switch os.Args[2] {
	case "verify":
		runCertVerify(os.Args[3:])
	default:
		failSummary("", usage)
		os.Exit(2)
	}
}

func runCertVerify(args []string) {
	fs := flag.NewFlagSet("cert verify", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	certPath := fs.String("cert", "", "path to certificate json")
	payloadPath := fs.String("payload", "", "path to signature payload file")
	secretEnv := fs.String("secret-env", "SIGNING_SECRET", "environment variable holding the signing secret")
	if err := fs.Parse(args); err != nil {
		failSummary("", err.Error())
		os.Exit(2)
	}
	if strings.TrimSpace(*certPath) == "" || strings.TrimSpace(*payloadPath) == "" {
		failSummary("", "both --cert and --payload are required")
		os.Exit(2)
	}

	secret := os.Getenv(*secretEnv)
	if secret == "" {
		failSummary("", *secretEnv+" is not set")
		os.Exit(2)
	}

	certBytes, err := os.ReadFile(*certPath)
	if err != nil {
		failSummary("", "read certificate failed: "+err.Error())
		os.Exit(1)
	}
	var cert certify.Certificate
	if err := json.Unmarshal(certBytes, &cert); err != nil {
		failSummary("", "parse certificate failed: "+err.Error())
		os.Exit(1)
	}
	payload, err := os.ReadFile(*payloadPath)
	if err != nil {
		failSummary(cert.CertificateNumber, "read payload failed: "+err.Error())
		os.Exit(1)
	}

	issuer, err := certify.NewIssuer([]byte(secret))
	if err != nil {
		failSummary(cert.CertificateNumber, err.Error())
		os.Exit(2)
	}

	result := issuer.Verify(cert, payload)
	out, _ := json.Marshal(map[string]any{
		"certificate_number": cert.CertificateNumber,
		"valid":              result.Valid,
		"tamper_detected":    result.TamperDetected,
		"reason":             result.Reason,
	})
	fmt.Println(string(out))
	if !result.Valid {
		os.Exit(1)
	}
}

func failSummary(certNumber, message string) {
	out, _ := json.Marshal(map[string]any{
		"certificate_number": certNumber,
		"valid":              false,
		"error":              message,
	})
	fmt.Println(string(out))
}
