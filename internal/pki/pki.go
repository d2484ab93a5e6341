// Package pki issues the certificates that secure the wlanmigrate relay: a
// self-signed CA, the relay's server certificate, and one client certificate
// per wizard host allowed to drive the relay over mutual TLS.
package pki

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"slices"
	"time"
)

const (
	caCommonName    = "wlanmigrate relay CA"
	relayCommonName = "wlanmigrate relay"
	clientOrg       = "wlanmigrate clients"
)

// CertBundle holds a certificate and its private key in PEM-encoded form.
type CertBundle struct {
	CertPEM []byte
	KeyPEM  []byte
}

// GenerateCA creates a self-signed ECDSA P-256 CA valid for validity.
func GenerateCA(orgName string, validity time.Duration) (*CertBundle, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating CA key: %w", err)
	}
	template, err := newTemplate(pkix.Name{Organization: []string{orgName}, CommonName: caCommonName}, validity)
	if err != nil {
		return nil, err
	}
	template.KeyUsage = x509.KeyUsageCertSign | x509.KeyUsageCRLSign
	template.BasicConstraintsValid = true
	template.IsCA = true
	template.MaxPathLen = 1

	certDER, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("creating CA certificate: %w", err)
	}
	return bundleFromDER(certDER, key)
}

// GenerateServerCert issues the relay's server certificate. hosts become SANs;
// localhost and 127.0.0.1 are always included.
func GenerateServerCert(ca *CertBundle, hosts []string, validity time.Duration) (*CertBundle, error) {
	template, err := newTemplate(pkix.Name{CommonName: relayCommonName}, validity)
	if err != nil {
		return nil, err
	}
	template.KeyUsage = x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment
	template.ExtKeyUsage = []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth}

	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else if h != "" {
			template.DNSNames = append(template.DNSNames, h)
		}
	}
	loopback := net.IPv4(127, 0, 0, 1)
	if !slices.ContainsFunc(template.IPAddresses, loopback.Equal) {
		template.IPAddresses = append(template.IPAddresses, loopback)
	}
	if !slices.Contains(template.DNSNames, "localhost") {
		template.DNSNames = append(template.DNSNames, "localhost")
	}

	return issue(ca, template, "server")
}

// GenerateClientCert issues a client certificate. clientName becomes the
// Common Name so the relay can attribute calls.
func GenerateClientCert(ca *CertBundle, clientName string, validity time.Duration) (*CertBundle, error) {
	if clientName == "" {
		return nil, fmt.Errorf("client name is required")
	}
	template, err := newTemplate(pkix.Name{CommonName: clientName, Organization: []string{clientOrg}}, validity)
	if err != nil {
		return nil, err
	}
	template.KeyUsage = x509.KeyUsageDigitalSignature
	template.ExtKeyUsage = []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth}

	return issue(ca, template, "client")
}

// ParseCertificate parses a PEM-encoded certificate.
func ParseCertificate(certPEM []byte) (*x509.Certificate, error) {
	block, _ := pem.Decode(certPEM)
	if block == nil {
		return nil, fmt.Errorf("no PEM data found")
	}
	return x509.ParseCertificate(block.Bytes)
}

func newTemplate(subject pkix.Name, validity time.Duration) (*x509.Certificate, error) {
	if validity <= 0 {
		return nil, fmt.Errorf("validity must be positive, got %s", validity)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("generating serial number: %w", err)
	}
	now := time.Now()
	return &x509.Certificate{
		SerialNumber: serial,
		Subject:      subject,
		NotBefore:    now,
		NotAfter:     now.Add(validity),
	}, nil
}

// issue signs template with the CA using a fresh P-256 key.
func issue(ca *CertBundle, template *x509.Certificate, what string) (*CertBundle, error) {
	caCert, caKey, err := parseCA(ca)
	if err != nil {
		return nil, err
	}
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating %s key: %w", what, err)
	}
	certDER, err := x509.CreateCertificate(rand.Reader, template, caCert, &key.PublicKey, caKey)
	if err != nil {
		return nil, fmt.Errorf("creating %s certificate: %w", what, err)
	}
	return bundleFromDER(certDER, key)
}

func parseCA(ca *CertBundle) (*x509.Certificate, *ecdsa.PrivateKey, error) {
	if ca == nil {
		return nil, nil, fmt.Errorf("no CA bundle")
	}
	caCert, err := ParseCertificate(ca.CertPEM)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing CA certificate: %w", err)
	}
	if !caCert.IsCA {
		return nil, nil, fmt.Errorf("certificate %q is not a CA", caCert.Subject.CommonName)
	}

	keyBlock, _ := pem.Decode(ca.KeyPEM)
	if keyBlock == nil {
		return nil, nil, fmt.Errorf("invalid CA key PEM")
	}
	caKey, err := x509.ParseECPrivateKey(keyBlock.Bytes)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing CA key: %w", err)
	}
	return caCert, caKey, nil
}

func bundleFromDER(certDER []byte, key *ecdsa.PrivateKey) (*CertBundle, error) {
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("marshaling key: %w", err)
	}
	return &CertBundle{
		CertPEM: pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER}),
		KeyPEM:  pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}),
	}, nil
}
