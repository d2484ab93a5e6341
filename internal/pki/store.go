package pki

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// File names inside a PKI directory. Each bundle is stored as <name>.crt and <name>.key.
const (
	CAName     = "ca"
	RelayName  = "relay"
	ClientName = "client"
)

// SaveBundle writes a bundle as <name>.crt (0644) and <name>.key (0600).
func SaveBundle(dir, name string, b *CertBundle) error {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating pki dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, name+".crt"), b.CertPEM, 0644); err != nil {
		return fmt.Errorf("writing %s certificate: %w", name, err)
	}
	if err := os.WriteFile(filepath.Join(dir, name+".key"), b.KeyPEM, 0600); err != nil {
		return fmt.Errorf("writing %s key: %w", name, err)
	}
	return nil
}

// LoadBundle reads <name>.crt and <name>.key from dir.
func LoadBundle(dir, name string) (*CertBundle, error) {
	certPEM, err := os.ReadFile(filepath.Join(dir, name+".crt"))
	if err != nil {
		return nil, fmt.Errorf("reading %s certificate: %w", name, err)
	}
	keyPEM, err := os.ReadFile(filepath.Join(dir, name+".key"))
	if err != nil {
		return nil, fmt.Errorf("reading %s key: %w", name, err)
	}
	return &CertBundle{CertPEM: certPEM, KeyPEM: keyPEM}, nil
}

// LoadCACert reads only the CA certificate, which is all a client needs
// besides its own bundle.
func LoadCACert(dir string) ([]byte, error) {
	certPEM, err := os.ReadFile(filepath.Join(dir, CAName+".crt"))
	if err != nil {
		return nil, fmt.Errorf("reading CA certificate: %w", err)
	}
	return certPEM, nil
}

// InitDir creates the CA and relay server certificate in dir unless a CA is
// already present. It reports whether anything was generated.
func InitDir(dir string, hosts []string, validity time.Duration) (bool, error) {
	if _, err := os.Stat(filepath.Join(dir, CAName+".crt")); err == nil {
		return false, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("checking pki dir: %w", err)
	}

	ca, err := GenerateCA("wlanmigrate", validity)
	if err != nil {
		return false, err
	}
	server, err := GenerateServerCert(ca, hosts, validity)
	if err != nil {
		return false, err
	}
	if err := SaveBundle(dir, CAName, ca); err != nil {
		return false, err
	}
	if err := SaveBundle(dir, RelayName, server); err != nil {
		return false, err
	}
	return true, nil
}

// IssueClient signs a client certificate with the CA in dir and stores it
// under clients/<clientName>.
func IssueClient(dir, clientName string, validity time.Duration) (*CertBundle, error) {
	ca, err := LoadBundle(dir, CAName)
	if err != nil {
		return nil, err
	}
	bundle, err := GenerateClientCert(ca, clientName, validity)
	if err != nil {
		return nil, err
	}
	if err := SaveBundle(filepath.Join(dir, "clients"), clientName, bundle); err != nil {
		return nil, err
	}
	return bundle, nil
}

// WriteClientDir writes the files a wizard host needs to dial the relay:
// client.crt, client.key and ca.crt.
func WriteClientDir(outDir string, client *CertBundle, caCertPEM []byte) error {
	if err := SaveBundle(outDir, ClientName, client); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(outDir, CAName+".crt"), caCertPEM, 0644); err != nil {
		return fmt.Errorf("writing CA certificate: %w", err)
	}
	return nil
}

// LoadClientDir reads a directory written by WriteClientDir.
func LoadClientDir(dir string) (*CertBundle, []byte, error) {
	client, err := LoadBundle(dir, ClientName)
	if err != nil {
		return nil, nil, err
	}
	caCertPEM, err := LoadCACert(dir)
	if err != nil {
		return nil, nil, err
	}
	return client, caCertPEM, nil
}
