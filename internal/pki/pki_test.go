package pki

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"
)

const (
	year  = 365 * 24 * time.Hour
	month = 30 * 24 * time.Hour
)

func mustCA(t *testing.T, org string) *CertBundle {
	t.Helper()
	ca, err := GenerateCA(org, year)
	if err != nil {
		t.Fatalf("GenerateCA: %v", err)
	}
	return ca
}

func verifyAgainst(ca *CertBundle, bundle *CertBundle, usage x509.ExtKeyUsage) error {
	cert, err := ParseCertificate(bundle.CertPEM)
	if err != nil {
		return err
	}
	pool := x509.NewCertPool()
	pool.AppendCertsFromPEM(ca.CertPEM)
	_, err = cert.Verify(x509.VerifyOptions{Roots: pool, KeyUsages: []x509.ExtKeyUsage{usage}})
	return err
}

func TestGenerateCA(t *testing.T) {
	ca := mustCA(t, "Campus IT")
	cert, err := ParseCertificate(ca.CertPEM)
	if err != nil {
		t.Fatalf("ParseCertificate: %v", err)
	}
	if !cert.IsCA || cert.KeyUsage&x509.KeyUsageCertSign == 0 {
		t.Error("expected a signing CA")
	}
	if cert.Subject.CommonName != "wlanmigrate relay CA" || cert.Subject.Organization[0] != "Campus IT" {
		t.Errorf("unexpected subject: %v", cert.Subject)
	}

	if _, err := GenerateCA("x", 0); err == nil {
		t.Error("zero validity should be rejected")
	}
}

func TestGenerateServerCert(t *testing.T) {
	ca := mustCA(t, "Campus IT")
	server, err := GenerateServerCert(ca, []string{"relay.example.com", "10.0.0.1"}, 90*24*time.Hour)
	if err != nil {
		t.Fatalf("GenerateServerCert: %v", err)
	}
	cert, _ := ParseCertificate(server.CertPEM)
	if cert.IsCA {
		t.Error("server cert should not be a CA")
	}
	for _, name := range []string{"relay.example.com", "localhost"} {
		if !slices.Contains(cert.DNSNames, name) {
			t.Errorf("missing DNS SAN %s in %v", name, cert.DNSNames)
		}
	}
	for _, ip := range []string{"10.0.0.1", "127.0.0.1"} {
		if !slices.ContainsFunc(cert.IPAddresses, net.ParseIP(ip).Equal) {
			t.Errorf("missing IP SAN %s in %v", ip, cert.IPAddresses)
		}
	}
	if err := verifyAgainst(ca, server, x509.ExtKeyUsageServerAuth); err != nil {
		t.Errorf("server cert failed CA verification: %v", err)
	}
}

func TestGenerateClientCert(t *testing.T) {
	ca := mustCA(t, "Campus IT")
	client, err := GenerateClientCert(ca, "wizard-laptop", month)
	if err != nil {
		t.Fatalf("GenerateClientCert: %v", err)
	}
	cert, _ := ParseCertificate(client.CertPEM)
	if cert.Subject.CommonName != "wizard-laptop" || cert.Subject.Organization[0] != "wlanmigrate clients" {
		t.Errorf("unexpected subject: %v", cert.Subject)
	}
	if err := verifyAgainst(ca, client, x509.ExtKeyUsageClientAuth); err != nil {
		t.Errorf("client cert failed CA verification: %v", err)
	}

	if _, err := GenerateClientCert(ca, "", month); err == nil {
		t.Error("empty client name should be rejected")
	}
	leaf, _ := GenerateClientCert(ca, "leaf", month)
	if _, err := GenerateClientCert(leaf, "child", month); err == nil {
		t.Error("a non-CA bundle must not sign certificates")
	}
}

func TestForeignCARejected(t *testing.T) {
	legit, rogue := mustCA(t, "Legit"), mustCA(t, "Rogue")
	client, _ := GenerateClientCert(rogue, "rogue", month)
	if err := verifyAgainst(legit, client, x509.ExtKeyUsageClientAuth); err == nil {
		t.Error("expected verification to fail with the wrong CA")
	}
}

func TestTLSConfigs(t *testing.T) {
	ca := mustCA(t, "Campus IT")
	server, _ := GenerateServerCert(ca, nil, month)
	client, _ := GenerateClientCert(ca, "c", month)

	srvCfg, err := ServerTLSConfig(server, ca.CertPEM)
	if err != nil {
		t.Fatalf("ServerTLSConfig: %v", err)
	}
	if srvCfg.ClientAuth != tls.RequireAndVerifyClientCert || srvCfg.MinVersion != tls.VersionTLS13 {
		t.Errorf("server config too lax: %+v", srvCfg)
	}

	cliCfg, err := ClientTLSConfig(client, ca.CertPEM)
	if err != nil {
		t.Fatalf("ClientTLSConfig: %v", err)
	}
	if cliCfg.RootCAs == nil || len(cliCfg.Certificates) != 1 {
		t.Errorf("client config incomplete: %+v", cliCfg)
	}

	if _, err := ServerTLSConfig(server, []byte("not a cert")); err == nil {
		t.Error("bad CA PEM should fail")
	}
	if _, err := ClientTLSConfig(nil, ca.CertPEM); err == nil {
		t.Error("nil bundle should fail")
	}
}

func TestMTLSHandshake(t *testing.T) {
	ca := mustCA(t, "Campus IT")
	server, _ := GenerateServerCert(ca, []string{"127.0.0.1"}, month)

	cases := []struct {
		name     string
		clientCA *CertBundle
		wantOK   bool
	}{
		{"trusted client", ca, true},
		{"untrusted client", mustCA(t, "Rogue"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client, _ := GenerateClientCert(tc.clientCA, "wizard", month)
			srvCfg, _ := ServerTLSConfig(server, ca.CertPEM)
			lis, err := tls.Listen("tcp", "127.0.0.1:0", srvCfg)
			if err != nil {
				t.Fatalf("tls.Listen: %v", err)
			}
			defer lis.Close()

			done := make(chan error, 1)
			go func() {
				conn, err := lis.Accept()
				if err != nil {
					done <- err
					return
				}
				defer conn.Close()
				tlsConn := conn.(*tls.Conn)
				if err := tlsConn.Handshake(); err != nil {
					done <- err
					return
				}
				if cn := tlsConn.ConnectionState().PeerCertificates[0].Subject.CommonName; cn != "wizard" {
					done <- fmt.Errorf("unexpected client CN %s", cn)
					return
				}
				conn.Write([]byte("OK"))
				done <- nil
			}()

			cliCfg, _ := ClientTLSConfig(client, ca.CertPEM)
			cliCfg.ServerName = "127.0.0.1"
			conn, dialErr := tls.Dial("tcp", lis.Addr().String(), cliCfg)
			if dialErr == nil {
				buf := make([]byte, 2)
				conn.Read(buf)
				conn.Close()
			}

			serverErr := <-done
			if tc.wantOK && serverErr != nil {
				t.Errorf("handshake failed: %v", serverErr)
			}
			if !tc.wantOK && serverErr == nil {
				t.Error("server accepted an untrusted client")
			}
		})
	}
}

func TestInitDirAndIssueClient(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "pki")

	created, err := InitDir(dir, []string{"relay.local"}, year)
	if err != nil || !created {
		t.Fatalf("InitDir = %v, %v", created, err)
	}
	caBefore, _ := LoadCACert(dir)

	created, err = InitDir(dir, nil, year)
	if err != nil || created {
		t.Fatalf("second InitDir should be a no-op, got %v, %v", created, err)
	}
	caAfter, _ := LoadCACert(dir)
	if string(caBefore) != string(caAfter) {
		t.Error("existing CA was replaced")
	}

	info, err := os.Stat(filepath.Join(dir, "ca.key"))
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("CA key mode = %v, want 0600", info.Mode().Perm())
	}

	relay, err := LoadBundle(dir, RelayName)
	if err != nil {
		t.Fatalf("LoadBundle relay: %v", err)
	}
	ca, _ := LoadBundle(dir, CAName)
	if err := verifyAgainst(ca, relay, x509.ExtKeyUsageServerAuth); err != nil {
		t.Errorf("relay cert not signed by stored CA: %v", err)
	}

	client, err := IssueClient(dir, "noc-desk", month)
	if err != nil {
		t.Fatalf("IssueClient: %v", err)
	}
	stored, err := LoadBundle(filepath.Join(dir, "clients"), "noc-desk")
	if err != nil || string(stored.CertPEM) != string(client.CertPEM) {
		t.Errorf("client bundle not stored: %v", err)
	}

	out := filepath.Join(t.TempDir(), "wizard")
	caPEM, _ := LoadCACert(dir)
	if err := WriteClientDir(out, client, caPEM); err != nil {
		t.Fatal(err)
	}
	loaded, loadedCA, err := LoadClientDir(out)
	if err != nil || string(loaded.KeyPEM) != string(client.KeyPEM) || string(loadedCA) != string(caPEM) {
		t.Errorf("LoadClientDir: %v", err)
	}
	if _, err := ClientTLSConfig(loaded, loadedCA); err != nil {
		t.Errorf("client dir does not yield a TLS config: %v", err)
	}

	if _, err := IssueClient(t.TempDir(), "x", month); err == nil {
		t.Error("issuing without a CA should fail")
	}
}
