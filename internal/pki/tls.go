package pki

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"

	"google.golang.org/grpc/credentials"
)

// ServerTLSConfig requires relay clients to present a certificate signed by the CA.
func ServerTLSConfig(serverBundle *CertBundle, caCertPEM []byte) (*tls.Config, error) {
	cert, pool, err := keyPairAndPool(serverBundle, caCertPEM, "server")
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		ClientAuth:   tls.RequireAndVerifyClientCert,
		ClientCAs:    pool,
		MinVersion:   tls.VersionTLS13,
	}, nil
}

// ClientTLSConfig presents the client certificate and verifies the relay against the CA.
func ClientTLSConfig(clientBundle *CertBundle, caCertPEM []byte) (*tls.Config, error) {
	cert, pool, err := keyPairAndPool(clientBundle, caCertPEM, "client")
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		RootCAs:      pool,
		MinVersion:   tls.VersionTLS13,
	}, nil
}

func keyPairAndPool(bundle *CertBundle, caCertPEM []byte, what string) (tls.Certificate, *x509.CertPool, error) {
	if bundle == nil {
		return tls.Certificate{}, nil, fmt.Errorf("no %s certificate", what)
	}
	cert, err := tls.X509KeyPair(bundle.CertPEM, bundle.KeyPEM)
	if err != nil {
		return tls.Certificate{}, nil, fmt.Errorf("loading %s certificate: %w", what, err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caCertPEM) {
		return tls.Certificate{}, nil, fmt.Errorf("failed to parse CA certificate")
	}
	return cert, pool, nil
}

// ServerTransportCredentials returns gRPC credentials for the relay server.
func ServerTransportCredentials(serverBundle *CertBundle, caCertPEM []byte) (credentials.TransportCredentials, error) {
	tlsCfg, err := ServerTLSConfig(serverBundle, caCertPEM)
	if err != nil {
		return nil, err
	}
	return credentials.NewTLS(tlsCfg), nil
}

// ClientTransportCredentials returns gRPC credentials for dialing the relay.
func ClientTransportCredentials(clientBundle *CertBundle, caCertPEM []byte) (credentials.TransportCredentials, error) {
	tlsCfg, err := ClientTLSConfig(clientBundle, caCertPEM)
	if err != nil {
		return nil, err
	}
	return credentials.NewTLS(tlsCfg), nil
}
