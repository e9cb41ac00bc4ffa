package token

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

const keyFileName = "signing_key.pem"

// KeyPair holds the RSA key pair used to sign and verify access keys.
type KeyPair struct {
	PrivateKey *rsa.PrivateKey
	PublicKey  *rsa.PublicKey
}

// GenerateRSAKeyPair generates a new RSA key pair for RS256 signing.
func GenerateRSAKeyPair(bits int) (*KeyPair, error) {
	if bits < 2048 {
		bits = 2048
	}

	privateKey, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, errors.Wrap(err, "[token.GenerateRSAKeyPair] rsa.GenerateKey")
	}

	return &KeyPair{
		PrivateKey: privateKey,
		PublicKey:  &privateKey.PublicKey,
	}, nil
}

// LoadOrCreateKeyPair loads the signing key from dataFolder, generating and
// persisting a fresh one on first start. Issued credentials survive restarts
// as long as the data folder does.
func LoadOrCreateKeyPair(dataFolder string) (*KeyPair, error) {
	keyPath := filepath.Join(dataFolder, keyFileName)

	pemData, err := os.ReadFile(keyPath)
	if err == nil {
		return LoadKeyPairFromPEM(string(pemData))
	}
	if !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "[token.LoadOrCreateKeyPair] os.ReadFile")
	}

	keyPair, err := GenerateRSAKeyPair(2048)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(dataFolder, 0o700); err != nil {
		return nil, errors.Wrap(err, "[token.LoadOrCreateKeyPair] os.MkdirAll")
	}
	if err := os.WriteFile(keyPath, []byte(keyPair.ExportPrivateKeyPEM()), 0o600); err != nil {
		return nil, errors.Wrap(err, "[token.LoadOrCreateKeyPair] os.WriteFile")
	}
	return keyPair, nil
}

// ExportPrivateKeyPEM exports the private key as PEM.
func (kp *KeyPair) ExportPrivateKeyPEM() string {
	return string(pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(kp.PrivateKey),
	}))
}

// LoadKeyPairFromPEM loads an RSA key pair from a PKCS#1 private key PEM.
func LoadKeyPairFromPEM(pemData string) (*KeyPair, error) {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, errors.New("[token.LoadKeyPairFromPEM] failed to decode PEM block")
	}

	privateKey, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, errors.Wrap(err, "[token.LoadKeyPairFromPEM] x509.ParsePKCS1PrivateKey")
	}

	return &KeyPair{
		PrivateKey: privateKey,
		PublicKey:  &privateKey.PublicKey,
	}, nil
}
