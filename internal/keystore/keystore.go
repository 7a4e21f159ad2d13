// Package keystore holds the client's signing key. The public half is the
// client's identity in every zone; the private half signs the auth tokens
// presented to the zone service.
package keystore

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/boardledger/boardgame-go/internal/zone"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

const pemType = "PRIVATE KEY"

var ErrNotEd25519 = errors.New("key is not an ed25519 key")

// Keystore is an ed25519 key pair.
type Keystore struct {
	private ed25519.PrivateKey
	public  zone.PublicKey
}

// Open loads the key stored at path, generating and saving a new one when
// the file does not exist.
func Open(path string) (*Keystore, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		ks, err := Generate()
		if err != nil {
			return nil, err
		}
		if err := ks.save(path); err != nil {
			return nil, err
		}
		return ks, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read key: %w", err)
	}

	block, _ := pem.Decode(data)
	if block == nil || block.Type != pemType {
		return nil, fmt.Errorf("failed to decode key %s: no %s block", path, pemType)
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse key: %w", err)
	}
	private, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, ErrNotEd25519
	}
	return fromPrivate(private)
}

// Generate creates an in-memory key pair.
func Generate() (*Keystore, error) {
	_, private, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return fromPrivate(private)
}

func fromPrivate(private ed25519.PrivateKey) (*Keystore, error) {
	public, err := EncodePublicKey(private.Public().(ed25519.PublicKey))
	if err != nil {
		return nil, err
	}
	return &Keystore{private: private, public: public}, nil
}

func (k *Keystore) save(path string) error {
	der, err := x509.MarshalPKCS8PrivateKey(k.private)
	if err != nil {
		return fmt.Errorf("failed to encode key: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create key directory: %w", err)
	}
	data := pem.EncodeToMemory(&pem.Block{Type: pemType, Bytes: der})
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write key: %w", err)
	}
	return nil
}

// PublicKey returns the base64 PKIX encoding of the public key.
func (k *Keystore) PublicKey() zone.PublicKey {
	return k.public
}

// Fingerprint is a short, stable hex digest of the public key for display.
func (k *Keystore) Fingerprint() string {
	return Fingerprint(k.public)
}

// AuthToken returns a token asserting ownership of the key, valid for ttl.
func (k *Keystore) AuthToken(ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   string(k.public),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now.Add(-time.Minute)),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		ID:        uuid.NewString(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(k.private)
	if err != nil {
		return "", fmt.Errorf("failed to sign auth token: %w", err)
	}
	return token, nil
}

// VerifyAuthToken checks that token was signed by the key named in its
// subject and returns that key.
func VerifyAuthToken(token string) (zone.PublicKey, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		subject, err := t.Claims.GetSubject()
		if err != nil {
			return nil, err
		}
		return DecodePublicKey(zone.PublicKey(subject))
	}, jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return "", fmt.Errorf("invalid auth token: %w", err)
	}
	return zone.PublicKey(claims.Subject), nil
}

// EncodePublicKey renders key as base64 PKIX DER.
func EncodePublicKey(key ed25519.PublicKey) (zone.PublicKey, error) {
	der, err := x509.MarshalPKIXPublicKey(key)
	if err != nil {
		return "", fmt.Errorf("failed to encode public key: %w", err)
	}
	return zone.PublicKey(base64.StdEncoding.EncodeToString(der)), nil
}

func DecodePublicKey(key zone.PublicKey) (ed25519.PublicKey, error) {
	der, err := base64.StdEncoding.DecodeString(string(key))
	if err != nil {
		return nil, fmt.Errorf("failed to decode public key: %w", err)
	}
	parsed, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	public, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, ErrNotEd25519
	}
	return public, nil
}

// Fingerprint digests key with BLAKE2b and keeps the first 8 bytes.
func Fingerprint(key zone.PublicKey) string {
	sum := blake2b.Sum256([]byte(key))
	return hex.EncodeToString(sum[:8])
}
