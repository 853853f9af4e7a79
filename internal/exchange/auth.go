package exchange

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"strconv"
	"time"
)

// Two signing schemes coexist in the reference implementations this system
// was distilled from: PSS-padded RSA-SHA256 and Ed25519. This build commits
// to RSA-PSS-SHA256; Ed25519 keys are not supported.

// LoadPrivateKeyFromBytes parses PEM-encoded RSA private key material,
// accepting either PKCS8 (preferred) or PKCS1 (legacy) encodings.
func LoadPrivateKeyFromBytes(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, &ConfigError{Msg: "no PEM block found in signing key"}
	}

	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, &ConfigError{Msg: "signing key is not RSA"}
		}
		return rsaKey, nil
	}

	rsaKey, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, &ConfigError{Msg: "parsing signing key (tried PKCS8 and PKCS1): " + err.Error()}
	}
	return rsaKey, nil
}

// Sign computes the PSS-padded RSA-SHA256 signature over the concatenation
// timestamp||method||path. Signatures must be freshly generated per request;
// the timestamp argument is the caller's responsibility to vary.
func Sign(privateKey *rsa.PrivateKey, timestampMS, method, path string) (string, error) {
	message := timestampMS + method + path
	hash := sha256.Sum256([]byte(message))

	sig, err := rsa.SignPSS(rand.Reader, privateKey, crypto.SHA256, hash[:], &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
	})
	if err != nil {
		return "", &AuthError{Msg: "signing: " + err.Error()}
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// AuthHeaders builds the three signing headers for one request.
func AuthHeaders(accessKeyID string, privateKey *rsa.PrivateKey, method, signPath string) (map[string]string, error) {
	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)

	sig, err := Sign(privateKey, ts, method, signPath)
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"X-ACCESS-KEY":       accessKeyID,
		"X-ACCESS-TIMESTAMP": ts,
		"X-ACCESS-SIGNATURE": sig,
	}, nil
}
