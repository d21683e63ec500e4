package webhook

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"hash"
	"strings"

	"github.com/zeebo/blake3"
)

// SignFunc computes the signature a sender attaches to a delivery body.
// The result carries an algorithm tag, e.g. "sha1=<hex digest>".
type SignFunc func(secret, body []byte) string

// blake3KeyContext is the BLAKE3 key-derivation context for blake3 signatures.
const blake3KeyContext = "hookbus 2024 webhook signature key"

// SignSHA1 is the default signer: "sha1=" followed by the hex HMAC-SHA1 digest.
// This is the X-Hub-Signature format.
func SignSHA1(secret, body []byte) string {
	return "sha1=" + hexMAC(sha1.New, secret, body)
}

// SignSHA256 signs in the X-Hub-Signature-256 format.
func SignSHA256(secret, body []byte) string {
	return "sha256=" + hexMAC(sha256.New, secret, body)
}

// SignBlake3 signs with keyed BLAKE3. The 32-byte key is derived from the
// secret so secrets of any length are accepted.
func SignBlake3(secret, body []byte) string {
	key := make([]byte, 32)
	blake3.DeriveKey(blake3KeyContext, secret, key)

	h, err := blake3.NewKeyed(key)
	if err != nil {
		// Unreachable: the derived key always has the required length.
		panic(fmt.Sprintf("blake3 keyed hasher: %v", err))
	}
	h.Write(body)
	return "blake3=" + hex.EncodeToString(h.Sum(nil))
}

// SignerFor returns the signer registered under an algorithm name.
func SignerFor(algorithm string) (SignFunc, error) {
	switch strings.ToLower(strings.TrimSpace(algorithm)) {
	case "", "sha1":
		return SignSHA1, nil
	case "sha256":
		return SignSHA256, nil
	case "blake3":
		return SignBlake3, nil
	default:
		return nil, fmt.Errorf("unknown signature algorithm %q (want sha1, sha256 or blake3)", algorithm)
	}
}

// ComputeSignature signs body with secret. A nil sign uses SignSHA1.
func ComputeSignature(secret, body []byte, sign SignFunc) string {
	if sign == nil {
		sign = SignSHA1
	}
	return sign(secret, body)
}

// Verify reports whether claimed is exactly the signature of body.
//
// The comparison is constant time over the signature contents (crypto/subtle).
// A length mismatch returns early; signature length is public.
func Verify(secret, body []byte, claimed string, sign SignFunc) bool {
	expected := ComputeSignature(secret, body, sign)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(claimed)) == 1
}

func hexMAC(h func() hash.Hash, secret, body []byte) string {
	mac := hmac.New(h, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
