package session

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// The credential blob is a versioned JSON document encrypted with
// Argon2id + XChaCha20-Poly1305, using the device-bound identifier as key
// material. Blob layout:
//
//	salt(32) | memory(4) | iterations(4) | parallelism(1) | nonce(24) | ciphertext
const (
	credentialVersion = 2

	saltSize   = 32
	headerSize = saltSize + 4 + 4 + 1

	// Legacy installs stored the raw 6-digit PIN unencrypted.
	legacyPinLength = 6
)

type credential struct {
	Version  int    `json:"version"`
	Password string `json:"password"`
}

type cipherParams struct {
	Memory      uint32 // KiB
	Iterations  uint32
	Parallelism uint8
}

func defaultCipherParams() cipherParams {
	return cipherParams{
		Memory:      64 * 1024,
		Iterations:  3,
		Parallelism: 4,
	}
}

func deriveKey(secret, salt []byte, p cipherParams) []byte {
	return argon2.IDKey(secret, salt, p.Iterations, p.Memory, p.Parallelism, chacha20poly1305.KeySize)
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// sealCredential encrypts the current-version credential document under uid.
func sealCredential(password, uid string) ([]byte, error) {
	return sealDocument(credential{Version: credentialVersion, Password: password}, uid)
}

func sealDocument(cred credential, uid string) ([]byte, error) {
	plain, err := json.Marshal(cred)
	if err != nil {
		return nil, fmt.Errorf("failed to encode credential: %w", err)
	}

	params := defaultCipherParams()
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	key := deriveKey([]byte(uid), salt, params)
	defer zero(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := aead.Seal(nil, nonce, plain, nil)
	zero(plain)

	out := make([]byte, 0, headerSize+len(nonce)+len(ciphertext))
	out = append(out, salt...)
	out = binary.LittleEndian.AppendUint32(out, params.Memory)
	out = binary.LittleEndian.AppendUint32(out, params.Iterations)
	out = append(out, params.Parallelism)
	out = append(out, nonce...)
	out = append(out, ciphertext...)
	return out, nil
}

// openCredential decrypts and decodes a blob produced by sealCredential.
func openCredential(blob []byte, uid string) (credential, error) {
	nonceSize := chacha20poly1305.NonceSizeX
	if len(blob) < headerSize+nonceSize+chacha20poly1305.Overhead {
		return credential{}, fmt.Errorf("credential blob too short: %d bytes", len(blob))
	}

	salt := blob[:saltSize]
	params := cipherParams{
		Memory:      binary.LittleEndian.Uint32(blob[saltSize:]),
		Iterations:  binary.LittleEndian.Uint32(blob[saltSize+4:]),
		Parallelism: blob[saltSize+8],
	}
	nonce := blob[headerSize : headerSize+nonceSize]
	ciphertext := blob[headerSize+nonceSize:]

	key := deriveKey([]byte(uid), salt, params)
	defer zero(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return credential{}, fmt.Errorf("failed to create cipher: %w", err)
	}

	plain, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return credential{}, fmt.Errorf("failed to decrypt credential: %w", err)
	}
	defer zero(plain)

	var cred credential
	if err := json.Unmarshal(plain, &cred); err != nil {
		return credential{}, fmt.Errorf("failed to decode credential: %w", err)
	}
	return cred, nil
}

// legacyPin reports whether a blob is a pre-versioning raw PIN.
func legacyPin(blob []byte) bool {
	if len(blob) != legacyPinLength {
		return false
	}
	for _, b := range blob {
		if b < '0' || b > '9' {
			return false
		}
	}
	return true
}
