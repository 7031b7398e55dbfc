package auth

import (
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	// DerivedKeyLength is the length of derived keys in bytes.
	DerivedKeyLength = 32

	PurposeCSRF      = "punktual-csrf-v1"
	PurposeClickSalt = "punktual-click-salt-v1"
	PurposeDeletion  = "punktual-deletion-v1"
)

var ErrInvalidMasterSecret = errors.New("master secret cannot be empty")

// DeriveKey derives a 32-byte key from the master secret with HKDF-SHA256
// (RFC 5869). Different purpose strings yield independent keys.
func DeriveKey(masterSecret []byte, purpose string) ([]byte, error) {
	if len(masterSecret) == 0 {
		return nil, ErrInvalidMasterSecret
	}

	// salt=nil defaults to zeros; info=purpose gives domain separation.
	r := hkdf.New(sha256.New, masterSecret, nil, []byte(purpose))

	derivedKey := make([]byte, DerivedKeyLength)
	if _, err := io.ReadFull(r, derivedKey); err != nil {
		return nil, err
	}
	return derivedKey, nil
}

// Keys are the per-purpose secrets derived from SECRET_KEY.
type Keys struct {
	CSRF      []byte
	ClickSalt []byte
	Deletion  []byte
}

// DeriveKeys derives every purpose key the server needs.
func DeriveKeys(masterSecret []byte) (Keys, error) {
	var keys Keys
	for _, k := range []struct {
		purpose string
		dst     *[]byte
	}{
		{PurposeCSRF, &keys.CSRF},
		{PurposeClickSalt, &keys.ClickSalt},
		{PurposeDeletion, &keys.Deletion},
	} {
		key, err := DeriveKey(masterSecret, k.purpose)
		if err != nil {
			return Keys{}, err
		}
		*k.dst = key
	}
	return keys, nil
}
