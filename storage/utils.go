package storage

import (
	"fmt"
	"strings"
)

const base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"
const base32Alphabet = "abcdefghijklmnopqrstuvwxyz234567"

// IsValidCID reports whether s is syntactically a CID: either a CIDv0
// (base58btc, "Qm" prefix, 46 characters) or a base32 CIDv1 ("b" prefix).
// It checks shape only; multihash contents are not verified.
func IsValidCID(s string) bool {
	if strings.HasPrefix(s, "Qm") && len(s) == 46 {
		return allIn(s, base58Alphabet)
	}
	if strings.HasPrefix(s, "b") && len(s) >= 59 {
		return allIn(s, base32Alphabet)
	}
	return false
}

func allIn(s, alphabet string) bool {
	for _, r := range s {
		if !strings.ContainsRune(alphabet, r) {
			return false
		}
	}
	return true
}

// SplitResourcePath splits a "cid/filename" resource path as accepted by the
// retrieve tool. The filename segment is optional and may itself contain
// slashes (nested UnixFS paths).
func SplitResourcePath(p string) (cid, filename string, err error) {
	p = strings.TrimPrefix(strings.TrimSpace(p), "/")
	if p == "" {
		return "", "", fmt.Errorf("resource path is empty")
	}
	cid, filename, _ = strings.Cut(p, "/")
	if !IsValidCID(cid) {
		return "", "", fmt.Errorf("invalid CID: %s", cid)
	}
	return cid, filename, nil
}
