// Package payfast implements the PayFast signing protocol shared by the
// Instant Transaction Notification (ITN) webhook and the merchant API:
// parameter-string canonicalization, the MD5 digest the gateway signs with,
// and signature verification.
//
// The canonicalization rules are a byte-exact interoperability contract.
// Any deviation -- key ordering, which characters are percent-encoded, how
// empty values are treated -- silently invalidates every signature, with no
// diagnostic beyond "verification failed". Keep these rules in this package
// and nowhere else so they stay auditable and independently testable.
package payfast

import (
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"sort"
	"strings"
)

const upperhex = "0123456789ABCDEF"

// Digest computes the gateway's message digest over arbitrary bytes:
// MD5, rendered as lowercase hex. MD5 is not a choice this service gets to
// make; it is what the gateway signs notifications with.
func Digest(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

// ParamString builds the canonical parameter string that the gateway signed.
//
// Rules, matching the gateway's signer exactly:
//   - the "signature" key is removed;
//   - remaining keys are sorted by ascending byte order;
//   - keys whose values are empty or whitespace-only are dropped entirely,
//     not emitted as "key=";
//   - each pair is emitted as key=encode(value), joined with "&";
//   - if passphrase is non-empty, "&passphrase=encode(passphrase)" is
//     appended after all other pairs.
//
// The output is independent of the map's iteration order.
func ParamString(params map[string]string, passphrase string) string {
	keys := make([]string, 0, len(params))
	for k, v := range params {
		if k == FieldSignature {
			continue
		}
		if strings.TrimSpace(v) == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys)+1)
	for _, k := range keys {
		pairs = append(pairs, k+"="+encode(params[k]))
	}
	if passphrase != "" {
		pairs = append(pairs, "passphrase="+encode(passphrase))
	}
	return strings.Join(pairs, "&")
}

// Sign computes the signature the gateway would produce for the given
// parameters and shared passphrase.
func Sign(params map[string]string, passphrase string) string {
	return Digest([]byte(ParamString(params, passphrase)))
}

// VerifySignature reports whether the "signature" field in params matches the
// signature computed over the remaining parameters with the shared passphrase.
//
// It never returns an error: malformed or incomplete input simply fails the
// comparison. The inbound signature is compared case-insensitively, in
// constant time.
func VerifySignature(params map[string]string, passphrase string) bool {
	provided := strings.ToLower(params[FieldSignature])
	expected := Sign(params, passphrase)
	if len(provided) != len(expected) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) == 1
}

// encode percent-encodes a value using the gateway's form-encoding dialect:
// space becomes "+", hex digits are uppercase, and alphanumerics plus
// - _ . ! ~ * ' ( ) pass through unescaped. This is NOT the same set as
// net/url's query escaping, which is why it is hand-rolled here.
func encode(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == ' ':
			b.WriteByte('+')
		case isUnreserved(c):
			b.WriteByte(c)
		default:
			b.WriteByte('%')
			b.WriteByte(upperhex[c>>4])
			b.WriteByte(upperhex[c&0x0F])
		}
	}
	return b.String()
}

// isUnreserved reports whether the byte passes through the signing encoder
// unescaped.
func isUnreserved(c byte) bool {
	if 'A' <= c && c <= 'Z' || 'a' <= c && c <= 'z' || '0' <= c && c <= '9' {
		return true
	}
	switch c {
	case '-', '_', '.', '!', '~', '*', '\'', '(', ')':
		return true
	}
	return false
}
