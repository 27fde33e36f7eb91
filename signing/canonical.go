// Package signing implements HMAC request signing: canonical request
// construction, a distributed anti-replay guard, and the signature
// verification state machine.
package signing

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/url"
	"sort"
	"strings"
)

// volatileBodyKeys are stripped from every object level of a JSON body
// before hashing. They change between legitimate retries of the same
// logical request and must not affect the body hash. The set is shared
// with the browser client's stableStringify and cannot change without
// breaking existing integrations.
var volatileBodyKeys = map[string]struct{}{
	"timestamp":   {},
	"ts":          {},
	"_":           {},
	"_t":          {},
	"nonce":       {},
	"create_time": {},
	"created_at":  {},
	"update_time": {},
	"updated_at":  {},
}

// Request carries the signable attributes of an inbound HTTP request.
// It is built fresh per request and discarded after verification.
type Request struct {
	Method         string
	Path           string
	RawQuery       string
	Body           []byte
	KeyID          string
	Timestamp      string
	Nonce          string
	BodyHash       string // client-supplied, optional
	Signature      string
	IdempotencyKey string // optional
}

// NormalizePath strips the trailing slash and anything from '?' onward.
func NormalizePath(p string) string {
	p = strings.TrimRight(p, "/")
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	return p
}

// CanonicalQuery rewrites a raw query string into its canonical form:
// pairs are percent-decoded, sorted by key with ties broken by value,
// then percent-re-encoded and joined with '&'.
func CanonicalQuery(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}
	type kv struct{ k, v string }
	var pairs []kv
	for _, param := range strings.Split(rawQuery, "&") {
		if param == "" {
			continue
		}
		key, value, _ := strings.Cut(param, "=")
		pairs = append(pairs, kv{percentDecode(key), percentDecode(value)})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].k != pairs[j].k {
			return pairs[i].k < pairs[j].k
		}
		return pairs[i].v < pairs[j].v
	})
	parts := make([]string, len(pairs))
	for i, p := range pairs {
		parts[i] = percentEncode(p.k) + "=" + percentEncode(p.v)
	}
	return strings.Join(parts, "&")
}

// percentDecode undoes percent-encoding without treating '+' as space.
// Malformed escapes are left as-is rather than failing the request.
func percentDecode(s string) string {
	decoded, err := url.PathUnescape(s)
	if err != nil {
		return s
	}
	return decoded
}

// percentEncode applies RFC 3986 percent-encoding, leaving '/' bare to
// stay byte-compatible with the client's encodeURIComponent-style output.
func percentEncode(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) || c == '/' {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperhex[c>>4])
		b.WriteByte(upperhex[c&0xf])
	}
	return b.String()
}

const upperhex = "0123456789ABCDEF"

func isUnreserved(c byte) bool {
	return 'A' <= c && c <= 'Z' ||
		'a' <= c && c <= 'z' ||
		'0' <= c && c <= '9' ||
		c == '-' || c == '_' || c == '.' || c == '~'
}

// CanonicalBodyHash returns the lowercase hex SHA-256 of the canonical
// serialization of body. JSON bodies are reduced to a stable form first:
// volatile keys stripped recursively, object keys sorted, compact output
// with non-ASCII preserved. Anything that does not parse as a single JSON
// value is hashed raw.
func CanonicalBodyHash(body []byte) string {
	canon, ok := canonicalJSON(body)
	if !ok {
		canon = body
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:])
}

// canonicalJSON parses body as JSON and re-serializes it canonically.
// Number literals pass through json.Number so "1.0" and "100" keep their
// exact client-side spelling.
func canonicalJSON(body []byte) ([]byte, bool) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, false
	}
	if dec.More() {
		return nil, false
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(stripVolatile(v)); err != nil {
		return nil, false
	}
	// Encoder appends a newline; the canonical form has none.
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), true
}

// stripVolatile removes volatile keys from all nested objects. The
// encoding/json marshaller sorts map keys, so sorting falls out of the
// round-trip through map[string]any.
func stripVolatile(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			if _, volatile := volatileBodyKeys[k]; volatile {
				continue
			}
			out[k] = stripVolatile(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = stripVolatile(item)
		}
		return out
	default:
		return val
	}
}

// CanonicalString joins the signable attributes in their fixed order.
// The field order and the newline join are load-bearing: changing either
// breaks every deployed client.
func CanonicalString(method, path, query, bodyHash, timestamp, nonce, idempotencyKey, keyID string) string {
	return strings.Join([]string{
		strings.ToUpper(method),
		NormalizePath(path),
		query,
		bodyHash,
		timestamp,
		nonce,
		idempotencyKey,
		keyID,
	}, "\n")
}
