package signing

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePath(t *testing.T) {
	assert.Equal(t, "/api/v1/transactions", NormalizePath("/api/v1/transactions/"))
	assert.Equal(t, "/api/v1/transactions", NormalizePath("/api/v1/transactions"))
	assert.Equal(t, "/api/v1/transactions", NormalizePath("/api/v1/transactions/?page=2"))
	assert.Equal(t, "", NormalizePath("/"))
}

func TestCanonicalQuery(t *testing.T) {
	t.Run("sorts by key then value", func(t *testing.T) {
		got := CanonicalQuery("b=2&a=1&a=0")
		assert.Equal(t, "a=0&a=1&b=2", got)
	})

	t.Run("decodes then re-encodes", func(t *testing.T) {
		// %41 is 'A'; it must come out bare so both client spellings
		// canonicalize identically.
		assert.Equal(t, CanonicalQuery("k=A"), CanonicalQuery("k=%41"))
	})

	t.Run("plus is a literal plus", func(t *testing.T) {
		got := CanonicalQuery("q=a+b")
		assert.Equal(t, "q=a%2Bb", got)
	})

	t.Run("space and slash", func(t *testing.T) {
		assert.Equal(t, "path=/tmp/x", CanonicalQuery("path=%2Ftmp%2Fx"))
		assert.Equal(t, "q=a%20b", CanonicalQuery("q=a%20b"))
	})

	t.Run("empty and flag params", func(t *testing.T) {
		assert.Equal(t, "", CanonicalQuery(""))
		assert.Equal(t, "flag=", CanonicalQuery("flag"))
	})

	t.Run("malformed escape kept verbatim", func(t *testing.T) {
		assert.Equal(t, "k=a%25zz", CanonicalQuery("k=a%zz"))
	})
}

func TestCanonicalBodyHash(t *testing.T) {
	t.Run("key order does not matter", func(t *testing.T) {
		a := CanonicalBodyHash([]byte(`{"amount":100,"currency":"EUR"}`))
		b := CanonicalBodyHash([]byte(`{"currency":"EUR","amount":100}`))
		assert.Equal(t, a, b)
	})

	t.Run("volatile keys are stripped recursively", func(t *testing.T) {
		a := CanonicalBodyHash([]byte(`{"amount":100,"timestamp":170000,"meta":{"nonce":"x","tag":"y"}}`))
		b := CanonicalBodyHash([]byte(`{"amount":100,"meta":{"tag":"y"}}`))
		assert.Equal(t, a, b)
	})

	t.Run("whitespace does not matter", func(t *testing.T) {
		a := CanonicalBodyHash([]byte(`{"a": 1, "b": [1, 2]}`))
		b := CanonicalBodyHash([]byte(`{"a":1,"b":[1,2]}`))
		assert.Equal(t, a, b)
	})

	t.Run("number spelling is preserved", func(t *testing.T) {
		a := CanonicalBodyHash([]byte(`{"a":1.0}`))
		b := CanonicalBodyHash([]byte(`{"a":1}`))
		assert.NotEqual(t, a, b)
	})

	t.Run("non-ascii is not escaped", func(t *testing.T) {
		literal := CanonicalBodyHash([]byte(`{"name":"café"}`))
		escaped := CanonicalBodyHash([]byte(`{"name":"café"}`))
		assert.Equal(t, literal, escaped)

		sum := sha256.Sum256([]byte(`{"name":"café"}`))
		assert.Equal(t, hex.EncodeToString(sum[:]), literal)
	})

	t.Run("html characters are not escaped", func(t *testing.T) {
		sum := sha256.Sum256([]byte(`{"q":"<&>"}`))
		assert.Equal(t, hex.EncodeToString(sum[:]), CanonicalBodyHash([]byte(`{"q":"<&>"}`)))
	})

	t.Run("volatile keys inside arrays", func(t *testing.T) {
		a := CanonicalBodyHash([]byte(`{"items":[{"id":1,"updated_at":"x"}]}`))
		b := CanonicalBodyHash([]byte(`{"items":[{"id":1}]}`))
		assert.Equal(t, a, b)
	})

	t.Run("non-json hashed raw", func(t *testing.T) {
		body := []byte("not json at all")
		sum := sha256.Sum256(body)
		assert.Equal(t, hex.EncodeToString(sum[:]), CanonicalBodyHash(body))
	})

	t.Run("trailing garbage means raw", func(t *testing.T) {
		body := []byte(`{"a":1}{"b":2}`)
		sum := sha256.Sum256(body)
		assert.Equal(t, hex.EncodeToString(sum[:]), CanonicalBodyHash(body))
	})

	t.Run("empty body", func(t *testing.T) {
		sum := sha256.Sum256(nil)
		assert.Equal(t, hex.EncodeToString(sum[:]), CanonicalBodyHash(nil))
	})
}

func TestCanonicalString(t *testing.T) {
	got := CanonicalString("post", "/api/v1/transactions/", "a=1", "hash", "1700000000", "n1", "idem1", "web")
	require.Equal(t, "POST\n/api/v1/transactions\na=1\nhash\n1700000000\nn1\nidem1\nweb", got)
}

func TestCanonicalStringEmptyFieldsKeepPosition(t *testing.T) {
	got := CanonicalString("GET", "/x", "", "", "1", "n", "", "k")
	require.Equal(t, "GET\n/x\n\n\n1\nn\n\nk", got)
}
