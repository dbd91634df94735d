package fetch

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// defaultVaryHeaders is the header set the Cache Key Generator folds into
// the key when cacheKeyInput.varyHeaders is empty (spec.md §4.2).
var defaultVaryHeaders = []string{"Accept", "Accept-Encoding", "Accept-Language"}

const cacheKeyPrefix = "fetch:"

// cacheKeyInput collects everything the Cache Key Generator needs: a request
// is reduced to this before hashing so the generator itself stays pure.
type cacheKeyInput struct {
	method      Method
	uri         string
	reqHeaders  Headers
	varyHeaders []string // replaces defaultVaryHeaders when non-empty; Client never sets it
	body        []byte
	cacheBody   bool
}

// cacheKey implements spec.md §4.2: a custom key (CacheOptions.Key) bypasses
// generation entirely; otherwise the key is built from the normalized URI,
// the vary headers' values, and (when enabled for non-GET/HEAD methods) a
// hash of the request body.
func cacheKey(in cacheKeyInput, override string) (string, error) {
	if override != "" {
		return cacheKeyPrefix + override, nil
	}

	normalized, err := normalizeURI(in.uri)
	if err != nil {
		return "", err
	}

	varyNames := append([]string(nil), emptyOr(in.varyHeaders, defaultVaryHeaders)...)
	sort.Strings(varyNames)

	var sb strings.Builder
	sb.WriteString(string(in.method))
	sb.WriteByte('\n')
	sb.WriteString(normalized)
	sb.WriteByte('\n')
	for _, name := range varyNames {
		sb.WriteString(strings.ToLower(name))
		sb.WriteByte('=')
		sb.WriteString(in.reqHeaders.JoinedCommaValues(name))
		sb.WriteByte('\n')
	}

	if in.cacheBody && in.method != MethodGet && in.method != MethodHead && len(in.body) > 0 {
		bodySum := sha256.Sum256(in.body)
		sb.WriteString("body=")
		sb.WriteString(hex.EncodeToString(bodySum[:]))
		sb.WriteByte('\n')
	}

	sum := sha256.Sum256([]byte(sb.String()))
	return cacheKeyPrefix + hex.EncodeToString(sum[:]), nil
}
