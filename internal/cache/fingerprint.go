package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/url"
	"sort"
)

// Fingerprint derives the cache key for a request to endpoint with params.
// Keys are sorted and empty values skipped, so parameter order and absent
// fields never change the result.
func Fingerprint(endpoint string, params url.Values) string {
	keys := make([]string, 0, len(params))
	for k, vs := range params {
		if k == "" || !hasValue(vs) {
			continue
		}
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return endpoint + ":"
	}
	sort.Strings(keys)
	pairs := make([][2]string, 0, len(keys))
	for _, k := range keys {
		for _, v := range params[k] {
			if v == "" {
				continue
			}
			pairs = append(pairs, [2]string{k, v})
		}
	}
	raw, _ := json.Marshal(pairs)
	sum := sha256.Sum256(raw)
	return endpoint + ":" + hex.EncodeToString(sum[:])
}

func hasValue(vs []string) bool {
	for _, v := range vs {
		if v != "" {
			return true
		}
	}
	return false
}
