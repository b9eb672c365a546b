package cache

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
)

// Fingerprint builds the canonical cache key for a request from its method,
// fully qualified URL and encoded body.
func Fingerprint(method, requestURL string, body []byte) string {
	h := md5.New()
	h.Write([]byte(strings.ToUpper(method)))
	h.Write([]byte{'\n'})
	h.Write([]byte(requestURL))
	h.Write([]byte{'\n'})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// sanitizeForFilename makes a key safe for use as a filename
func sanitizeForFilename(key string) string {
	// For very long keys, use hash to avoid filesystem limits
	if len(key) > 200 {
		hash := md5.Sum([]byte(key))
		return "hash_" + hex.EncodeToString(hash[:])
	}

	replacer := strings.NewReplacer(
		"/", "_",
		"\\", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
		"#", "_",
		"&", "_",
		"=", "_",
		" ", "_",
	)
	return replacer.Replace(key)
}
