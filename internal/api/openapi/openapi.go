// Package openapi serves the embedded API description.
package openapi

import (
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"net/http"
	"strconv"
)

//go:embed openapi.yaml
var document []byte

var etag = func() string {
	sum := sha256.Sum256(document)
	return strconv.Quote(hex.EncodeToString(sum[:8]))
}()

// Handler serves the document with a content ETag so the swagger UI can
// revalidate instead of refetching.
func Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", etag)
		w.Header().Set("Cache-Control", "no-cache")
		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("Content-Type", "application/yaml")
		_, _ = w.Write(document)
	}
}
