package middleware

import (
	"net/http"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
)

// Decompress transparently inflates compressed request bodies. Agents send
// zlib-deflated JSON; gzip is accepted as well. A body that does not match
// its declared encoding is rejected with Bad Request before any handler runs.
func Decompress(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Header.Get("Content-Encoding") {
		case "zlib", "deflate":
			zr, err := zlib.NewReader(r.Body)
			if err != nil {
				http.Error(w, `{"code":400,"message":"malformed compressed body"}`, http.StatusBadRequest)
				return
			}
			defer zr.Close()
			r.Body = zr
		case "gzip":
			gr, err := gzip.NewReader(r.Body)
			if err != nil {
				http.Error(w, `{"code":400,"message":"malformed compressed body"}`, http.StatusBadRequest)
				return
			}
			defer gr.Close()
			r.Body = gr
		}
		next.ServeHTTP(w, r)
	})
}
