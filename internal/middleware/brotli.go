package middleware

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"
)

// brotliMinLength is the smallest body worth compressing.
const brotliMinLength = 1024

// bufferedWriter holds the whole body so the encoding can be chosen once the
// handler is done.
type bufferedWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *bufferedWriter) Write(data []byte) (int, error) {
	return w.body.Write(data)
}

func (w *bufferedWriter) WriteString(s string) (int, error) {
	return w.body.WriteString(s)
}

// Brotli compresses successful responses of at least brotliMinLength bytes for
// clients that accept "br". Only mount it on plain JSON routes: streaming
// responses and upgrades are passed through untouched.
func Brotli(quality int) gin.HandlerFunc {
	if quality < 0 || quality > 11 {
		quality = brotli.DefaultCompression
	}

	return func(c *gin.Context) {
		if isStreaming(c) || !acceptsBrotli(c.Request) {
			c.Next()
			return
		}

		orig := c.Writer
		bw := &bufferedWriter{ResponseWriter: orig}
		c.Writer = bw
		c.Next()
		c.Writer = orig

		c.Header("Vary", "Accept-Encoding")
		if bw.body.Len() < brotliMinLength || orig.Status() != http.StatusOK {
			if _, err := orig.Write(bw.body.Bytes()); err != nil {
				_ = c.Error(err)
			}
			return
		}

		c.Header("Content-Encoding", "br")
		c.Writer.Header().Del("Content-Length")
		enc := brotli.NewWriterLevel(orig, quality)
		if _, err := enc.Write(bw.body.Bytes()); err != nil {
			_ = c.Error(err)
		}
		if err := enc.Close(); err != nil {
			_ = c.Error(err)
		}
	}
}

func isStreaming(c *gin.Context) bool {
	if strings.Contains(c.GetHeader("Accept"), "text/event-stream") {
		return true
	}
	return strings.EqualFold(c.GetHeader("Upgrade"), "websocket")
}

func acceptsBrotli(r *http.Request) bool {
	for _, enc := range strings.Split(r.Header.Get("Accept-Encoding"), ",") {
		name, _, _ := strings.Cut(strings.TrimSpace(enc), ";")
		if strings.EqualFold(name, "br") {
			return true
		}
	}
	return false
}
