// Package responsewriter wraps http.ResponseWriter so middleware can
// observe what a handler sent. The request log and the Prometheus
// series both read status and size from the same wrapper.
package responsewriter

import (
	"net/http"
)

// ResponseWriter records the status code and body size of a response.
type ResponseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
	wroteHeader  bool
}

// Wrap returns a recording wrapper around w.
func Wrap(w http.ResponseWriter) *ResponseWriter {
	return &ResponseWriter{
		ResponseWriter: w,
		statusCode:     http.StatusOK, // デフォルトは200
	}
}

// WriteHeader records the first status code and forwards it. Later calls
// are dropped, mirroring net/http, which ignores superfluous WriteHeader
// calls; the recorded code is the one that actually reached the wire.
func (w *ResponseWriter) WriteHeader(statusCode int) {
	if w.wroteHeader {
		return
	}
	w.statusCode = statusCode
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(statusCode)
}

// Write forwards the body bytes and adds them to the running size.
func (w *ResponseWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		// net/httpと同様、Writeが先行した場合は暗黙の200
		w.WriteHeader(http.StatusOK)
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytesWritten += n
	return n, err
}

// StatusCode returns the status code sent to the client.
func (w *ResponseWriter) StatusCode() int {
	return w.statusCode
}

// BytesWritten returns the response body size in bytes.
func (w *ResponseWriter) BytesWritten() int {
	return w.bytesWritten
}

// Unwrap exposes the underlying writer for http.ResponseController.
func (w *ResponseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
