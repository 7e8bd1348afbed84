package security

import (
	"bytes"
	"io"
	"net/http"
	"strings"

	"github.com/alfreddev/aigateway/gwerror"
	"github.com/alfreddev/aigateway/middleware"
)

// Gate is the C7 pipeline's steps 3-4-8: the IP block-list gate and input
// sanitizer ahead of the handler, and the output filter on the way back
// out. Wired as a single middleware so the response-buffering writer it
// needs for the output stage is constructed exactly once per request.
func (f *Filter) Gate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := middleware.GetClientIP(r.Context())

		if f.IsBlocked(ip) {
			middleware.WriteError(w, r, gwerror.New(gwerror.PrincipalSuspended, "this client is temporarily blocked"))
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytesHardCap+1))
		if err != nil {
			middleware.WriteError(w, r, gwerror.New(gwerror.InvalidArgument, "failed to read request body"))
			return
		}
		r.Body.Close()

		sanitized, gerr := f.SanitizeInput(r, ip, body)
		if gerr != nil {
			middleware.WriteError(w, r, gerr)
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(sanitized))
		r.ContentLength = int64(len(sanitized))

		buf := &outputBuffer{ResponseWriter: w}
		next.ServeHTTP(buf, r)
		buf.flush(f)
	})
}

// outputBuffer captures the handler's response so FilterOutput can run
// over the complete JSON body before anything reaches the client.
type outputBuffer struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (b *outputBuffer) WriteHeader(status int) {
	b.status = status
}

func (b *outputBuffer) Write(p []byte) (int, error) {
	return b.body.Write(p)
}

func (b *outputBuffer) flush(f *Filter) {
	status := b.status
	if status == 0 {
		status = http.StatusOK
	}

	out := b.body.Bytes()
	if strings.Contains(b.ResponseWriter.Header().Get("Content-Type"), "json") {
		out = f.FilterOutput(out)
	}

	b.ResponseWriter.WriteHeader(status)
	_, _ = b.ResponseWriter.Write(out)
}
