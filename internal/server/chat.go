package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"

	"github.com/finsight-core/server/internal/assistant/capability"
	"github.com/finsight-core/server/internal/assistant/messages"
	"github.com/finsight-core/server/internal/assistant/model"
	errx "github.com/finsight-core/server/internal/core/error"
	"github.com/finsight-core/server/internal/ratelimit"
	logx "github.com/finsight-core/server/pkg/logger"
)

type chatRequest struct {
	Messages []messages.IncomingMessage `json:"messages"`
}

type chatChunk struct {
	Content string `json:"content"`
}

// handleChat runs one conversational turn and streams the answer as
// server-sent events, terminated by a [DONE] marker.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, ok := capability.IdentityFromContext(ctx)
	if !ok {
		writeError(w, r, errx.Unauthenticated(errors.New("no identity on request")))
		return
	}

	if !s.limiter.Allow(ctx, ratelimit.BucketUser, identity) {
		writeError(w, r, errx.RateLimited(string(ratelimit.BucketUser)))
		return
	}
	if addr := remoteHost(r); addr != "" {
		if !s.limiter.Allow(ctx, ratelimit.BucketAddr, addr) {
			writeError(w, r, errx.RateLimited(string(ratelimit.BucketAddr)))
			return
		}
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, errx.MalformedInput(err, "request body is not valid JSON"))
		return
	}

	history, query := messages.SplitLastUserTurn(req.Messages)
	if query == "" {
		writeError(w, r, errx.MalformedInput(errors.New("no user message with text"), "message has no usable text"))
		return
	}

	sr, err := s.runner.Stream(ctx, model.TurnInput{
		Identity: identity,
		Query:    query,
		History:  history,
	})
	if err != nil {
		s.writeTurnError(w, r, err)
		return
	}
	defer sr.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	flusher, canFlush := w.(http.Flusher)

	for {
		chunk, err := sr.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// Headers are committed; all we can do is log and stop the stream.
			logx.Error().Err(err).Str("identity", identity).Msg("Stream interrupted")
			break
		}
		if chunk == nil || chunk.Content == "" {
			continue
		}

		b, err := json.Marshal(chatChunk{Content: chunk.Content})
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "data: %s\n\n", b)
		if canFlush {
			flusher.Flush()
		}
	}

	fmt.Fprint(w, "data: [DONE]\n\n")
	if canFlush {
		flusher.Flush()
	}
}

// remoteHost extracts the client address for the per-address limiter bucket.
func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type errorBody struct {
	Error struct {
		Code    errx.Code `json:"code"`
		Message string    `json:"message"`
		Detail  string    `json:"detail,omitempty"`
	} `json:"error"`
}

// writeTurnError includes the underlying detail outside production.
func (s *Server) writeTurnError(w http.ResponseWriter, r *http.Request, err error) {
	writeJSONError(w, r, err, !s.env.IsProduction())
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	writeJSONError(w, r, err, false)
}

func writeJSONError(w http.ResponseWriter, r *http.Request, err error, verbose bool) {
	status := errx.StatusOf(err)

	var body errorBody
	body.Error.Code = errx.CodeOf(err)
	body.Error.Message = errx.SystemErrorMessage
	var ae *errx.AppError
	if errors.As(err, &ae) && ae.Message != "" {
		body.Error.Message = ae.Message
	}
	if verbose {
		body.Error.Detail = err.Error()
	}

	logx.Warn().
		Err(err).
		Int("status", status).
		Str("code", string(body.Error.Code)).
		Str("path", r.URL.Path).
		Msg("Request failed")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body) //nolint:errcheck
}
