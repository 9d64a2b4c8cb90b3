// Package server exposes report rendering over HTTP.
package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/digitorus/pdfreport"
	"github.com/digitorus/pdfreport/reports"
	"github.com/digitorus/pdfreport/seal"
	"github.com/digitorus/pdfreport/sink"
	"github.com/gorilla/mux"
)

// MaxRecordSize limits request bodies.
const MaxRecordSize = 1 << 20

// SignatureHeader carries the base64 detached signature of a sealed report.
const SignatureHeader = "X-Report-Signature"

// Server renders reports posted as JSON or YAML records.
type Server struct {
	exporter *pdfreport.Exporter
	sealer   *seal.Sealer
	logger   *slog.Logger
	router   *mux.Router
}

// New returns a server exporting with e. A nil logger discards.
func New(e *pdfreport.Exporter, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Server{exporter: e, logger: logger, router: mux.NewRouter()}
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/reports/{kind:admin|claim}", s.handleReport).Methods(http.MethodPost)
	return s
}

// WithSealer seals every report; the signature is sent in SignatureHeader.
func (s *Server) WithSealer(sealer *seal.Sealer) *Server {
	s.sealer = sealer
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w}
	s.router.ServeHTTP(rec, r)
	status := rec.status
	if status == 0 {
		status = http.StatusOK
	}
	s.logger.Info("request", "method", r.Method, "path", r.URL.Path, "status", status, "duration", time.Since(start))
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdown); err != nil {
			return err
		}
		if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "healthy"})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	kind, err := reports.ParseKind(mux.Vars(r)["kind"])
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}

	rw := &statusRecorder{ResponseWriter: w}
	var out pdfreport.Sink = sink.HTTP{W: rw}
	if s.sealer != nil {
		out = sealedHTTP{sealer: s.sealer, w: rw}
	}

	body := http.MaxBytesReader(w, r.Body, MaxRecordSize)
	format := reports.FormatOf(r.Header.Get("Content-Type"))
	name, err := reports.Export(r.Context(), s.exporter, kind, body, format, out)
	if err == nil {
		s.logger.Info("report delivered", "report", name, "kind", kind)
		return
	}

	var ee *pdfreport.ExportError
	switch {
	case rw.status != 0:
		// The response is already under way.
		s.logger.Error("report delivery failed", "report", name, "err", err)
	case errors.As(err, &ee):
		s.logger.Error("report failed", "report", name, "err", err)
		writeError(w, http.StatusInternalServerError, err)
	default:
		writeError(w, http.StatusBadRequest, err)
	}
}

// sealedHTTP sends a report with its signature in a response header.
type sealedHTTP struct {
	sealer *seal.Sealer
	w      http.ResponseWriter
}

func (s sealedHTTP) Deliver(ctx context.Context, out pdfreport.Output) error {
	sig, err := s.sealer.Seal(ctx, out.Data)
	if err != nil {
		return err
	}
	s.w.Header().Set(SignatureHeader, base64.StdEncoding.EncodeToString(sig))
	return sink.HTTP{W: s.w}.Deliver(ctx, out)
}

// statusRecorder remembers the status sent; zero means nothing was sent yet.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	if r.status == 0 {
		r.status = status
	}
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
