// Package server exposes the pipeline over HTTP.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/rendis/flowsketch/internal/logging"
	"github.com/rendis/flowsketch/internal/pipeline"
	"github.com/rendis/flowsketch/pkg/schema"
)

const (
	headerDegraded = "X-Flowsketch-Degraded"
	headerRunID    = "X-Flowsketch-Run-Id"

	// multipartMemory is the part of an upload kept in memory before spilling to disk.
	multipartMemory = 8 << 20
	shutdownTimeout = 15 * time.Second
)

// DefaultMaxUploadBytes applies when Options.MaxUploadBytes is unset.
const DefaultMaxUploadBytes = 20 << 20

// Runner runs one input file into an output directory.
type Runner interface {
	RunInto(ctx context.Context, path, outDir string) (*pipeline.Result, error)
}

// Background is a task that runs for the server's lifetime, such as the janitor.
type Background interface {
	Run(ctx context.Context) error
}

// Options configures a Server.
type Options struct {
	// ScratchRoot holds one subdirectory per request.
	ScratchRoot    string
	MaxConcurrent  int64
	MaxUploadBytes int64
	AllowedOrigins []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
}

// Server handles diagram requests. Each request gets its own scratch
// directory; a semaphore bounds concurrent pipeline runs.
type Server struct {
	runner Runner
	opts   Options
	sem    *semaphore.Weighted
	logger *slog.Logger
}

// New creates a Server.
func New(runner Runner, opts Options, logger *slog.Logger) *Server {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 1
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Server{
		runner: runner,
		opts:   opts,
		sem:    semaphore.NewWeighted(opts.MaxConcurrent),
		logger: logger,
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(cors(s.opts.AllowedOrigins))

	r.Get("/healthz", s.handleHealth)
	r.Post("/process-document", s.handleDocument)
	r.Post("/process-camera", s.handleCamera)
	return r
}

// ListenAndServe serves on addr until ctx is done, running bg alongside.
// A failing listener stops the background tasks and vice versa.
func (s *Server) ListenAndServe(ctx context.Context, addr string, bg ...Background) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("http server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		s.logger.Info("http server shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	for _, b := range bg {
		g.Go(func() error { return b.Run(gctx) })
	}
	return g.Wait()
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	s.process(w, r, s.saveMultipart)
}

// handleCamera accepts a multipart upload or a JSON data URI.
func (s *Server) handleCamera(w http.ResponseWriter, r *http.Request) {
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mt == "application/json" {
		s.process(w, r, s.saveDataURI)
		return
	}
	s.process(w, r, s.saveMultipart)
}

type saveFunc func(r *http.Request, ws *pipeline.Workspace) (string, error)

func (s *Server) process(w http.ResponseWriter, r *http.Request, save saveFunc) {
	if !s.sem.TryAcquire(1) {
		writeError(w, http.StatusServiceUnavailable, schema.NewError(schema.ErrCodeBusy, "too many diagrams in progress, try again shortly"))
		return
	}
	defer s.sem.Release(1)

	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)

	ws := pipeline.NewWorkspace(filepath.Join(s.opts.ScratchRoot, uuid.NewString()))
	if err := ws.Prepare(); err != nil {
		s.logger.Error("scratch directory unavailable", "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	path, err := save(r, ws)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	res, err := s.runner.RunInto(r.Context(), path, ws.Dir)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	f, err := os.Open(res.ImagePath)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	defer f.Close()

	h := w.Header()
	h.Set("Content-Type", "image/png")
	h.Set("Content-Disposition", `attachment; filename="workflow.png"`)
	h.Set(headerRunID, res.RunID)
	h.Set(headerDegraded, strconv.FormatBool(res.Degraded))
	if info, err := f.Stat(); err == nil {
		h.Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, f); err != nil {
		s.logger.Warn("response write failed", "error", err)
	}
}

func (s *Server) saveMultipart(r *http.Request, ws *pipeline.Workspace) (string, error) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return "", err
		}
		return "", schema.NewError(schema.ErrCodeNoInput, "no file uploaded").WithCause(err)
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return "", schema.NewError(schema.ErrCodeNoInput, "no file uploaded").WithCause(err)
	}
	defer file.Close()
	if header.Filename == "" {
		return "", schema.NewError(schema.ErrCodeNoInput, "no file selected")
	}
	return ws.Stage(header.Filename, file)
}

func (s *Server) saveDataURI(r *http.Request, ws *pipeline.Workspace) (string, error) {
	var p cameraPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return "", err
		}
		return "", schema.NewError(schema.ErrCodeValidation, "invalid JSON body").WithCause(err)
	}
	if p.Image == "" {
		return "", schema.NewError(schema.ErrCodeNoInput, "no image data received")
	}

	raw, ext, err := decodeDataURI(p.Image)
	if err != nil {
		if schema.HasCode(err, schema.ErrCodeUnsupportedFormat) {
			return "", err
		}
		return "", schema.NewError(schema.ErrCodeValidation, "invalid image data").WithCause(err)
	}
	return ws.Stage("camera"+ext, bytes.NewReader(raw))
}

// statusFor maps a pipeline error onto an HTTP status.
func statusFor(err error) int {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	switch schema.CodeOf(err) {
	case schema.ErrCodeNoInput, schema.ErrCodeValidation:
		return http.StatusBadRequest
	case schema.ErrCodeUnsupportedFormat:
		return http.StatusUnsupportedMediaType
	case schema.ErrCodeExtraction:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

type errorBody struct {
	Error string   `json:"error"`
	Code  string   `json:"code,omitempty"`
	Hints []string `json:"hints,omitempty"`
}

func writeError(w http.ResponseWriter, status int, err error) {
	body := errorBody{Error: err.Error(), Code: schema.CodeOf(err), Hints: schema.Hints(err)}
	var fe *schema.FlowError
	if errors.As(err, &fe) {
		body.Error = fe.Message
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		body.Error = "upload exceeds " + strconv.FormatInt(tooLarge.Limit, 10) + " bytes"
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
