// Package pprof serves runtime profiles over HTTP and writes CPU and heap
// profiles to files, for diagnosing a slow main loop.
package pprof

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	netpprof "net/http/pprof"
	"os"
	"path/filepath"
	"runtime/pprof"
	"sync"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/codefionn/macroscript/internal/logger"
)

// Config holds the pprof configuration
type Config struct {
	HTTPAddr    string // e.g. "localhost:6060"; empty disables the server
	CPUProfile  string // written from Start until Stop
	HeapProfile string // written on Stop
}

// Enabled reports whether anything is configured.
func (c Config) Enabled() bool {
	return c.HTTPAddr != "" || c.CPUProfile != "" || c.HeapProfile != ""
}

// StatsFunc returns a JSON-encodable snapshot served at /debug/stats.
type StatsFunc func() any

// Handler manages pprof profiling
type Handler struct {
	config Config
	stats  StatsFunc
	log    *logger.Logger

	mu       sync.Mutex
	server   *http.Server
	addr     net.Addr
	cpuFile  *os.File
	stopping bool
}

// NewHandler creates a new pprof handler with the given configuration
func NewHandler(config Config, stats StatsFunc, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Nop()
	}
	return &Handler{config: config, stats: stats, log: log}
}

func createFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create profile file: %w", err)
	}
	return f, nil
}

// Start begins profiling based on the configuration
func (h *Handler) Start() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.config.CPUProfile != "" {
		f, err := createFile(h.config.CPUProfile)
		if err != nil {
			return err
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			f.Close()
			return fmt.Errorf("failed to start CPU profiling: %w", err)
		}
		h.cpuFile = f
	}

	if h.config.HTTPAddr != "" {
		ln, err := net.Listen("tcp", h.config.HTTPAddr)
		if err != nil {
			h.stopCPULocked()
			return fmt.Errorf("failed to bind pprof HTTP server: %w", err)
		}
		h.addr = ln.Addr()
		h.server = &http.Server{
			Handler:           h.router(),
			ReadHeaderTimeout: 10 * time.Second,
			ErrorLog:          logger.ErrorLog(h.log),
		}
		go func(srv *http.Server) {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				h.log.Error("pprof server error: %v", err)
			}
		}(h.server)
		h.log.Info("pprof listening on http://%s/debug/pprof/", h.addr)
	}
	return nil
}

func (h *Handler) router() *httprouter.Router {
	r := httprouter.New()
	wrap := func(f http.HandlerFunc) httprouter.Handle {
		return func(w http.ResponseWriter, req *http.Request, _ httprouter.Params) { f(w, req) }
	}
	r.GET("/debug/pprof/", wrap(netpprof.Index))
	r.GET("/debug/pprof/:profile", func(w http.ResponseWriter, req *http.Request, ps httprouter.Params) {
		switch name := ps.ByName("profile"); name {
		case "cmdline":
			netpprof.Cmdline(w, req)
		case "profile":
			netpprof.Profile(w, req)
		case "symbol":
			netpprof.Symbol(w, req)
		case "trace":
			netpprof.Trace(w, req)
		default:
			netpprof.Handler(name).ServeHTTP(w, req)
		}
	})
	if h.stats != nil {
		r.GET("/debug/stats", func(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
			w.Header().Set("Content-Type", "application/json")
			if err := json.NewEncoder(w).Encode(h.stats()); err != nil {
				h.log.Warn("failed to encode stats: %v", err)
			}
		})
	}
	return r
}

// Addr returns the server address once started, or nil.
func (h *Handler) Addr() net.Addr {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.addr
}

func (h *Handler) stopCPULocked() error {
	if h.cpuFile == nil {
		return nil
	}
	pprof.StopCPUProfile()
	err := h.cpuFile.Close()
	h.cpuFile = nil
	if err != nil {
		return fmt.Errorf("failed to close CPU profile: %w", err)
	}
	return nil
}

// Stop stops profiling and writes profile files
func (h *Handler) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopping {
		return nil
	}
	h.stopping = true

	var errs []error
	errs = append(errs, h.stopCPULocked())

	if h.config.HeapProfile != "" {
		if f, err := createFile(h.config.HeapProfile); err != nil {
			errs = append(errs, err)
		} else {
			if err := pprof.WriteHeapProfile(f); err != nil {
				errs = append(errs, fmt.Errorf("failed to write heap profile: %w", err))
			}
			f.Close()
		}
	}

	if h.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shutdown pprof server: %w", err))
		}
		h.server = nil
	}
	return errors.Join(errs...)
}
