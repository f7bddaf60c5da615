// Package mockledger provides an in-process JSON-RPC ledger for testing.
//
// It speaks the subset of the Solana JSON-RPC API used by the relay, verifies
// transaction signatures and blockhashes, and executes subscription
// instructions with the real program.Processor against SQLite-backed accounts.
package mockledger

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sipico/subscription-relay/internal/program"
	"github.com/sipico/subscription-relay/internal/solana"
	"github.com/sipico/subscription-relay/internal/storage"
)

// DefaultProgramID is the address the subscription program is deployed at.
var DefaultProgramID = solana.MustPublicKeyFromBase58("BE8PNroWQBpof1qctnwzftcFKRRVuqbYQ5Xv1LnREQBc")

// Server is a mock ledger node.
type Server struct {
	store     storage.Storage
	ownsStore bool
	processor *program.Processor
	logger    *slog.Logger
	router    chi.Router
	state     *state
	methods   map[string]rpcMethod

	// execMu serializes transaction execution so slots and blockhash
	// bookkeeping stay consistent with the account writes.
	execMu sync.Mutex

	httpServer *httptest.Server
}

type config struct {
	programID solana.PublicKey
	fixed     bool
	logger    *slog.Logger
	store     storage.Storage
	clock     func() time.Time
}

// Option configures a Server.
type Option func(*config)

// WithProgramID deploys the subscription program at id.
func WithProgramID(id solana.PublicKey) Option {
	return func(c *config) { c.programID = id }
}

// WithFixedParameters runs the program variant that rejects updates.
func WithFixedParameters() Option {
	return func(c *config) { c.fixed = true }
}

// WithLogger logs every RPC call.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) { c.logger = logger }
}

// WithStorage uses store instead of a private in-memory database. The caller
// keeps ownership of store.
func WithStorage(store storage.Storage) Option {
	return func(c *config) { c.store = store }
}

// WithClock sets the base clock. The default is frozen at construction time,
// which keeps tests deterministic; Advance and SetNow shift it either way.
func WithClock(clock func() time.Time) Option {
	return func(c *config) { c.clock = clock }
}

// NewServer creates a mock ledger without starting a listener. Use it as an
// http.Handler.
func NewServer(opts ...Option) (*Server, error) {
	start := time.Now()
	cfg := config{
		programID: DefaultProgramID,
		clock:     func() time.Time { return start },
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	s := &Server{
		store:  cfg.store,
		logger: cfg.logger,
		state:  newState(cfg.clock),
	}
	if s.store == nil {
		store, err := storage.New(":memory:")
		if err != nil {
			return nil, fmt.Errorf("failed to open ledger store: %w", err)
		}
		s.store = store
		s.ownsStore = true
	}

	var procOpts []program.ProcessorOption
	if cfg.fixed {
		procOpts = append(procOpts, program.WithFixedParameters())
	}
	s.processor = program.NewProcessor(cfg.programID, procOpts...)

	s.methods = s.rpcMethods()
	s.router = s.newRouter()
	return s, nil
}

// New creates and starts a mock ledger on a local httptest listener.
// It panics if the in-memory store cannot be opened.
func New(opts ...Option) *Server {
	s, err := NewServer(opts...)
	if err != nil {
		panic(err)
	}
	s.httpServer = httptest.NewServer(s)
	return s
}

func (s *Server) newRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(LoggingMiddleware(s.logger))
	r.Post("/", s.handleRPC)

	r.Route("/admin", func(r chi.Router) {
		r.Get("/clock", s.handleAdminGetClock)
		r.Post("/clock", s.handleAdminSetClock)
		r.Post("/fail", s.handleAdminFail)
		r.Get("/accounts/{address}", s.handleAdminGetAccount)
		r.Post("/accounts/{address}/airdrop", s.handleAdminAirdrop)
	})
	return r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// URL returns the base URL of a server started with New.
func (s *Server) URL() string {
	if s.httpServer == nil {
		return ""
	}
	return s.httpServer.URL
}

// Close stops the listener and releases the store if the server owns it.
func (s *Server) Close() {
	if s.httpServer != nil {
		s.httpServer.Close()
	}
	if s.ownsStore {
		_ = s.store.Close() //nolint:errcheck
	}
}

// ProgramID returns the address the program is deployed at.
func (s *Server) ProgramID() solana.PublicKey {
	return s.processor.ProgramID()
}
