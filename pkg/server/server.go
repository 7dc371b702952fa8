package server

import (
	"log"
	"net/http"
	"time"

	"github.com/arbordb/arbor/pkg/sparql"
	"github.com/arbordb/arbor/pkg/sparql/planner"
	"github.com/arbordb/arbor/pkg/store"
)

// Server represents the HTTP SPARQL server
type Server struct {
	store  *store.TripleStore
	engine *sparql.Engine
	addr   string
}

// NewServer creates a new SPARQL HTTP server with the engine's default
// options (no row or path-depth cap, worst-case-optimal join planning
// on). Use NewServerWithOptions to apply spec §6 config.
func NewServer(store *store.TripleStore, addr string) *Server {
	return NewServerWithOptions(store, addr, sparql.DefaultOptions())
}

// NewServerWithOptions creates a SPARQL HTTP server whose query engine
// enforces opts (default_base, default_prefixes, max_rows,
// path_depth_limit, enable_wcoj).
func NewServerWithOptions(store *store.TripleStore, addr string, opts sparql.Options) *Server {
	return &Server{
		store:  store,
		engine: sparql.NewEngine(store, opts),
		addr:   addr,
	}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/sparql", s.handleSPARQL)
	mux.HandleFunc("/data", s.handleDataUpload)
	mux.HandleFunc("/", s.handleRoot)

	server := &http.Server{
		Addr:         s.addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Printf("Starting SPARQL endpoint at http://%s/sparql", s.addr)
	return server.ListenAndServe()
}

// Stats returns the current planner statistics.
func (s *Server) Stats() *planner.Statistics {
	return &planner.Statistics{TotalQuads: int64(s.store.Count())}
}
