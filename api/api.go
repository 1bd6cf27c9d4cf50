// Package api exposes the voting ledger over HTTP: vote event lifecycle,
// census enrollment, vote submission, nullifier lookups and the trustee
// tally ceremony. Sessions themselves run on the terminal side; this API is
// the server surface terminals and trustees talk to.
package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.vocdoni.io/dvote/log"

	"github.com/biovote/protocol/census"
	"github.com/biovote/protocol/ledger"
	"github.com/biovote/protocol/tally"
)

// APIConfig type represents the configuration for the API HTTP server.
type APIConfig struct {
	Host     string
	Port     int
	Store    *ledger.Store
	Registry *census.Registry
	Ceremony *tally.Ceremony
}

// API type represents the API HTTP server.
type API struct {
	router   *chi.Mux
	store    *ledger.Store
	registry *census.Registry
	ceremony *tally.Ceremony
}

// New creates a new API instance with the given configuration and starts the
// HTTP server.
func New(conf *APIConfig) (*API, error) {
	if conf == nil {
		return nil, fmt.Errorf("missing API configuration")
	}
	if conf.Store == nil {
		return nil, fmt.Errorf("missing ledger store instance")
	}
	if conf.Registry == nil {
		return nil, fmt.Errorf("missing census registry instance")
	}
	a := &API{
		store:    conf.Store,
		registry: conf.Registry,
		ceremony: conf.Ceremony,
	}
	if a.ceremony == nil {
		a.ceremony = tally.NewCeremony(conf.Store)
	}

	a.initRouter()
	go func() {
		log.Infow("starting API server", "host", conf.Host, "port", conf.Port)
		if err := http.ListenAndServe(fmt.Sprintf("%s:%d", conf.Host, conf.Port), a.router); err != nil {
			log.Fatalf("failed to start the API server: %v", err)
		}
	}()
	return a, nil
}

// Router returns the chi router for testing purposes
func (a *API) Router() *chi.Mux {
	return a.router
}

// registerHandlers registers all the API handlers.
func (a *API) registerHandlers() {
	a.router.Get(PingEndpoint, func(w http.ResponseWriter, r *http.Request) {
		httpWriteOK(w)
	})
	a.router.Post(VoteEventsEndpoint, a.newVoteEvent)
	a.router.Get(VoteEventEndpoint, a.voteEvent)
	a.router.Post(FinalizeEndpoint, a.finalizeVoteEvent)
	a.router.Get(AggregatesEndpoint, a.aggregates)
	a.router.Post(VotesEndpoint, a.newVote)
	a.router.Get(NullifierEndpoint, a.nullifierStatus)
	a.router.Post(SharesEndpoint, a.submitShares)
	a.router.Get(ResultEndpoint, a.result)
	a.router.Post(CensusesEndpoint, a.newCensus)
	a.router.Post(CensusParticipantsEndpoint, a.addCensusParticipants)
	a.router.Get(CensusRootEndpoint, a.censusRoot)
}

// initRouter creates the router with all the routes and middleware.
func (a *API) initRouter() {
	// Create the router with a basic middleware stack
	a.router = chi.NewRouter()
	a.router.Use(cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}).Handler)
	a.router.Use(middleware.Logger)
	a.router.Use(middleware.Recoverer)
	a.router.Use(middleware.Throttle(100))
	a.router.Use(middleware.ThrottleBacklog(5000, 40000, 60*time.Second))
	a.router.Use(middleware.Timeout(45 * time.Second))

	// Register the API handlers
	a.registerHandlers()
}
