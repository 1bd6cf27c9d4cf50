// Command biovoted runs the ledger service: the HTTP API over the vote
// event store, the census registry and the tally ceremony. Voting terminals
// and trustee tooling are separate processes that talk to this daemon.
package main

import (
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	flag "github.com/spf13/pflag"
	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/metadb"
	"go.vocdoni.io/dvote/log"

	"github.com/biovote/protocol/api"
	"github.com/biovote/protocol/census"
	"github.com/biovote/protocol/ledger"
	"github.com/biovote/protocol/tally"
)

func main() {
	host := flag.String("host", "0.0.0.0", "API bind address")
	port := flag.Int("port", 9095, "API port")
	dataDir := flag.String("datadir", filepath.Join(mustHomeDir(), ".biovoted"), "data directory")
	dbType := flag.String("dbtype", db.TypePebble, "database type (pebble or goleveldb)")
	logLevel := flag.String("loglevel", "info", "log level (debug, info, warn, error)")
	flag.Parse()
	log.Init(*logLevel, "stdout", nil)

	database, err := metadb.New(*dbType, filepath.Join(*dataDir, "ledger"))
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	censusDB, err := metadb.New(*dbType, filepath.Join(*dataDir, "census"))
	if err != nil {
		log.Fatalf("failed to open census database: %v", err)
	}

	store := ledger.NewStore(database)
	registry := census.NewRegistry(censusDB)
	ceremony := tally.NewCeremony(store)

	// log ledger activity from the status bus
	events, cancel := store.Bus().Subscribe()
	defer cancel()
	go func() {
		for ev := range events {
			log.Infow("ledger event", "type", string(ev.Type), "voteEventId", ev.VoteEventID)
		}
	}()

	if _, err := api.New(&api.APIConfig{
		Host:     *host,
		Port:     *port,
		Store:    store,
		Registry: registry,
		Ceremony: ceremony,
	}); err != nil {
		log.Fatalf("failed to start API: %v", err)
	}

	log.Infow("biovoted is running", "datadir", *dataDir, "port", *port)
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down")
}

func mustHomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		log.Fatalf("failed to resolve home directory: %v", err)
	}
	return home
}
