package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lanchat/lanchat/internal/api"
	"github.com/lanchat/lanchat/internal/config"
	"github.com/lanchat/lanchat/internal/database"
	"github.com/lanchat/lanchat/internal/server"
	"github.com/lanchat/lanchat/internal/stats"
)

const sessionSweepInterval = time.Hour

var configPath string

func main() {
	flag.StringVar(&configPath, "config", "", "path to config file")
	flag.Parse()

	logger := log.New(os.Stderr, "[lanchat] ", log.LstdFlags)

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatal("config: ", err)
	}

	db, err := database.NewSQLRepository(cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("db open: ", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Fatal("db close: ", err)
		}
	}()

	if err := db.Migrate(); err != nil {
		logger.Fatal("db migrate: ", err)
	}

	statsMux := http.NewServeMux()
	statsUpdater := stats.NewStatsUpdater(statsMux)

	verifier := api.NewSessionVerifier(db, cfg.SigningKey)

	chatServer, err := server.NewChatServer(logger, db, statsUpdater, server.NewConnTracker(), verifier)
	if err != nil {
		logger.Fatal("new chat server: ", err)
	}

	srv := api.NewLanChatApp(logger, chatServer, db, verifier, cfg, statsMux)

	statsUpdater.Run()
	defer statsUpdater.Stop()

	go chatServer.Run()

	sweeperDone := make(chan struct{})
	go sweepSessions(logger, db, sweeperDone)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Printf("received signal: %s\n", sig)
	case err := <-errCh:
		logger.Println("server:", err)
	}

	close(sweeperDone)

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("HTTP server shutdown:", err)
	}

	logger.Println("shutting down chat server...")
	if err := chatServer.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("chat server shutdown:", err)
	}

	logger.Println("shutdown complete")
}

// sweepSessions periodically deletes expired session rows.
func sweepSessions(logger *log.Logger, db database.Repository, done <-chan struct{}) {
	ticker := time.NewTicker(sessionSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			n, err := db.DeleteExpiredSessions()
			if err != nil {
				logger.Println("session sweep:", err)
				continue
			}
			if n > 0 {
				logger.Printf("session sweep: removed %d expired sessions", n)
			}
		case <-done:
			return
		}
	}
}
