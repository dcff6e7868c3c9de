package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/converse-im/converse/internal/api"
	"github.com/converse-im/converse/internal/config"
	"github.com/converse-im/converse/internal/database"
	"github.com/converse-im/converse/internal/server"
	"github.com/converse-im/converse/internal/stats"
	"github.com/converse-im/converse/internal/storage"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

var (
	addr           string
	dsn            string
	signingSecret  string
	uploadDir      string
	allowedOrigins stringSliceFlag
	fromEnv        bool
)

func main() {
	flag.StringVar(&addr, "addr", "localhost:8000", "server address")
	flag.StringVar(&dsn, "dsn", "host=localhost user=postgres password=postgres dbname=postgres sslmode=disable", "database connection string")
	flag.StringVar(&signingSecret, "signing-secret", "", "base64 encoded token signing secret")
	flag.StringVar(&uploadDir, "upload-dir", "uploads", "directory for uploaded attachments")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.BoolVar(&fromEnv, "from-env", false, "read configuration from CONVERSE_* environment variables instead of flags")
	flag.Parse()

	logger := log.New(os.Stderr, "[converse] ", log.LstdFlags)

	// a local .env is optional; missing is not an error
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.Fatal("load .env:", err)
	}

	var cfg *config.Config
	var err error
	if fromEnv {
		cfg, err = config.FromEnv()
	} else {
		cfg, err = config.NewConfig(addr, dsn, signingSecret, allowedOrigins, uploadDir)
	}
	if err != nil {
		logger.Fatal("config:", err)
	}

	dbConn, err := database.NewPgConverseRepository(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("db open:", err)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Fatal("db close:", err)
		}
	}()

	store, err := storage.NewLocalStore(cfg.UploadDir)
	if err != nil {
		logger.Fatal("upload store:", err)
	}

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)

	registry := server.NewRegistry(logger, statsUpdater)
	dispatcher := server.NewDispatcher(registry, logger)
	gateway := server.NewGateway(logger, dbConn, registry, dispatcher, statsUpdater, cfg.SigningKey, cfg.AllowedOrigins)

	srv := api.NewConverseApp(mux, logger, gateway, dispatcher, dbConn, store, cfg)

	statsUpdater.Run()
	defer statsUpdater.Stop()

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

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("HTTP server shutdown:", err)
	}

	logger.Println("closing websocket connections...")
	if err := gateway.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("gateway shutdown:", err)
	}

	logger.Println("shutdown complete")
}
