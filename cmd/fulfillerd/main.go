package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/raseedhq/order_fulfiller/fulfiller"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	logLevel := flag.String("log-level", "INFO", "Set the logging level")
	logFormat := flag.String("log-format", "json", "Set the log output format")
	configPath := flag.String("config", "config.toml", "Path to the config file")
	dbPath := flag.String("db", "orders.db", "Path to the db file")
	listenAddr := flag.String("listen", "", "HTTP listen address, overrides config")
	flag.Parse()

	// Set up logging
	if *logFormat == "json" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	} else {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		output.FormatLevel = func(i interface{}) string {
			return strings.ToUpper(fmt.Sprintf("| %-6s|", i))
		}
		output.FormatMessage = func(i interface{}) string {
			return fmt.Sprintf("message: %s", i)
		}
		output.FormatFieldName = func(i interface{}) string {
			return fmt.Sprintf("%s:", i)
		}
		output.FormatFieldValue = func(i interface{}) string {
			return strings.ToUpper(fmt.Sprintf("%s", i))
		}
		log.Logger = log.Output(output)

	}

	// Set log level
	switch strings.TrimSpace(strings.ToUpper(*logLevel)) {
	case "DEBUG":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "INFO":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "WARN":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "ERROR":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	cfg := fulfiller.MustLoadConfig(*configPath)
	if *listenAddr != "" {
		cfg.ListenAddr = *listenAddr
	}

	db, err := sql.Open("sqlite3", *dbPath)
	if err != nil {
		log.Fatal().Err(err).Send()
	}
	defer db.Close()

	f := fulfiller.NewFulfiller(db, cfg, &log.Logger, loggingDialSurface{})
	server := fulfiller.NewServer(f)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		f.Run(ctx)
		close(done)
	}()

	go func() {
		if err := server.RunWithContext(ctx, cfg.ListenAddr); err != nil {
			log.Error().Err(err).Msg("server error")
			cancel()
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigs:
		log.Info().Msg("shutdown signal received")
		cancel()
		log.Info().Msg("waiting for ongoing operations to complete...")
		<-done
	case <-ctx.Done():
		log.Info().Msg("context cancelled")
		<-done
	}
}

// loggingDialSurface accepts every dial and logs it; the field device
// watching the log performs the actual dial and posts the session text back
// through /ingest/ussd.
type loggingDialSurface struct{}

func (loggingDialSurface) StartDial(code, providerHint string) bool {
	log.Info().Str("dial_code", code).Str("provider", providerHint).Msg("dial requested")
	return true
}
