package main

import (
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/raseedhq/order_fulfiller/fulfiller"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	logLevel  string
	logFormat string
	dbPath    string
	filePath  string
	olderThan time.Duration
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "order_loader",
		Short: "A tool for seeding and managing orders",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging()
		},
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "INFO", "Set the logging level (DEBUG, INFO, WARN, ERROR)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "json", "Set the log output format (json or text)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "orders.db", "Path to the db file")

	// Seed command
	seedCmd := &cobra.Command{
		Use:   "seed",
		Short: "Seed pending orders from a file",
		Run: func(cmd *cobra.Command, args []string) {
			db, store := setupStore()
			defer db.Close()
			store.LoadFromFile(filePath)
		},
	}
	seedCmd.Flags().StringVar(&filePath, "file", "", "Load orders from file")
	seedCmd.MarkFlagRequired("file")

	// Pending command
	pendingCmd := &cobra.Command{
		Use:   "pending",
		Short: "List pending orders",
		Run: func(cmd *cobra.Command, args []string) {
			db, store := setupStore()
			defer db.Close()
			orders, err := store.PendingOrders()
			if err != nil {
				log.Fatal().Err(err).Msg("failed to list pending orders")
			}
			for _, o := range orders {
				fmt.Printf("%s\t%s\t%s\t%s\t%s\n",
					o.ID, o.TransferType, o.Provider, o.Amount.String(), o.CreatedAt.Format(time.RFC3339))
			}
			log.Info().Int("count", len(orders)).Msg("pending orders")
		},
	}

	// Expire command
	expireCmd := &cobra.Command{
		Use:   "expire",
		Short: "Fail pending orders older than the given age",
		Run: func(cmd *cobra.Command, args []string) {
			db, store := setupStore()
			defer db.Close()
			expired, err := store.ExpireStalePending(olderThan)
			if err != nil {
				log.Fatal().Err(err).Msg("failed to expire stale orders")
			}
			log.Info().Int64("expired", expired).Msg("expired stale pending orders")
		},
	}
	expireCmd.Flags().DurationVar(&olderThan, "older-than", 30*time.Minute, "Age cutoff for pending orders")

	rootCmd.AddCommand(seedCmd, pendingCmd, expireCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupLogging() {
	// Set up logging
	if logFormat == "json" {
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
	switch strings.TrimSpace(strings.ToUpper(logLevel)) {
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
}

func setupStore() (*sql.DB, *fulfiller.Store) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		log.Fatal().Err(err).Send()
	}
	return db, fulfiller.NewStore(db, &log.Logger)
}
