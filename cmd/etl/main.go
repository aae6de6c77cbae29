package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	_ "net/http/pprof"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"

	"github.com/tracklake/tracklake/pkg/duck"
	"github.com/tracklake/tracklake/pkg/logger"
	"github.com/tracklake/tracklake/pkg/metrics"
	"github.com/tracklake/tracklake/pkg/source"
	"github.com/tracklake/tracklake/pkg/warehouse"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const (
	defaultCatalogName = "tracklake"
	defaultCatalogURI  = "file://.tmp/lake/catalog.sqlite"
	defaultStorageURI  = "file://.tmp/lake/data"
	defaultSongDataURI = "file://.tmp/input/song_data"
	defaultLogDataURI  = "file://.tmp/input/log_data"
	defaultMetricsAddr = "0.0.0.0:0"
	defaultPoolSize    = 16
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")
	enablePprofFlag := flag.Bool("enable-pprof", false, "enable pprof server")
	metricsAddrFlag := flag.String("metrics-addr", defaultMetricsAddr, "Address to listen on for prometheus metrics")

	// Database configuration
	catalogNameFlag := flag.String("ducklake-catalog-name", defaultCatalogName, "Name of the DuckLake catalog (or set DUCKLAKE_CATALOG_NAME env var)")
	catalogURIFlag := flag.String("ducklake-catalog-uri", defaultCatalogURI, "URI to the DuckLake catalog (or set DUCKLAKE_CATALOG_URI env var)")
	storageURIFlag := flag.String("ducklake-storage-uri", defaultStorageURI, "URI to the DuckLake storage directory (or set DUCKLAKE_STORAGE_URI env var)")

	// Input configuration
	songDataURIFlag := flag.String("song-data-uri", defaultSongDataURI, "URI to the song catalog corpus (or set SONG_DATA_URI env var)")
	logDataURIFlag := flag.String("log-data-uri", defaultLogDataURI, "URI to the activity event log (or set LOG_DATA_URI env var)")

	// Job configuration
	poolSizeFlag := flag.Int("pool-size", defaultPoolSize, "number of concurrent file decodes per source")
	shardsFlag := flag.Int("shards", runtime.NumCPU(), "parallelism of the fact join and table writes")

	flag.Parse()

	// Credentials and paths can come from a .env file, like the rest of the
	// environment overrides below
	_ = godotenv.Load()

	if envCatalogURI := os.Getenv("DUCKLAKE_CATALOG_URI"); envCatalogURI != "" {
		*catalogURIFlag = envCatalogURI
	}
	if envStorageURI := os.Getenv("DUCKLAKE_STORAGE_URI"); envStorageURI != "" {
		*storageURIFlag = envStorageURI
	}
	if envCatalogName := os.Getenv("DUCKLAKE_CATALOG_NAME"); envCatalogName != "" {
		*catalogNameFlag = envCatalogName
	}
	if envSongDataURI := os.Getenv("SONG_DATA_URI"); envSongDataURI != "" {
		*songDataURIFlag = envSongDataURI
	}
	if envLogDataURI := os.Getenv("LOG_DATA_URI"); envLogDataURI != "" {
		*logDataURIFlag = envLogDataURI
	}

	log := logger.New(*verboseFlag)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sig := <-sigCh
		log.Info("etl: received signal", "signal", sig.String())
		cancel()
	}()

	if *enablePprofFlag {
		go func() {
			log.Info("starting pprof server", "address", "localhost:6060")
			err := http.ListenAndServe("localhost:6060", nil)
			if err != nil {
				log.Error("failed to start pprof server", "error", err)
			}
		}()
	}

	if *metricsAddrFlag != "" {
		metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)
		go func() {
			listener, err := net.Listen("tcp", *metricsAddrFlag)
			if err != nil {
				log.Error("failed to start prometheus metrics server listener", "error", err)
				return
			}
			log.Info("prometheus metrics server listening", "address", listener.Addr().String())
			http.Handle("/metrics", promhttp.Handler())
			if err := http.Serve(listener, nil); err != nil {
				log.Error("failed to start prometheus metrics server", "error", err)
			}
		}()
	}

	// Initialize DuckLake database
	s3Config, err := duck.PrepareS3ConfigForStorageURI(ctx, log, *storageURIFlag)
	if err != nil {
		return err
	}
	log.Info("initializing ducklake database", "catalog", *catalogNameFlag, "catalogURI", *catalogURIFlag, "storageURI", duck.RedactedStorageURI(*storageURIFlag))
	db, err := duck.NewLake(ctx, log, *catalogNameFlag, *catalogURIFlag, *storageURIFlag, s3Config)
	if err != nil {
		return fmt.Errorf("failed to create DuckLake database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("failed to close DuckLake database", "error", err)
		}
	}()

	songLister, err := source.NewLister(ctx, *songDataURIFlag)
	if err != nil {
		return fmt.Errorf("failed to open song data source: %w", err)
	}
	logLister, err := source.NewLister(ctx, *logDataURIFlag)
	if err != nil {
		return fmt.Errorf("failed to open log data source: %w", err)
	}

	catalogReader, err := source.NewCatalogReader(source.CatalogReaderConfig{
		Logger:   log,
		Lister:   songLister,
		PoolSize: *poolSizeFlag,
	})
	if err != nil {
		return fmt.Errorf("failed to create catalog reader: %w", err)
	}
	activityReader, err := source.NewActivityReader(source.ActivityReaderConfig{
		Logger:   log,
		Lister:   logLister,
		PoolSize: *poolSizeFlag,
	})
	if err != nil {
		return fmt.Errorf("failed to create activity reader: %w", err)
	}

	store, err := warehouse.NewStore(warehouse.StoreConfig{
		Logger: log,
		DB:     db,
	})
	if err != nil {
		return fmt.Errorf("failed to create warehouse store: %w", err)
	}

	pipeline, err := warehouse.New(warehouse.Config{
		Logger:   log,
		Clock:    clockwork.NewRealClock(),
		Catalog:  catalogReader,
		Activity: activityReader,
		Writer:   store,
		DB:       db,
		Shards:   *shardsFlag,
	})
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}

	log.Info("starting warehouse run", "songData", *songDataURIFlag, "logData", *logDataURIFlag)
	if err := pipeline.Run(ctx); err != nil {
		return fmt.Errorf("warehouse run failed: %w", err)
	}

	return nil
}
