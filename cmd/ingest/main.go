// Command ingest runs one ingestion over a local archive and replaces the
// snapshot, without starting the HTTP service.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Image-Text-Search-Platform/internal/archive"
	"github.com/Adithya-Monish-Kumar-K/Image-Text-Search-Platform/internal/ingest/validator"
	"github.com/Adithya-Monish-Kumar-K/Image-Text-Search-Platform/internal/ocr"
	"github.com/Adithya-Monish-Kumar-K/Image-Text-Search-Platform/internal/ocr/tesseract"
	"github.com/Adithya-Monish-Kumar-K/Image-Text-Search-Platform/internal/pipeline"
	"github.com/Adithya-Monish-Kumar-K/Image-Text-Search-Platform/internal/search"
	"github.com/Adithya-Monish-Kumar-K/Image-Text-Search-Platform/internal/service"
	"github.com/Adithya-Monish-Kumar-K/Image-Text-Search-Platform/internal/store"
	"github.com/Adithya-Monish-Kumar-K/Image-Text-Search-Platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Image-Text-Search-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Image-Text-Search-Platform/pkg/logger"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	archivePath := flag.String("archive", "", "path to the .zip archive to ingest")
	workers := flag.Int("workers", 0, "concurrent OCR workers (0 keeps the configured value)")
	verbose := flag.Bool("v", false, "print every failed entry")
	flag.Parse()

	if *archivePath == "" {
		fmt.Fprintln(os.Stderr, "usage: ingest -archive scans.zip [-config file] [-workers n] [-v]")
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *workers > 0 {
		cfg.OCR.Workers = *workers
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	data, err := os.ReadFile(*archivePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read archive: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	snapshots := store.NewCSVStore(cfg.Store.Path)
	p := pipeline.New(
		archive.NewWalker(cfg.OCR.Extensions, cfg.OCR.MaxEntryBytes),
		ocr.NewAdapter(tesseract.New(cfg.OCR.Languages)),
		snapshots,
		cfg.OCR,
	)
	svc := service.New(p, search.NewEngine(snapshots), validator.New(cfg.Ingest.MaxUploadBytes))

	res, err := svc.RunIngest(ctx, filepath.Base(*archivePath), data)
	if err != nil {
		slog.Debug("ingestion failed", "error", err)
		fmt.Fprintln(os.Stderr, apperrors.UserMessage(err))
		os.Exit(1)
	}

	fmt.Println(service.UploadMessage(res))
	fmt.Printf("run %s saved %d record(s) to %s in %s\n", res.RunID, len(res.Records), snapshots.Path(), res.Duration.Round(time.Millisecond))
	if *verbose {
		for _, f := range res.Failures() {
			fmt.Printf("  failed %s: %v\n", f.Name, f.Err)
		}
	}
}
