// Command search queries the current snapshot and prints one matching
// filename per line.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Image-Text-Search-Platform/internal/search"
	"github.com/Adithya-Monish-Kumar-K/Image-Text-Search-Platform/internal/store"
	"github.com/Adithya-Monish-Kumar-K/Image-Text-Search-Platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Image-Text-Search-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Image-Text-Search-Platform/pkg/logger"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	query := strings.Join(flag.Args(), " ")
	if limit := cfg.Search.MaxQueryLength; limit > 0 && len(query) > limit {
		fmt.Fprintf(os.Stderr, "query longer than %d bytes\n", limit)
		os.Exit(2)
	}

	results, err := search.NewEngine(store.NewCSVStore(cfg.Store.Path)).Search(context.Background(), query)
	if err != nil {
		fmt.Fprintln(os.Stderr, apperrors.UserMessage(err))
		os.Exit(1)
	}
	for _, name := range results {
		fmt.Println(name)
	}
	if len(results) == 0 {
		fmt.Fprintf(os.Stderr, "no images contain %q\n", query)
	}
}
