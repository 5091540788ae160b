package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/karrick/godirwalk"
	"github.com/rs/zerolog"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/pflag"

	"github.com/clausescan/clausescan/internal/ai"
	"github.com/clausescan/clausescan/internal/config"
	"github.com/clausescan/clausescan/internal/ingest"
	"github.com/clausescan/clausescan/internal/store"
)

func main() {
	_ = godotenv.Load()

	fs := pflag.NewFlagSet("clausescan-ingest", pflag.ExitOnError)
	cfg, err := config.Load("", fs)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	fs.Usage = cfg.Usage

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Invalid log level '%s': %v", cfg.LogLevel, err)
	}
	logger := zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()

	var clientConfig *ai.ClientConfig
	switch strings.ToLower(cfg.Provider) {
	case "openai":
		clientConfig = &ai.ClientConfig{
			APIKey:      cfg.APIKey,
			EmbedModel:  cfg.EmbedModel,
			AnswerModel: cfg.AnswerModel,
			Dim:         cfg.Dim,
			ProjectID:   cfg.ProjectID,
			Provider:    ai.ProviderOpenAI,
		}
	case "vertexai", "google":
		clientConfig = &ai.ClientConfig{
			APIKey:      cfg.APIKey,
			EmbedModel:  cfg.EmbedModel,
			AnswerModel: cfg.AnswerModel,
			Dim:         cfg.Dim,
			ProjectID:   cfg.ProjectID,
			Location:    cfg.Location,
			Provider:    ai.ProviderVertexAI,
		}
	case "stub":
		clientConfig = &ai.ClientConfig{
			Dim:      cfg.Dim,
			Provider: ai.ProviderStub,
		}
	default:
		log.Fatalf("unsupported provider: %s", cfg.Provider)
	}

	ctx := context.Background()

	st, err := store.New(ctx, cfg.Database)
	if err != nil {
		log.Fatal(err)
	}
	defer st.Close()

	client, err := ai.NewClient(clientConfig)
	if err != nil {
		log.Fatalf("Failed to create AI client: %v", err)
	}

	if err := st.Migrate(ctx, client.Dim()); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	files, err := collectContractFiles(cfg.ContractsDir, cfg.MaxFiles, cfg.MaxFileSizeBytes())
	if err != nil {
		log.Fatalf("Failed to scan %s: %v", cfg.ContractsDir, err)
	}
	if len(files) == 0 {
		logger.Warn().Str("dir", cfg.ContractsDir).Msg("no contract files found")
		return
	}

	svc := ingest.New(st, client, cfg.Chunking(), cfg.Workers)

	bar := progressbar.NewOptions(len(files),
		progressbar.OptionSetDescription("ingesting contracts"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWriter(os.Stderr),
	)

	var ingested, duplicates, failed int
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			logger.Warn().Err(err).Str("path", path).Msg("read failed")
			failed++
			_ = bar.Add(1)
			continue
		}

		res, err := svc.Ingest(ctx, filepath.Base(path), data)
		if err != nil {
			logger.Warn().Err(err).Str("path", path).Msg("ingest failed")
			failed++
			_ = bar.Add(1)
			continue
		}
		if res.Duplicate {
			duplicates++
		} else {
			ingested++
		}
		_ = bar.Add(1)
	}
	fmt.Fprintln(os.Stderr)

	logger.Info().
		Int("ingested", ingested).
		Int("duplicates", duplicates).
		Int("failed", failed).
		Msg("ingestion run complete")
	if failed > 0 {
		os.Exit(1)
	}
}

// collectContractFiles walks dir for .txt files, skipping hidden entries and
// anything over the size limit, capped at maxFiles.
func collectContractFiles(dir string, maxFiles int, maxSize int64) ([]string, error) {
	var files []string
	err := godirwalk.Walk(dir, &godirwalk.Options{
		Unsorted: false,
		Callback: func(path string, de *godirwalk.Dirent) error {
			if de.IsDir() {
				if strings.HasPrefix(de.Name(), ".") && path != dir {
					return filepath.SkipDir
				}
				return nil
			}
			if strings.HasPrefix(de.Name(), ".") {
				return nil
			}
			if !strings.EqualFold(filepath.Ext(path), ".txt") {
				return nil
			}
			fi, err := os.Stat(path)
			if err != nil || fi.Size() > maxSize {
				return nil
			}
			if len(files) < maxFiles {
				files = append(files, path)
			}
			return nil
		},
	})
	return files, err
}
