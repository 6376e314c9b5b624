package main

import (
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/promptsmith/promptsmith/internal/compare"
	"github.com/promptsmith/promptsmith/internal/config"
	"github.com/promptsmith/promptsmith/internal/eval"
	"github.com/promptsmith/promptsmith/internal/generate"
	"github.com/promptsmith/promptsmith/internal/openai"
	"github.com/promptsmith/promptsmith/internal/pixel"
	"github.com/promptsmith/promptsmith/internal/repo"
	"github.com/promptsmith/promptsmith/internal/server"
	"github.com/promptsmith/promptsmith/internal/store"
)

func serveCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the promptsmith HTTP server",
		RunE: func(_ *cobra.Command, _ []string) error {
			settings, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return serve(settings)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")
	return cmd
}

func serve(settings config.Settings) error {
	logger := newLogger(settings)

	if err := settings.EnsureDirectories(); err != nil {
		return err
	}
	images := store.NewBlobStore(settings.ImageDir)
	artifacts := store.NewBlobStore(settings.ArtifactDir)

	repository, err := repo.Open(settings.DataDir, images, artifacts, settings.CompareThreshold)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := repository.Close(); cerr != nil {
			logger.Printf("close repository: %v", cerr)
		}
	}()

	client := openai.New(settings.OpenAIAPIKey, settings.OpenAIBaseURL, settings.Timeout())
	if !client.Enabled() {
		logger.Printf("no OpenAI API key configured; model calls use deterministic fallbacks")
	}

	generator := generate.NewService(
		repository, images,
		generate.NewGenerator(client),
		settings.OpenAIImageModel,
		logger,
	)

	comparer := compare.NewOrchestrator(
		repository, images,
		pixel.NewEngine(artifacts),
		compare.NewSemanticScorer(client, settings.OpenAITextModel),
		compare.NewVisionScorer(client, settings.OpenAIVisionModel),
		logger,
	)

	var planner eval.Planner
	var judge eval.Judge
	var refiner eval.Refiner
	if client.Enabled() {
		planner = eval.NewPlanner(client, settings.OpenAITextModel)
		judge = eval.NewJudge(client, settings.OpenAIVisionModel)
		refiner = eval.NewRefiner(client, settings.OpenAITextModel)
	}
	evaluator := eval.NewService(
		repository, images,
		eval.NewRunStore(),
		generator.Generator(),
		planner, judge, refiner,
		settings.OpenAIImageModel,
		logger,
	)

	srv := server.New(server.Config{Addr: settings.ListenAddr}, repository, generator, comparer, evaluator, logger)
	return srv.ListenAndServe()
}

// newLogger writes to stderr, plus a size-rotated file when configured.
func newLogger(settings config.Settings) *log.Logger {
	var sink io.Writer = os.Stderr
	if settings.LogFile != "" {
		sink = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   settings.LogFile,
			MaxSize:    50, // megabytes
			MaxBackups: 5,
			MaxAge:     30, // days
			Compress:   true,
		})
	}
	return log.New(sink, "[promptsmith] ", log.LstdFlags)
}
