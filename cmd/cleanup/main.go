package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/qs3c/guitar_dice_server/config"
	"github.com/qs3c/guitar_dice_server/internal/database"
	"github.com/qs3c/guitar_dice_server/internal/pkg/logger"
	"github.com/qs3c/guitar_dice_server/internal/pkg/storage"
	"github.com/qs3c/guitar_dice_server/internal/repository"
	"github.com/qs3c/guitar_dice_server/internal/service"
)

var (
	dryRun     = flag.Bool("dry-run", true, "Dry run mode, don't actually delete files")
	graceHours = flag.Int("grace", 0, "Hours to keep unreferenced audio files (0 = use config)")
)

func main() {
	flag.Parse()
	_ = godotenv.Load()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.New(cfg.Server.Mode)

	if *graceHours > 0 {
		cfg.Upload.OrphanGraceHours = *graceHours
	}
	log.Info().
		Bool("dry_run", *dryRun).
		Int("grace_hours", cfg.Upload.OrphanGraceHours).
		Str("dir", cfg.Upload.AudioDir).
		Msg("Starting audio cleanup")

	db, err := database.NewDB(&cfg.Database, cfg.Server.Mode)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect database")
	}

	fileStore, err := storage.NewFileStore(cfg.Upload.AudioDir)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open audio storage")
	}

	// 清理只涉及本地文件，不需要对象存储镜像
	audioService := service.NewAudioService(fileStore, nil, repository.NewChatRepository(db), &cfg.Upload)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := audioService.CleanupOrphans(ctx, *dryRun)
	if err != nil {
		log.Fatal().Err(err).Msg("Cleanup failed")
	}

	for _, key := range report.Removed {
		log.Info().Str("key", key).Bool("dry_run", *dryRun).Msg("orphan audio")
	}

	fmt.Println(strings.Repeat("=", 60))
	fmt.Println("Cleanup Summary")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("Scanned files: %d\n", report.Scanned)
	fmt.Printf("Orphan files:  %d\n", len(report.Removed))
	if *dryRun {
		fmt.Println("DRY RUN MODE - No files were actually deleted")
		fmt.Println("Run with -dry-run=false to actually delete files")
	} else {
		fmt.Println("Cleanup completed")
	}
	fmt.Println(strings.Repeat("=", 60))
}
