package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"imagestudio/core"
	"imagestudio/db"
	"imagestudio/genimg"
	"imagestudio/history"
	"imagestudio/logging"
	"imagestudio/pipeline"
	"imagestudio/prompt"
	"imagestudio/studio"
)

const usage = `imagestudio - AI image generation studio

Usage:
  imagestudio generate [flags]   generate a batch of images
  imagestudio edit [flags]       edit staged images with an instruction prompt
  imagestudio elaborate [flags]  expand a terse description into a rich prompt
  imagestudio styles             list the available style templates
  imagestudio history [flags]    list or export history images
  imagestudio clear              clear both history collections

Run "imagestudio <command> -h" for command flags.`

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		fmt.Println(usage)
		return 1
	}

	// Load .env file if it exists
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		// Use fmt here since the logger isn't initialized yet
		fmt.Printf("Warning: could not load .env file: %v\n", err)
	}

	cfg, err := core.LoadConfig()
	if err != nil {
		fmt.Printf("Configuration error: %v\n", err)
		return 1
	}

	logger, err := logging.New(logging.Config{
		Development: cfg.DevMode,
		FilePath:    cfg.LogFilePath,
	})
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		return 1
	}
	defer logger.Sync()

	logger.Info("Configuration loaded",
		zap.String("provider", cfg.Provider),
		zap.String("data_dir", cfg.DataDir),
		zap.Bool("dev_mode", cfg.DevMode),
	)

	database, err := db.NewDatabase(cfg.DatabasePath)
	if err != nil {
		logger.Error("Failed to open database", zap.Error(err))
		return 1
	}
	defer database.Close()

	if err := database.Migrate(); err != nil {
		logger.Error("Failed to run migrations", zap.Error(err))
		return 1
	}

	repo, err := db.NewRepository(database)
	if err != nil {
		logger.Error("Failed to create repository", zap.Error(err))
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	provider, err := newProvider(ctx, cfg)
	if err != nil {
		logger.Error("Failed to create provider", zap.Error(err))
		return 1
	}

	engineConfig := pipeline.DefaultConfig()
	if cfg.MaxAttempts > 0 {
		engineConfig.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.InitialBackoff > 0 {
		engineConfig.InitialBackoff = cfg.InitialBackoff
	}
	if cfg.ItemCooldown > 0 {
		engineConfig.ItemCooldown = cfg.ItemCooldown
	}

	session := pipeline.NewSession()
	session.OnUpdate = printStatus

	engine, err := pipeline.NewEngine(engineConfig, session, logger)
	if err != nil {
		logger.Error("Failed to create engine", zap.Error(err))
		return 1
	}

	st, err := studio.New(studio.Config{
		Provider: provider,
		Engine:   engine,
		Store:    repo,
		Logger:   logger,
	}, prompt.NewCompositor(rand.NewSource(time.Now().UnixNano())))
	if err != nil {
		logger.Error("Failed to create studio", zap.Error(err))
		return 1
	}

	if err := st.RestoreHistories(ctx); err != nil {
		logger.Error("Failed to restore histories", zap.Error(err))
		return 1
	}

	// A first interrupt stops the batch gracefully; a second aborts.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Interrupt received, stopping batch")
		session.Stop()
		<-sigChan
		cancel()
	}()

	command, commandArgs := args[0], args[1:]
	switch command {
	case "generate":
		return cmdGenerate(ctx, st, commandArgs)
	case "edit":
		return cmdEdit(ctx, st, commandArgs)
	case "elaborate":
		return cmdElaborate(ctx, st, commandArgs)
	case "styles":
		return cmdStyles(st)
	case "history":
		return cmdHistory(ctx, st, commandArgs)
	case "clear":
		return cmdClear(ctx, st)
	default:
		fmt.Printf("Unknown command %q\n\n%s\n", command, usage)
		return 1
	}
}

// newProvider builds the configured generation backend.
func newProvider(ctx context.Context, cfg *core.Config) (genimg.Provider, error) {
	switch cfg.Provider {
	case core.ProviderGemini:
		return genimg.NewGeminiProvider(ctx, genimg.DefaultGeminiProviderConfig(cfg.GeminiAPIKey))
	case core.ProviderOpenAI:
		return genimg.NewOpenAIProvider(genimg.DefaultOpenAIProviderConfig(cfg.OpenAIAPIKey))
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}

// printStatus renders the session status as a single overwritten line.
func printStatus(snap pipeline.Snapshot) {
	line := snap.Message
	if snap.Total > 0 {
		line = fmt.Sprintf("[%d/%d] %s", snap.Completed, snap.Total, snap.Message)
	}

	switch {
	case snap.Err != nil:
		color.Red("\r%-80s", line)
	case !snap.Running && snap.Message != "":
		color.Green("\r%-80s", line)
	default:
		fmt.Printf("\r%-80s", color.CyanString(line))
	}
}

func cmdGenerate(ctx context.Context, st *studio.Studio, args []string) int {
	fs := flag.NewFlagSet("generate", flag.ExitOnError)
	description := fs.String("prompt", "", "image description (defaults to the saved or built-in description)")
	styleName := fs.String("style", "", "primary style name (see \"imagestudio styles\")")
	style2Name := fs.String("style2", "", "secondary modifier style name")
	colorKey := fs.String("color", "", "dominant color modifier")
	extraColorKey := fs.String("grading", "", "color grading modifier")
	guidance := fs.Int("guidance", 0, "guidance level 1-15")
	aspect := fs.String("aspect", "", "aspect ratio: 1:1, 16:9, 9:16, 3:4, 4:3")
	seed := fs.String("seed", "", "deterministic seed (blank for random)")
	count := fs.Int("count", 1, "number of images to generate")
	outDir := fs.String("out", "output", "directory for generated image files")
	fs.Parse(args)

	settings, err := st.LoadSettings(ctx)
	if err != nil {
		fmt.Printf("Failed to load settings: %v\n", err)
		return 1
	}
	settings = mergeSettings(settings, *description, *styleName, *style2Name, *colorKey, *extraColorKey, *guidance, *aspect)

	before := len(st.GenerationHistory())
	runErr := st.Generate(ctx, studio.GenerateParams{
		Description:   settings.Description,
		StyleName:     settings.StyleName,
		Style2Name:    settings.Style2Name,
		ColorKey:      settings.ColorKey,
		ExtraColorKey: settings.ExtraColorKey,
		GuidanceLevel: settings.GuidanceLevel,
		AspectRatio:   settings.AspectRatio,
		Seed:          *seed,
		Count:         *count,
	})
	fmt.Println()

	// Keep whatever completed, even on stop or failure.
	produced := len(st.GenerationHistory()) - before
	if produced > 0 {
		if err := exportImages(st.GenerationHistory()[:produced], *outDir); err != nil {
			fmt.Printf("Failed to export images: %v\n", err)
			return 1
		}
		color.Green("Saved %d image(s) to %s", produced, *outDir)
	}

	if runErr != nil {
		fmt.Printf("%v\n", runErr)
		return 1
	}

	if err := st.SaveSettings(ctx, settings); err != nil {
		fmt.Printf("Warning: failed to save settings: %v\n", err)
	}
	return 0
}

func cmdEdit(ctx context.Context, st *studio.Studio, args []string) int {
	fs := flag.NewFlagSet("edit", flag.ExitOnError)
	promptText := fs.String("prompt", "", "edit instruction (may reference @img1..@img8 and @style)")
	styleName := fs.String("style", "", "style spliced in place of the @style token")
	aspect := fs.String("aspect", "source", "target aspect ratio, or \"source\" to keep the input shape")
	seed := fs.String("seed", "", "deterministic seed (blank for random)")
	count := fs.Int("count", 1, "number of edits to run")
	outDir := fs.String("out", "output", "directory for edited image files")

	var inputs []string
	fs.Func("input", "image file to stage as an edit source (repeatable)", func(path string) error {
		inputs = append(inputs, path)
		return nil
	})
	var fromHistory []string
	fs.Func("use", "history index to stage (1 = newest, repeatable)", func(v string) error {
		fromHistory = append(fromHistory, v)
		return nil
	})
	fs.Parse(args)

	for _, path := range inputs {
		data, err := os.ReadFile(path)
		if err != nil {
			fmt.Printf("Failed to read %s: %v\n", path, err)
			return 1
		}
		if _, err := st.ImportImage(data, mimeFromPath(path)); err != nil {
			fmt.Printf("Failed to stage %s: %v\n", path, err)
			return 1
		}
	}

	generation := st.GenerationHistory()
	for _, v := range fromHistory {
		index, err := strconv.Atoi(v)
		if err != nil || index < 1 || index > len(generation) {
			fmt.Printf("Invalid history index %q (history has %d images)\n", v, len(generation))
			return 1
		}
		if err := st.StageForEdit(generation[index-1].ID); err != nil {
			fmt.Printf("Failed to stage history image: %v\n", err)
			return 1
		}
	}

	before := len(st.EditHistory())
	runErr := st.Edit(ctx, studio.EditParams{
		Prompt:      *promptText,
		StyleName:   *styleName,
		AspectRatio: genimg.AspectRatio(*aspect),
		Seed:        *seed,
		Count:       *count,
	})
	fmt.Println()

	produced := len(st.EditHistory()) - before
	if produced > 0 {
		if err := exportImages(st.EditHistory()[:produced], *outDir); err != nil {
			fmt.Printf("Failed to export images: %v\n", err)
			return 1
		}
		color.Green("Saved %d image(s) to %s", produced, *outDir)
	}

	if runErr != nil {
		fmt.Printf("%v\n", runErr)
		return 1
	}
	return 0
}

func cmdElaborate(ctx context.Context, st *studio.Studio, args []string) int {
	fs := flag.NewFlagSet("elaborate", flag.ExitOnError)
	description := fs.String("prompt", "", "description to elaborate")
	fs.Parse(args)

	elaborated, err := st.Elaborate(ctx, *description)
	if err != nil {
		fmt.Printf("%v\n", err)
		return 1
	}
	fmt.Println(elaborated)
	return 0
}

func cmdStyles(st *studio.Studio) int {
	category := ""
	for _, style := range st.Catalog().Styles() {
		if style.Category != category {
			category = style.Category
			color.Cyan("%s", category)
		}
		fmt.Printf("  %s\n", style.Name)
	}
	return 0
}

func cmdHistory(ctx context.Context, st *studio.Studio, args []string) int {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	collection := fs.String("collection", "generation", "collection to list: generation or edit")
	export := fs.String("export", "", "directory to export the listed images into")
	fs.Parse(args)

	var items = st.GenerationHistory()
	if *collection == "edit" {
		items = st.EditHistory()
	} else if *collection != "generation" {
		fmt.Printf("Unknown collection %q\n", *collection)
		return 1
	}

	if len(items) == 0 {
		fmt.Println("History is empty.")
		return 0
	}
	for i, item := range items {
		fmt.Printf("%2d. %s  %dx%d  %s\n", i+1, item.ID, item.Width, item.Height, truncate(item.Prompt, 70))
	}

	if *export != "" {
		if err := exportImages(items, *export); err != nil {
			fmt.Printf("Failed to export: %v\n", err)
			return 1
		}
		color.Green("Exported %d image(s) to %s", len(items), *export)
	}
	return 0
}

func cmdClear(ctx context.Context, st *studio.Studio) int {
	if err := st.ClearHistories(ctx); err != nil {
		fmt.Printf("Failed to clear histories: %v\n", err)
		return 1
	}
	fmt.Println("History cleared.")
	return 0
}

// exportImages writes history entries into dir as image files named by ID.
func exportImages(items []history.GeneratedImage, dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	for _, item := range items {
		name := filepath.Join(dir, item.ID.String()+extForMime(item.MimeType))
		if err := os.WriteFile(name, item.Data, 0644); err != nil {
			return err
		}
	}
	return nil
}

func extForMime(mime string) string {
	if mime == "image/jpeg" {
		return ".jpg"
	}
	return ".png"
}

func mimeFromPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".gif":
		return "image/gif"
	default:
		return "image/png"
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

// mergeSettings overlays non-empty flag values onto the persisted settings.
func mergeSettings(s studio.Settings, description, style, style2, colorKey, grading string, guidance int, aspect string) studio.Settings {
	if description != "" {
		s.Description = description
	}
	if style != "" {
		s.StyleName = style
	}
	if style2 != "" {
		s.Style2Name = style2
	}
	if colorKey != "" {
		s.ColorKey = colorKey
	}
	if grading != "" {
		s.ExtraColorKey = grading
	}
	if guidance != 0 {
		s.GuidanceLevel = guidance
	}
	if aspect != "" {
		s.AspectRatio = genimg.AspectRatio(aspect)
	}
	return s
}
