package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"calbot/internal/assistant"
	"calbot/internal/calendar"
	"calbot/internal/config"
	"calbot/internal/orchestrator"
	"calbot/internal/scheduling"
	"calbot/internal/storage"
	"calbot/internal/tools"
)

func main() {
	var (
		configPath string
		userID     string
		timezone   string
	)
	flag.StringVar(&configPath, "config", "", "Path to config JSON")
	flag.StringVar(&userID, "user", "local", "User ID for this session")
	flag.StringVar(&timezone, "tz", "", "IANA timezone, e.g. Asia/Shanghai")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	store, err := storage.NewSQLiteStore(filepath.Join(cfg.Storage.BaseDir, "calbot.db"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "init storage failed: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	provider := calendar.NewGoogleProvider(cfg.Calendar.CalendarID, logger)
	schedSvc := scheduling.NewService(store, provider, logger)

	registry := tools.NewRegistry(logger)
	tools.RegisterCatalog(registry, schedSvc)

	assistantSvc := assistant.NewOpenAIService(
		cfg.Assistant.APIKey,
		cfg.Assistant.BaseURL,
		time.Duration(cfg.Assistant.TimeoutMS)*time.Millisecond,
	)
	sessions := assistant.NewSessionManager(
		assistantSvc, store,
		cfg.Assistant.Model, "calendar-assistant",
		registry.Definitions(), logger,
	)

	orch := orchestrator.New(assistantSvc, sessions, registry, store, logger, orchestrator.Options{
		PollInterval:   time.Duration(cfg.Run.PollIntervalMS) * time.Millisecond,
		InitialTimeout: time.Duration(cfg.Run.InitialTimeoutMS) * time.Millisecond,
		ToolTimeout:    time.Duration(cfg.Run.ToolTimeoutMS) * time.Millisecond,
		CancelGrace:    time.Duration(cfg.Run.CancelGraceMS) * time.Millisecond,
		MaxInputTokens: cfg.Run.MaxInputTokens,
	})

	inputReader, inputErr := newLineInput(filepath.Join(cfg.Storage.BaseDir, "repl.history"))
	if inputErr != nil {
		fmt.Fprintf(os.Stderr, "line editor unavailable, fallback to basic input: %v\n", inputErr)
	}
	defer inputReader.Close()

	fmt.Println(noticeStyle.Render("calbot: calendar assistant. Type a request, or exit to quit."))

	runREPL(context.Background(), orch, inputReader, userID, timezone, cfg.Calendar.AccessToken)
}

func runREPL(ctx context.Context, orch *orchestrator.Orchestrator, input lineInput, userID, timezone, calendarToken string) {
	for {
		line, err := input.ReadLine(promptStyle.Render("you> "))
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			if errors.Is(err, io.EOF) {
				return
			}
			fmt.Fprintln(os.Stderr, errorStyle.Render(fmt.Sprintf("read input: %v", err)))
			return
		}

		text := strings.TrimSpace(line)
		if text == "" {
			continue
		}
		if text == "exit" || text == "quit" {
			return
		}

		result := orch.RunTurn(ctx, orchestrator.TurnRequest{
			UserID:        userID,
			Text:          text,
			Timezone:      timezone,
			CalendarToken: calendarToken,
		})
		if !result.Success {
			fmt.Println(errorStyle.Render(result.Message))
			continue
		}
		if result.ThreadReplaced {
			fmt.Println(noticeStyle.Render("(started a fresh conversation)"))
		}
		fmt.Println(renderMarkdown(result.Message, 80))
	}
}
