package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"docchat-be/internal/bootstrap"
	"docchat-be/internal/config"
	"docchat-be/internal/entity"
	"docchat-be/internal/model"
	"docchat-be/internal/pkg/logger"
	"docchat-be/internal/repository/specification"
	"docchat-be/internal/repository/unitofwork"
	"docchat-be/pkg/database"
	"docchat-be/pkg/events"
	"docchat-be/pkg/llm"
	pktNats "docchat-be/pkg/nats"
	"docchat-be/pkg/rag/ingestion"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/urfave/cli/v2"
	"gorm.io/gorm"
)

const probePrompt = "Reply with the single word: ok"

type env struct {
	cfg *config.Config
	db  *gorm.DB
	log logger.ILogger
	rag *bootstrap.RAG
}

func setup(c *cli.Context) (*env, error) {
	cfg := config.Load()
	db, err := database.Open(cfg.Database.Driver, cfg.Database.Connection)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if cfg.Database.Driver == database.DriverSQLite {
		if err := db.AutoMigrate(model.All()...); err != nil {
			return nil, fmt.Errorf("migrate sqlite schema: %w", err)
		}
	}
	log := logger.NewConsoleLogger(c.Bool("debug"))
	r, err := bootstrap.NewRAG(c.Context, cfg, db, nil, log)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, db: db, log: log, rag: r}, nil
}

var errOwnerNotFound = errors.New("owner not found")

// openSession records the chat session an ingested file is asked through, so
// `ask --session` can find it afterwards.
func openSession(ctx context.Context, uow unitofwork.UnitOfWork, owner *uuid.UUID, filename string) (*entity.ChatSession, error) {
	if owner != nil {
		user, err := uow.UserRepository().FindOne(ctx, specification.ByID{ID: *owner})
		if err != nil {
			return nil, err
		}
		if user == nil {
			return nil, errOwnerNotFound
		}
	}

	session := &entity.ChatSession{Id: uuid.New(), UserId: owner, DocumentFilename: filename}
	if err := uow.ChatSessionRepository().Create(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

func ingestCommand(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		return cli.Exit("usage: ragctl ingest <file>", 2)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var owner *uuid.UUID
	if raw := c.String("owner"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return cli.Exit(fmt.Sprintf("invalid owner %q", raw), 2)
		}
		owner = &id
	}

	e, err := setup(c)
	if err != nil {
		return err
	}

	uow := unitofwork.NewRepositoryFactory(e.db).NewUnitOfWork(c.Context)
	session, err := openSession(c.Context, uow, owner, filepath.Base(path))
	if errors.Is(err, errOwnerNotFound) {
		return cli.Exit(err.Error(), 1)
	}
	if err != nil {
		return err
	}
	color.Cyan("session: %s", session.Id)

	doc := session.Document()

	job := ingestion.NewJob(session.Id.String(), doc, path)
	e.rag.Pipeline.Accept(job)

	start := time.Now()
	status, err := e.rag.Pipeline.Run(c.Context, job, data)
	if err != nil {
		color.Red("%s: %s after %d/%d chunks", status.State, err, status.Committed, status.Chunks)
		return cli.Exit("", 1)
	}
	color.Green("%s: %d chunks stored for %s/%s in %s",
		status.State, status.Chunks, doc.OwnerKey, doc.Filename, time.Since(start).Round(time.Millisecond))
	return nil
}

func askCommand(c *cli.Context) error {
	question := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if question == "" {
		return cli.Exit("usage: ragctl ask --session <id> <question>", 2)
	}
	sessionId, err := uuid.Parse(c.String("session"))
	if err != nil {
		return cli.Exit("invalid session id", 2)
	}

	e, err := setup(c)
	if err != nil {
		return err
	}

	uow := unitofwork.NewRepositoryFactory(e.db).NewUnitOfWork(c.Context)
	session, err := uow.ChatSessionRepository().FindOne(c.Context, specification.ByID{ID: sessionId})
	if err != nil {
		return err
	}
	if session == nil {
		return cli.Exit("session not found", 1)
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt)
	defer stop()

	result, err := e.rag.Retriever.Retrieve(ctx, session.Document(), question)
	if err != nil {
		return err
	}
	for _, src := range result.Sources {
		color.Cyan("source: %s p.%d", src.Filename, src.Page)
	}

	run := e.rag.Cascade.Stream(ctx, result.Prompt)
	for fragment := range run.Fragments() {
		fmt.Print(fragment)
	}
	fmt.Println()

	outcome := run.Outcome()
	via := "no candidate"
	if outcome.Committed != nil {
		via = outcome.Committed.String()
	}
	color.Yellow("%s via %s, %d failed candidates", outcome.State, via, len(outcome.Failed))
	return nil
}

func resetCommand(c *cli.Context) error {
	if !c.Bool("yes") {
		return cli.Exit("refusing to reset without --yes", 2)
	}
	e, err := setup(c)
	if err != nil {
		return err
	}
	if err := e.rag.Store.Reset(c.Context); err != nil {
		return err
	}
	color.Green("vector table recreated with dimension %d", e.rag.Store.Dimension())
	return nil
}

func modelsCommand(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}

	failed := 0
	for _, cand := range e.rag.Cascade.Candidates() {
		provider, err := e.rag.Registry.Get(cand.Provider)
		if err != nil {
			color.Red("%-40s %v", cand, err)
			failed++
			continue
		}
		ctx, cancel := context.WithTimeout(c.Context, 30*time.Second)
		start := time.Now()
		reply, err := llm.Collect(ctx, provider, probePrompt, cand.Model)
		cancel()
		if err != nil {
			color.Red("%-40s %v", cand, err)
			failed++
			continue
		}
		color.Green("%-40s ok in %s: %q", cand, time.Since(start).Round(time.Millisecond), strings.TrimSpace(reply))
	}
	if failed == len(e.rag.Cascade.Candidates()) {
		return cli.Exit("no candidate answered", 1)
	}
	return nil
}

func eventsCommand(c *cli.Context) error {
	cfg := config.Load()
	if cfg.App.NatsURL == "" {
		return cli.Exit("NATS_URL is not set", 2)
	}
	log := logger.NewConsoleLogger(c.Bool("debug"))

	sub, err := pktNats.NewSubscriber(cfg.App.NatsURL, log)
	if err != nil {
		return err
	}
	defer sub.Close()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt)
	defer stop()

	cancel, err := sub.Subscribe(ctx, c.String("subject"), "", func(_ context.Context, event events.Event) error {
		line := fmt.Sprintf("%s %-22s %v", event.Timestamp().Format(time.RFC3339), event.EventType(), event.Payload())
		if strings.HasSuffix(event.EventType(), ".failed") {
			color.Red("%s", line)
		} else {
			color.Green("%s", line)
		}
		return nil
	})
	if err != nil {
		return err
	}
	defer cancel()

	color.Cyan("tailing %s, Ctrl+C to stop", c.String("subject"))
	<-ctx.Done()
	return nil
}
