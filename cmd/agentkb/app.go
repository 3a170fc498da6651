package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/agentkb/internal/agent"
	"github.com/fyrsmithlabs/agentkb/internal/config"
	"github.com/fyrsmithlabs/agentkb/internal/embeddings"
	"github.com/fyrsmithlabs/agentkb/internal/knowledge"
	"github.com/fyrsmithlabs/agentkb/internal/logging"
	"github.com/fyrsmithlabs/agentkb/internal/model"
	"github.com/fyrsmithlabs/agentkb/internal/secrets"
	"github.com/fyrsmithlabs/agentkb/internal/storage"
	"github.com/fyrsmithlabs/agentkb/internal/telemetry"
	"github.com/fyrsmithlabs/agentkb/internal/vectorstore"
)

// Component names, in construction order.
const (
	stepEmbedder    = "embedder"
	stepVectorStore = "vector store"
	stepKnowledge   = "knowledge"
	stepStorage     = "storage"
	stepModel       = "model"
	stepAgent       = "agent"
)

// app holds the components a command needs. Each is built by a step and
// later steps depend on earlier ones.
type app struct {
	cfg       *config.Config
	logger    *logging.Logger
	zl        *zap.Logger
	telemetry *telemetry.Telemetry
	redactor  *secrets.Redactor

	embedder  *embeddings.Client
	store     vectorstore.Store
	knowledge *knowledge.URLKnowledge
	sessions  storage.Store
	chat      model.Chat
	agent     *agent.Agent

	built int
}

// step builds one component and returns a short status detail.
type step struct {
	name  string
	build func(a *app, ctx context.Context) (string, error)
}

// stepResult is the outcome of one step.
type stepResult struct {
	name   string
	detail string
	err    error
}

var steps = []step{
	{name: stepEmbedder, build: (*app).buildEmbedder},
	{name: stepVectorStore, build: (*app).buildVectorStore},
	{name: stepKnowledge, build: (*app).buildKnowledge},
	{name: stepStorage, build: (*app).buildStorage},
	{name: stepModel, build: (*app).buildModel},
	{name: stepAgent, build: (*app).buildAgent},
}

// newApp creates the logger and telemetry; components are built on demand.
// Logs are written to logOut.
func newApp(ctx context.Context, cfg *config.Config, logOut io.Writer) (*app, error) {
	logCfg, err := logging.FromSettings(cfg.Logging)
	if err != nil {
		return nil, err
	}
	logCfg.Output.Writer = logOut

	logger, err := logging.NewLogger(logCfg, nil)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	zl := logger.Underlying()

	tel, err := telemetry.New(ctx, telemetry.FromSettings(cfg.Telemetry), zl)
	if err != nil {
		return nil, err
	}

	redactor, err := secrets.New(cfg.Secrets, zl)
	if err != nil {
		_ = tel.Shutdown(ctx)
		return nil, fmt.Errorf("creating secret redactor: %w", err)
	}

	return &app{cfg: cfg, logger: logger, zl: zl, telemetry: tel, redactor: redactor}, nil
}

// buildThrough builds every component up to and including name.
func (a *app) buildThrough(ctx context.Context, name string) error {
	target := -1
	for i, s := range steps {
		if s.name == name {
			target = i
		}
	}
	if target < 0 {
		return fmt.Errorf("unknown component %q", name)
	}

	for a.built <= target {
		s := steps[a.built]
		if _, err := s.build(a, ctx); err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
		a.built++
	}
	return nil
}

// next builds the next component. It returns false when every component
// is built.
func (a *app) next(ctx context.Context) (stepResult, bool) {
	if a.built >= len(steps) {
		return stepResult{}, false
	}
	s := steps[a.built]
	detail, err := s.build(a, ctx)
	if err == nil {
		a.built++
	}
	return stepResult{name: s.name, detail: detail, err: err}, true
}

func (a *app) buildEmbedder(ctx context.Context) (string, error) {
	a.embedder = embeddings.NewClient(ctx, embeddings.ClientConfigFrom(a.cfg.Embeddings), a.zl)
	if a.embedder.Degraded() {
		return fmt.Sprintf("fallback embeddings (%d dims)", a.embedder.Dimension()), nil
	}
	return fmt.Sprintf("%s (%d dims)", a.embedder.Model(), a.embedder.Dimension()), nil
}

func (a *app) buildVectorStore(ctx context.Context) (string, error) {
	store, err := vectorstore.NewStore(ctx, a.cfg.VectorStore, a.embedder, a.embedder.Dimension(), a.zl)
	if err != nil {
		return "", err
	}
	a.store = store

	count, err := store.Count(ctx)
	if err != nil {
		return "", fmt.Errorf("counting documents: %w", err)
	}
	return fmt.Sprintf("%s collection %q, %d documents", a.cfg.VectorStore.Provider, store.Collection(), count), nil
}

func (a *app) buildKnowledge(_ context.Context) (string, error) {
	if len(a.cfg.Knowledge.URLs) == 0 {
		return "no urls configured, search disabled", nil
	}
	kcfg := knowledge.ConfigFrom(a.cfg.Knowledge)
	if a.redactor != nil {
		kcfg.Redactor = a.redactor
	}
	kb, err := knowledge.NewURLKnowledge(kcfg, a.store, a.zl)
	if err != nil {
		return "", err
	}
	a.knowledge = kb
	return fmt.Sprintf("%d urls, top %d", len(kb.URLs()), kb.NumDocuments()), nil
}

func (a *app) buildStorage(ctx context.Context) (string, error) {
	sessions, err := storage.New(ctx, a.cfg.Storage, a.zl)
	if err != nil {
		return "", err
	}
	if a.redactor != nil {
		sessions = storage.NewRedactingStore(sessions, a.redactor)
	}
	a.sessions = sessions

	ids, err := sessions.List(ctx)
	if err != nil {
		return "", fmt.Errorf("listing sessions: %w", err)
	}
	return fmt.Sprintf("%s table %q, %d sessions", a.cfg.Storage.Provider, a.cfg.Storage.Table, len(ids)), nil
}

func (a *app) buildModel(_ context.Context) (string, error) {
	chat, err := model.NewOpenAICompatible(model.ConfigFrom(a.cfg.Model), a.zl)
	if err != nil {
		return "", err
	}
	a.chat = chat
	return fmt.Sprintf("%s at %s", chat.ID(), a.cfg.Model.BaseURL), nil
}

func (a *app) buildAgent(_ context.Context) (string, error) {
	var kb agent.Knowledge
	if a.knowledge != nil {
		kb = a.knowledge
	}
	ag, err := agent.New(a.chat, kb, a.sessions, agent.OptionsFrom(a.cfg.Agent), a.zl)
	if err != nil {
		return "", err
	}
	a.agent = ag
	return ag.Name(), nil
}

// Close releases components in reverse construction order.
func (a *app) Close() error {
	var errs []error
	if a.sessions != nil {
		errs = append(errs, a.sessions.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.embedder != nil {
		errs = append(errs, a.embedder.Close())
	}
	errs = append(errs, a.telemetry.Shutdown(context.Background()))
	_ = a.logger.Sync()
	return errors.Join(errs...)
}
