package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	types "github.com/meravakil/meravakil-backend/internal/domain"
	"github.com/meravakil/meravakil-backend/internal/observability"
	"github.com/meravakil/meravakil-backend/internal/platform/apierr"
	"github.com/meravakil/meravakil-backend/internal/platform/logger"
	"github.com/meravakil/meravakil-backend/internal/platform/openai"
	"github.com/meravakil/meravakil-backend/internal/platform/pinecone"
	"github.com/meravakil/meravakil-backend/internal/platform/tokenizer"
	"github.com/meravakil/meravakil-backend/internal/prompts"
)

// Answer is the result of one retrieval-augmented completion.
type Answer struct {
	Text     string
	Grounded bool
	Sources  []types.Source
	Model    string
}

type AssistantConfig struct {
	TopK     int
	MinScore float64
	// TextField is the metadata key holding a match's passage.
	TextField     string
	SourceField   string
	Namespace     string
	ContextTokens int
	Temperature   float32
}

func DefaultAssistantConfig() AssistantConfig {
	return AssistantConfig{
		TopK:          5,
		TextField:     "text",
		SourceField:   "source",
		ContextTokens: 3000,
	}
}

type AssistantService interface {
	AnswerQuery(ctx context.Context, query string) (*Answer, error)
}

type assistantService struct {
	log     *logger.Logger
	ai      openai.Client
	store   pinecone.VectorStore
	prompts *prompts.Set
	tok     *tokenizer.Tokenizer
	metrics *observability.Metrics
	cfg     AssistantConfig
}

func NewAssistantService(
	baseLog *logger.Logger,
	ai openai.Client,
	store pinecone.VectorStore,
	promptSet *prompts.Set,
	tok *tokenizer.Tokenizer,
	metrics *observability.Metrics,
	cfg AssistantConfig,
) AssistantService {
	def := DefaultAssistantConfig()
	if cfg.TopK <= 0 {
		cfg.TopK = def.TopK
	}
	if strings.TrimSpace(cfg.TextField) == "" {
		cfg.TextField = def.TextField
	}
	if strings.TrimSpace(cfg.SourceField) == "" {
		cfg.SourceField = def.SourceField
	}
	if cfg.ContextTokens <= 0 {
		cfg.ContextTokens = def.ContextTokens
	}
	if promptSet == nil {
		promptSet = prompts.Default()
	}
	if tok == nil {
		tok = tokenizer.Shared()
	}
	return &assistantService{
		log:     baseLog.With("service", "AssistantService"),
		ai:      ai,
		store:   store,
		prompts: promptSet,
		tok:     tok,
		metrics: metrics,
		cfg:     cfg,
	}
}

type retrievedDoc struct {
	text   string
	source types.Source
}

func (s *assistantService) AnswerQuery(ctx context.Context, query string) (*Answer, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apierr.Invalid("query", "must not be empty")
	}

	ctx, span := observability.Tracer().Start(ctx, "assistant.AnswerQuery")
	defer span.End()

	docs, err := s.retrieve(ctx, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "retrieval failed")
		return nil, err
	}

	grounded := len(docs) > 0
	span.SetAttributes(attribute.Bool("rag.grounded", grounded), attribute.Int("rag.matches", len(docs)))
	if grounded {
		s.log.Info("answerQuery: using vector matches", "matches", len(docs))
	} else {
		s.log.Warn("answerQuery: no vector matches, using general prompt")
	}

	name := prompts.General
	vars := prompts.Vars{Query: query}
	sources := make([]types.Source, 0, len(docs))
	if grounded {
		name = prompts.Grounded
		texts := make([]string, 0, len(docs))
		for _, d := range docs {
			texts = append(texts, d.text)
			sources = append(sources, d.source)
		}
		vars.Context = s.tok.Truncate(strings.Join(texts, "\n\n"), s.cfg.ContextTokens)
	}
	rendered, err := s.prompts.Render(name, vars)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	completion, err := s.ai.Complete(ctx, openai.CompletionRequest{
		System:      rendered.System,
		User:        rendered.User,
		Temperature: s.cfg.Temperature,
	})
	status := "ok"
	if err != nil {
		status = "error"
	}
	model := ""
	if completion != nil {
		model = completion.Model
	}
	s.metrics.ObserveLLMRequest(model, "chat.completions", status, time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "completion failed")
		return nil, fmt.Errorf("answer query: %w", err)
	}

	return &Answer{
		Text:     completion.Text,
		Grounded: grounded,
		Sources:  sources,
		Model:    completion.Model,
	}, nil
}

// retrieve embeds query and returns the matches that clear MinScore and carry text.
func (s *assistantService) retrieve(ctx context.Context, query string) ([]retrievedDoc, error) {
	start := time.Now()
	vecs, err := s.ai.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embed query: expected 1 vector, got %d", len(vecs))
	}
	matches, err := s.store.QueryMatches(ctx, s.cfg.Namespace, vecs[0], s.cfg.TopK, nil)
	if err != nil {
		return nil, fmt.Errorf("query vector index: %w", err)
	}

	docs := make([]retrievedDoc, 0, len(matches))
	for _, m := range matches {
		if m.Score < s.cfg.MinScore {
			continue
		}
		text := m.Text(s.cfg.TextField)
		if text == "" {
			continue
		}
		docs = append(docs, retrievedDoc{
			text:   text,
			source: types.Source{ID: m.ID, Score: m.Score, Source: m.Text(s.cfg.SourceField)},
		})
	}
	s.metrics.ObserveRetrieval(len(docs), time.Since(start))
	return docs, nil
}
