package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/document-intelligence/internal/core/domain"
	"github.com/kirillkom/document-intelligence/internal/core/ports"
)

const (
	ragTopK               = 5
	contextSeparator      = "\n---\n"
	noSearchContextAnswer = "No relevant context found in this document."
	noChatContextAnswer   = "No relevant context found."
	noHistory             = "No previous history."

	defaultEmbedConcurrency = 4

	endpointSearch = "search"
	endpointChat   = "chat"
)

// RAGUseCase answers questions over lazily ingested document analyses.
type RAGUseCase struct {
	docs     ports.DocumentRepository
	chunker  ports.Chunker
	embedder ports.Embedder
	vectors  ports.VectorStore
	gen      ports.TextGenerator
	prompts  ports.PromptStore
	observer ports.RAGObserver
	logger   *zap.Logger

	embedConcurrency int
	now              func() time.Time
}

func NewRAGUseCase(
	docs ports.DocumentRepository,
	chunker ports.Chunker,
	embedder ports.Embedder,
	vectors ports.VectorStore,
	gen ports.TextGenerator,
	prompts ports.PromptStore,
	observer ports.RAGObserver,
	logger *zap.Logger,
	embedConcurrency int,
) *RAGUseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	if embedConcurrency <= 0 {
		embedConcurrency = defaultEmbedConcurrency
	}
	return &RAGUseCase{
		docs:             docs,
		chunker:          chunker,
		embedder:         embedder,
		vectors:          vectors,
		gen:              gen,
		prompts:          prompts,
		observer:         observer,
		logger:           logger,
		embedConcurrency: embedConcurrency,
		now:              utcNow,
	}
}

// EnsureIngested indexes the document's analysis unless that already
// succeeded.
func (uc *RAGUseCase) EnsureIngested(ctx context.Context, documentID string) error {
	if isBlank(documentID) {
		return invalidInput(msgOCRIDRequired)
	}
	doc, err := loadDocument(ctx, uc.docs, documentID, msgRecordNotFound)
	if err != nil {
		return err
	}
	if doc.Status.RAG == domain.PhaseSuccess {
		return nil
	}
	if !doc.Analyzed() {
		return domain.NewError(domain.ErrNotAnalyzed, msgIngestNoAnalysis)
	}
	return uc.ingest(ctx, doc)
}

func (uc *RAGUseCase) Search(ctx context.Context, documentID, query string) (*domain.Answer, error) {
	if isBlank(query) {
		return nil, invalidInput(msgQueryRequired)
	}
	return uc.answer(ctx, endpointSearch, documentID, query, noSearchContextAnswer, func(contextText string) string {
		return uc.prompts.Render(ports.PromptRAGQA, map[string]string{
			"CONTEXT":  contextText,
			"QUESTION": query,
		})
	})
}

func (uc *RAGUseCase) Chat(ctx context.Context, documentID, question string, turns []domain.ChatTurn) (*domain.Answer, error) {
	if isBlank(question) {
		return nil, invalidInput(msgQuestionRequired)
	}
	return uc.answer(ctx, endpointChat, documentID, question, noChatContextAnswer, func(contextText string) string {
		return uc.prompts.Render(ports.PromptRAGChat, map[string]string{
			"CONTEXT":  contextText,
			"HISTORY":  transcript(turns),
			"QUESTION": question,
		})
	})
}

func (uc *RAGUseCase) answer(
	ctx context.Context,
	endpoint, documentID, question, noContext string,
	buildPrompt func(contextText string) string,
) (*domain.Answer, error) {
	started := uc.now()

	if !isBlank(documentID) {
		doc, err := loadDocument(ctx, uc.docs, documentID, msgRecordNotFound)
		if err != nil {
			return nil, err
		}
		if !doc.Analyzed() {
			uc.observe(endpoint, 0, started)
			return &domain.Answer{Answer: noContext, Sources: []domain.Source{}}, nil
		}
		if doc.Status.RAG != domain.PhaseSuccess {
			if err := uc.ingest(ctx, doc); err != nil {
				return nil, err
			}
		}
	}

	contextText, sources, err := uc.retrieve(ctx, documentID, question)
	if err != nil {
		return nil, err
	}
	if contextText == "" {
		uc.observe(endpoint, 0, started)
		return &domain.Answer{Answer: noContext, Sources: []domain.Source{}}, nil
	}

	text, err := uc.gen.GenerateText(ctx, buildPrompt(contextText))
	if err != nil {
		return nil, fmt.Errorf("generate %s answer: %w", endpoint, err)
	}
	uc.observe(endpoint, len(sources), started)
	return &domain.Answer{Answer: text, Sources: sources}, nil
}

// ingest chunks, embeds and upserts the analysis. Chunk ids are stable, so
// a repeated ingest overwrites the same points.
func (uc *RAGUseCase) ingest(ctx context.Context, doc *domain.Document) error {
	log := uc.logger.With(zap.String("document_id", doc.ID))
	if err := uc.index(ctx, doc); err != nil {
		log.Error("rag ingestion failed", zap.Error(err))
		if markErr := uc.docs.UpdateRAGStatus(context.WithoutCancel(ctx), doc.ID, domain.PhaseFailed); markErr != nil {
			return errors.Join(err, fmt.Errorf("mark rag failed: %w", markErr))
		}
		return err
	}
	if err := uc.docs.UpdateRAGStatus(ctx, doc.ID, domain.PhaseSuccess); err != nil {
		return fmt.Errorf("mark rag ingested: %w", err)
	}
	log.Info("rag ingestion finished")
	return nil
}

func (uc *RAGUseCase) index(ctx context.Context, doc *domain.Document) error {
	texts := uc.chunker.Split(doc.Analysis)
	if len(texts) == 0 {
		return domain.WrapError(domain.ErrInvalidInput, "chunk analysis", errors.New("chunking produced zero chunks"))
	}

	chunks := make([]domain.Chunk, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(uc.embedConcurrency)
	for i, text := range texts {
		g.Go(func() error {
			vector, err := uc.embedder.Embed(gctx, text)
			if err != nil {
				return fmt.Errorf("embed chunk %d: %w", i, err)
			}
			chunks[i] = domain.Chunk{
				ID:         ChunkID(doc.ID, i),
				DocumentID: doc.ID,
				Index:      i,
				Text:       text,
				Vector:     vector,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if err := uc.vectors.Upsert(ctx, chunks); err != nil {
		return fmt.Errorf("upsert chunks: %w", err)
	}
	return nil
}

func (uc *RAGUseCase) retrieve(ctx context.Context, documentID, question string) (string, []domain.Source, error) {
	vector, err := uc.embedder.Embed(ctx, question)
	if err != nil {
		return "", nil, fmt.Errorf("embed query: %w", err)
	}
	matches, err := uc.vectors.Query(ctx, vector, ragTopK, domain.VectorFilter{DocumentID: documentID})
	if err != nil {
		return "", nil, fmt.Errorf("query vector index: %w", err)
	}

	texts := make([]string, 0, len(matches))
	seen := make(map[string]struct{}, len(matches))
	sources := make([]domain.Source, 0, len(matches))
	for _, match := range matches {
		sources = append(sources, domain.Source{ID: match.ID, Score: match.Score})
		if match.Text == "" {
			continue
		}
		if _, dup := seen[match.Text]; dup {
			continue
		}
		seen[match.Text] = struct{}{}
		texts = append(texts, match.Text)
	}
	if len(texts) == 0 {
		return "", nil, nil
	}
	return strings.Join(texts, contextSeparator), sources, nil
}

func (uc *RAGUseCase) observe(endpoint string, sources int, started time.Time) {
	if uc.observer != nil {
		uc.observer.RecordRAGObservation(endpoint, sources, uc.now().Sub(started))
	}
}

// ChunkID is the vector index key of the i-th chunk of a document.
func ChunkID(documentID string, i int) string {
	return fmt.Sprintf("%s-chunk-%d", documentID, i)
}

func transcript(turns []domain.ChatTurn) string {
	lines := make([]string, 0, len(turns))
	for _, turn := range turns {
		if turn.Role == domain.RoleUser {
			lines = append(lines, "User: "+turn.Content)
			continue
		}
		lines = append(lines, "Assistant: "+turn.Content)
	}
	if len(lines) == 0 {
		return noHistory
	}
	return strings.Join(lines, "\n")
}
