package embedding

import (
	"context"
	"strings"

	"calmd/internal/logging"
)

// =============================================================================
// TASK TYPE SELECTION
// =============================================================================
//
// GHAP records are embedded along four axes (full, strategy, surprise,
// root_cause) and several auxiliary collections (memories, values, code,
// commits). A task-type-aware engine (genai) benefits from knowing which
// axis/collection a piece of text belongs to and whether it's being embedded
// for storage or for a query, since retrieval-document and retrieval-query
// embeddings are optimized differently even for the same underlying model.

// ContentType represents the kind of content being embedded.
type ContentType string

const (
	ContentTypeHypothesis ContentType = "hypothesis" // GHAP full axis: goal+hypothesis+action+prediction
	ContentTypeStrategy   ContentType = "strategy"   // GHAP strategy axis
	ContentTypeSurprise   ContentType = "surprise"   // GHAP surprise axis
	ContentTypeRootCause  ContentType = "root_cause" // GHAP root_cause axis
	ContentTypeMemory     ContentType = "memory"     // context assembler "memories" kind
	ContentTypeExperience ContentType = "experience" // context assembler "experiences" kind
	ContentTypeValue      ContentType = "value"      // Value Store entries
	ContentTypeCode       ContentType = "code"       // source code snippets
	ContentTypeCommit     ContentType = "commit"     // commit messages/diffs
	ContentTypeQuery      ContentType = "query"      // a search query, any axis
)

// TaskTypeAwareEngine is implemented by engines whose backend distinguishes
// document-time embeddings from query-time embeddings (e.g. genai's
// RETRIEVAL_DOCUMENT vs RETRIEVAL_QUERY).
type TaskTypeAwareEngine interface {
	EmbedWithTaskType(ctx context.Context, text string, taskType string) ([]float32, error)
}

// TaskTypeBatchAwareEngine is the batch counterpart of TaskTypeAwareEngine.
type TaskTypeBatchAwareEngine interface {
	EmbedBatchWithTaskType(ctx context.Context, texts []string, taskType string) ([][]float32, error)
}

// SelectTaskType picks the GenAI task type for a content type and
// document-vs-query role.
func SelectTaskType(contentType ContentType, isQuery bool) string {
	logging.EmbeddingDebug("SelectTaskType: content_type=%s, is_query=%v", contentType, isQuery)

	var taskType string

	switch contentType {
	case ContentTypeQuery:
		taskType = "RETRIEVAL_QUERY"

	case ContentTypeCode:
		if isQuery {
			taskType = "CODE_RETRIEVAL_QUERY"
		} else {
			taskType = "RETRIEVAL_DOCUMENT"
		}

	case ContentTypeCommit, ContentTypeMemory, ContentTypeExperience, ContentTypeValue:
		if isQuery {
			taskType = "RETRIEVAL_QUERY"
		} else {
			taskType = "RETRIEVAL_DOCUMENT"
		}

	case ContentTypeHypothesis, ContentTypeStrategy, ContentTypeSurprise, ContentTypeRootCause:
		// GHAP axis text is compared against other GHAP axis text
		// (clustering, similarity search), not retrieved against a
		// separate query distribution.
		taskType = "SEMANTIC_SIMILARITY"

	default:
		taskType = "SEMANTIC_SIMILARITY"
		logging.EmbeddingDebug("SelectTaskType: unknown content_type=%s, defaulting to SEMANTIC_SIMILARITY", contentType)
	}

	logging.EmbeddingDebug("SelectTaskType: selected task_type=%s", taskType)
	return taskType
}

// DetectContentType auto-detects content type from text and metadata when
// the caller didn't tag it explicitly (e.g. a generic collector call).
func DetectContentType(text string, metadata map[string]interface{}) ContentType {
	logging.EmbeddingDebug("DetectContentType: analyzing text (length=%d chars), metadata_keys=%d", len(text), len(metadata))

	text = strings.ToLower(text)

	if axis, ok := metadata["axis"].(string); ok {
		switch axis {
		case "full":
			return ContentTypeHypothesis
		case "strategy":
			return ContentTypeStrategy
		case "surprise":
			return ContentTypeSurprise
		case "root_cause":
			return ContentTypeRootCause
		}
	}

	if kind, ok := metadata["kind"].(string); ok {
		switch kind {
		case "memories":
			return ContentTypeMemory
		case "experiences":
			return ContentTypeExperience
		case "values":
			return ContentTypeValue
		case "code":
			return ContentTypeCode
		case "commits":
			return ContentTypeCommit
		case "query":
			return ContentTypeQuery
		}
	}

	codeIndicators := []string{
		"func ", "function ", "class ", "def ", "import ", "package ",
		"const ", "var ", "let ", "interface ", "struct ", "type ",
		"{", "}", "=>", "->", "//", "/*", "*/", "public ", "private ",
	}
	codeScore := 0
	for _, indicator := range codeIndicators {
		if strings.Contains(text, indicator) {
			codeScore++
		}
	}
	if codeScore >= 3 {
		return ContentTypeCode
	}

	if strings.HasPrefix(text, "what ") || strings.HasPrefix(text, "how ") ||
		strings.HasPrefix(text, "why ") || strings.HasSuffix(text, "?") {
		return ContentTypeQuery
	}

	return ContentTypeHypothesis
}

// GetOptimalTaskType combines detection and selection for convenience.
func GetOptimalTaskType(text string, metadata map[string]interface{}, isQuery bool) string {
	contentType := DetectContentType(text, metadata)
	taskType := SelectTaskType(contentType, isQuery)
	logging.Embedding("GetOptimalTaskType: detected content_type=%s -> task_type=%s", contentType, taskType)
	return taskType
}

// EmbedForTask embeds one text through engine, routing task-type-aware
// backends (genai) through EmbedWithTaskType with the task type selected for
// the content described by metadata. Backends without task types fall
// through to plain Embed.
func EmbedForTask(ctx context.Context, engine EmbeddingEngine, text string, metadata map[string]interface{}, isQuery bool) ([]float32, error) {
	if aware, ok := engine.(TaskTypeAwareEngine); ok {
		return aware.EmbedWithTaskType(ctx, text, GetOptimalTaskType(text, metadata, isQuery))
	}
	return engine.Embed(ctx, text)
}

// EmbedBatchForTask is the batch counterpart of EmbedForTask. All texts are
// assumed to share the content type described by metadata; the first text is
// the detection sample.
func EmbedBatchForTask(ctx context.Context, engine EmbeddingEngine, texts []string, metadata map[string]interface{}, isQuery bool) ([][]float32, error) {
	if aware, ok := engine.(TaskTypeBatchAwareEngine); ok {
		sample := ""
		if len(texts) > 0 {
			sample = texts[0]
		}
		return aware.EmbedBatchWithTaskType(ctx, texts, GetOptimalTaskType(sample, metadata, isQuery))
	}
	return engine.EmbedBatch(ctx, texts)
}
