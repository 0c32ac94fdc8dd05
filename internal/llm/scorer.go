package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/Whopus/Repox/internal/rank"
)

// ErrMalformedScores means the model reply held no usable score object.
var ErrMalformedScores = errors.New("malformed relevance scores")

const scoringSystemPrompt = `You are analyzing code files for relevance to a user question.
Score each file from 0.0 to 1.0 based on how relevant its content is to answering the question.

Consider:
- Direct relevance to the question topic
- Presence of relevant functions, classes, or concepts
- Quality and completeness of relevant code
- Avoid giving high scores to files with mostly boilerplate or irrelevant content

Respond with JSON: {"scores": {"file_path": score, ...}}`

const (
	scoringTemperature = 0.1
	scoringMaxTokens   = 1000
)

// RelevanceScorer asks the weak model to rate file samples.
type RelevanceScorer struct {
	client Completer
	model  string
	logger *zap.Logger
}

var _ rank.Scorer = (*RelevanceScorer)(nil)

func NewRelevanceScorer(client Completer, model string, logger *zap.Logger) *RelevanceScorer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RelevanceScorer{client: client, model: model, logger: logger}
}

func (s *RelevanceScorer) Model() string {
	return s.model
}

func (s *RelevanceScorer) Score(ctx context.Context, req rank.ScoreRequest) (map[string]float64, error) {
	if len(req.Samples) == 0 {
		return map[string]float64{}, nil
	}

	messages := []Message{
		{Role: "system", Content: scoringSystemPrompt},
		{Role: "user", Content: buildScoringPrompt(req)},
	}

	reply, err := s.client.Complete(ctx, messages, CompleteOptions{
		Model:       s.model,
		Temperature: scoringTemperature,
		MaxTokens:   scoringMaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to score %d files: %w", len(req.Samples), err)
	}

	scores, err := ParseScores(reply)
	if err != nil {
		s.logger.Debug("unparseable scoring reply", zap.String("model", s.model), zap.Int("reply_chars", len(reply)))
		return nil, err
	}
	return scores, nil
}

func buildScoringPrompt(req rank.ScoreRequest) string {
	var files strings.Builder
	for _, sample := range req.Samples {
		fmt.Fprintf(&files, "\n--- FILE: %s ---\n%s...\n", sample.Path, sample.Text)
	}

	return fmt.Sprintf("Question: %s\n\nFiles to score:\n%s\n\nScore each file's relevance to the question (0.0 to 1.0):",
		req.Question, files.String())
}

// ParseScores pulls the score map out of a model reply. Code fences and
// prose around the JSON object are ignored. Values may be numbers or
// numeric strings; anything else makes the reply malformed.
func ParseScores(reply string) (map[string]float64, error) {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("%w: no JSON object in reply", ErrMalformedScores)
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal([]byte(reply[start:end+1]), &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedScores, err)
	}

	raw := envelope
	if nested, ok := envelope["scores"]; ok {
		raw = nil
		if err := json.Unmarshal(nested, &raw); err != nil {
			return nil, fmt.Errorf("%w: scores is not an object", ErrMalformedScores)
		}
	}

	scores := make(map[string]float64, len(raw))
	for path, value := range raw {
		v, err := parseScoreValue(value)
		if err != nil {
			return nil, fmt.Errorf("%w: score for %s: %v", ErrMalformedScores, path, err)
		}
		scores[path] = v
	}
	return scores, nil
}

func parseScoreValue(raw json.RawMessage) (float64, error) {
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("not a number: %s", raw)
	}
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}
