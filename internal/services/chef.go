package services

import (
	"context"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"

	"taamsimcha-backend/internal/llm"
	"taamsimcha-backend/internal/models"
)

const (
	// maxForwardedMessages bounds the context sent to the model; older turns are dropped.
	maxForwardedMessages = 30
	maxTitleRunes        = 120

	chatTemperature = 0.7
	chatMaxTokens   = 900
)

// Negotiator runs one turn of the recipe conversation. It keeps no state
// between calls; the client resubmits the whole history every turn.
type Negotiator struct {
	llm     llm.Completer
	timeout time.Duration
	logger  *zap.Logger
}

func NewNegotiator(completer llm.Completer, timeout time.Duration, logger *zap.Logger) *Negotiator {
	return &Negotiator{llm: completer, timeout: timeout, logger: logger}
}

func (n *Negotiator) Negotiate(ctx context.Context, history []models.ChatMessage) (*models.TurnResult, error) {
	if err := validateStruct(models.ChatRecipeRequest{Messages: history}); err != nil {
		return nil, err
	}

	trimmed := history
	if len(trimmed) > maxForwardedMessages {
		trimmed = trimmed[len(trimmed)-maxForwardedMessages:]
	}

	messages := make([]llm.Message, len(trimmed))
	for i, m := range trimmed {
		messages[i] = llm.Message{Role: m.Role, Content: m.Content}
	}

	if n.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.timeout)
		defer cancel()
	}

	raw, err := n.llm.Complete(ctx, llm.Request{
		System:      chefSystemPrompt,
		Messages:    messages,
		Temperature: chatTemperature,
		MaxTokens:   chatMaxTokens,
	})
	if err != nil {
		n.logger.Warn("chef negotiation failed", zap.Int("history_len", len(history)), zap.Error(err))
		return nil, newAIError(err)
	}

	result := classifyTurn(raw)
	n.logger.Debug("chef turn",
		zap.String("type", string(result.Type)),
		zap.Int("history_len", len(history)),
		zap.Int("forwarded", len(messages)),
	)
	return result, nil
}

// classifyTurn turns a raw completion into a TurnResult. A reply without a
// recognised trailing marker is a question, never a finished recipe.
func classifyTurn(raw string) *models.TurnResult {
	text := strings.TrimFunc(raw, isWhitespace)

	turnType, markerAt, ok := parseTurnMarker(text)
	if !ok {
		return &models.TurnResult{Type: models.TurnQuestion, Reply: text}
	}

	reply := strings.TrimFunc(text[:markerAt], isWhitespace)
	result := &models.TurnResult{
		Type:  turnType,
		Done:  turnType == models.TurnRecipe,
		Reply: reply,
	}
	if turnType == models.TurnRecipe {
		result.Title = recipeTitle(reply)
	}
	return result
}

const (
	markerOpen   = "[["
	markerClose  = "]]"
	markerPrefix = "TYPE:"
)

var markerTypes = []struct {
	token string
	turn  models.TurnType
}{
	{"QUESTION", models.TurnQuestion},
	{"CONFIRM", models.TurnConfirm},
	{"RECIPE", models.TurnRecipe},
}

// parseTurnMarker looks for [[TYPE:<QUESTION|CONFIRM|RECIPE>]] followed only by
// whitespace at the end of text. Matching is case-insensitive. It returns the
// byte offset where the marker starts.
func parseTurnMarker(text string) (models.TurnType, int, bool) {
	body := strings.TrimRightFunc(text, isWhitespace)
	if !strings.HasSuffix(body, markerClose) {
		return "", 0, false
	}
	start := strings.LastIndex(body, markerOpen)
	if start < 0 {
		return "", 0, false
	}

	inner := body[start+len(markerOpen) : len(body)-len(markerClose)]
	if len(inner) < len(markerPrefix) || !strings.EqualFold(inner[:len(markerPrefix)], markerPrefix) {
		return "", 0, false
	}
	token := inner[len(markerPrefix):]
	for _, mt := range markerTypes {
		if strings.EqualFold(token, mt.token) {
			return mt.turn, start, true
		}
	}
	return "", 0, false
}

func recipeTitle(reply string) *string {
	for _, line := range strings.FieldsFunc(reply, isLineBreak) {
		line = strings.TrimFunc(line, isWhitespace)
		if line == "" {
			continue
		}
		if utf8.RuneCountInString(line) > maxTitleRunes {
			line = string([]rune(line)[:maxTitleRunes])
		}
		return &line
	}
	return nil
}

// isWhitespace also accepts the ASCII information separators U+001C..U+001F,
// which model output occasionally carries and unicode.IsSpace rejects.
func isWhitespace(r rune) bool {
	return unicode.IsSpace(r) || (r >= '\x1c' && r <= '\x1f')
}

func isLineBreak(r rune) bool {
	switch r {
	case '\n', '\r', '\v', '\f', '\x1c', '\x1d', '\x1e', '\u0085', '\u2028', '\u2029':
		return true
	}
	return false
}
