package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// decodeOrRepair parses model output into T. Models frequently wrap JSON in
// markdown fences or prose, so the raw text is cleaned first; if it still
// does not parse, a text model is re-prompted with the original schema
// instructions plus the malformed payload and asked to reformat strictly as
// JSON. A second parse failure is ErrResponseShape.
func decodeOrRepair[T any](ctx context.Context, c Completer, schema, raw string) (T, error) {
	var out T

	if err := json.Unmarshal([]byte(extractJSON(raw)), &out); err == nil {
		return out, nil
	}

	slog.DebugContext(ctx, "Model output did not parse, attempting repair", "raw_len", len(raw))

	repaired, err := c.Complete(ctx, []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: repairSystemPrompt},
		{Role: openai.ChatMessageRoleUser, Content: repairUserPrompt(schema, raw)},
	})
	if err != nil {
		return out, fmt.Errorf("repair completion: %w", err)
	}

	if err := json.Unmarshal([]byte(extractJSON(repaired)), &out); err != nil {
		return out, fmt.Errorf("%w: %v", ErrResponseShape, err)
	}
	return out, nil
}

// extractJSON strips markdown code fences and any prose surrounding the
// outermost JSON value.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx >= 0 {
			s = s[idx+1:]
		}
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}

	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return s
	}
	var end int
	if s[start] == '{' {
		end = strings.LastIndex(s, "}")
	} else {
		end = strings.LastIndex(s, "]")
	}
	if end <= start {
		return s
	}
	return s[start : end+1]
}
