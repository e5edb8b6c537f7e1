package llm

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/hiendinhngoc/AI-personal-finance-coach/internal/core"
)

type (
	// ReceiptItem is one purchase extracted from a receipt image. Amount is
	// in the receipt's original currency.
	ReceiptItem struct {
		Amount   decimal.Decimal `json:"amount"`
		Currency string          `json:"currency"`
		Category string          `json:"category"`
	}

	// Advice is the budget analysis result. The JSON field names match the
	// analysis endpoint's response contract.
	Advice struct {
		Report              string `json:"financialAdviceReport"`
		TopSavingCategory   string `json:"topSavingCategory"`
		TopSpendingCategory string `json:"topSpendingCategory"`
	}

	// WeatherReport is the LLM-generated weather stub.
	WeatherReport struct {
		Main        string  `json:"main"`
		Description string  `json:"description"`
		Temp        float64 `json:"temp"`
		Humidity    float64 `json:"humidity"`
		WindSpeed   float64 `json:"windSpeed"`
	}

	// adviceCategories is the shape of the categorical model call.
	adviceCategories struct {
		TopSavingCategory   string `json:"topSavingCategory"`
		TopSpendingCategory string `json:"topSpendingCategory"`
	}
)

// ConversationStore holds per-thread chat history. It is an in-process
// key-value abstraction so a durable store can be swapped in later; the
// default backing is the TTL+LRU cache, which means threads do not survive a
// restart.
type ConversationStore interface {
	Get(key string) ([]openai.ChatCompletionMessage, bool)
	Set(key string, messages []openai.ChatCompletionMessage)
	Delete(key string)
}

// Gateway exposes the three AI operations plus the weather stub. It is
// constructed once at startup and injected into the HTTP layer.
type Gateway struct {
	chat   Completer
	vision Completer
	convs  ConversationStore
}

func NewGateway(chat, vision Completer, convs ConversationStore) *Gateway {
	return &Gateway{chat: chat, vision: vision, convs: convs}
}

// ExtractReceipt sends the image to the vision model and returns the
// extracted purchases. The model's reply goes through decode-or-repair (the
// repair pass uses the text model); every item is then validated against the
// closed currency and category sets. A single invalid item fails the whole
// call, there is no partial success.
func (g *Gateway) ExtractReceipt(ctx context.Context, image []byte, prompt string) ([]ReceiptItem, error) {
	instructions := receiptInstructions
	if prompt != "" {
		instructions += "\nAdditional instructions: " + prompt
	}

	raw, err := g.vision.Complete(ctx, []openai.ChatCompletionMessage{
		{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeText, Text: instructions},
				{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{
					URL: imageDataURL(image),
				}},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("vision completion: %w", err)
	}

	items, err := decodeOrRepair[[]ReceiptItem](ctx, g.chat, receiptSchema, raw)
	if err != nil {
		return nil, fmt.Errorf("decode receipt items: %w", err)
	}

	for i, item := range items {
		if err := validateReceiptItem(item); err != nil {
			return nil, fmt.Errorf("%w: item %d: %v", ErrResponseShape, i, err)
		}
	}

	slog.InfoContext(ctx, "Receipt extracted", "items", len(items))
	return items, nil
}

// GenerateAdvice produces the markdown report and the top saving/spending
// categories for a pair of monthly snapshots. The two model calls run
// concurrently and are joined; if either fails the whole operation degrades
// to a fixed fallback instead of returning an error.
func (g *Gateway) GenerateAdvice(ctx context.Context, current, previous core.Snapshot) (Advice, error) {
	var (
		report string
		cats   adviceCategories
	)

	eg, gctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		var err error
		report, err = g.chat.Complete(gctx, []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: reportPrompt(current, previous)},
		})
		return err
	})
	eg.Go(func() error {
		raw, err := g.chat.Complete(gctx, []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: categoriesPrompt(current)},
		})
		if err != nil {
			return err
		}
		cats, err = decodeOrRepair[adviceCategories](gctx, g.chat, categoriesSchema, raw)
		return err
	})

	if err := eg.Wait(); err != nil {
		slog.WarnContext(ctx, "Advice generation failed, returning fallback", "error", err)
		return Advice{
			Report:              FallbackAdviceMessage,
			TopSavingCategory:   "None",
			TopSpendingCategory: "None",
		}, nil
	}

	return Advice{
		Report:              report,
		TopSavingCategory:   cats.TopSavingCategory,
		TopSpendingCategory: cats.TopSpendingCategory,
	}, nil
}

// AnswerQuestion answers a free-form question grounded in the user's current
// snapshot. History is kept per thread id in the conversation store; the
// system prompt is rebuilt on every turn so the numbers are always current.
// Any failure degrades to a fixed apology.
func (g *Gateway) AnswerQuestion(ctx context.Context, snap core.Snapshot, threadID, question string) (string, error) {
	history, _ := g.convs.Get(threadID)

	messages := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: chatSystemPrompt(snap),
	})
	messages = append(messages, history...)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: question,
	})

	answer, err := g.chat.Complete(ctx, messages)
	if err != nil {
		slog.WarnContext(ctx, "Chat completion failed, returning fallback",
			"thread_id", threadID, "error", err)
		return FallbackAdviceMessage, nil
	}

	history = append(history,
		openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: question},
		openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: answer},
	)
	g.convs.Set(threadID, history)

	return answer, nil
}

// Weather generates the weather stub. There is no sane fallback here, so
// provider and shape errors propagate to the caller.
func (g *Gateway) Weather(ctx context.Context) (WeatherReport, error) {
	raw, err := g.chat.Complete(ctx, []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleUser, Content: weatherPrompt},
	})
	if err != nil {
		return WeatherReport{}, fmt.Errorf("weather completion: %w", err)
	}
	return decodeOrRepair[WeatherReport](ctx, g.chat, weatherSchema, raw)
}

func validateReceiptItem(item ReceiptItem) error {
	if item.Amount.LessThanOrEqual(decimal.Zero) {
		return core.ErrInvalidAmount
	}
	if !core.ValidCurrency(item.Currency) {
		return fmt.Errorf("%w: %q", core.ErrInvalidCurrency, item.Currency)
	}
	if !core.ValidCategory(item.Category) {
		return fmt.Errorf("%w: %q", core.ErrInvalidCategory, item.Category)
	}
	return nil
}

func imageDataURL(image []byte) string {
	mime := http.DetectContentType(image)
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(image)
}
