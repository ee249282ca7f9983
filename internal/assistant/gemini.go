package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

const geminiInstruction = `You are the stock assistant of the Dreampuff pastry shop.
Answer staff questions about stock using only the product list you are given.
When the staff member asks to add or remove stock, call updateStock with the product id
and a signed amount (positive to add, negative to remove), then confirm in one short sentence.
Reply in the language the staff member used.`

// GeminiExecutor answers prompts with a Gemini model, exposing updateStock as a function
type GeminiExecutor struct {
	client *genai.Client
	model  string
	logger *zap.Logger
}

// NewGeminiExecutor creates a Gemini client; Close releases it
func NewGeminiExecutor(ctx context.Context, apiKey, model string, logger *zap.Logger) (*GeminiExecutor, error) {
	if apiKey == "" {
		return nil, ErrNotConfigured
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &GeminiExecutor{
		client: client,
		model:  model,
		logger: logger.Named("assistant_gemini"),
	}, nil
}

func (e *GeminiExecutor) Close() error {
	return e.client.Close()
}

func updateStockTool() *genai.Tool {
	return &genai.Tool{
		FunctionDeclarations: []*genai.FunctionDeclaration{{
			Name:        "updateStock",
			Description: "Add stock to or remove stock from one product",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"productId": {Type: genai.TypeString, Description: "id of the product from the product list"},
					"amount":    {Type: genai.TypeInteger, Description: "signed quantity; negative removes stock"},
				},
				Required: []string{"productId", "amount"},
			},
		}},
	}
}

func (e *GeminiExecutor) Execute(ctx context.Context, req PromptRequest) (string, error) {
	model := e.client.GenerativeModel(e.model)
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(geminiInstruction)}}
	model.Tools = []*genai.Tool{updateStockTool()}

	products, err := json.Marshal(req.Products)
	if err != nil {
		return "", fmt.Errorf("failed to encode products: %w", err)
	}

	prompt := fmt.Sprintf("Staff: %s\nProducts: %s\nMessage: %s", req.EntityName, products, req.Message)

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpstreamFailed, err)
	}

	return e.render(resp)
}

// render flattens a Gemini response into the textual reply contract
func (e *GeminiExecutor) render(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", ErrEmptyResponse
	}

	var (
		text strings.Builder
		call *ToolCall
	)
	for _, part := range resp.Candidates[0].Content.Parts {
		switch p := part.(type) {
		case genai.Text:
			text.WriteString(string(p))
		case genai.FunctionCall:
			if p.Name != "updateStock" || call != nil {
				continue
			}
			parsed, err := toolCallFromArgs(p.Args)
			if err != nil {
				e.logger.Warn("Ignoring malformed updateStock call", zap.Error(err))
				continue
			}
			call = parsed
		}
	}

	message := strings.TrimSpace(text.String())
	if call != nil {
		return FormatToolCall(*call, message), nil
	}
	if message == "" {
		return "", ErrEmptyResponse
	}
	return message, nil
}

func toolCallFromArgs(args map[string]any) (*ToolCall, error) {
	rawID, _ := args["productId"].(string)
	productID, err := uuid.Parse(rawID)
	if err != nil {
		return nil, fmt.Errorf("invalid productId %q: %w", rawID, err)
	}

	// JSON numbers arrive as float64
	amount, ok := args["amount"].(float64)
	if !ok || amount != math.Trunc(amount) {
		return nil, fmt.Errorf("invalid amount %v", args["amount"])
	}

	return &ToolCall{ProductID: productID, Amount: int(amount)}, nil
}
