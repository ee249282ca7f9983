package assistant

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

var toolCallPattern = regexp.MustCompile(
	`(?s)^\s*calling\s+tool_code\s+print\(\s*updateStock\(\s*productId\s*=\s*['"]([^'"]+)['"]\s*,\s*amount\s*=\s*([+-]?\d+)\s*\)\s*\)\s*(.*)$`,
)

// ToolCall is a stock adjustment requested by the model
type ToolCall struct {
	ProductID uuid.UUID
	Amount    int
}

// Reply is parsed model output
type Reply struct {
	Message  string
	ToolCall *ToolCall
}

// ParseReply splits model output into an optional updateStock call and the user-facing text.
// Text without the tool call prefix is returned as-is.
func ParseReply(text string) (Reply, error) {
	match := toolCallPattern.FindStringSubmatch(text)
	if match == nil {
		return Reply{Message: strings.TrimSpace(text)}, nil
	}

	productID, err := uuid.Parse(match[1])
	if err != nil {
		return Reply{}, fmt.Errorf("invalid product id %q in tool call: %w", match[1], err)
	}

	amount, err := strconv.Atoi(match[2])
	if err != nil {
		return Reply{}, fmt.Errorf("invalid amount %q in tool call: %w", match[2], err)
	}

	return Reply{
		Message:  strings.TrimSpace(match[3]),
		ToolCall: &ToolCall{ProductID: productID, Amount: amount},
	}, nil
}

// FormatToolCall renders a tool call in the textual form ParseReply accepts
func FormatToolCall(call ToolCall, message string) string {
	return fmt.Sprintf("calling tool_code print(updateStock(productId='%s', amount=%d)) %s",
		call.ProductID, call.Amount, message)
}
