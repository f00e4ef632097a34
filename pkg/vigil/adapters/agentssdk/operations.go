// operations.go keeps a bounded trail of the LLM and tool calls a run made,
// attached to captures as context["operations"].

package agentssdk

import (
	"time"

	llmsdk "github.com/strongdm/ai-llm-sdk/pkg/llm"
)

// MaxOperations bounds the trail kept per run.
const MaxOperations = 20

// Operation kinds.
const (
	KindLLM  = "llm"
	KindTool = "tool"
)

// maxMessageSnapshots bounds per-request message metadata.
const maxMessageSnapshots = 10

// OperationRecord is one LLM or tool call.
type OperationRecord struct {
	Kind      string    `json:"kind"`
	StartedAt time.Time `json:"started_at"`
	Duration  int64     `json:"duration_ms,omitempty"`
	AgentName string    `json:"agent_name,omitempty"`

	LLM  *LLMOperation  `json:"llm,omitempty"`
	Tool *ToolOperation `json:"tool,omitempty"`
}

// LLMOperation is request and response metadata. Message text is never kept.
type LLMOperation struct {
	Model        string            `json:"model"`
	Provider     string            `json:"provider"`
	MessageCount int               `json:"message_count"`
	Messages     []MessageMetadata `json:"messages"`
	Temperature  *float32          `json:"temperature,omitempty"`
	TopP         *float32          `json:"top_p,omitempty"`
	MaxTokens    *int              `json:"max_tokens,omitempty"`
	ToolCount    int               `json:"tool_count"`
	ToolNames    []string          `json:"tool_names,omitempty"`

	ResponseID       string   `json:"response_id,omitempty"`
	FinishReason     string   `json:"finish_reason,omitempty"`
	ToolCallNames    []string `json:"tool_call_names,omitempty"`
	PromptTokens     int      `json:"prompt_tokens,omitempty"`
	CompletionTokens int      `json:"completion_tokens,omitempty"`
	TotalTokens      int      `json:"total_tokens,omitempty"`
}

// MessageMetadata is the shape of one message without its content.
type MessageMetadata struct {
	Role          string `json:"role"`
	ContentLength int    `json:"content_length"`
	PartsCount    int    `json:"parts_count"`
	HasImage      bool   `json:"has_image,omitempty"`
	HasToolCall   bool   `json:"has_tool_call,omitempty"`
	HasToolResult bool   `json:"has_tool_result,omitempty"`
}

// ToolOperation records sizes only; arguments and output may hold secrets.
type ToolOperation struct {
	Name       string `json:"name"`
	CallID     string `json:"call_id"`
	InputSize  int    `json:"input_size"`
	OutputSize int    `json:"output_size,omitempty"`
}

// operationLog is a ring buffer of the most recent operations.
type operationLog struct {
	records  []OperationRecord
	maxSize  int
	writeIdx int
}

func newOperationLog(maxSize int) *operationLog {
	return &operationLog{maxSize: maxSize}
}

// add appends a record, evicting the oldest when full.
func (b *operationLog) add(record OperationRecord) {
	if len(b.records) < b.maxSize {
		b.records = append(b.records, record)
		return
	}
	b.records[b.writeIdx] = record
	b.writeIdx = (b.writeIdx + 1) % b.maxSize
}

// all returns a copy, oldest first.
func (b *operationLog) all() []OperationRecord {
	result := make([]OperationRecord, 0, len(b.records))
	result = append(result, b.records[b.writeIdx:]...)
	return append(result, b.records[:b.writeIdx]...)
}

// updateLast applies fn to the newest record of the given kind, if it is the
// newest record overall.
func (b *operationLog) updateLast(kind string, fn func(*OperationRecord)) bool {
	if len(b.records) == 0 {
		return false
	}
	last := len(b.records) - 1
	if len(b.records) == b.maxSize {
		last = (b.writeIdx - 1 + b.maxSize) % b.maxSize
	}
	if b.records[last].Kind != kind {
		return false
	}
	fn(&b.records[last])
	return true
}

func (b *operationLog) clone() *operationLog {
	if b == nil {
		return nil
	}
	return &operationLog{
		records:  append([]OperationRecord(nil), b.records...),
		maxSize:  b.maxSize,
		writeIdx: b.writeIdx,
	}
}

func newLLMOperation(req llmsdk.Request) *LLMOperation {
	op := &LLMOperation{
		Model:        req.Model,
		Provider:     string(req.Provider),
		MessageCount: len(req.Messages),
		Temperature:  req.Temperature,
		TopP:         req.TopP,
		MaxTokens:    req.MaxTokens,
		ToolCount:    len(req.Tools),
	}
	for _, tool := range req.Tools {
		op.ToolNames = append(op.ToolNames, tool.Name)
	}

	start := max(len(req.Messages)-maxMessageSnapshots, 0)
	op.Messages = make([]MessageMetadata, 0, len(req.Messages)-start)
	for _, msg := range req.Messages[start:] {
		op.Messages = append(op.Messages, messageMetadata(msg))
	}
	return op
}

func messageMetadata(msg llmsdk.Message) MessageMetadata {
	md := MessageMetadata{
		Role:       string(msg.Role),
		PartsCount: len(msg.Parts),
	}
	for _, part := range msg.Parts {
		md.ContentLength += len(part.Text)
		md.HasImage = md.HasImage || part.ImageData != nil
		md.HasToolCall = md.HasToolCall || part.ToolCall != nil
		md.HasToolResult = md.HasToolResult || part.ToolResult != nil
	}
	return md
}

func (op *LLMOperation) complete(resp llmsdk.Response) {
	op.ResponseID = resp.ID
	op.FinishReason = string(resp.FinishReason)
	op.PromptTokens = resp.Usage.PromptTokens
	op.CompletionTokens = resp.Usage.CompletionTokens
	op.TotalTokens = resp.Usage.TotalTokens
	for _, tc := range resp.ToolCalls {
		op.ToolCallNames = append(op.ToolCallNames, tc.Name)
	}
}
