// Package cxdb provides a sink that mirrors captures into cxdb as
// SystemMessage items, so errors land next to the conversation that caused them.
package cxdb

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"unicode/utf8"

	cxdbclient "github.com/strongdm/ai-cxdb/clients/go"
	cxdtypes "github.com/strongdm/ai-cxdb/clients/go/types"

	"github.com/strongdm/vigil/pkg/vigil"
)

const (
	maxTitleMessage = 80
	maxTitle        = 100
)

// CXDBClient is the minimal interface for cxdb client operations.
// The real *cxdb.Client satisfies this interface.
type CXDBClient interface {
	CreateContext(ctx context.Context, baseTurnID uint64) (*cxdbclient.ContextHead, error)
	AppendTurn(ctx context.Context, req *cxdbclient.AppendRequest) (*cxdbclient.AppendResult, error)
}

// CXDBSinkOption configures the CXDB sink.
type CXDBSinkOption func(*cxdbSinkConfig)

type cxdbSinkConfig struct {
	orphanLabels []string
	clientTag    string
}

// WithOrphanLabels sets labels for contexts created for unlinked captures.
func WithOrphanLabels(labels []string) CXDBSinkOption {
	return func(c *cxdbSinkConfig) {
		c.orphanLabels = labels
	}
}

// WithClientTag sets the client tag for orphan contexts.
func WithClientTag(tag string) CXDBSinkOption {
	return func(c *cxdbSinkConfig) {
		c.clientTag = tag
	}
}

type cxdbSink struct {
	client       CXDBClient
	orphanLabels []string
	clientTag    string
}

// NewCXDBSink creates a sink that writes to cxdb.
func NewCXDBSink(client CXDBClient, opts ...CXDBSinkOption) vigil.Sink {
	cfg := &cxdbSinkConfig{
		orphanLabels: []string{"error", "unlinked"},
		clientTag:    "vigil",
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return &cxdbSink{
		client:       client,
		orphanLabels: cfg.orphanLabels,
		clientTag:    cfg.clientTag,
	}
}

// Write appends the record to the context named by its cxdb_context_id, or
// to a fresh orphan context when the capture is not linked to one.
func (s *cxdbSink) Write(ctx context.Context, record vigil.CaptureRecord) error {
	contextID, linked := ContextID(record)
	if !linked {
		head, err := s.client.CreateContext(ctx, 0)
		if err != nil {
			return fmt.Errorf("create orphan context: %w", err)
		}
		contextID = head.ContextID
	}

	item, err := s.buildConversationItem(record, !linked)
	if err != nil {
		return err
	}

	payload, err := cxdbclient.EncodeMsgpack(item)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	req := &cxdbclient.AppendRequest{
		ContextID:      contextID,
		ParentTurnID:   0,
		TypeID:         cxdtypes.TypeIDConversationItem,
		TypeVersion:    cxdtypes.TypeVersionConversationItem,
		Payload:        payload,
		IdempotencyKey: record.ID,
	}

	if _, err := s.client.AppendTurn(ctx, req); err != nil {
		return fmt.Errorf("append turn: %w", err)
	}
	return nil
}

func (s *cxdbSink) buildConversationItem(record vigil.CaptureRecord, isOrphan bool) (*cxdtypes.ConversationItem, error) {
	content, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}

	item := &cxdtypes.ConversationItem{
		ItemType:  cxdtypes.ItemTypeSystem,
		Status:    cxdtypes.ItemStatusComplete,
		Timestamp: record.CapturedAt.UnixMilli(),
		ID:        record.ID,
		System: &cxdtypes.SystemMessage{
			Kind:    cxdtypes.SystemKindError,
			Title:   Title(record),
			Content: string(content),
		},
	}

	// cxdb expects context metadata on the first turn of a context.
	if isOrphan {
		item.ContextMetadata = &cxdtypes.ContextMetadata{
			Labels:    s.orphanLabels,
			ClientTag: s.clientTag,
		}
	}
	return item, nil
}

// Title renders "exceptionType: message", bounded for list views.
func Title(record vigil.CaptureRecord) string {
	title := record.ExceptionType
	if record.Message != "" {
		title += ": " + truncate(record.Message, maxTitleMessage)
	}
	return truncate(title, maxTitle)
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n-3]) + "..."
}

// ContextID reads the cxdb context a record is linked to. The value may have
// been through a JSON round trip, so numeric and string forms are accepted.
func ContextID(record vigil.CaptureRecord) (uint64, bool) {
	switch v := record.Context[vigil.ContextKeyContextID].(type) {
	case uint64:
		return v, true
	case int:
		return uint64(v), v >= 0
	case int64:
		return uint64(v), v >= 0
	case float64:
		return uint64(v), v >= 0
	case json.Number:
		id, err := strconv.ParseUint(v.String(), 10, 64)
		return id, err == nil
	case string:
		id, err := strconv.ParseUint(v, 10, 64)
		return id, err == nil
	default:
		return 0, false
	}
}

// Flush is a no-op; writes are synchronous.
func (s *cxdbSink) Flush(ctx context.Context) error {
	return nil
}

// Close is a no-op; the caller owns the client.
func (s *cxdbSink) Close() error {
	return nil
}
