// Package session persists conversation history as JSONL records, one line
// per message, so a restarted process resumes the same conversation.
package session

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/millwright-ai/millwright/internal/provider"
	"github.com/millwright-ai/millwright/internal/store"
)

// Store persists conversation history in a JSONL file.
type Store struct {
	path string
	mu   sync.Mutex
}

type blockRecord struct {
	Kind      string `json:"kind"`
	Text      string `json:"text,omitempty"`
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"`
}

type toolCallRecord struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments,omitempty"`
}

type record struct {
	Role       provider.Role    `json:"role"`
	Content    []blockRecord    `json:"content,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
	ToolCalls  []toolCallRecord `json:"tool_calls,omitempty"`
	IsError    bool             `json:"is_error,omitempty"`
	// ToolsUsed is recorded on assistant messages for transcript inspection.
	// It is not replayed to the model.
	ToolsUsed []string `json:"tools_used,omitempty"`
}

func toRecord(msg provider.ChatMessage, toolsUsed []string) record {
	rec := record{
		Role:       msg.Role,
		ToolCallID: msg.ToolCallID,
		IsError:    msg.IsError,
		ToolsUsed:  toolsUsed,
	}
	for _, block := range msg.Content {
		rec.Content = append(rec.Content, blockRecord{
			Kind:      string(block.Kind),
			Text:      block.Text,
			MediaType: block.MediaType,
			Data:      block.Data,
		})
	}
	for _, call := range msg.ToolCalls {
		rec.ToolCalls = append(rec.ToolCalls, toolCallRecord(call))
	}
	return rec
}

func fromRecord(rec record) provider.ChatMessage {
	msg := provider.ChatMessage{
		Role:       rec.Role,
		ToolCallID: rec.ToolCallID,
		IsError:    rec.IsError,
	}
	for _, block := range rec.Content {
		msg.Content = append(msg.Content, provider.ContentBlock{
			Kind:      provider.BlockKind(block.Kind),
			Text:      block.Text,
			MediaType: block.MediaType,
			Data:      block.Data,
		})
	}
	for _, call := range rec.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, provider.ToolCall(call))
	}
	return msg
}

// New creates a session store persisting to path.
func New(path string) *Store {
	return &Store{path: path}
}

// Load reads all valid JSONL records from disk into chat messages.
// Malformed lines are skipped.
func (s *Store) Load(ctx context.Context) ([]provider.ChatMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.path == "" {
		return nil, errors.New("session path is required")
	}

	content, err := store.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return []provider.ChatMessage{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session file: %w", err)
	}

	messages := make([]provider.ChatMessage, 0)
	scanner := bufio.NewScanner(strings.NewReader(content))
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec record
		if err := json.Unmarshal(line, &rec); err != nil {
			continue
		}
		if rec.Role == "" {
			continue
		}
		messages = append(messages, fromRecord(rec))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan session file: %w", err)
	}
	return messages, nil
}

// AppendExchange appends one completed turn: the user message followed by the
// final assistant message, with the executed tool names recorded alongside
// the assistant record.
func (s *Store) AppendExchange(ctx context.Context, user, assistant provider.ChatMessage, toolsUsed []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.path == "" {
		return errors.New("session path is required")
	}

	encoded, err := encodeRecords([]record{
		toRecord(user, nil),
		toRecord(assistant, toolsUsed),
	})
	if err != nil {
		return err
	}
	if err := store.AppendFile(s.path, encoded); err != nil {
		return fmt.Errorf("append session records: %w", err)
	}
	return nil
}

// Rewrite replaces the session file with the provided message list.
func (s *Store) Rewrite(ctx context.Context, messages []provider.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.path == "" {
		return errors.New("session path is required")
	}

	recs := make([]record, 0, len(messages))
	for _, msg := range messages {
		recs = append(recs, toRecord(msg, nil))
	}
	encoded, err := encodeRecords(recs)
	if err != nil {
		return err
	}
	if err := store.WriteFile(s.path, encoded); err != nil {
		return fmt.Errorf("rewrite session file: %w", err)
	}
	return nil
}

// Reset clears all persisted session history.
func (s *Store) Reset(ctx context.Context) error {
	return s.Rewrite(ctx, nil)
}

func encodeRecords(recs []record) ([]byte, error) {
	var b strings.Builder
	for _, rec := range recs {
		encoded, err := json.Marshal(rec)
		if err != nil {
			return nil, fmt.Errorf("marshal session record: %w", err)
		}
		b.Write(encoded)
		b.WriteByte('\n')
	}
	return []byte(b.String()), nil
}
