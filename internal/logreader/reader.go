// Package logreader parses append-only JSONL session logs into typed
// message records. It tracks complete-line offsets so a file being written
// mid-append is never half-read.
package logreader

import (
	"bytes"
	"io"
	"os"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/threadwatch/pkg/models"
)

// record is the raw shape of one session log line. The `type` field is the
// discriminator; only user and assistant records become Messages.
type record struct {
	Type        string `json:"type"`
	UUID        string `json:"uuid"`
	Timestamp   string `json:"timestamp"`
	SessionID   string `json:"sessionId"`
	ParentUUID  string `json:"parentUuid"`
	IsMeta      bool   `json:"isMeta"`
	IsSidechain bool   `json:"isSidechain"`
	Message     struct {
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"`
	} `json:"message"`
}

// contentBlock is one element of a structured message content array.
type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ReadAll reads every complete line of the file and returns the parsed
// messages plus the offset of the byte after the last complete line.
// Re-reading an unchanged file yields an identical sequence.
func ReadAll(path, projectID string) ([]models.Message, int64, error) {
	return ReadFrom(path, projectID, 0)
}

// ReadFrom reads complete lines starting at the given byte offset.
// A partial trailing line (producer still appending) is left unconsumed;
// the returned offset resumes exactly there on the next call.
func ReadFrom(path, projectID string, start int64) ([]models.Message, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, start, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, start, err
	}
	size := info.Size()
	if size <= start {
		return nil, start, nil
	}

	if _, err := f.Seek(start, io.SeekStart); err != nil {
		return nil, start, err
	}

	// Limit to the size observed before reading so bytes appended while we
	// parse are picked up on the next tick instead of mid-read.
	data, err := io.ReadAll(io.LimitReader(f, size-start))
	if err != nil {
		return nil, start, err
	}

	// Only consume through the last newline; the tail fragment is incomplete.
	end := bytes.LastIndexByte(data, '\n')
	if end < 0 {
		return nil, start, nil
	}
	consumed := data[:end+1]
	newOffset := start + int64(end) + 1

	var messages []models.Message
	lineNo := 0
	for _, line := range bytes.Split(consumed, []byte{'\n'}) {
		lineNo++
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		msg, err := parseLine(line, projectID)
		if err != nil {
			log.Warn().Err(err).Str("file", path).Int("line", lineNo).Msg("Skipping malformed log line")
			continue
		}
		if msg != nil {
			messages = append(messages, *msg)
		}
	}

	return messages, newOffset, nil
}

// parseLine parses one JSONL line into a Message. Returns (nil, nil) for
// records that are valid but not conversation turns.
func parseLine(line []byte, projectID string) (*models.Message, error) {
	var rec record
	if err := json.Unmarshal(line, &rec); err != nil {
		return nil, err
	}

	switch rec.Type {
	case "user", "assistant":
	default:
		// summary, system, file-history-snapshot and friends
		return nil, nil
	}

	// Meta and sidechain records are bookkeeping, not conversation turns.
	if rec.IsMeta || rec.IsSidechain || rec.UUID == "" {
		return nil, nil
	}

	content, ok := extractContent(rec.Message.Content)
	if !ok {
		return nil, nil
	}

	ts := parseTimestamp(rec.Timestamp)

	return &models.Message{
		UUID:       rec.UUID,
		Type:       models.MessageType(rec.Type),
		Content:    content,
		Timestamp:  ts,
		SessionID:  rec.SessionID,
		ProjectID:  projectID,
		ParentUUID: rec.ParentUUID,
	}, nil
}

// extractContent flattens message content into text. Content is either a
// plain string or an array of blocks; tool_result-only user records carry no
// conversational content and are dropped.
func extractContent(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, s != ""
	}

	var blocks []contentBlock
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return "", false
	}

	var parts []string
	for _, b := range blocks {
		if b.Type == "text" && b.Text != "" {
			parts = append(parts, b.Text)
		}
	}
	if len(parts) == 0 {
		return "", false
	}

	out := parts[0]
	for _, p := range parts[1:] {
		out += "\n" + p
	}
	return out, true
}

// parseTimestamp parses an ISO-8601 timestamp, tolerating nanosecond precision.
func parseTimestamp(ts string) time.Time {
	if ts == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		t, err = time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return time.Time{}
		}
	}
	return t
}
