package server

import (
	"encoding/json"
	"sort"
	"strings"
	"time"
)

// ConsoleMessage represents a console message with timestamp
type ConsoleMessage struct {
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"` // "debug", "info", "warn", "error"
}

// consoleWriter forwards zerolog JSON lines to a viewer console. It never
// blocks: when the channel is full the line is dropped.
type consoleWriter struct {
	consoleChan chan<- ConsoleMessage
}

func newConsoleWriter(consoleChan chan<- ConsoleMessage) *consoleWriter {
	return &consoleWriter{consoleChan: consoleChan}
}

// Write implements io.Writer
func (cw *consoleWriter) Write(p []byte) (int, error) {
	if cw.consoleChan == nil {
		return len(p), nil
	}

	msg := parseConsoleLine(p)
	select {
	case cw.consoleChan <- msg:
	default:
	}
	return len(p), nil
}

// parseConsoleLine turns a zerolog line into a console message. Lines that are
// not JSON are forwarded verbatim at info level.
func parseConsoleLine(p []byte) ConsoleMessage {
	var entry map[string]interface{}
	if err := json.Unmarshal(p, &entry); err != nil {
		return ConsoleMessage{
			Message:   strings.TrimRight(string(p), "\n"),
			Timestamp: time.Now(),
			Level:     "info",
		}
	}

	msg := ConsoleMessage{Timestamp: time.Now(), Level: "info"}
	if level, ok := entry["level"].(string); ok {
		msg.Level = level
	}
	if text, ok := entry["message"].(string); ok {
		msg.Message = text
	}
	if ts, ok := entry["time"].(string); ok {
		if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
			msg.Timestamp = parsed
		}
	}

	// Append the remaining fields, sorted for stable output
	var fields []string
	for key, value := range entry {
		switch key {
		case "level", "message", "time":
			continue
		}
		b, _ := json.Marshal(value)
		fields = append(fields, key+"="+string(b))
	}
	if len(fields) > 0 {
		sort.Strings(fields)
		msg.Message = strings.TrimSpace(msg.Message + " " + strings.Join(fields, " "))
	}
	return msg
}
