package server

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestConsoleWriter_ForwardsZerologLines(t *testing.T) {
	messageChan := make(chan ConsoleMessage, 10)
	logger := zerolog.New(newConsoleWriter(messageChan)).With().Timestamp().Logger()

	logger.Warn().Int("samples", 12).Str("reason", "resize").Msg("invalidated")

	select {
	case msg := <-messageChan:
		if msg.Level != "warn" {
			t.Errorf("Expected level 'warn', got '%s'", msg.Level)
		}
		expected := `invalidated reason="resize" samples=12`
		if msg.Message != expected {
			t.Errorf("Expected message '%s', got '%s'", expected, msg.Message)
		}
		if time.Since(msg.Timestamp) > time.Minute {
			t.Errorf("Timestamp seems too old: %v", msg.Timestamp)
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("Timeout waiting for console message")
	}
}

func TestConsoleWriter_MultipleMessages(t *testing.T) {
	messageChan := make(chan ConsoleMessage, 10)
	logger := zerolog.New(newConsoleWriter(messageChan))

	messages := []string{"Message 1", "Message 2", "Message 3"}
	for _, msg := range messages {
		logger.Info().Msg(msg)
	}

	for i, expected := range messages {
		select {
		case msg := <-messageChan:
			if msg.Message != expected {
				t.Errorf("Message %d: expected '%s', got '%s'", i, expected, msg.Message)
			}
		case <-time.After(200 * time.Millisecond):
			t.Fatalf("Timeout waiting for message %d", i+1)
		}
	}
}

func TestConsoleWriter_NonBlocking(t *testing.T) {
	// Unbuffered channel with no reader: writes must not block
	messageChan := make(chan ConsoleMessage)
	writer := newConsoleWriter(messageChan)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			_, _ = writer.Write([]byte(`{"level":"info","message":"dropped"}`))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Console writer blocked on a full channel")
	}
}

func TestConsoleWriter_NilChannel(t *testing.T) {
	writer := newConsoleWriter(nil)
	n, err := writer.Write([]byte("plain"))
	if err != nil || n != 5 {
		t.Errorf("Expected full write to be reported, got n=%d err=%v", n, err)
	}
}

func TestParseConsoleLine_PlainText(t *testing.T) {
	msg := parseConsoleLine([]byte("not json\n"))
	if msg.Message != "not json" || msg.Level != "info" {
		t.Errorf("Unexpected message %+v", msg)
	}
}
