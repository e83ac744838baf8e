package synth_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/voxtide/voxtide/pkg/audio"
	"github.com/voxtide/voxtide/pkg/synth"
)

// wsServer runs handler for each WebSocket connection and returns the
// ws:// URL to dial.
func wsServer(t *testing.T, handler func(ctx context.Context, r *http.Request, conn *websocket.Conn)) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("accept: %v", err)
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")
		handler(r.Context(), r, conn)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func writeJSON(ctx context.Context, conn *websocket.Conn, v any) error {
	data, _ := json.Marshal(v)
	return conn.Write(ctx, websocket.MessageText, data)
}

var formatFrame = map[string]any{
	"type": "format", "sample_rate": 16000, "channels": 1, "bit_depth": 16,
}

func TestClient_StreamsChunksInOrder(t *testing.T) {
	var gotAuth string
	var gotReq map[string]any
	url := wsServer(t, func(ctx context.Context, r *http.Request, conn *websocket.Conn) {
		gotAuth = r.Header.Get("Authorization")
		_, payload, err := conn.Read(ctx)
		if err != nil {
			t.Errorf("read request: %v", err)
			return
		}
		if err := json.Unmarshal(payload, &gotReq); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		writeJSON(ctx, conn, formatFrame)
		for _, chunk := range [][]byte{{1, 2}, {3, 4, 5, 6}, {7, 8}} {
			conn.Write(ctx, websocket.MessageBinary, chunk)
		}
		writeJSON(ctx, conn, map[string]any{"type": "end"})
	})

	c, err := synth.New(url, "key-1", synth.WithVoice("nova"))
	if err != nil {
		t.Fatal(err)
	}

	var chunks [][]byte
	var format audio.Format
	err = c.Synthesize(context.Background(), "Hello there! 🎉", func(pcm []byte, f audio.Format) {
		chunks = append(chunks, append([]byte(nil), pcm...))
		format = f
	})
	if err != nil {
		t.Fatal(err)
	}

	if gotAuth != "Bearer key-1" {
		t.Errorf("authorization: got %q", gotAuth)
	}
	if gotReq["text"] != "Hello there!" {
		t.Errorf("request text not sanitized: got %q", gotReq["text"])
	}
	if gotReq["voice"] != "nova" {
		t.Errorf("voice: got %q", gotReq["voice"])
	}
	want := audio.Format{SampleRate: 16000, Channels: 1, BitDepth: 16}
	if format != want {
		t.Errorf("format: got %+v, want %+v", format, want)
	}
	if len(chunks) != 3 || len(chunks[0]) != 2 || len(chunks[1]) != 4 || len(chunks[2]) != 2 {
		t.Fatalf("chunks: got %v", chunks)
	}
	if chunks[1][0] != 3 {
		t.Error("chunk order violated")
	}
}

func TestClient_EmptyAfterSanitizationSkipsNetwork(t *testing.T) {
	// Unroutable endpoint: any dial attempt would fail loudly.
	c, err := synth.New("ws://127.0.0.1:1", "key")
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Synthesize(context.Background(), "🎉 ✨ 🚀", func([]byte, audio.Format) {
		t.Error("no chunk expected for empty text")
	}); err != nil {
		t.Errorf("empty-after-sanitization must be a silent no-op, got %v", err)
	}
}

func TestClient_ServiceErrorFrame(t *testing.T) {
	url := wsServer(t, func(ctx context.Context, r *http.Request, conn *websocket.Conn) {
		conn.Read(ctx)
		writeJSON(ctx, conn, formatFrame)
		writeJSON(ctx, conn, map[string]any{"type": "error", "message": "voice not found"})
	})

	c, _ := synth.New(url, "key")
	err := c.Synthesize(context.Background(), "hi", func([]byte, audio.Format) {})
	if err == nil || errors.Is(err, synth.ErrAborted) {
		t.Fatalf("service error must surface as a plain error, got %v", err)
	}
	if !strings.Contains(err.Error(), "voice not found") {
		t.Errorf("error should carry the service message, got %v", err)
	}
}

func TestClient_MissingFormatFrameFails(t *testing.T) {
	url := wsServer(t, func(ctx context.Context, r *http.Request, conn *websocket.Conn) {
		conn.Read(ctx)
		conn.Write(ctx, websocket.MessageBinary, []byte{1, 2, 3, 4})
	})

	c, _ := synth.New(url, "key")
	err := c.Synthesize(context.Background(), "hi", func([]byte, audio.Format) {
		t.Error("no chunk may be delivered without a format")
	})
	if err == nil {
		t.Fatal("expected an error for a stream without a format frame")
	}
}

func TestClient_CancellationReturnsAborted(t *testing.T) {
	release := make(chan struct{})
	url := wsServer(t, func(ctx context.Context, r *http.Request, conn *websocket.Conn) {
		conn.Read(ctx)
		writeJSON(ctx, conn, formatFrame)
		conn.Write(ctx, websocket.MessageBinary, []byte{1, 2})
		<-release // hold the stream open until the client gave up
	})
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	c, _ := synth.New(url, "key")

	chunks := 0
	err := c.Synthesize(ctx, "hi", func([]byte, audio.Format) {
		chunks++
		cancel() // user cancels mid-stream
	})
	if !errors.Is(err, synth.ErrAborted) {
		t.Fatalf("got %v, want ErrAborted", err)
	}
	if chunks != 1 {
		t.Errorf("chunks after cancellation: got %d, want 1", chunks)
	}
}

func TestClient_RejectsUnknownCodec(t *testing.T) {
	if _, err := synth.New("ws://x", "key", synth.WithCodec("mp3")); err == nil {
		t.Fatal("unknown codec must be rejected at construction")
	}
}

func TestClient_DialFailureIsNotAborted(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	c, _ := synth.New("ws://127.0.0.1:1", "key")
	err := c.Synthesize(ctx, "hi", func([]byte, audio.Format) {})
	if err == nil {
		t.Fatal("expected dial failure")
	}
	// A refused connection is a real failure; only caller cancellation maps
	// to ErrAborted. (A timeout elapsing does map to ErrAborted, hence the
	// generous budget above.)
	if errors.Is(err, synth.ErrAborted) && ctx.Err() == nil {
		t.Errorf("dial refusal misclassified as aborted: %v", err)
	}
}
