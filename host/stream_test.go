package host

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestStreamTwoFramesInOrder(t *testing.T) {
	srv := newTestServer(t)
	srv.Register(func(payload json.RawMessage) (any, error) {
		return Stream(func(yield func(any, error) bool) {
			if !yield(map[string]string{"data": "a"}, nil) {
				return
			}
			yield(map[string]string{"data": "b"}, nil)
		}), nil
	})

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp := postInvocation(t, ts.URL, `{}`, nil)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}

	body, _ := io.ReadAll(resp.Body)
	want := "data: {\"data\":\"a\"}\n\ndata: {\"data\":\"b\"}\n\n"
	if string(body) != want {
		t.Errorf("body = %q, want %q", body, want)
	}
}

func TestStreamErrorAfterPartialOutput(t *testing.T) {
	srv := newTestServer(t)
	srv.Register(func(payload json.RawMessage) (any, error) {
		return Stream(func(yield func(any, error) bool) {
			if !yield(map[string]string{"data": "a"}, nil) {
				return
			}
			yield(nil, errors.New("source dried up"))
		}), nil
	})

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp := postInvocation(t, ts.URL, `{}`, nil)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	frames := parseSSEFrames(t, string(body))
	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2: %q", len(frames), body)
	}
	if frames[0]["data"] != "a" {
		t.Errorf("first frame = %v, want data a", frames[0])
	}
	if frames[1]["error"] != "source dried up" {
		t.Errorf("error frame = %v", frames[1])
	}
	if frames[1]["message"] != "An error occurred during streaming" {
		t.Errorf("message = %v", frames[1]["message"])
	}

	// The server must keep serving after a failed stream.
	resp2 := postInvocation(t, ts.URL, `{}`, nil)
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		t.Errorf("subsequent request status = %d, want 200", resp2.StatusCode)
	}
}

func TestStreamPanicBecomesErrorFrame(t *testing.T) {
	srv := newTestServer(t)
	srv.Register(func(payload json.RawMessage) (any, error) {
		return Stream(func(yield func(any, error) bool) {
			yield(map[string]string{"data": "a"}, nil)
			panic("iterator exploded")
		}), nil
	})

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp := postInvocation(t, ts.URL, `{}`, nil)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	frames := parseSSEFrames(t, string(body))
	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2: %q", len(frames), body)
	}
	if got, _ := frames[1]["error"].(string); !strings.Contains(got, "iterator exploded") {
		t.Errorf("error frame = %v", frames[1])
	}
}

func TestStreamFromChannel(t *testing.T) {
	srv := newTestServer(t)
	srv.Register(func(payload json.RawMessage) (any, error) {
		ch := make(chan any, 3)
		ch <- map[string]string{"data": "x"}
		ch <- map[string]string{"data": "y"}
		close(ch)
		return ch, nil
	})

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp := postInvocation(t, ts.URL, `{}`, nil)
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}

	body, _ := io.ReadAll(resp.Body)
	want := "data: {\"data\":\"x\"}\n\ndata: {\"data\":\"y\"}\n\n"
	if string(body) != want {
		t.Errorf("body = %q, want %q", body, want)
	}
}

func TestStreamChannelErrorItem(t *testing.T) {
	srv := newTestServer(t)
	srv.Register(func(payload json.RawMessage) (any, error) {
		ch := make(chan any, 2)
		ch <- map[string]string{"data": "ok"}
		ch <- errors.New("producer failed")
		close(ch)
		return ch, nil
	})

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp := postInvocation(t, ts.URL, `{}`, nil)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	frames := parseSSEFrames(t, string(body))
	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2: %q", len(frames), body)
	}
	if frames[1]["error"] != "producer failed" {
		t.Errorf("error frame = %v", frames[1])
	}
}

// parseSSEFrames decodes each "data: <json>" frame in an SSE body.
func parseSSEFrames(t *testing.T, body string) []map[string]any {
	t.Helper()
	var frames []map[string]any
	for _, chunk := range strings.Split(body, "\n\n") {
		chunk = strings.TrimSpace(chunk)
		if chunk == "" {
			continue
		}
		payload, ok := strings.CutPrefix(chunk, "data: ")
		if !ok {
			t.Fatalf("malformed SSE chunk: %q", chunk)
		}
		var frame map[string]any
		if err := json.Unmarshal([]byte(payload), &frame); err != nil {
			t.Fatalf("frame is not valid JSON: %q: %v", payload, err)
		}
		frames = append(frames, frame)
	}
	return frames
}
