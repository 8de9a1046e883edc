package conversation

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteStream_FramesEventsAndStopsAtDone(t *testing.T) {
	events := make(chan Event, 4)
	events <- Event{Type: EventText, MessageID: "m1", Delta: "hi"}
	events <- Event{Type: EventDone, MessageID: "m1"}
	close(events)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/send", nil)

	err := WriteStream(rec, req, events)
	require.NoError(t, err)

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	lines := bufio.NewScanner(strings.NewReader(rec.Body.String()))
	var frames []string
	for lines.Scan() {
		if strings.HasPrefix(lines.Text(), "event: ") {
			frames = append(frames, strings.TrimPrefix(lines.Text(), "event: "))
		}
	}
	assert.Equal(t, []string{"text", "done"}, frames)
}

func TestWriteStream_StopsWhenRequestContextCancelled(t *testing.T) {
	events := make(chan Event)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/send", nil)
	ctx, cancel := context.WithCancel(req.Context())
	req = req.WithContext(ctx)
	cancel()

	err := WriteStream(rec, req, events)
	assert.Error(t, err)
}
