package conversation

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// pollInterval bounds how quickly WriteStream notices its ResponseWriter's
// request context was cancelled mid-stream.
const pollInterval = 100 * time.Millisecond

// WriteStream drains events onto w as an SSE response, one "event: TYPE\ndata:
// JSON\n\n" record per Event, flushing after every write exactly as the
// teacher's single-purpose chat handler did. It returns once events is
// closed or the request context is done, whichever comes first; either way
// the caller (SendMessageStream's goroutine) keeps running to persist the
// final Message even if the client already disconnected.
func WriteStream(w http.ResponseWriter, r *http.Request, events <-chan Event) error {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return fmt.Errorf("conversation: ResponseWriter does not support flushing")
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return r.Context().Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := writeEvent(w, ev); err != nil {
				return err
			}
			flusher.Flush()
			if ev.Type == EventDone {
				return nil
			}
		case <-ticker.C:
			// Idle tick: nothing to send, just re-check r.Context().Done().
		}
	}
}

func writeEvent(w http.ResponseWriter, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
	return err
}
