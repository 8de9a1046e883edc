package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/ragcore/ragcore/internal/domain"
)

const (
	// IngestSubject is the NATS subject documents are published to for
	// asynchronous ingestion.
	IngestSubject = "ragcore.ingest"
	// DLQSubject is where documents land after exhausting MaxRetries, or at
	// once on a failure that is not transient.
	DLQSubject = "ragcore.ingest.dlq"
	// MaxRetries before a failed message is sent to the DLQ.
	MaxRetries = 3
	// retryCountHeader tracks how many times a message has been
	// redelivered.
	retryCountHeader = "X-Retry-Count"
)

// ingestMessage is the wire format published to IngestSubject.
type ingestMessage struct {
	KnowledgeBaseID string `json:"knowledge_base_id"`
	Filename        string `json:"filename"`
	ContentType     string `json:"content_type"`
	Content         []byte `json:"content"`
}

// dlqMessage is published to the DLQ subject after repeated failure.
type dlqMessage struct {
	Msg     ingestMessage `json:"msg"`
	Error   string        `json:"error"`
	Retries int           `json:"retries"`
}

// StartConsumer subscribes to IngestSubject and runs every message through
// IngestDocument, retrying transient failures up to MaxRetries before
// routing to the DLQ. Kept close to engine/ingest.StartConsumer's
// retry-count-header and DLQ-publish shape, generalized from
// ScrapedPost to the upload-shaped ingestMessage.
func StartConsumer(nc *nats.Conn, deps Deps) (*nats.Subscription, error) {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}

	return nc.Subscribe(IngestSubject, func(msg *nats.Msg) {
		var im ingestMessage
		if err := json.Unmarshal(msg.Data, &im); err != nil {
			log.Error("ingest.consumer: unmarshal failed", "error", err)
			return
		}

		retries := 0
		if msg.Header != nil {
			if v := msg.Header.Get(retryCountHeader); v != "" {
				fmt.Sscanf(v, "%d", &retries)
			}
		}

		ctx := context.Background()
		req := UploadRequest{
			KnowledgeBaseID: im.KnowledgeBaseID,
			Filename:        im.Filename,
			ContentType:     im.ContentType,
			Content:         bytes.NewReader(im.Content),
		}

		doc, err := IngestDocument(ctx, deps, req)
		if err != nil {
			retries++
			log.Error("ingest.consumer: pipeline failed",
				"error", err, "filename", im.Filename, "retry", retries)

			if retries >= MaxRetries || !domain.IsRetryable(err) {
				dlq := dlqMessage{Msg: im, Error: err.Error(), Retries: retries}
				data, _ := json.Marshal(dlq)
				if pubErr := nc.Publish(DLQSubject, data); pubErr != nil {
					log.Error("ingest.consumer: DLQ publish failed", "error", pubErr)
				}
			} else {
				retryMsg := nats.NewMsg(IngestSubject)
				retryMsg.Data = msg.Data
				retryMsg.Header = nats.Header{}
				retryMsg.Header.Set(retryCountHeader, fmt.Sprintf("%d", retries))
				if pubErr := nc.PublishMsg(retryMsg); pubErr != nil {
					log.Error("ingest.consumer: retry publish failed", "error", pubErr)
				}
			}
		} else {
			log.Info("ingest.consumer: success", "document_id", doc.ID, "chunk_count", doc.ChunkCount)
		}

		if msg.Reply != "" {
			_ = msg.Ack()
		}
	})
}

