package vector

import (
	"testing"

	pb "github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToPBValue(t *testing.T) {
	require.Equal(t, "x", toPBValue("x").GetStringValue())
	require.Equal(t, int64(5), toPBValue(5).GetIntegerValue())
	require.Equal(t, int64(5), toPBValue(int64(5)).GetIntegerValue())
	require.InDelta(t, 1.5, toPBValue(1.5).GetDoubleValue(), 0.0001)
	require.True(t, toPBValue(true).GetBoolValue())
}

func TestFieldMatch(t *testing.T) {
	cond := fieldMatch("document_id", "doc-1")
	field := cond.GetField()
	require.Equal(t, "document_id", field.GetKey())
	require.Equal(t, "doc-1", field.GetMatch().GetKeyword())
}

func TestHitsFromResults(t *testing.T) {
	results := []*pb.ScoredPoint{
		{
			Id:    &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: "p1"}},
			Score: 0.9,
			Payload: map[string]*pb.Value{
				"content":     {Kind: &pb.Value_StringValue{StringValue: "hello"}},
				"document_id": {Kind: &pb.Value_StringValue{StringValue: "doc-1"}},
				"chunk_id":    {Kind: &pb.Value_StringValue{StringValue: "chunk-1"}},
				"source":      {Kind: &pb.Value_StringValue{StringValue: "upload"}},
			},
		},
	}
	hits := hitsFromResults(results)
	require.Len(t, hits, 1)
	assert.Equal(t, "p1", hits[0].ID)
	assert.Equal(t, float32(0.9), hits[0].Score)
	assert.Equal(t, "hello", hits[0].Content)
	assert.Equal(t, "doc-1", hits[0].DocumentID)
	assert.Equal(t, "chunk-1", hits[0].ChunkID)
	assert.Equal(t, "upload", hits[0].Meta["source"])
}
