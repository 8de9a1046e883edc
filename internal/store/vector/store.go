package vector

import (
	"context"
	"fmt"

	"github.com/ragcore/ragcore/internal/domain"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const sparseVectorName = "sparse"

// Store is the sole owner of Qdrant collection and point operations. One
// collection is created per KnowledgeBase, named by its ID.
type Store struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
}

// New dials Qdrant over gRPC at addr.
func New(addr string) (*Store, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("vector: dial qdrant %s: %w", addr, err)
	}
	return &Store{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
	}, nil
}

// Close closes the underlying gRPC connection.
func (s *Store) Close() error { return s.conn.Close() }

// EnsureCollection creates the knowledge base's collection if it doesn't
// already exist, with a dense vector of the given dimensionality plus a
// named sparse vector for keyword-style search.
func (s *Store) EnsureCollection(ctx context.Context, collection string, dims int) error {
	list, err := s.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("vector: list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == collection {
			return nil
		}
	}

	_, err = s.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(dims),
					Distance: pb.Distance_Cosine,
				},
			},
		},
		SparseVectorsConfig: &pb.SparseVectorConfig{
			Map: map[string]*pb.SparseVectorParams{
				sparseVectorName: {},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("vector: create collection %s: %w", collection, err)
	}
	return nil
}

// DeleteCollection removes a knowledge base's collection entirely.
func (s *Store) DeleteCollection(ctx context.Context, collection string) error {
	_, err := s.collections.Delete(ctx, &pb.DeleteCollection{CollectionName: collection})
	if err != nil {
		return fmt.Errorf("vector: delete collection %s: %w", collection, err)
	}
	return nil
}

// Upsert stores embedding records into the given collection. Called by the
// ingestion pipeline's Index stage.
func (s *Store) Upsert(ctx context.Context, collection string, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	points := make([]*pb.PointStruct, len(records))
	for i, r := range records {
		payload := make(map[string]*pb.Value, len(r.Payload))
		for k, val := range r.Payload {
			payload[k] = toPBValue(val)
		}

		vectors := &pb.Vectors{
			VectorsOptions: &pb.Vectors_Vectors{
				Vectors: &pb.NamedVectors{
					Vectors: map[string]*pb.Vector{
						"": {Data: r.Embedding},
					},
				},
			},
		}
		if len(r.SparseTerms) > 0 {
			indices := make([]uint32, 0, len(r.SparseTerms))
			values := make([]float32, 0, len(r.SparseTerms))
			for idx, v := range r.SparseTerms {
				indices = append(indices, idx)
				values = append(values, v)
			}
			vectors.GetVectors().Vectors[sparseVectorName] = &pb.Vector{
				Data:           values,
				Indices:        &pb.SparseIndices{Data: indices},
			}
		}

		points[i] = &pb.PointStruct{
			Id:      &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: r.ID}},
			Vectors: vectors,
			Payload: payload,
		}
	}

	wait := true
	_, err := s.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return domain.Wrap(domain.KindTransient, "vector.Upsert", fmt.Errorf("upsert %d points: %w", len(records), err))
	}
	return nil
}

// DeleteByDocumentID removes every point belonging to a document, used when
// a document is re-ingested or deleted.
func (s *Store) DeleteByDocumentID(ctx context.Context, collection, documentID string) error {
	wait := true
	_, err := s.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: collection,
		Wait:           &wait,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Filter{
				Filter: &pb.Filter{Must: []*pb.Condition{fieldMatch("document_id", documentID)}},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("vector: delete by document_id %s: %w", documentID, err)
	}
	return nil
}

// SearchDense performs dense k-NN similarity search, optionally filtered.
func (s *Store) SearchDense(ctx context.Context, collection string, embedding []float32, topK int, filter Filter) ([]SearchHit, error) {
	req := &pb.SearchPoints{
		CollectionName: collection,
		Vector:         embedding,
		Limit:          uint64(topK),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	}
	if len(filter) > 0 {
		must := make([]*pb.Condition, 0, len(filter))
		for k, v := range filter {
			must = append(must, fieldMatch(k, v))
		}
		req.Filter = &pb.Filter{Must: must}
	}

	resp, err := s.points.Search(ctx, req)
	if err != nil {
		return nil, domain.Wrap(domain.KindTransient, "vector.SearchDense", err)
	}
	return hitsFromResults(resp.GetResult()), nil
}

// SearchSparse performs a sparse (term-weighted) search against the named
// sparse vector. Used by the retrieval engine's "sparse" mode.
func (s *Store) SearchSparse(ctx context.Context, collection string, terms map[uint32]float32, topK int, filter Filter) ([]SearchHit, error) {
	indices := make([]uint32, 0, len(terms))
	values := make([]float32, 0, len(terms))
	for idx, v := range terms {
		indices = append(indices, idx)
		values = append(values, v)
	}

	req := &pb.SearchPoints{
		CollectionName: collection,
		Vector:         values,
		SparseIndices:  &pb.SparseIndices{Data: indices},
		VectorName:     strPtr(sparseVectorName),
		Limit:          uint64(topK),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	}
	if len(filter) > 0 {
		must := make([]*pb.Condition, 0, len(filter))
		for k, v := range filter {
			must = append(must, fieldMatch(k, v))
		}
		req.Filter = &pb.Filter{Must: must}
	}

	resp, err := s.points.Search(ctx, req)
	if err != nil {
		return nil, domain.Wrap(domain.KindTransient, "vector.SearchSparse", err)
	}
	return hitsFromResults(resp.GetResult()), nil
}

func hitsFromResults(results []*pb.ScoredPoint) []SearchHit {
	hits := make([]SearchHit, len(results))
	for i, r := range results {
		h := SearchHit{
			ID:    r.GetId().GetUuid(),
			Score: r.GetScore(),
			Meta:  make(map[string]string),
		}
		for k, val := range r.GetPayload() {
			s := val.GetStringValue()
			switch k {
			case "content":
				h.Content = s
			case "document_id":
				h.DocumentID = s
			case "chunk_id":
				h.ChunkID = s
			default:
				h.Meta[k] = s
			}
		}
		hits[i] = h
	}
	return hits
}

func fieldMatch(key, value string) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key:   key,
				Match: &pb.Match{MatchValue: &pb.Match_Keyword{Keyword: value}},
			},
		},
	}
}

func toPBValue(val any) *pb.Value {
	switch tv := val.(type) {
	case string:
		return &pb.Value{Kind: &pb.Value_StringValue{StringValue: tv}}
	case int:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(tv)}}
	case int64:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: tv}}
	case float64:
		return &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: tv}}
	case bool:
		return &pb.Value{Kind: &pb.Value_BoolValue{BoolValue: tv}}
	default:
		return &pb.Value{Kind: &pb.Value_StringValue{StringValue: fmt.Sprint(tv)}}
	}
}

func strPtr(s string) *string { return &s }
