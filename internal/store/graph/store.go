package graph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"

	"github.com/ragcore/ragcore/internal/domain"
)

// Store owns every Neo4j operation used by the retrieval engine's graph mode
// and the ingestion pipeline's entity/relation extraction stage.
type Store struct {
	driver neo4j.DriverWithContext
}

// New wraps an already-open Neo4j driver.
func New(driver neo4j.DriverWithContext) *Store {
	return &Store{driver: driver}
}

// UpsertEntity creates or updates an Entity node, keyed by natural ID.
func (s *Store) UpsertEntity(ctx context.Context, n Node) error {
	sess := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer sess.Close(ctx)

	cypher := `MERGE (e:Entity {id: $id}) SET e += $props`
	_, err := sess.Run(ctx, cypher, map[string]any{
		"id":    n.ID,
		"props": nodeToMap(n),
	})
	if err != nil {
		return domain.Wrap(domain.KindTransient, "graph.UpsertEntity", err)
	}
	return nil
}

// UpsertRelation creates or updates a directed Relation between two Entity
// nodes. The relation type is sanitized into a valid Cypher identifier.
func (s *Store) UpsertRelation(ctx context.Context, e Edge) error {
	sess := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer sess.Close(ctx)

	cypher := fmt.Sprintf(
		`MATCH (a:Entity {id: $from}), (b:Entity {id: $to})
		 MERGE (a)-[r:%s {id: $id}]->(b)
		 SET r.weight = $weight`,
		sanitizeRelType(e.Type),
	)
	_, err := sess.Run(ctx, cypher, map[string]any{
		"from":   e.From,
		"to":     e.To,
		"id":     e.ID,
		"weight": e.Weight,
	})
	if err != nil {
		return domain.Wrap(domain.KindTransient, "graph.UpsertRelation", err)
	}
	return nil
}

// Neighbors returns entities within the given traversal depth of nodeID.
func (s *Store) Neighbors(ctx context.Context, nodeID string, depth int) ([]Node, error) {
	if depth <= 0 {
		depth = 1
	}
	sess := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer sess.Close(ctx)

	cypher := fmt.Sprintf(
		`MATCH (start:Entity {id: $id})-[*1..%d]-(n:Entity)
		 WHERE n.id <> $id
		 RETURN DISTINCT n`, depth)
	result, err := sess.Run(ctx, cypher, map[string]any{"id": nodeID})
	if err != nil {
		return nil, domain.Wrap(domain.KindTransient, "graph.Neighbors", err)
	}
	return collectNodes(ctx, result)
}

// NeighborsWithWeights is Neighbors plus, for each returned entity, the
// product of edge weights along the shortest path that reached it, used by
// the retrieval engine's graph mode to rank results by entity confidence
// times edge-weight product.
func (s *Store) NeighborsWithWeights(ctx context.Context, nodeID string, depth int) ([]Node, map[string]float64, error) {
	if depth <= 0 {
		depth = 1
	}
	sess := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer sess.Close(ctx)

	cypher := fmt.Sprintf(
		`MATCH p = shortestPath((start:Entity {id: $id})-[r*1..%d]-(n:Entity))
		 WHERE n.id <> $id
		 RETURN DISTINCT n, reduce(w = 1.0, rel IN relationships(p) | w * coalesce(rel.weight, 1.0)) AS path_weight`, depth)
	result, err := sess.Run(ctx, cypher, map[string]any{"id": nodeID})
	if err != nil {
		return nil, nil, domain.Wrap(domain.KindTransient, "graph.NeighborsWithWeights", err)
	}

	var nodes []Node
	weights := make(map[string]float64)
	for result.Next(ctx) {
		node, _, err := neo4j.GetRecordValue[dbtype.Node](result.Record(), "n")
		if err != nil {
			return nil, nil, err
		}
		n := nodeFromProps(node.Props)
		nodes = append(nodes, n)
		if w, ok := result.Record().Get("path_weight"); ok {
			if wf, ok := w.(float64); ok {
				weights[n.ID] = wf
			}
		}
	}
	return nodes, weights, nil
}

// FindByType returns every entity of the given type within a knowledge base.
func (s *Store) FindByType(ctx context.Context, knowledgeBaseID, entityType string) ([]Node, error) {
	sess := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer sess.Close(ctx)

	cypher := `MATCH (n:Entity {knowledge_base_id: $kb, type: $type}) RETURN n`
	result, err := sess.Run(ctx, cypher, map[string]any{"kb": knowledgeBaseID, "type": entityType})
	if err != nil {
		return nil, domain.Wrap(domain.KindTransient, "graph.FindByType", err)
	}
	return collectNodes(ctx, result)
}

// TracePath finds the shortest path of entities between two nodes.
func (s *Store) TracePath(ctx context.Context, fromID, toID string) ([]Node, error) {
	sess := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer sess.Close(ctx)

	cypher := `MATCH p = shortestPath((a:Entity {id: $from})-[*]-(b:Entity {id: $to}))
				RETURN nodes(p) AS nodes`
	result, err := sess.Run(ctx, cypher, map[string]any{"from": fromID, "to": toID})
	if err != nil {
		return nil, domain.Wrap(domain.KindTransient, "graph.TracePath", err)
	}
	if !result.Next(ctx) {
		return nil, domain.Wrap(domain.KindNotFound, "graph.TracePath", fmt.Errorf("no path from %s to %s", fromID, toID))
	}

	nodesVal, ok := result.Record().Get("nodes")
	if !ok {
		return nil, fmt.Errorf("graph: no nodes in path result")
	}
	nodeList, ok := nodesVal.([]any)
	if !ok {
		return nil, fmt.Errorf("graph: unexpected nodes type")
	}

	var out []Node
	for _, raw := range nodeList {
		node, ok := raw.(dbtype.Node)
		if !ok {
			continue
		}
		out = append(out, nodeFromProps(node.Props))
	}
	return out, nil
}

// UpsertBatch writes entities and relations in a single transaction, used by
// the ingestion pipeline's Index stage so a document's extracted graph is
// never partially visible.
func (s *Store) UpsertBatch(ctx context.Context, nodes []Node, edges []Edge) error {
	sess := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer sess.Close(ctx)

	_, err := sess.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, n := range nodes {
			cypher := `MERGE (e:Entity {id: $id}) SET e += $props`
			if _, err := tx.Run(ctx, cypher, map[string]any{"id": n.ID, "props": nodeToMap(n)}); err != nil {
				return nil, err
			}
		}
		for _, e := range edges {
			cypher := fmt.Sprintf(
				`MATCH (a:Entity {id: $from}), (b:Entity {id: $to})
				 MERGE (a)-[r:%s {id: $id}]->(b)
				 SET r.weight = $weight`,
				sanitizeRelType(e.Type),
			)
			if _, err := tx.Run(ctx, cypher, map[string]any{
				"from": e.From, "to": e.To, "id": e.ID, "weight": e.Weight,
			}); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return domain.Wrap(domain.KindTransient, "graph.UpsertBatch", err)
	}
	return nil
}

func collectNodes(ctx context.Context, result neo4j.ResultWithContext) ([]Node, error) {
	var items []Node
	for result.Next(ctx) {
		node, _, err := neo4j.GetRecordValue[dbtype.Node](result.Record(), "n")
		if err != nil {
			return nil, err
		}
		items = append(items, nodeFromProps(node.Props))
	}
	return items, nil
}

func nodeToMap(n Node) map[string]any {
	m := map[string]any{
		"id":                n.ID,
		"knowledge_base_id": n.KnowledgeBaseID,
		"name":              n.Name,
		"type":              n.Type,
	}
	for k, v := range n.Properties {
		m["prop_"+k] = v
	}
	return m
}

func nodeFromProps(props map[string]any) Node {
	n := Node{
		ID:              strProp(props, "id"),
		KnowledgeBaseID: strProp(props, "knowledge_base_id"),
		Name:            strProp(props, "name"),
		Type:            strProp(props, "type"),
		Properties:      make(map[string]string),
	}
	for k, v := range props {
		if len(k) > 5 && k[:5] == "prop_" {
			if s, ok := v.(string); ok {
				n.Properties[k[5:]] = s
			}
		}
	}
	return n
}

func strProp(props map[string]any, key string) string {
	if v, ok := props[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// sanitizeRelType ensures the relationship type is a valid Cypher identifier.
func sanitizeRelType(t string) string {
	safe := make([]byte, 0, len(t))
	for i := range t {
		c := t[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' {
			safe = append(safe, c)
		}
	}
	if len(safe) == 0 {
		return "RELATED_TO"
	}
	for i := range safe {
		if safe[i] >= 'a' && safe[i] <= 'z' {
			safe[i] -= 32
		}
	}
	return string(safe)
}
