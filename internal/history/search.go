package history

import (
	"fmt"
	"log"
	"os"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/yunseo-dev/esmchat/internal/chat"
)

// SearchHit is one full-text match across cached transcripts.
type SearchHit struct {
	MessageID string
	SessionID string
	Role      string
	Content   string
	Score     float64
}

// SearchIndex provides keyword search over cached messages.
type SearchIndex struct {
	index bleve.Index
	path  string
}

// OpenSearchIndex creates or opens the index. A corrupted index is deleted
// and rebuilt; it is only a cache of server data.
func OpenSearchIndex(path string) (*SearchIndex, error) {
	index, err := bleve.Open(path)
	if err == bleve.ErrorIndexPathDoesNotExist {
		index, err = bleve.New(path, buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("failed to create search index: %w", err)
		}
	} else if err != nil {
		log.Printf("search index appears corrupted (%v), recreating", err)
		if index != nil {
			index.Close()
		}
		if err := os.RemoveAll(path); err != nil {
			return nil, fmt.Errorf("failed to remove corrupted index: %w", err)
		}
		index, err = bleve.New(path, buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("failed to recreate search index: %w", err)
		}
	}

	return &SearchIndex{index: index, path: path}, nil
}

// Close closes the underlying index.
func (s *SearchIndex) Close() error {
	return s.index.Close()
}

func buildIndexMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()

	sessionField := bleve.NewTextFieldMapping()
	sessionField.Analyzer = keyword.Name
	sessionField.Store = true
	sessionField.Index = true
	docMapping.AddFieldMappingsAt("session_id", sessionField)

	roleField := bleve.NewTextFieldMapping()
	roleField.Analyzer = keyword.Name
	roleField.Store = true
	roleField.Index = true
	docMapping.AddFieldMappingsAt("role", roleField)

	contentField := bleve.NewTextFieldMapping()
	contentField.Analyzer = standard.Name
	contentField.Store = true
	contentField.Index = true
	docMapping.AddFieldMappingsAt("content", contentField)

	indexMapping.DefaultMapping = docMapping
	return indexMapping
}

// IndexMessages adds or updates a session's messages in one batch. Empty
// messages (e.g. an unfinished placeholder) are skipped.
func (s *SearchIndex) IndexMessages(sessionID string, msgs []chat.Message) error {
	batch := s.index.NewBatch()
	for _, m := range msgs {
		if m.Content == "" {
			continue
		}
		doc := map[string]interface{}{
			"session_id": sessionID,
			"role":       string(m.Role),
			"content":    m.Content,
		}
		if err := batch.Index(m.ID, doc); err != nil {
			return fmt.Errorf("failed to batch message %s: %w", m.ID, err)
		}
	}
	if err := s.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to index messages: %w", err)
	}
	return nil
}

// Search returns the top k matches for a query, optionally restricted to one
// session.
func (s *SearchIndex) Search(query string, sessionID string, k int) ([]SearchHit, error) {
	match := bleve.NewMatchQuery(query)
	match.SetField("content")

	var combined = bleve.NewConjunctionQuery(match)
	if sessionID != "" {
		sessionQuery := bleve.NewTermQuery(sessionID)
		sessionQuery.SetField("session_id")
		combined = bleve.NewConjunctionQuery(match, sessionQuery)
	}

	req := bleve.NewSearchRequest(combined)
	req.Size = k
	req.Fields = []string{"session_id", "role", "content"}

	result, err := s.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	hits := make([]SearchHit, 0, len(result.Hits))
	for _, hit := range result.Hits {
		h := SearchHit{MessageID: hit.ID, Score: hit.Score}
		if v, ok := hit.Fields["session_id"].(string); ok {
			h.SessionID = v
		}
		if v, ok := hit.Fields["role"].(string); ok {
			h.Role = v
		}
		if v, ok := hit.Fields["content"].(string); ok {
			h.Content = v
		}
		hits = append(hits, h)
	}
	return hits, nil
}
