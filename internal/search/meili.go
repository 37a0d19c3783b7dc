package search

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
	"go.uber.org/zap"
)

const idxPosts = "pressline_posts"

// PostRecord is the indexed shape of a post. Privacy and ownerId are
// filterable so visibility scoping happens inside the engine.
type PostRecord struct {
	ID        string `json:"id"`
	ChannelID string `json:"channelId"`
	OwnerID   string `json:"ownerId"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	Privacy   string `json:"privacy"`
}

// Meili indexes posts in Meilisearch. All operations are best-effort; the
// caller falls back to the store when the engine is unhealthy.
type Meili struct {
	client  meili.ServiceManager
	logger  *zap.Logger
	healthy atomic.Bool
	done    chan struct{}
}

func NewMeili(url, apiKey string, logger *zap.Logger) *Meili {
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client: client,
		logger: logger,
		done:   make(chan struct{}),
	}

	if _, err := client.Health(); err != nil {
		logger.Warn("meilisearch unavailable", zap.String("url", url), zap.Error(err))
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{Uid: idxPosts, PrimaryKey: "id"}); err != nil {
		m.logger.Debug("create index (may already exist)", zap.Error(err))
	}
	index := m.client.Index(idxPosts)
	filterable := []interface{}{"privacy", "ownerId", "channelId"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		m.logger.Warn("update filterable attributes", zap.Error(err))
	}
	searchable := []string{"title", "body"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		m.logger.Warn("update searchable attributes", zap.Error(err))
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				m.logger.Info("meilisearch recovered, reconfiguring index")
				m.configureIndex()
			}
		}
	}
}

func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

func (m *Meili) Close() {
	close(m.done)
}

func (m *Meili) IndexPost(record PostRecord) error {
	if _, err := m.client.Index(idxPosts).AddDocuments([]PostRecord{record}, nil); err != nil {
		return fmt.Errorf("index post: %w", err)
	}
	return nil
}

func (m *Meili) DeletePost(id string) error {
	if _, err := m.client.Index(idxPosts).DeleteDocument(id, nil); err != nil {
		return fmt.Errorf("delete post from index: %w", err)
	}
	return nil
}

// Search queries the post index. Unless all is set, results are filtered to
// public posts plus the viewer's own.
func (m *Meili) Search(text, viewerID string, all bool, limit, offset int) ([]PostRecord, int, error) {
	if !m.healthy.Load() {
		return nil, 0, fmt.Errorf("meilisearch unhealthy")
	}

	request := &meili.SearchRequest{
		Limit:  int64(limit),
		Offset: int64(offset),
	}
	if !all {
		request.Filter = []string{fmt.Sprintf("privacy = %q OR ownerId = %q", "PUBLIC", viewerID)}
	}

	resp, err := m.client.Index(idxPosts).Search(text, request)
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch search: %w", err)
	}

	results := make([]PostRecord, 0, len(resp.Hits))
	for _, hit := range resp.Hits {
		results = append(results, PostRecord{
			ID:        decodeString(hit, "id"),
			ChannelID: decodeString(hit, "channelId"),
			OwnerID:   decodeString(hit, "ownerId"),
			Title:     decodeString(hit, "title"),
			Body:      decodeString(hit, "body"),
			Privacy:   decodeString(hit, "privacy"),
		})
	}
	return results, int(resp.EstimatedTotalHits), nil
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}
