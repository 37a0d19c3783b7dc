package search

import (
	"context"

	"go.uber.org/zap"

	"pressline/internal/model"
	"pressline/internal/store"
)

// Fallback is the store-side search used when Meilisearch is absent or down.
type Fallback interface {
	SearchPosts(ctx context.Context, query string, filter store.ListFilter, page store.Pagination) ([]model.Post, error)
}

// Service fronts Meilisearch with a store fallback. meili may be nil when
// search is not configured; indexing then becomes a no-op and queries go
// straight to the store.
type Service struct {
	meili    *Meili
	fallback Fallback
	logger   *zap.Logger
}

func NewService(meili *Meili, fallback Fallback, logger *zap.Logger) *Service {
	return &Service{meili: meili, fallback: fallback, logger: logger}
}

type Response struct {
	Results []PostRecord `json:"results"`
	Total   int          `json:"total"`
	Query   string       `json:"query"`
}

func (s *Service) Search(ctx context.Context, text string, filter store.ListFilter, page Pagination) (Response, error) {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(text, filter.ViewerID, filter.All, page.Size, page.Offset())
		if err == nil {
			return Response{Results: results, Total: total, Query: text}, nil
		}
		s.logger.Warn("meilisearch error, falling back to store", zap.Error(err))
	}

	posts, err := s.fallback.SearchPosts(ctx, text, filter, store.Pagination(page))
	if err != nil {
		return Response{}, err
	}
	return ResponseFromPosts(text, posts), nil
}

// ResponseFromPosts shapes store rows into the index's response form so both
// paths hand the caller the same payload.
func ResponseFromPosts(query string, posts []model.Post) Response {
	results := make([]PostRecord, 0, len(posts))
	for _, post := range posts {
		results = append(results, recordFromPost(post))
	}
	return Response{Results: results, Total: len(results), Query: query}
}

// Pagination mirrors store.Pagination so callers validated by the store
// package can hand the window straight through.
type Pagination store.Pagination

func (p Pagination) Offset() int {
	return store.Pagination(p).Offset()
}

// IndexPost pushes a post to the index, fire-and-forget.
func (s *Service) IndexPost(post model.Post) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	record := recordFromPost(post)
	go func() {
		if err := s.meili.IndexPost(record); err != nil {
			s.logger.Warn("index post", zap.String("post_id", record.ID), zap.Error(err))
		}
	}()
}

// RemovePost drops a post from the index, fire-and-forget.
func (s *Service) RemovePost(postID string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeletePost(postID); err != nil {
			s.logger.Warn("remove post from index", zap.String("post_id", postID), zap.Error(err))
		}
	}()
}

// RemovePosts drops a batch, used by the channel cascade.
func (s *Service) RemovePosts(postIDs []string) {
	for _, id := range postIDs {
		s.RemovePost(id)
	}
}

func recordFromPost(post model.Post) PostRecord {
	return PostRecord{
		ID:        post.ID,
		ChannelID: post.ChannelID,
		OwnerID:   post.OwnerID,
		Title:     post.Title,
		Body:      post.Body,
		Privacy:   string(post.Privacy),
	}
}
