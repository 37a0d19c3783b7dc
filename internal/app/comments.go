package app

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"pressline/internal/model"
	"pressline/internal/policy"
	"pressline/internal/store"
)

func (s *Service) CreateComment(ctx context.Context, actor *model.User, postID, body string) (model.Comment, error) {
	if err := requireWriter(actor); err != nil {
		return model.Comment{}, err
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return model.Comment{}, errValidation("body is required")
	}
	if _, err := s.visiblePost(ctx, actor, postID); err != nil {
		return model.Comment{}, err
	}

	comment := model.NewComment(actor.ID, postID, body)
	if err := s.store.InsertComment(ctx, comment); err != nil {
		return model.Comment{}, err
	}
	return comment, nil
}

// ListPostComments pages through a post's comments. Comments inherit the
// post's visibility; there is no per-comment privacy flag.
func (s *Service) ListPostComments(ctx context.Context, actor *model.User, postID string, input ListInput) ([]model.Comment, error) {
	if _, err := s.visiblePost(ctx, actor, postID); err != nil {
		return nil, err
	}
	_, page, err := resolveListInput(input)
	if err != nil {
		return nil, err
	}
	comments, err := s.store.ListPostComments(ctx, postID, page)
	if err != nil {
		return nil, err
	}
	return comments, nil
}

func (s *Service) UpdateComment(ctx context.Context, actor *model.User, commentID, body string) (model.Comment, error) {
	if err := requireWriter(actor); err != nil {
		return model.Comment{}, err
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return model.Comment{}, errValidation("body is required")
	}

	comment, err := s.store.GetComment(ctx, commentID)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Comment{}, errNotFound()
	}
	if err != nil {
		return model.Comment{}, err
	}
	// Only the author edits a comment; there is no elevated grant here.
	if !policy.CanMutate(actor, comment, "") {
		if _, err := s.visiblePost(ctx, actor, comment.PostID); err != nil {
			return model.Comment{}, err
		}
		return model.Comment{}, errForbidden()
	}

	comment.Body = body
	comment.UpdatedAt = time.Now().UTC()
	if err := s.store.UpdateComment(ctx, comment); err != nil {
		return model.Comment{}, err
	}
	return comment, nil
}

func (s *Service) DeleteComment(ctx context.Context, actor *model.User, commentID string) error {
	if err := requireWriter(actor); err != nil {
		return err
	}

	deleted, err := s.store.DeleteComment(ctx, store.ByIDAndOwner(commentID, actor.ID))
	if err != nil {
		return err
	}
	if !deleted {
		comment, err := s.store.GetComment(ctx, commentID)
		if errors.Is(err, sql.ErrNoRows) {
			return errNotFound()
		}
		if err != nil {
			return err
		}
		// A comment under a post the actor cannot see reads as absent.
		if _, err := s.visiblePost(ctx, actor, comment.PostID); err != nil {
			return err
		}
		return errForbidden()
	}
	return nil
}
