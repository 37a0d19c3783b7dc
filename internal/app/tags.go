package app

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"pressline/internal/model"
)

func (s *Service) ListTags(ctx context.Context, input ListInput) ([]model.Tag, error) {
	filter, page, err := resolveListInput(input)
	if err != nil {
		return nil, err
	}
	return s.store.ListTags(ctx, filter, page)
}

func (s *Service) GetTag(ctx context.Context, tagID string) (model.Tag, error) {
	tag, err := s.store.GetTag(ctx, tagID)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Tag{}, errNotFound()
	}
	if err != nil {
		return model.Tag{}, err
	}
	return tag, nil
}

func (s *Service) CreateTag(ctx context.Context, actor *model.User, name string) (model.Tag, error) {
	if err := requireWriter(actor); err != nil {
		return model.Tag{}, err
	}
	if !actor.HasPermission(model.PermManageTags) {
		return model.Tag{}, errForbidden()
	}
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return model.Tag{}, errValidation("name is required")
	}

	if _, err := s.store.GetTagByName(ctx, name); err == nil {
		return model.Tag{}, errConflict("TAG_EXISTS", "tag already exists")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return model.Tag{}, err
	}

	tag := model.NewTag(name)
	if err := s.store.InsertTag(ctx, tag); err != nil {
		return model.Tag{}, err
	}
	return tag, nil
}

// DeleteTag removes the tag and strips it from every post referencing it.
// The strip runs after the tag row is gone, same shape as the other
// cascades.
func (s *Service) DeleteTag(ctx context.Context, actor *model.User, tagID string) error {
	if err := requireWriter(actor); err != nil {
		return err
	}
	if !actor.HasPermission(model.PermManageTags) {
		return errForbidden()
	}

	deleted, err := s.store.DeleteTag(ctx, tagID)
	if err != nil {
		return err
	}
	if !deleted {
		return errNotFound()
	}
	if _, err := s.store.RemoveTagFromPosts(ctx, tagID); err != nil {
		return errCascade("strip-tag", err)
	}
	return nil
}
