package app

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"pressline/internal/model"
	"pressline/internal/policy"
	"pressline/internal/store"
)

type CreateChannelInput struct {
	Name    string `json:"name"`
	Privacy string `json:"privacy"`
}

type UpdateChannelInput struct {
	Name    *string `json:"name"`
	Privacy *string `json:"privacy"`
}

func (s *Service) CreateChannel(ctx context.Context, actor *model.User, input CreateChannelInput) (model.Channel, error) {
	if err := requireWriter(actor); err != nil {
		return model.Channel{}, err
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return model.Channel{}, errValidation("name is required")
	}

	channel := model.NewChannel(actor.ID, name)
	if input.Privacy != "" {
		privacy, err := normalizePrivacy(input.Privacy)
		if err != nil {
			return model.Channel{}, err
		}
		channel.Privacy = privacy
	}
	if err := s.store.InsertChannel(ctx, channel); err != nil {
		return model.Channel{}, err
	}
	return channel, nil
}

func (s *Service) GetChannel(ctx context.Context, actor *model.User, channelID string) (model.Channel, error) {
	channel, err := s.store.GetChannel(ctx, channelID)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Channel{}, errNotFound()
	}
	if err != nil {
		return model.Channel{}, err
	}
	if !policy.CanSee(actor, channel) {
		return model.Channel{}, errNotFound()
	}
	return channel, nil
}

func (s *Service) ListChannels(ctx context.Context, actor *model.User, input ListInput) ([]model.Channel, error) {
	filter, page, err := resolveListInput(input)
	if err != nil {
		return nil, err
	}
	filter.All = policy.BypassVisibility(actor)
	if actor != nil {
		filter.ViewerID = actor.ID
	}
	channels, err := s.store.ListChannels(ctx, filter, page)
	if err != nil {
		return nil, err
	}
	return channels, nil
}

func (s *Service) UpdateChannel(ctx context.Context, actor *model.User, channelID string, input UpdateChannelInput) (model.Channel, error) {
	if err := requireWriter(actor); err != nil {
		return model.Channel{}, err
	}
	if input.Name == nil && input.Privacy == nil {
		return model.Channel{}, errValidation("nothing to update")
	}

	channel, err := s.store.GetChannel(ctx, channelID)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Channel{}, errNotFound()
	}
	if err != nil {
		return model.Channel{}, err
	}
	if !policy.CanSee(actor, channel) {
		return model.Channel{}, errNotFound()
	}
	if !policy.CanMutate(actor, channel, model.PermManageChannels) {
		return model.Channel{}, errForbidden()
	}

	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return model.Channel{}, errValidation("name must not be empty")
		}
		channel.Name = name
	}
	if input.Privacy != nil {
		privacy, err := normalizePrivacy(*input.Privacy)
		if err != nil {
			return model.Channel{}, err
		}
		channel.Privacy = privacy
	}
	channel.UpdatedAt = time.Now().UTC()
	if err := s.store.UpdateChannel(ctx, channel); err != nil {
		return model.Channel{}, err
	}
	return channel, nil
}

// DeleteChannel removes the channel and everything under it: first the
// channel row, then its posts, then the comments of those posts. Each step
// commits independently; a later failure surfaces as CASCADE_FAILURE with
// the earlier steps already done.
func (s *Service) DeleteChannel(ctx context.Context, actor *model.User, channelID string) error {
	if err := requireWriter(actor); err != nil {
		return err
	}

	pred := store.ByIDAndOwner(channelID, actor.ID)
	if actor.HasPermission(model.PermManageChannels) {
		pred = store.ByID(channelID)
	}

	postIDs, err := s.store.ListPostIDsByChannel(ctx, channelID)
	if err != nil {
		return err
	}

	deleted, err := s.store.DeleteChannel(ctx, pred)
	if err != nil {
		return err
	}
	if !deleted {
		// Zero rows means either no such channel or a channel the
		// predicate excluded. Disambiguate with a read, and keep
		// invisible rows indistinguishable from absent ones.
		channel, err := s.store.GetChannel(ctx, channelID)
		if errors.Is(err, sql.ErrNoRows) {
			return errNotFound()
		}
		if err != nil {
			return err
		}
		if !policy.CanSee(actor, channel) {
			return errNotFound()
		}
		return errForbidden()
	}

	if _, err := s.store.DeletePostsByChannel(ctx, channelID); err != nil {
		return errCascade("delete-posts", err)
	}
	if len(postIDs) > 0 {
		if _, err := s.store.DeleteCommentsByPostIDs(ctx, postIDs); err != nil {
			return errCascade("delete-comments", err)
		}
		if s.search != nil {
			s.search.RemovePosts(postIDs)
		}
	}
	s.logger.Info("channel deleted",
		zap.String("channel_id", channelID),
		zap.Int("posts", len(postIDs)))
	return nil
}

// ensureChannelWritable loads the channel and applies the read-then-write
// gate used by post mutations scoped to a channel.
func (s *Service) ensureChannelWritable(ctx context.Context, actor *model.User, channelID string) (model.Channel, error) {
	channel, err := s.store.GetChannel(ctx, channelID)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Channel{}, errNotFound()
	}
	if err != nil {
		return model.Channel{}, err
	}
	if !policy.CanSee(actor, channel) {
		return model.Channel{}, errNotFound()
	}
	if !policy.CanMutate(actor, channel, model.PermManageChannels) {
		return model.Channel{}, errForbidden()
	}
	return channel, nil
}
