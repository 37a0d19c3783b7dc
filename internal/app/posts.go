package app

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"pressline/internal/model"
	"pressline/internal/policy"
	"pressline/internal/search"
	"pressline/internal/store"
)

// PostPayload is a post as the API returns it, with the aggregate score
// alongside the per-user ledger.
type PostPayload struct {
	model.Post
	Score int `json:"score"`
}

func payloadFor(post model.Post) PostPayload {
	return PostPayload{Post: post, Score: post.Score()}
}

func payloadsFor(posts []model.Post) []PostPayload {
	out := make([]PostPayload, 0, len(posts))
	for _, post := range posts {
		out = append(out, payloadFor(post))
	}
	return out
}

type PublishPostInput struct {
	Title   string   `json:"title"`
	Body    string   `json:"body"`
	Privacy string   `json:"privacy"`
	TagIDs  []string `json:"tagIds"`
}

type UpdatePostInput struct {
	Title   *string   `json:"title"`
	Body    *string   `json:"body"`
	Privacy *string   `json:"privacy"`
	TagIDs  *[]string `json:"tagIds"`
}

func (s *Service) PublishPost(ctx context.Context, actor *model.User, channelID string, input PublishPostInput) (PostPayload, error) {
	if err := requireWriter(actor); err != nil {
		return PostPayload{}, err
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return PostPayload{}, errValidation("title is required")
	}

	channel, err := s.ensureChannelWritable(ctx, actor, channelID)
	if err != nil {
		return PostPayload{}, err
	}

	if len(input.TagIDs) > 0 {
		ok, err := s.store.TagsExist(ctx, input.TagIDs)
		if err != nil {
			return PostPayload{}, err
		}
		if !ok {
			return PostPayload{}, errConflict("INVALID_TAGS", "one or more tags do not exist")
		}
	}

	post := model.NewPost(actor.ID, channelID, title, input.Body)
	post.Privacy = channel.Privacy
	if input.Privacy != "" {
		privacy, err := normalizePrivacy(input.Privacy)
		if err != nil {
			return PostPayload{}, err
		}
		post.Privacy = privacy
	}
	if len(input.TagIDs) > 0 {
		post.TagIDs = input.TagIDs
	}

	if err := s.store.InsertPost(ctx, post); err != nil {
		return PostPayload{}, err
	}
	if s.search != nil {
		s.search.IndexPost(post)
	}
	return payloadFor(post), nil
}

func (s *Service) GetPost(ctx context.Context, actor *model.User, postID string) (PostPayload, error) {
	post, err := s.visiblePost(ctx, actor, postID)
	if err != nil {
		return PostPayload{}, err
	}
	return payloadFor(post), nil
}

// ListChannelPosts lists a channel's posts. The channel itself must be
// visible first; within a visible channel, the channel owner and
// ignore-visibility holders see private posts too.
func (s *Service) ListChannelPosts(ctx context.Context, actor *model.User, channelID string, input ListInput) ([]PostPayload, error) {
	channel, err := s.store.GetChannel(ctx, channelID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errNotFound()
	}
	if err != nil {
		return nil, err
	}
	if !policy.CanSee(actor, channel) {
		return nil, errNotFound()
	}

	filter, page, err := resolveListInput(input)
	if err != nil {
		return nil, err
	}
	filter.All = policy.BypassVisibility(actor) ||
		(actor != nil && !actor.IsBanned() && channel.IsOwnedBy(actor.ID))
	if actor != nil {
		filter.ViewerID = actor.ID
	}

	posts, err := s.store.ListChannelPosts(ctx, channelID, filter, page)
	if err != nil {
		return nil, err
	}
	return payloadsFor(posts), nil
}

func (s *Service) UpdatePost(ctx context.Context, actor *model.User, postID string, input UpdatePostInput) (PostPayload, error) {
	if err := requireWriter(actor); err != nil {
		return PostPayload{}, err
	}
	if input.Title == nil && input.Body == nil && input.Privacy == nil && input.TagIDs == nil {
		return PostPayload{}, errValidation("nothing to update")
	}

	post, err := s.visiblePost(ctx, actor, postID)
	if err != nil {
		return PostPayload{}, err
	}
	if !policy.CanMutate(actor, post, model.PermManagePosts) {
		return PostPayload{}, errForbidden()
	}

	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if title == "" {
			return PostPayload{}, errValidation("title must not be empty")
		}
		post.Title = title
	}
	if input.Body != nil {
		post.Body = *input.Body
	}
	if input.Privacy != nil {
		privacy, err := normalizePrivacy(*input.Privacy)
		if err != nil {
			return PostPayload{}, err
		}
		post.Privacy = privacy
	}
	if input.TagIDs != nil {
		tagIDs := *input.TagIDs
		if len(tagIDs) > 0 {
			ok, err := s.store.TagsExist(ctx, tagIDs)
			if err != nil {
				return PostPayload{}, err
			}
			if !ok {
				return PostPayload{}, errConflict("INVALID_TAGS", "one or more tags do not exist")
			}
		} else {
			tagIDs = []string{}
		}
		post.TagIDs = tagIDs
	}

	post.UpdatedAt = time.Now().UTC()
	if err := s.store.UpdatePost(ctx, post); err != nil {
		return PostPayload{}, err
	}
	if s.search != nil {
		s.search.IndexPost(post)
	}
	return payloadFor(post), nil
}

// DeletePost removes the post and its comments. Like the channel cascade,
// the comment sweep runs after the post row is gone.
func (s *Service) DeletePost(ctx context.Context, actor *model.User, postID string) error {
	if err := requireWriter(actor); err != nil {
		return err
	}

	pred := store.ByIDAndOwner(postID, actor.ID)
	if actor.HasPermission(model.PermManagePosts) {
		pred = store.ByID(postID)
	}

	deleted, err := s.store.DeletePost(ctx, pred)
	if err != nil {
		return err
	}
	if !deleted {
		post, err := s.store.GetPost(ctx, postID)
		if errors.Is(err, sql.ErrNoRows) {
			return errNotFound()
		}
		if err != nil {
			return err
		}
		if !policy.CanSee(actor, post) {
			return errNotFound()
		}
		return errForbidden()
	}

	if _, err := s.store.DeleteCommentsByPostIDs(ctx, []string{postID}); err != nil {
		return errCascade("delete-comments", err)
	}
	if s.search != nil {
		s.search.RemovePost(postID)
	}
	return nil
}

// RatePost records the actor's score for a visible post. A second rating by
// the same actor is a conflict; the first value stands until unrated.
func (s *Service) RatePost(ctx context.Context, actor *model.User, postID string, value int) (PostPayload, error) {
	if err := requireWriter(actor); err != nil {
		return PostPayload{}, err
	}
	if value == 0 {
		return PostPayload{}, errValidation("value must be a non-zero integer")
	}
	post, err := s.visiblePost(ctx, actor, postID)
	if err != nil {
		return PostPayload{}, err
	}

	rated, err := s.store.RatePost(ctx, postID, actor.ID, value)
	if err != nil {
		return PostPayload{}, err
	}
	if !rated {
		return PostPayload{}, errConflict("ALREADY_RATED", "post already rated by this user")
	}
	post.Rate(actor.ID, value)
	return payloadFor(post), nil
}

func (s *Service) UnratePost(ctx context.Context, actor *model.User, postID string) (PostPayload, error) {
	if err := requireWriter(actor); err != nil {
		return PostPayload{}, err
	}
	post, err := s.visiblePost(ctx, actor, postID)
	if err != nil {
		return PostPayload{}, err
	}

	removed, err := s.store.UnratePost(ctx, postID, actor.ID)
	if err != nil {
		return PostPayload{}, err
	}
	if !removed {
		return PostPayload{}, errConflict("NOT_RATED", "post has no rating by this user")
	}
	post.Unrate(actor.ID)
	return payloadFor(post), nil
}

// SearchPosts runs a full-text query through the index, falling back to the
// store when the index is absent or down. Visibility is applied either way.
func (s *Service) SearchPosts(ctx context.Context, actor *model.User, text string, input ListInput) (search.Response, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return search.Response{}, errValidation("query is required")
	}
	filter, page, err := resolveListInput(input)
	if err != nil {
		return search.Response{}, err
	}
	filter.All = policy.BypassVisibility(actor)
	if actor != nil {
		filter.ViewerID = actor.ID
	}
	if s.search == nil {
		posts, err := s.store.SearchPosts(ctx, text, filter, page)
		if err != nil {
			return search.Response{}, err
		}
		return search.ResponseFromPosts(text, posts), nil
	}
	return s.search.Search(ctx, text, filter, search.Pagination(page))
}

// visiblePost loads a post and applies the read gate. Invisible and absent
// are the same answer.
func (s *Service) visiblePost(ctx context.Context, actor *model.User, postID string) (model.Post, error) {
	post, err := s.store.GetPost(ctx, postID)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Post{}, errNotFound()
	}
	if err != nil {
		return model.Post{}, err
	}
	if !policy.CanSee(actor, post) {
		return model.Post{}, errNotFound()
	}
	return post, nil
}
