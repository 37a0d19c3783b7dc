package app

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"pressline/internal/config"
	"pressline/internal/model"
	"pressline/internal/search"
	"pressline/internal/store"
)

type fakeStore struct {
	getUserByIDFn             func(context.Context, string) (model.User, error)
	getUserByEmailFn          func(context.Context, string) (model.User, error)
	insertUserFn              func(context.Context, model.User) error
	setUserBannedFn           func(context.Context, string, bool) (bool, error)
	updateUserPermissionsFn   func(context.Context, string, []string) (bool, error)
	insertChannelFn           func(context.Context, model.Channel) error
	getChannelFn              func(context.Context, string) (model.Channel, error)
	updateChannelFn           func(context.Context, model.Channel) error
	deleteChannelFn           func(context.Context, store.DeletePredicate) (bool, error)
	listChannelsFn            func(context.Context, store.ListFilter, store.Pagination) ([]model.Channel, error)
	insertPostFn              func(context.Context, model.Post) error
	getPostFn                 func(context.Context, string) (model.Post, error)
	updatePostFn              func(context.Context, model.Post) error
	deletePostFn              func(context.Context, store.DeletePredicate) (bool, error)
	listChannelPostsFn        func(context.Context, string, store.ListFilter, store.Pagination) ([]model.Post, error)
	listPostIDsByChannelFn    func(context.Context, string) ([]string, error)
	deletePostsByChannelFn    func(context.Context, string) (int64, error)
	ratePostFn                func(context.Context, string, string, int) (bool, error)
	unratePostFn              func(context.Context, string, string) (bool, error)
	insertCommentFn           func(context.Context, model.Comment) error
	getCommentFn              func(context.Context, string) (model.Comment, error)
	deleteCommentFn           func(context.Context, store.DeletePredicate) (bool, error)
	deleteCommentsByPostIDsFn func(context.Context, []string) (int64, error)
	tagsExistFn               func(context.Context, []string) (bool, error)
	getTagByNameFn            func(context.Context, string) (model.Tag, error)
	insertTagFn               func(context.Context, model.Tag) error
	deleteTagFn               func(context.Context, string) (bool, error)
	removeTagFromPostsFn      func(context.Context, string) (int64, error)
}

func (f *fakeStore) Ping(context.Context) error { return nil }

func (f *fakeStore) InsertUser(ctx context.Context, user model.User) error {
	if f.insertUserFn != nil {
		return f.insertUserFn(ctx, user)
	}
	return nil
}
func (f *fakeStore) GetUserByID(ctx context.Context, userID string) (model.User, error) {
	if f.getUserByIDFn != nil {
		return f.getUserByIDFn(ctx, userID)
	}
	return model.User{}, sql.ErrNoRows
}
func (f *fakeStore) GetUserByEmail(ctx context.Context, email string) (model.User, error) {
	if f.getUserByEmailFn != nil {
		return f.getUserByEmailFn(ctx, email)
	}
	return model.User{}, sql.ErrNoRows
}
func (f *fakeStore) SetUserBanned(ctx context.Context, userID string, banned bool) (bool, error) {
	if f.setUserBannedFn != nil {
		return f.setUserBannedFn(ctx, userID, banned)
	}
	return false, nil
}
func (f *fakeStore) UpdateUserPermissions(ctx context.Context, userID string, permissions []string) (bool, error) {
	if f.updateUserPermissionsFn != nil {
		return f.updateUserPermissionsFn(ctx, userID, permissions)
	}
	return false, nil
}

func (f *fakeStore) SaveRefreshSession(context.Context, string, string, time.Time) error { return nil }
func (f *fakeStore) LookupRefreshSession(context.Context, string) (string, error) {
	return "", sql.ErrNoRows
}
func (f *fakeStore) RevokeRefreshSession(context.Context, string) error { return nil }

func (f *fakeStore) InsertChannel(ctx context.Context, channel model.Channel) error {
	if f.insertChannelFn != nil {
		return f.insertChannelFn(ctx, channel)
	}
	return nil
}
func (f *fakeStore) GetChannel(ctx context.Context, channelID string) (model.Channel, error) {
	if f.getChannelFn != nil {
		return f.getChannelFn(ctx, channelID)
	}
	return model.Channel{}, sql.ErrNoRows
}
func (f *fakeStore) UpdateChannel(ctx context.Context, channel model.Channel) error {
	if f.updateChannelFn != nil {
		return f.updateChannelFn(ctx, channel)
	}
	return nil
}
func (f *fakeStore) DeleteChannel(ctx context.Context, pred store.DeletePredicate) (bool, error) {
	if f.deleteChannelFn != nil {
		return f.deleteChannelFn(ctx, pred)
	}
	return false, nil
}
func (f *fakeStore) ListChannels(ctx context.Context, filter store.ListFilter, page store.Pagination) ([]model.Channel, error) {
	if f.listChannelsFn != nil {
		return f.listChannelsFn(ctx, filter, page)
	}
	return nil, nil
}

func (f *fakeStore) InsertPost(ctx context.Context, post model.Post) error {
	if f.insertPostFn != nil {
		return f.insertPostFn(ctx, post)
	}
	return nil
}
func (f *fakeStore) GetPost(ctx context.Context, postID string) (model.Post, error) {
	if f.getPostFn != nil {
		return f.getPostFn(ctx, postID)
	}
	return model.Post{}, sql.ErrNoRows
}
func (f *fakeStore) UpdatePost(ctx context.Context, post model.Post) error {
	if f.updatePostFn != nil {
		return f.updatePostFn(ctx, post)
	}
	return nil
}
func (f *fakeStore) DeletePost(ctx context.Context, pred store.DeletePredicate) (bool, error) {
	if f.deletePostFn != nil {
		return f.deletePostFn(ctx, pred)
	}
	return false, nil
}
func (f *fakeStore) ListChannelPosts(ctx context.Context, channelID string, filter store.ListFilter, page store.Pagination) ([]model.Post, error) {
	if f.listChannelPostsFn != nil {
		return f.listChannelPostsFn(ctx, channelID, filter, page)
	}
	return nil, nil
}
func (f *fakeStore) SearchPosts(context.Context, string, store.ListFilter, store.Pagination) ([]model.Post, error) {
	return nil, nil
}
func (f *fakeStore) ListPostIDsByChannel(ctx context.Context, channelID string) ([]string, error) {
	if f.listPostIDsByChannelFn != nil {
		return f.listPostIDsByChannelFn(ctx, channelID)
	}
	return nil, nil
}
func (f *fakeStore) DeletePostsByChannel(ctx context.Context, channelID string) (int64, error) {
	if f.deletePostsByChannelFn != nil {
		return f.deletePostsByChannelFn(ctx, channelID)
	}
	return 0, nil
}
func (f *fakeStore) RatePost(ctx context.Context, postID, userID string, value int) (bool, error) {
	if f.ratePostFn != nil {
		return f.ratePostFn(ctx, postID, userID, value)
	}
	return true, nil
}
func (f *fakeStore) UnratePost(ctx context.Context, postID, userID string) (bool, error) {
	if f.unratePostFn != nil {
		return f.unratePostFn(ctx, postID, userID)
	}
	return true, nil
}

func (f *fakeStore) InsertComment(ctx context.Context, comment model.Comment) error {
	if f.insertCommentFn != nil {
		return f.insertCommentFn(ctx, comment)
	}
	return nil
}
func (f *fakeStore) GetComment(ctx context.Context, commentID string) (model.Comment, error) {
	if f.getCommentFn != nil {
		return f.getCommentFn(ctx, commentID)
	}
	return model.Comment{}, sql.ErrNoRows
}
func (f *fakeStore) UpdateComment(context.Context, model.Comment) error { return nil }
func (f *fakeStore) DeleteComment(ctx context.Context, pred store.DeletePredicate) (bool, error) {
	if f.deleteCommentFn != nil {
		return f.deleteCommentFn(ctx, pred)
	}
	return false, nil
}
func (f *fakeStore) ListPostComments(context.Context, string, store.Pagination) ([]model.Comment, error) {
	return nil, nil
}
func (f *fakeStore) DeleteCommentsByPostIDs(ctx context.Context, postIDs []string) (int64, error) {
	if f.deleteCommentsByPostIDsFn != nil {
		return f.deleteCommentsByPostIDsFn(ctx, postIDs)
	}
	return 0, nil
}

func (f *fakeStore) InsertTag(ctx context.Context, tag model.Tag) error {
	if f.insertTagFn != nil {
		return f.insertTagFn(ctx, tag)
	}
	return nil
}
func (f *fakeStore) GetTag(context.Context, string) (model.Tag, error) {
	return model.Tag{}, sql.ErrNoRows
}
func (f *fakeStore) GetTagByName(ctx context.Context, name string) (model.Tag, error) {
	if f.getTagByNameFn != nil {
		return f.getTagByNameFn(ctx, name)
	}
	return model.Tag{}, sql.ErrNoRows
}
func (f *fakeStore) ListTags(context.Context, store.ListFilter, store.Pagination) ([]model.Tag, error) {
	return nil, nil
}
func (f *fakeStore) TagsExist(ctx context.Context, tagIDs []string) (bool, error) {
	if f.tagsExistFn != nil {
		return f.tagsExistFn(ctx, tagIDs)
	}
	return true, nil
}
func (f *fakeStore) DeleteTag(ctx context.Context, tagID string) (bool, error) {
	if f.deleteTagFn != nil {
		return f.deleteTagFn(ctx, tagID)
	}
	return false, nil
}
func (f *fakeStore) RemoveTagFromPosts(ctx context.Context, tagID string) (int64, error) {
	if f.removeTagFromPostsFn != nil {
		return f.removeTagFromPostsFn(ctx, tagID)
	}
	return 0, nil
}

type fakeSearch struct {
	indexed []string
	removed []string
}

func (f *fakeSearch) Search(context.Context, string, store.ListFilter, search.Pagination) (search.Response, error) {
	return search.Response{}, nil
}
func (f *fakeSearch) IndexPost(post model.Post) { f.indexed = append(f.indexed, post.ID) }
func (f *fakeSearch) RemovePost(postID string)  { f.removed = append(f.removed, postID) }
func (f *fakeSearch) RemovePosts(postIDs []string) {
	f.removed = append(f.removed, postIDs...)
}

func newTestService(fs *fakeStore) *Service {
	return &Service{
		cfg: config.Config{
			JWTSecret:  "test-secret",
			AccessTTL:  time.Minute,
			RefreshTTL: time.Hour,
		},
		store:    fs,
		sessions: fs,
		search:   &fakeSearch{},
		logger:   zap.NewNop(),
	}
}

func wantStatus(t *testing.T, err error, status int, code string) {
	t.Helper()
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("error = %v, want DomainError", err)
	}
	if domainErr.Status != status || domainErr.Code != code {
		t.Fatalf("error = %d %s, want %d %s", domainErr.Status, domainErr.Code, status, code)
	}
}

func TestDeleteChannelCascade(t *testing.T) {
	owner := &model.User{ID: "user-1"}
	var channelDeleted bool
	var postsSwept bool
	var sweptComments []string

	fs := &fakeStore{
		listPostIDsByChannelFn: func(_ context.Context, channelID string) ([]string, error) {
			return []string{"post-1", "post-2"}, nil
		},
		deleteChannelFn: func(_ context.Context, pred store.DeletePredicate) (bool, error) {
			if pred.ID != "ch-1" || pred.OwnerID != "user-1" {
				t.Fatalf("owned delete predicate = %+v", pred)
			}
			channelDeleted = true
			return true, nil
		},
		deletePostsByChannelFn: func(_ context.Context, channelID string) (int64, error) {
			if !channelDeleted {
				t.Fatal("posts swept before the channel row was removed")
			}
			postsSwept = true
			return 2, nil
		},
		deleteCommentsByPostIDsFn: func(_ context.Context, postIDs []string) (int64, error) {
			if !postsSwept {
				t.Fatal("comments swept before the posts")
			}
			sweptComments = postIDs
			return 3, nil
		},
	}
	svc := newTestService(fs)

	if err := svc.DeleteChannel(context.Background(), owner, "ch-1"); err != nil {
		t.Fatalf("DeleteChannel() error = %v", err)
	}
	if len(sweptComments) != 2 {
		t.Fatalf("comment sweep covered %v, want both post ids", sweptComments)
	}
	fsearch := svc.search.(*fakeSearch)
	if len(fsearch.removed) != 2 {
		t.Fatalf("search removals = %v, want both post ids", fsearch.removed)
	}
}

func TestDeleteChannelDeniedNoCascade(t *testing.T) {
	stranger := &model.User{ID: "user-2"}
	fs := &fakeStore{
		deleteChannelFn: func(_ context.Context, pred store.DeletePredicate) (bool, error) {
			return false, nil
		},
		getChannelFn: func(_ context.Context, channelID string) (model.Channel, error) {
			return model.Channel{ID: channelID, OwnerID: "user-1", Privacy: model.Public}, nil
		},
		deletePostsByChannelFn: func(context.Context, string) (int64, error) {
			t.Fatal("denied delete must not sweep posts")
			return 0, nil
		},
		deleteCommentsByPostIDsFn: func(context.Context, []string) (int64, error) {
			t.Fatal("denied delete must not sweep comments")
			return 0, nil
		},
	}
	svc := newTestService(fs)

	err := svc.DeleteChannel(context.Background(), stranger, "ch-1")
	wantStatus(t, err, 403, "FORBIDDEN")
}

func TestDeleteChannelHiddenReadsAsMissing(t *testing.T) {
	stranger := &model.User{ID: "user-2"}
	fs := &fakeStore{
		deleteChannelFn: func(context.Context, store.DeletePredicate) (bool, error) {
			return false, nil
		},
		getChannelFn: func(_ context.Context, channelID string) (model.Channel, error) {
			return model.Channel{ID: channelID, OwnerID: "user-1", Privacy: model.Private}, nil
		},
	}
	svc := newTestService(fs)

	// A private channel the actor cannot see must not surface as a 403.
	err := svc.DeleteChannel(context.Background(), stranger, "ch-private")
	wantStatus(t, err, 404, "NOT_FOUND")
}

func TestDeletePostHiddenReadsAsMissing(t *testing.T) {
	stranger := &model.User{ID: "user-2"}
	fs := &fakeStore{
		deletePostFn: func(context.Context, store.DeletePredicate) (bool, error) {
			return false, nil
		},
		getPostFn: func(_ context.Context, postID string) (model.Post, error) {
			return model.Post{ID: postID, OwnerID: "user-1", Privacy: model.Private}, nil
		},
	}
	svc := newTestService(fs)

	err := svc.DeletePost(context.Background(), stranger, "post-private")
	wantStatus(t, err, 404, "NOT_FOUND")
}

func TestDeleteCommentHiddenReadsAsMissing(t *testing.T) {
	stranger := &model.User{ID: "user-2"}
	fs := &fakeStore{
		deleteCommentFn: func(context.Context, store.DeletePredicate) (bool, error) {
			return false, nil
		},
		getCommentFn: func(_ context.Context, commentID string) (model.Comment, error) {
			return model.Comment{ID: commentID, PostID: "post-private", OwnerID: "user-1"}, nil
		},
		getPostFn: func(_ context.Context, postID string) (model.Post, error) {
			return model.Post{ID: postID, OwnerID: "user-1", Privacy: model.Private}, nil
		},
	}
	svc := newTestService(fs)

	err := svc.DeleteComment(context.Background(), stranger, "cmt-1")
	wantStatus(t, err, 404, "NOT_FOUND")
}

func TestDeleteCommentVisibleButForeign(t *testing.T) {
	stranger := &model.User{ID: "user-2"}
	fs := &fakeStore{
		deleteCommentFn: func(context.Context, store.DeletePredicate) (bool, error) {
			return false, nil
		},
		getCommentFn: func(_ context.Context, commentID string) (model.Comment, error) {
			return model.Comment{ID: commentID, PostID: "post-1", OwnerID: "user-1"}, nil
		},
		getPostFn: func(_ context.Context, postID string) (model.Post, error) {
			return model.Post{ID: postID, OwnerID: "user-1", Privacy: model.Public}, nil
		},
	}
	svc := newTestService(fs)

	err := svc.DeleteComment(context.Background(), stranger, "cmt-1")
	wantStatus(t, err, 403, "FORBIDDEN")
}

func TestDeleteChannelIdempotent(t *testing.T) {
	owner := &model.User{ID: "user-1"}
	fs := &fakeStore{
		deleteChannelFn: func(context.Context, store.DeletePredicate) (bool, error) {
			return false, nil
		},
	}
	svc := newTestService(fs)

	err := svc.DeleteChannel(context.Background(), owner, "ch-gone")
	wantStatus(t, err, 404, "NOT_FOUND")
}

func TestDeleteChannelForcedByManager(t *testing.T) {
	manager := &model.User{ID: "admin", Permissions: []string{model.PermManageChannels}}
	fs := &fakeStore{
		deleteChannelFn: func(_ context.Context, pred store.DeletePredicate) (bool, error) {
			if pred.Owned() {
				t.Fatalf("manager delete should be forced, got %+v", pred)
			}
			return true, nil
		},
	}
	svc := newTestService(fs)

	if err := svc.DeleteChannel(context.Background(), manager, "ch-1"); err != nil {
		t.Fatalf("DeleteChannel() error = %v", err)
	}
}

func TestDeleteChannelCascadeFailure(t *testing.T) {
	owner := &model.User{ID: "user-1"}
	fs := &fakeStore{
		deleteChannelFn: func(context.Context, store.DeletePredicate) (bool, error) {
			return true, nil
		},
		deletePostsByChannelFn: func(context.Context, string) (int64, error) {
			return 0, errors.New("connection reset")
		},
	}
	svc := newTestService(fs)

	err := svc.DeleteChannel(context.Background(), owner, "ch-1")
	wantStatus(t, err, 500, "CASCADE_FAILURE")
}

func TestPublishPostRejectsUnknownTags(t *testing.T) {
	owner := &model.User{ID: "user-1"}
	fs := &fakeStore{
		getChannelFn: func(_ context.Context, channelID string) (model.Channel, error) {
			return model.Channel{ID: channelID, OwnerID: "user-1", Privacy: model.Public}, nil
		},
		tagsExistFn: func(context.Context, []string) (bool, error) {
			return false, nil
		},
		insertPostFn: func(context.Context, model.Post) error {
			t.Fatal("post must not persist with unknown tags")
			return nil
		},
	}
	svc := newTestService(fs)

	_, err := svc.PublishPost(context.Background(), owner, "ch-1", PublishPostInput{
		Title:  "hello",
		TagIDs: []string{"tag-missing"},
	})
	wantStatus(t, err, 409, "INVALID_TAGS")
}

func TestPublishPostInheritsChannelPrivacy(t *testing.T) {
	owner := &model.User{ID: "user-1"}
	var inserted model.Post
	fs := &fakeStore{
		getChannelFn: func(_ context.Context, channelID string) (model.Channel, error) {
			return model.Channel{ID: channelID, OwnerID: "user-1", Privacy: model.Private}, nil
		},
		insertPostFn: func(_ context.Context, post model.Post) error {
			inserted = post
			return nil
		},
	}
	svc := newTestService(fs)

	if _, err := svc.PublishPost(context.Background(), owner, "ch-1", PublishPostInput{Title: "hello"}); err != nil {
		t.Fatalf("PublishPost() error = %v", err)
	}
	if inserted.Privacy != model.Private {
		t.Fatalf("post privacy = %s, want inherited PRIVATE", inserted.Privacy)
	}
}

func TestListChannelsBadPattern(t *testing.T) {
	fs := &fakeStore{
		listChannelsFn: func(context.Context, store.ListFilter, store.Pagination) ([]model.Channel, error) {
			t.Fatal("malformed pattern must not reach the store")
			return nil, nil
		},
	}
	svc := newTestService(fs)

	_, err := svc.ListChannels(context.Background(), nil, ListInput{Pattern: "([unclosed", Page: 1})
	wantStatus(t, err, 400, "VALIDATION_ERROR")
}

func TestListChannelsNameAndPatternConflict(t *testing.T) {
	svc := newTestService(&fakeStore{})

	_, err := svc.ListChannels(context.Background(), nil, ListInput{Name: "news", Pattern: "news.*", Page: 1})
	wantStatus(t, err, 400, "VALIDATION_ERROR")
}

func TestListChannelsBadPagination(t *testing.T) {
	svc := newTestService(&fakeStore{})

	_, err := svc.ListChannels(context.Background(), nil, ListInput{Page: 0})
	wantStatus(t, err, 400, "VALIDATION_ERROR")

	_, err = svc.ListChannels(context.Background(), nil, ListInput{Page: 1, Size: 500})
	wantStatus(t, err, 400, "VALIDATION_ERROR")
}

func TestRatePostConflict(t *testing.T) {
	voter := &model.User{ID: "voter-1"}
	fs := &fakeStore{
		getPostFn: func(_ context.Context, postID string) (model.Post, error) {
			return model.Post{ID: postID, OwnerID: "user-1", Privacy: model.Public}, nil
		},
		ratePostFn: func(context.Context, string, string, int) (bool, error) {
			return false, nil
		},
	}
	svc := newTestService(fs)

	_, err := svc.RatePost(context.Background(), voter, "post-1", 5)
	wantStatus(t, err, 409, "ALREADY_RATED")
}

func TestUnratePostWithoutRating(t *testing.T) {
	voter := &model.User{ID: "voter-1"}
	fs := &fakeStore{
		getPostFn: func(_ context.Context, postID string) (model.Post, error) {
			return model.Post{ID: postID, OwnerID: "user-1", Privacy: model.Public}, nil
		},
		unratePostFn: func(context.Context, string, string) (bool, error) {
			return false, nil
		},
	}
	svc := newTestService(fs)

	_, err := svc.UnratePost(context.Background(), voter, "post-1")
	wantStatus(t, err, 409, "NOT_RATED")
}

func TestGetPostHiddenFromStranger(t *testing.T) {
	stranger := &model.User{ID: "user-2"}
	fs := &fakeStore{
		getPostFn: func(_ context.Context, postID string) (model.Post, error) {
			return model.Post{ID: postID, OwnerID: "user-1", Privacy: model.Private}, nil
		},
	}
	svc := newTestService(fs)

	_, err := svc.GetPost(context.Background(), stranger, "post-1")
	wantStatus(t, err, 404, "NOT_FOUND")
}

func TestBannedActorCannotMutate(t *testing.T) {
	banned := &model.User{ID: "user-1", Banned: true}
	svc := newTestService(&fakeStore{})

	_, err := svc.CreateChannel(context.Background(), banned, CreateChannelInput{Name: "news"})
	wantStatus(t, err, 403, "FORBIDDEN")

	_, err = svc.RatePost(context.Background(), banned, "post-1", 1)
	wantStatus(t, err, 403, "FORBIDDEN")
}

func TestAnonymousCannotMutate(t *testing.T) {
	svc := newTestService(&fakeStore{})

	_, err := svc.CreateChannel(context.Background(), nil, CreateChannelInput{Name: "news"})
	wantStatus(t, err, 401, "UNAUTHORIZED")
}

func TestListChannelPostsOwnerSeesPrivate(t *testing.T) {
	owner := &model.User{ID: "user-1"}
	fs := &fakeStore{
		getChannelFn: func(_ context.Context, channelID string) (model.Channel, error) {
			return model.Channel{ID: channelID, OwnerID: "user-1", Privacy: model.Public}, nil
		},
		listChannelPostsFn: func(_ context.Context, _ string, filter store.ListFilter, _ store.Pagination) ([]model.Post, error) {
			if !filter.All {
				t.Fatal("channel owner listing should bypass post visibility")
			}
			return nil, nil
		},
	}
	svc := newTestService(fs)

	if _, err := svc.ListChannelPosts(context.Background(), owner, "ch-1", ListInput{Page: 1}); err != nil {
		t.Fatalf("ListChannelPosts() error = %v", err)
	}
}

func TestListChannelPostsStrangerScoped(t *testing.T) {
	stranger := &model.User{ID: "user-2"}
	fs := &fakeStore{
		getChannelFn: func(_ context.Context, channelID string) (model.Channel, error) {
			return model.Channel{ID: channelID, OwnerID: "user-1", Privacy: model.Public}, nil
		},
		listChannelPostsFn: func(_ context.Context, _ string, filter store.ListFilter, _ store.Pagination) ([]model.Post, error) {
			if filter.All {
				t.Fatal("stranger listing must stay visibility scoped")
			}
			if filter.ViewerID != "user-2" {
				t.Fatalf("viewer id = %q, want user-2", filter.ViewerID)
			}
			return nil, nil
		},
	}
	svc := newTestService(fs)

	if _, err := svc.ListChannelPosts(context.Background(), stranger, "ch-1", ListInput{Page: 1}); err != nil {
		t.Fatalf("ListChannelPosts() error = %v", err)
	}
}

func TestDeletePostSweepsComments(t *testing.T) {
	owner := &model.User{ID: "user-1"}
	var swept []string
	fs := &fakeStore{
		deletePostFn: func(context.Context, store.DeletePredicate) (bool, error) {
			return true, nil
		},
		deleteCommentsByPostIDsFn: func(_ context.Context, postIDs []string) (int64, error) {
			swept = postIDs
			return 1, nil
		},
	}
	svc := newTestService(fs)

	if err := svc.DeletePost(context.Background(), owner, "post-1"); err != nil {
		t.Fatalf("DeletePost() error = %v", err)
	}
	if len(swept) != 1 || swept[0] != "post-1" {
		t.Fatalf("comment sweep = %v, want [post-1]", swept)
	}
}

func TestCreateTagRequiresPermission(t *testing.T) {
	plain := &model.User{ID: "user-1"}
	svc := newTestService(&fakeStore{})

	_, err := svc.CreateTag(context.Background(), plain, "golang")
	wantStatus(t, err, 403, "FORBIDDEN")
}

func TestCreateTagDuplicate(t *testing.T) {
	curator := &model.User{ID: "user-1", Permissions: []string{model.PermManageTags}}
	fs := &fakeStore{
		getTagByNameFn: func(_ context.Context, name string) (model.Tag, error) {
			return model.Tag{ID: "tag-1", Name: name}, nil
		},
		insertTagFn: func(context.Context, model.Tag) error {
			t.Fatal("duplicate tag must not persist")
			return nil
		},
	}
	svc := newTestService(fs)

	_, err := svc.CreateTag(context.Background(), curator, "golang")
	wantStatus(t, err, 409, "TAG_EXISTS")
}

func TestDeleteTagStripsPosts(t *testing.T) {
	curator := &model.User{ID: "user-1", Permissions: []string{model.PermManageTags}}
	var stripped string
	fs := &fakeStore{
		deleteTagFn: func(context.Context, string) (bool, error) {
			return true, nil
		},
		removeTagFromPostsFn: func(_ context.Context, tagID string) (int64, error) {
			stripped = tagID
			return 4, nil
		},
	}
	svc := newTestService(fs)

	if err := svc.DeleteTag(context.Background(), curator, "tag-1"); err != nil {
		t.Fatalf("DeleteTag() error = %v", err)
	}
	if stripped != "tag-1" {
		t.Fatalf("stripped tag = %q, want tag-1", stripped)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	fs := &fakeStore{
		getUserByEmailFn: func(_ context.Context, email string) (model.User, error) {
			return model.User{ID: "user-1", Email: email}, nil
		},
		insertUserFn: func(context.Context, model.User) error {
			t.Fatal("duplicate email must not persist")
			return nil
		},
	}
	svc := newTestService(fs)

	_, err := svc.Register(context.Background(), RegisterInput{
		Email:    "taken@example.com",
		Name:     "Someone",
		Password: "longenough",
	})
	wantStatus(t, err, 409, "EMAIL_TAKEN")
}

func TestSetUserBannedRequiresPermission(t *testing.T) {
	plain := &model.User{ID: "user-1"}
	svc := newTestService(&fakeStore{})

	err := svc.SetUserBanned(context.Background(), plain, "user-2", true)
	wantStatus(t, err, 403, "FORBIDDEN")
}
