package app

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"pressline/internal/auth"
	"pressline/internal/config"
	"pressline/internal/model"
	"pressline/internal/search"
	"pressline/internal/store"
)

// dataStore is the document repository the core consumes. Absent rows are
// sql.ErrNoRows; zero-row deletes are false, not errors.
type dataStore interface {
	Ping(ctx context.Context) error

	InsertUser(ctx context.Context, user model.User) error
	GetUserByID(ctx context.Context, userID string) (model.User, error)
	GetUserByEmail(ctx context.Context, email string) (model.User, error)
	SetUserBanned(ctx context.Context, userID string, banned bool) (bool, error)
	UpdateUserPermissions(ctx context.Context, userID string, permissions []string) (bool, error)

	InsertChannel(ctx context.Context, channel model.Channel) error
	GetChannel(ctx context.Context, channelID string) (model.Channel, error)
	UpdateChannel(ctx context.Context, channel model.Channel) error
	DeleteChannel(ctx context.Context, pred store.DeletePredicate) (bool, error)
	ListChannels(ctx context.Context, filter store.ListFilter, page store.Pagination) ([]model.Channel, error)

	InsertPost(ctx context.Context, post model.Post) error
	GetPost(ctx context.Context, postID string) (model.Post, error)
	UpdatePost(ctx context.Context, post model.Post) error
	DeletePost(ctx context.Context, pred store.DeletePredicate) (bool, error)
	ListChannelPosts(ctx context.Context, channelID string, filter store.ListFilter, page store.Pagination) ([]model.Post, error)
	ListPostIDsByChannel(ctx context.Context, channelID string) ([]string, error)
	SearchPosts(ctx context.Context, query string, filter store.ListFilter, page store.Pagination) ([]model.Post, error)
	DeletePostsByChannel(ctx context.Context, channelID string) (int64, error)
	RatePost(ctx context.Context, postID, userID string, value int) (bool, error)
	UnratePost(ctx context.Context, postID, userID string) (bool, error)

	InsertComment(ctx context.Context, comment model.Comment) error
	GetComment(ctx context.Context, commentID string) (model.Comment, error)
	UpdateComment(ctx context.Context, comment model.Comment) error
	DeleteComment(ctx context.Context, pred store.DeletePredicate) (bool, error)
	ListPostComments(ctx context.Context, postID string, page store.Pagination) ([]model.Comment, error)
	DeleteCommentsByPostIDs(ctx context.Context, postIDs []string) (int64, error)

	InsertTag(ctx context.Context, tag model.Tag) error
	GetTag(ctx context.Context, tagID string) (model.Tag, error)
	GetTagByName(ctx context.Context, name string) (model.Tag, error)
	ListTags(ctx context.Context, filter store.ListFilter, page store.Pagination) ([]model.Tag, error)
	TagsExist(ctx context.Context, tagIDs []string) (bool, error)
	DeleteTag(ctx context.Context, tagID string) (bool, error)
	RemoveTagFromPosts(ctx context.Context, tagID string) (int64, error)
}

// sessionStore keeps refresh sessions. Redis-backed when configured,
// Postgres rows otherwise; both report a miss as session.ErrNoSession or
// sql.ErrNoRows.
type sessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (string, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

// searchIndex is the optional post index; indexing is best-effort and a
// query falls back to the store behind it.
type searchIndex interface {
	Search(ctx context.Context, text string, filter store.ListFilter, page search.Pagination) (search.Response, error)
	IndexPost(post model.Post)
	RemovePost(postID string)
	RemovePosts(postIDs []string)
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions sessionStore
	search   searchIndex
	logger   *zap.Logger
}

func New(cfg config.Config, dataStore *store.PostgresStore, sessions sessionStore, searchService *search.Service, logger *zap.Logger) *Service {
	if sessions == nil {
		sessions = dataStore
	}
	return &Service{
		cfg:      cfg,
		store:    dataStore,
		sessions: sessions,
		search:   searchService,
		logger:   logger,
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// ResolveActor turns a bearer token into an actor. An empty, malformed, or
// expired token resolves to an absent actor rather than an error: reads work
// anonymously and operations needing an actor reject absence themselves.
func (s *Service) ResolveActor(ctx context.Context, token string) (*model.User, error) {
	if token == "" {
		return nil, nil
	}
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return nil, nil
	}
	user, err := s.store.GetUserByID(ctx, claims.Subject)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// requireWriter gates every mutation: the actor must be present and not
// banned. Absence is 401; a banned actor is known but denied.
func requireWriter(actor *model.User) error {
	if actor == nil {
		return errUnauthorized()
	}
	if actor.IsBanned() {
		return errForbidden()
	}
	return nil
}

// ListInput carries the caller's filter and pagination. Name and Pattern
// are mutually exclusive; supplying both is a client error, not a
// precedence rule.
type ListInput struct {
	Name    string
	Pattern string
	Page    int
	Size    int
}

// resolveListInput validates the filter mode and pagination before anything
// is scanned. A malformed regex or window short-circuits here. The compile
// check is RE2; the database evaluates patterns as POSIX ARE and reports the
// constructs it will not take as store.ErrBadPattern.
func resolveListInput(input ListInput) (store.ListFilter, store.Pagination, error) {
	if input.Name != "" && input.Pattern != "" {
		return store.ListFilter{}, store.Pagination{}, errValidation("supply at most one of name and pattern")
	}
	if input.Pattern != "" {
		if _, err := regexp.Compile(input.Pattern); err != nil {
			return store.ListFilter{}, store.Pagination{}, errValidation("malformed pattern: " + err.Error())
		}
	}
	page, err := store.NewPagination(input.Page, input.Size)
	if err != nil {
		return store.ListFilter{}, store.Pagination{}, errValidation("page must be >= 1 and size between 1 and 100")
	}
	filter := store.ListFilter{Name: input.Name, Pattern: input.Pattern}
	return filter, page, nil
}

func normalizePrivacy(raw string) (model.Privacy, error) {
	privacy := model.Privacy(strings.ToUpper(strings.TrimSpace(raw)))
	if !privacy.Valid() {
		return "", errValidation("privacy must be PUBLIC or PRIVATE")
	}
	return privacy, nil
}
