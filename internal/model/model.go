// Package model defines the entities the service core operates on and the
// capability interfaces the visibility and access policies are written against.
package model

import (
	"time"

	"pressline/internal/util"
)

// Privacy controls third-party read access to a channel or post.
type Privacy string

const (
	Public  Privacy = "PUBLIC"
	Private Privacy = "PRIVATE"
)

func (p Privacy) Valid() bool {
	return p == Public || p == Private
}

// Permission tokens carried per-actor. There is no process-wide role state;
// the resolved user value is the only permission source for a request.
const (
	PermIgnoreVisibility = "ignore-visibility"
	PermManageChannels   = "manage-channels"
	PermManagePosts      = "manage-posts"
	PermManageTags       = "manage-tags"
	PermManageUsers      = "manage-users"
)

// Owned is implemented by every entity with a single owning user.
type Owned interface {
	IsOwnedBy(userID string) bool
}

// Visible is implemented by entities carrying a privacy flag. Channel and Post
// both satisfy Owned and Visible; the policies take the pair rather than a
// concrete entity type.
type Visible interface {
	Owned
	IsVisible() bool
}

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	Banned       bool      `json:"banned"`
	Permissions  []string  `json:"permissions"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func (u *User) HasPermission(token string) bool {
	if u == nil {
		return false
	}
	for _, held := range u.Permissions {
		if held == token {
			return true
		}
	}
	return false
}

func (u *User) IsBanned() bool {
	return u != nil && u.Banned
}

type Channel struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"ownerId"`
	Name      string    `json:"name"`
	Privacy   Privacy   `json:"privacy"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func NewChannel(ownerID, name string) Channel {
	now := time.Now().UTC()
	return Channel{
		ID:        util.NewID("ch"),
		OwnerID:   ownerID,
		Name:      name,
		Privacy:   Public,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (c Channel) IsOwnedBy(userID string) bool {
	return userID != "" && c.OwnerID == userID
}

func (c Channel) IsVisible() bool {
	return c.Privacy == Public
}

type Post struct {
	ID        string         `json:"id"`
	OwnerID   string         `json:"ownerId"`
	ChannelID string         `json:"channelId"`
	Title     string         `json:"title"`
	Body      string         `json:"body"`
	Privacy   Privacy        `json:"privacy"`
	TagIDs    []string       `json:"tagIds"`
	Scores    map[string]int `json:"scores"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

func NewPost(ownerID, channelID, title, body string) Post {
	now := time.Now().UTC()
	return Post{
		ID:        util.NewID("post"),
		OwnerID:   ownerID,
		ChannelID: channelID,
		Title:     title,
		Body:      body,
		Privacy:   Public,
		TagIDs:    []string{},
		Scores:    map[string]int{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (p Post) IsOwnedBy(userID string) bool {
	return userID != "" && p.OwnerID == userID
}

func (p Post) IsVisible() bool {
	return p.Privacy == Public
}

// Rate records a score for the user unless one already exists. The in-memory
// form mirrors the store's conditional write; both are first-write-wins.
func (p *Post) Rate(userID string, value int) bool {
	if p.Scores == nil {
		p.Scores = map[string]int{}
	}
	if _, rated := p.Scores[userID]; rated {
		return false
	}
	p.Scores[userID] = value
	return true
}

// Unrate removes the user's score and reports whether one was present.
func (p *Post) Unrate(userID string) bool {
	if _, rated := p.Scores[userID]; !rated {
		return false
	}
	delete(p.Scores, userID)
	return true
}

// Score sums the recorded values. Recomputed on demand, never cached.
func (p Post) Score() int {
	total := 0
	for _, value := range p.Scores {
		total += value
	}
	return total
}

type Comment struct {
	ID        string    `json:"id"`
	PostID    string    `json:"postId"`
	OwnerID   string    `json:"ownerId"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func NewComment(ownerID, postID, body string) Comment {
	now := time.Now().UTC()
	return Comment{
		ID:        util.NewID("cmt"),
		PostID:    postID,
		OwnerID:   ownerID,
		Body:      body,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (c Comment) IsOwnedBy(userID string) bool {
	return userID != "" && c.OwnerID == userID
}

type Tag struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func NewTag(name string) Tag {
	return Tag{ID: util.NewID("tag"), Name: name}
}
