package posts

import "context"

//go:generate mockgen -source=$GOFILE -destination=repo_mocks_test.go -package=posts_test

// Repo is the persistence adapter between posts and a document store.
// Implementations return ErrInvalidPostID for ids they cannot parse and
// ErrPostNotFound for well formed ids with no document behind them.
type Repo interface {
	// All returns every post, newest first
	All(ctx context.Context) ([]*Post, error)
	Get(ctx context.Context, id string) (*Post, error)
	// Add stores a new post and sets its ID, and Created if not set already
	Add(ctx context.Context, post *Post) error
	// AddMany is the bulk version of Add, used for seeding
	AddMany(ctx context.Context, posts []*Post) error
	// Replace overwrites title, author and content of the post with post.ID
	Replace(ctx context.Context, post *Post) error
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
	// Drop removes all stored posts, used by test teardown and the seeder
	Drop(ctx context.Context) error
	Ping(ctx context.Context) error
}
