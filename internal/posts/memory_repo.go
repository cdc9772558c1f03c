package posts

import (
	"context"
	"sort"
	"sync"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

var _ Repo = (*MemoryRepo)(nil)

// MemoryRepo keeps posts in a map. Ids are mongo ObjectIDs, so ids produced
// here are interchangeable with the mongo backend ones.
type MemoryRepo struct {
	posts map[string]*Post
	mutex sync.RWMutex
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		posts: make(map[string]*Post),
	}
}

func (r *MemoryRepo) All(_ context.Context) ([]*Post, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	all := make([]*Post, 0, len(r.posts))
	for _, p := range r.posts {
		all = append(all, p.clone())
	}
	sortNewestFirst(all)
	return all, nil
}

func (r *MemoryRepo) Get(_ context.Context, id string) (*Post, error) {
	if _, err := primitive.ObjectIDFromHex(id); err != nil {
		return nil, ErrInvalidPostID
	}

	r.mutex.RLock()
	defer r.mutex.RUnlock()

	p, ok := r.posts[id]
	if !ok {
		return nil, ErrPostNotFound
	}
	return p.clone(), nil
}

func (r *MemoryRepo) Add(_ context.Context, post *Post) error {
	if err := post.Validate(); err != nil {
		return err
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.add(post)
	return nil
}

func (r *MemoryRepo) AddMany(_ context.Context, posts []*Post) error {
	for _, p := range posts {
		if err := p.Validate(); err != nil {
			return err
		}
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()
	for _, p := range posts {
		r.add(p)
	}
	return nil
}

func (r *MemoryRepo) add(post *Post) {
	post.ID = primitive.NewObjectID().Hex()
	if post.Created.IsZero() {
		post.Created = newCreatedTimestamp()
	}
	r.posts[post.ID] = post.clone()
}

func (r *MemoryRepo) Replace(_ context.Context, post *Post) error {
	if _, err := primitive.ObjectIDFromHex(post.ID); err != nil {
		return ErrInvalidPostID
	}
	if err := post.Validate(); err != nil {
		return err
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	stored, ok := r.posts[post.ID]
	if !ok {
		return ErrPostNotFound
	}
	stored.Title = post.Title
	stored.Author = post.Author
	stored.Content = post.Content
	return nil
}

func (r *MemoryRepo) Delete(_ context.Context, id string) error {
	if _, err := primitive.ObjectIDFromHex(id); err != nil {
		return ErrInvalidPostID
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, ok := r.posts[id]; !ok {
		return ErrPostNotFound
	}
	delete(r.posts, id)
	return nil
}

func (r *MemoryRepo) Count(_ context.Context) (int, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.posts), nil
}

func (r *MemoryRepo) Drop(_ context.Context) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.posts = make(map[string]*Post)
	return nil
}

func (r *MemoryRepo) Ping(_ context.Context) error {
	return nil
}

// sortNewestFirst orders by creation time descending, ties by id descending
func sortNewestFirst(posts []*Post) {
	sort.Slice(posts, func(i, j int) bool {
		if posts[i].Created.Equal(posts[j].Created) {
			return posts[i].ID > posts[j].ID
		}
		return posts[i].Created.After(posts[j].Created)
	})
}
