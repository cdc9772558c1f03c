package posts

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/coocood/freecache"
	log "github.com/sirupsen/logrus"
)

const megabyte = 1024 * 1024

var _ Repo = (*CachedRepo)(nil)

// CachedRepo keeps single posts read by id in an in-process cache in front
// of another Repo. Writes go to the wrapped repo first and then evict the
// cached entry, so a read after a successful write never sees the old post.
type CachedRepo struct {
	Repo
	cache  *freecache.Cache
	expire time.Duration

	// writeGen is bumped on every write; a read only fills the cache when
	// no write happened since it started
	mu       sync.Mutex
	writeGen uint64
}

// NewCachedRepo wraps repo with a cache of cacheSizeMB megabytes. Freecache
// enforces a 512KB minimum.
func NewCachedRepo(repo Repo, cacheSizeMB int, expire time.Duration) *CachedRepo {
	return &CachedRepo{
		Repo:   repo,
		cache:  freecache.NewCache(cacheSizeMB * megabyte),
		expire: expire,
	}
}

func (r *CachedRepo) Get(ctx context.Context, id string) (*Post, error) {
	if postBytes, err := r.cache.Get([]byte(id)); err == nil {
		var cached Post
		if err := json.Unmarshal(postBytes, &cached); err != nil {
			log.Errorf("unmarshal cached post %s: %s", id, err)
		} else {
			log.Tracef("post %s found in cache", id)
			return &cached, nil
		}
	} else if !errors.Is(err, freecache.ErrNotFound) {
		log.Debugf("get cached post %s: %s", id, err)
	}

	gen := r.currentGen()
	post, err := r.Repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	r.setIfUnchanged(post, gen)
	return post, nil
}

func (r *CachedRepo) Replace(ctx context.Context, post *Post) error {
	err := r.Repo.Replace(ctx, post)
	r.evict(post.ID)
	return err
}

func (r *CachedRepo) Delete(ctx context.Context, id string) error {
	err := r.Repo.Delete(ctx, id)
	r.evict(id)
	return err
}

func (r *CachedRepo) Drop(ctx context.Context) error {
	err := r.Repo.Drop(ctx)
	r.mu.Lock()
	r.writeGen++
	r.cache.Clear()
	r.mu.Unlock()
	return err
}

func (r *CachedRepo) currentGen() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writeGen
}

func (r *CachedRepo) setIfUnchanged(post *Post, gen uint64) {
	postBytes, err := json.Marshal(post)
	if err != nil {
		log.Errorf("marshal post %s for cache: %s", post.ID, err)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.writeGen != gen {
		log.Tracef("post %s written during read, not cached", post.ID)
		return
	}
	if err := r.cache.Set([]byte(post.ID), postBytes, int(r.expire.Seconds())); err != nil {
		log.Debugf("cache post %s: %s", post.ID, err)
	}
}

func (r *CachedRepo) evict(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writeGen++
	r.cache.Del([]byte(id))
}
