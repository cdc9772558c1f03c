package seed

import (
	"context"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	log "github.com/sirupsen/logrus"

	"github.com/2beens/blogposts/internal/posts"
)

// Generator creates fake posts. A zero seed gives a random sequence.
type Generator struct {
	faker *gofakeit.Faker
	now   func() time.Time
}

func NewGenerator(seed int64) *Generator {
	return &Generator{
		faker: gofakeit.New(seed),
		now:   time.Now,
	}
}

// GeneratePost returns a post with every required field set and a
// publish date somewhere in the past year.
func (g *Generator) GeneratePost() *posts.Post {
	now := g.now().UTC()
	return &posts.Post{
		Title: g.faker.JobTitle(),
		Author: posts.Author{
			FirstName: g.faker.FirstName(),
			LastName:  g.faker.LastName(),
		},
		Content: g.faker.Paragraph(1, 3, 12, " "),
		Created: g.faker.DateRange(now.AddDate(-1, 0, 0), now).Truncate(time.Millisecond),
	}
}

func (g *Generator) GeneratePosts(n int) []*posts.Post {
	generated := make([]*posts.Post, 0, n)
	for i := 0; i < n; i++ {
		generated = append(generated, g.GeneratePost())
	}
	return generated
}

// Seed stores n generated posts in one bulk insert and returns them,
// with ids set by the repo.
func (g *Generator) Seed(ctx context.Context, repo posts.Repo, n int) ([]*posts.Post, error) {
	if n <= 0 {
		return nil, nil
	}

	generated := g.GeneratePosts(n)
	if err := repo.AddMany(ctx, generated); err != nil {
		return nil, fmt.Errorf("seed %d posts: %w", n, err)
	}

	log.Debugf("seeded %d posts", n)
	return generated, nil
}

var defaultGenerator = NewGenerator(0)

func GeneratePost() *posts.Post {
	return defaultGenerator.GeneratePost()
}

func GeneratePosts(n int) []*posts.Post {
	return defaultGenerator.GeneratePosts(n)
}

func Seed(ctx context.Context, repo posts.Repo, n int) ([]*posts.Post, error) {
	return defaultGenerator.Seed(ctx, repo, n)
}
