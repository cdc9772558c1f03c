package posts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"

	"github.com/2beens/blogposts/internal/telemetry/tracing"
	"github.com/2beens/blogposts/pkg"
)

const insertPostSQL = `INSERT INTO posts (doc, publish_date) VALUES ($1::jsonb, $2) RETURNING id::text;`

var _ Repo = (*PsqlRepo)(nil)

// PsqlRepo stores post documents in a JSONB column, using postgres as a
// document store. The publish date is duplicated in its own column for ordering.
type PsqlRepo struct {
	db *pgxpool.Pool
}

func NewPsqlRepo(db *pgxpool.Pool) *PsqlRepo {
	return &PsqlRepo{
		db: db,
	}
}

func parsePostUUID(id string) (string, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return "", ErrInvalidPostID
	}
	return parsed.String(), nil
}

func (r *PsqlRepo) All(ctx context.Context) ([]*Post, error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "postsPsqlRepo.All")
	defer span.End()

	rows, err := r.db.Query(
		ctx,
		`SELECT id::text, doc FROM posts ORDER BY publish_date DESC, id DESC;`,
	)
	if err != nil {
		return nil, fmt.Errorf("query posts: %w", err)
	}
	defer rows.Close()

	posts := make([]*Post, 0)
	for rows.Next() {
		var id string
		var rawDoc []byte
		if err := rows.Scan(&id, &rawDoc); err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		post, err := decodeJSONDocument(id, rawDoc)
		if err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate posts: %w", err)
	}

	return posts, nil
}

func (r *PsqlRepo) Get(ctx context.Context, id string) (*Post, error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "postsPsqlRepo.Get")
	span.SetAttributes(attribute.String("id", id))
	defer span.End()

	postID, err := parsePostUUID(id)
	if err != nil {
		return nil, err
	}

	var rawDoc []byte
	err = r.db.QueryRow(ctx, `SELECT doc FROM posts WHERE id = $1;`, postID).Scan(&rawDoc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPostNotFound
		}
		if pkg.IsInvalidTextRepresentationError(err) {
			return nil, ErrInvalidPostID
		}
		return nil, fmt.Errorf("get post %s: %w", id, err)
	}

	return decodeJSONDocument(postID, rawDoc)
}

func (r *PsqlRepo) Add(ctx context.Context, post *Post) error {
	ctx, span := tracing.GlobalTracer.Start(ctx, "postsPsqlRepo.Add")
	defer span.End()

	docJson, err := preparePostInsert(post)
	if err != nil {
		return err
	}

	var id string
	if err := r.db.QueryRow(ctx, insertPostSQL, docJson, post.Created).Scan(&id); err != nil {
		return fmt.Errorf("insert post: %w", err)
	}
	post.ID = id
	return nil
}

func (r *PsqlRepo) AddMany(ctx context.Context, posts []*Post) error {
	ctx, span := tracing.GlobalTracer.Start(ctx, "postsPsqlRepo.AddMany")
	span.SetAttributes(attribute.Int("count", len(posts)))
	defer span.End()

	if len(posts) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, p := range posts {
		docJson, err := preparePostInsert(p)
		if err != nil {
			return err
		}
		batch.Queue(insertPostSQL, docJson, p.Created)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		// no-op after a successful commit
		_ = tx.Rollback(ctx)
	}()

	ids := make([]string, len(posts))
	br := tx.SendBatch(ctx, batch)
	for i := range posts {
		if err := br.QueryRow().Scan(&ids[i]); err != nil {
			_ = br.Close()
			return fmt.Errorf("batch insert post: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit batch insert: %w", err)
	}
	// ids only become visible once the rows exist
	for i, p := range posts {
		p.ID = ids[i]
	}
	return nil
}

func (r *PsqlRepo) Replace(ctx context.Context, post *Post) error {
	ctx, span := tracing.GlobalTracer.Start(ctx, "postsPsqlRepo.Replace")
	span.SetAttributes(attribute.String("id", post.ID))
	defer span.End()

	postID, err := parsePostUUID(post.ID)
	if err != nil {
		return err
	}
	if err := post.Validate(); err != nil {
		return err
	}

	updateJson, err := json.Marshal(jsonDocumentUpdate{
		Title:   post.Title,
		Author:  post.Author,
		Content: post.Content,
	})
	if err != nil {
		return fmt.Errorf("marshal post update: %w", err)
	}

	// jsonb concatenation overwrites the mutable keys, publishDate is kept
	tag, err := r.db.Exec(
		ctx,
		`UPDATE posts SET doc = doc || $1::jsonb WHERE id = $2;`,
		string(updateJson), postID,
	)
	if err != nil {
		return fmt.Errorf("replace post %s: %w", post.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPostNotFound
	}
	return nil
}

func (r *PsqlRepo) Delete(ctx context.Context, id string) error {
	ctx, span := tracing.GlobalTracer.Start(ctx, "postsPsqlRepo.Delete")
	span.SetAttributes(attribute.String("id", id))
	defer span.End()

	postID, err := parsePostUUID(id)
	if err != nil {
		return err
	}

	tag, err := r.db.Exec(ctx, `DELETE FROM posts WHERE id = $1;`, postID)
	if err != nil {
		return fmt.Errorf("delete post %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPostNotFound
	}
	return nil
}

func (r *PsqlRepo) Count(ctx context.Context) (int, error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "postsPsqlRepo.Count")
	defer span.End()

	var count int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM posts;`).Scan(&count); err != nil {
		return -1, fmt.Errorf("count posts: %w", err)
	}
	return count, nil
}

// Drop truncates the posts table. The table itself stays, unlike the mongo
// database drop, so the service keeps working after a teardown.
func (r *PsqlRepo) Drop(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, `TRUNCATE TABLE posts;`); err != nil {
		if pkg.IsUndefinedTableError(err) {
			return nil
		}
		return fmt.Errorf("truncate posts: %w", err)
	}
	return nil
}

func (r *PsqlRepo) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

func preparePostInsert(post *Post) (string, error) {
	if err := post.Validate(); err != nil {
		return "", err
	}
	if post.Created.IsZero() {
		post.Created = newCreatedTimestamp()
	}

	docJson, err := json.Marshal(newJSONDocument(post))
	if err != nil {
		return "", fmt.Errorf("marshal post document: %w", err)
	}
	return string(docJson), nil
}

func decodeJSONDocument(id string, rawDoc []byte) (*Post, error) {
	var doc jsonDocument
	if err := json.Unmarshal(rawDoc, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal post document %s: %w", id, err)
	}
	return doc.toPost(id), nil
}
