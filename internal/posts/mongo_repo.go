package posts

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.opentelemetry.io/otel/attribute"

	"github.com/2beens/blogposts/internal/telemetry/tracing"
)

const postsCollection = "posts"

var _ Repo = (*MongoRepo)(nil)

type MongoRepo struct {
	collection *mongo.Collection
}

func NewMongoRepo(client *mongo.Client, dbName string) *MongoRepo {
	return &MongoRepo{
		collection: client.Database(dbName).Collection(postsCollection),
	}
}

func (r *MongoRepo) All(ctx context.Context) ([]*Post, error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "postsMongoRepo.All")
	defer span.End()

	findOpts := options.Find().SetSort(bson.D{
		{Key: "publishDate", Value: -1},
		{Key: "_id", Value: -1},
	})
	cursor, err := r.collection.Find(ctx, bson.D{}, findOpts)
	if err != nil {
		return nil, fmt.Errorf("find posts: %w", err)
	}

	var docs []postDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode posts: %w", err)
	}

	posts := make([]*Post, 0, len(docs))
	for _, d := range docs {
		posts = append(posts, d.toPost())
	}
	return posts, nil
}

func (r *MongoRepo) Get(ctx context.Context, id string) (*Post, error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "postsMongoRepo.Get")
	span.SetAttributes(attribute.String("id", id))
	defer span.End()

	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrInvalidPostID
	}

	var doc postDocument
	if err := r.collection.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrPostNotFound
		}
		return nil, fmt.Errorf("find post %s: %w", id, err)
	}

	return doc.toPost(), nil
}

func (r *MongoRepo) Add(ctx context.Context, post *Post) error {
	ctx, span := tracing.GlobalTracer.Start(ctx, "postsMongoRepo.Add")
	defer span.End()

	if err := post.Validate(); err != nil {
		return err
	}
	if post.Created.IsZero() {
		post.Created = newCreatedTimestamp()
	}

	res, err := r.collection.InsertOne(ctx, newPostDocument(post))
	if err != nil {
		return fmt.Errorf("insert post: %w", err)
	}

	oid, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return fmt.Errorf("unexpected inserted id type %T", res.InsertedID)
	}
	post.ID = oid.Hex()
	return nil
}

func (r *MongoRepo) AddMany(ctx context.Context, posts []*Post) error {
	ctx, span := tracing.GlobalTracer.Start(ctx, "postsMongoRepo.AddMany")
	span.SetAttributes(attribute.Int("count", len(posts)))
	defer span.End()

	if len(posts) == 0 {
		return nil
	}

	docs := make([]interface{}, 0, len(posts))
	for _, p := range posts {
		if err := p.Validate(); err != nil {
			return err
		}
		if p.Created.IsZero() {
			p.Created = newCreatedTimestamp()
		}
		docs = append(docs, newPostDocument(p))
	}

	res, err := r.collection.InsertMany(ctx, docs, options.InsertMany().SetOrdered(true))
	if err != nil {
		return fmt.Errorf("insert many posts: %w", err)
	}

	for i, insertedID := range res.InsertedIDs {
		if oid, ok := insertedID.(primitive.ObjectID); ok {
			posts[i].ID = oid.Hex()
		}
	}
	return nil
}

func (r *MongoRepo) Replace(ctx context.Context, post *Post) error {
	ctx, span := tracing.GlobalTracer.Start(ctx, "postsMongoRepo.Replace")
	span.SetAttributes(attribute.String("id", post.ID))
	defer span.End()

	oid, err := primitive.ObjectIDFromHex(post.ID)
	if err != nil {
		return ErrInvalidPostID
	}
	if err := post.Validate(); err != nil {
		return err
	}

	// publishDate stays untouched
	res, err := r.collection.UpdateByID(ctx, oid, bson.M{
		"$set": bson.M{
			"Title":   post.Title,
			"author":  post.Author,
			"content": post.Content,
		},
	})
	if err != nil {
		return fmt.Errorf("replace post %s: %w", post.ID, err)
	}
	if res.MatchedCount == 0 {
		return ErrPostNotFound
	}
	if res.ModifiedCount == 0 {
		log.Tracef("post %s replaced with identical fields", post.ID)
	}
	return nil
}

func (r *MongoRepo) Delete(ctx context.Context, id string) error {
	ctx, span := tracing.GlobalTracer.Start(ctx, "postsMongoRepo.Delete")
	span.SetAttributes(attribute.String("id", id))
	defer span.End()

	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrInvalidPostID
	}

	res, err := r.collection.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return fmt.Errorf("delete post %s: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return ErrPostNotFound
	}
	return nil
}

func (r *MongoRepo) Count(ctx context.Context) (int, error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "postsMongoRepo.Count")
	defer span.End()

	count, err := r.collection.CountDocuments(ctx, bson.D{})
	if err != nil {
		return -1, fmt.Errorf("count posts: %w", err)
	}
	return int(count), nil
}

// Drop drops the whole database holding the collection
func (r *MongoRepo) Drop(ctx context.Context) error {
	if err := r.collection.Database().Drop(ctx); err != nil {
		return fmt.Errorf("drop database %s: %w", r.collection.Database().Name(), err)
	}
	return nil
}

func (r *MongoRepo) Ping(ctx context.Context) error {
	return r.collection.Database().Client().Ping(ctx, readpref.Primary())
}
