package posts

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// postDocument is the shape of a post inside the mongo collection.
// Note the capitalised Title key, kept for compatibility with existing data.
type postDocument struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	Title       string             `bson:"Title"`
	Author      Author             `bson:"author"`
	Content     string             `bson:"content"`
	PublishDate time.Time          `bson:"publishDate"`
}

// jsonDocument is the same document stored in the postgres JSONB column;
// the id lives in its own column.
type jsonDocument struct {
	Title       string    `json:"Title"`
	Author      Author    `json:"author"`
	Content     string    `json:"content"`
	PublishDate time.Time `json:"publishDate"`
}

// jsonDocumentUpdate holds the mutable part of a jsonDocument, merged over
// the stored one on replace.
type jsonDocumentUpdate struct {
	Title   string `json:"Title"`
	Author  Author `json:"author"`
	Content string `json:"content"`
}

func (d postDocument) toPost() *Post {
	return &Post{
		ID:      d.ID.Hex(),
		Title:   d.Title,
		Author:  d.Author,
		Content: d.Content,
		Created: d.PublishDate.UTC(),
	}
}

func newPostDocument(p *Post) postDocument {
	return postDocument{
		Title:       p.Title,
		Author:      p.Author,
		Content:     p.Content,
		PublishDate: p.Created,
	}
}

func (d jsonDocument) toPost(id string) *Post {
	return &Post{
		ID:      id,
		Title:   d.Title,
		Author:  d.Author,
		Content: d.Content,
		Created: d.PublishDate.UTC(),
	}
}

func newJSONDocument(p *Post) jsonDocument {
	return jsonDocument{
		Title:       p.Title,
		Author:      p.Author,
		Content:     p.Content,
		PublishDate: p.Created,
	}
}
