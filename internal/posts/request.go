package posts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// authorField accepts the author either as a display name string
// or as a {firstName, lastName} object.
type authorField struct {
	Author
}

func (a *authorField) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		a.Author = Author{}
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var name string
		if err := json.Unmarshal(data, &name); err != nil {
			return err
		}
		a.Author = ParseAuthorName(name)
		return nil
	}

	var author Author
	if err := json.Unmarshal(data, &author); err != nil {
		return fmt.Errorf("author must be a string or an object with firstName and lastName: %w", err)
	}
	a.Author = author
	return nil
}

type newPostRequest struct {
	Title   string      `json:"title"`
	Author  authorField `json:"author"`
	Content string      `json:"content"`
}

func (r newPostRequest) toPost() *Post {
	return &Post{
		Title:   r.Title,
		Author:  r.Author.Author,
		Content: r.Content,
	}
}

type updatePostRequest struct {
	ID      string      `json:"id"`
	Title   string      `json:"title"`
	Author  authorField `json:"author"`
	Content string      `json:"content"`
}

func (r updatePostRequest) toPost() *Post {
	return &Post{
		ID:      r.ID,
		Title:   r.Title,
		Author:  r.Author.Author,
		Content: r.Content,
	}
}

// PostResponse is the serialized post returned by the API
type PostResponse struct {
	ID      string    `json:"id"`
	Title   string    `json:"title"`
	Author  string    `json:"author"`
	Content string    `json:"content"`
	Created time.Time `json:"created"`
}

func NewPostResponse(p *Post) PostResponse {
	return PostResponse{
		ID:      p.ID,
		Title:   p.Title,
		Author:  p.Author.DisplayName(),
		Content: p.Content,
		Created: p.Created,
	}
}
