package posts

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrPostNotFound      = errors.New("post not found")
	ErrInvalidPostID     = errors.New("invalid post id")
	ErrPostFieldsMissing = errors.New("post fields missing")
)

// Author is stored structured, but the API shows it as a single display name.
type Author struct {
	FirstName string `json:"firstName" bson:"firstName"`
	LastName  string `json:"lastName" bson:"lastName"`
}

// DisplayName joins first and last name with a single space,
// an empty part is left out.
func (a Author) DisplayName() string {
	return strings.TrimSpace(strings.TrimSpace(a.FirstName) + " " + strings.TrimSpace(a.LastName))
}

// ParseAuthorName splits a display name on the first run of whitespace:
// "Jo" -> {Jo, ""}, "Mary Jo Smith" -> {Mary, "Jo Smith"}
func ParseAuthorName(name string) Author {
	fields := strings.Fields(name)
	switch len(fields) {
	case 0:
		return Author{}
	case 1:
		return Author{FirstName: fields[0]}
	default:
		return Author{
			FirstName: fields[0],
			LastName:  strings.Join(fields[1:], " "),
		}
	}
}

type Post struct {
	ID      string
	Title   string
	Author  Author
	Content string
	// Created is set by the store on insert and never changed after
	Created time.Time
}

// Validate checks that every required field is present.
// The returned error wraps ErrPostFieldsMissing.
func (p *Post) Validate() error {
	var missing []string
	if strings.TrimSpace(p.Title) == "" {
		missing = append(missing, "title")
	}
	if strings.TrimSpace(p.Author.FirstName) == "" {
		missing = append(missing, "author")
	}
	if strings.TrimSpace(p.Content) == "" {
		missing = append(missing, "content")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrPostFieldsMissing, strings.Join(missing, ", "))
	}
	return nil
}

func (p *Post) clone() *Post {
	c := *p
	return &c
}

func newCreatedTimestamp() time.Time {
	// mongo keeps milliseconds only, truncate so every backend returns
	// the same value on insert and on later reads
	return time.Now().UTC().Truncate(time.Millisecond)
}
