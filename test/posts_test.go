//go:build integration_test || all_tests

package test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/2beens/blogposts/internal/posts"
	"github.com/2beens/blogposts/internal/seed"
)

func (s *IntegrationTestSuite) doRequest(
	ctx context.Context,
	method, path string,
	body any,
) *http.Response {
	var reqBody io.Reader
	if body != nil {
		bodyJson, err := json.Marshal(body)
		require.NoError(s.T(), err)
		reqBody = bytes.NewReader(bodyJson)
	}

	req, err := http.NewRequestWithContext(ctx, method, serverEndpoint+path, reqBody)
	require.NoError(s.T(), err)
	req.Header.Set("User-Agent", "test-agent")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.httpClient.Do(req)
	require.NoError(s.T(), err)
	return resp
}

func (s *IntegrationTestSuite) getAllPosts(ctx context.Context) []map[string]any {
	resp := s.doRequest(ctx, "GET", "/posts", nil)
	defer resp.Body.Close()
	require.Equal(s.T(), http.StatusOK, resp.StatusCode)
	assert.Equal(s.T(), "application/json", resp.Header.Get("Content-Type"))

	var allPosts []map[string]any
	require.NoError(s.T(), json.NewDecoder(resp.Body).Decode(&allPosts))
	return allPosts
}

func (s *IntegrationTestSuite) TestGetAllPosts() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err := seed.Seed(ctx, s.mongoRepo(), 10)
	require.NoError(s.T(), err)

	allPosts := s.getAllPosts(ctx)
	count, err := s.mongoRepo().Count(ctx)
	require.NoError(s.T(), err)
	require.Len(s.T(), allPosts, count)
	require.Len(s.T(), allPosts, 10)

	for _, p := range allPosts {
		for _, key := range []string{"id", "title", "content", "author", "created"} {
			assert.Contains(s.T(), p, key)
		}
	}
}

func (s *IntegrationTestSuite) TestGetPost() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	seeded, err := seed.Seed(ctx, s.mongoRepo(), 3)
	require.NoError(s.T(), err)
	expected := seeded[0]

	resp := s.doRequest(ctx, "GET", "/posts/"+expected.ID, nil)
	defer resp.Body.Close()
	require.Equal(s.T(), http.StatusOK, resp.StatusCode)

	var received posts.PostResponse
	require.NoError(s.T(), json.NewDecoder(resp.Body).Decode(&received))
	assert.Equal(s.T(), expected.ID, received.ID)
	assert.Equal(s.T(), expected.Title, received.Title)
	assert.Equal(s.T(), expected.Author.DisplayName(), received.Author)
	assert.Equal(s.T(), expected.Content, received.Content)
	assert.True(s.T(), expected.Created.Equal(received.Created))

	missing := s.doRequest(ctx, "GET", "/posts/"+primitive.NewObjectID().Hex(), nil)
	defer missing.Body.Close()
	assert.Equal(s.T(), http.StatusNotFound, missing.StatusCode)

	malformed := s.doRequest(ctx, "GET", "/posts/123", nil)
	defer malformed.Body.Close()
	assert.Equal(s.T(), http.StatusBadRequest, malformed.StatusCode)
}

func (s *IntegrationTestSuite) TestNewPost() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	newPost := map[string]any{
		"title":   "A",
		"author":  map[string]string{"firstName": "Jo"},
		"content": "C",
	}
	resp := s.doRequest(ctx, "POST", "/posts", newPost)
	defer resp.Body.Close()
	require.Equal(s.T(), http.StatusCreated, resp.StatusCode)

	var created posts.PostResponse
	require.NoError(s.T(), json.NewDecoder(resp.Body).Decode(&created))
	assert.Equal(s.T(), "A", created.Title)
	assert.Equal(s.T(), "Jo", created.Author)
	assert.Equal(s.T(), "C", created.Content)
	assert.Equal(s.T(), "/posts/"+created.ID, resp.Header.Get("Location"))

	// stored document shape
	oid, err := primitive.ObjectIDFromHex(created.ID)
	require.NoError(s.T(), err)
	var rawDoc bson.M
	require.NoError(s.T(),
		s.mongoClient.Database(mongoDBName).Collection("posts").
			FindOne(ctx, bson.M{"_id": oid}).Decode(&rawDoc),
	)
	assert.Equal(s.T(), "A", rawDoc["Title"])
	assert.Equal(s.T(), "C", rawDoc["content"])
	assert.Contains(s.T(), rawDoc, "publishDate")
	author, ok := rawDoc["author"].(bson.M)
	require.True(s.T(), ok, "author stored as %T", rawDoc["author"])
	assert.Equal(s.T(), "Jo", author["firstName"])

	invalid := s.doRequest(ctx, "POST", "/posts", map[string]string{"title": "no content"})
	defer invalid.Body.Close()
	assert.Equal(s.T(), http.StatusBadRequest, invalid.StatusCode)

	count, err := s.mongoRepo().Count(ctx)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), 1, count)
}

func (s *IntegrationTestSuite) TestUpdatePost() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	seeded, err := seed.Seed(ctx, s.mongoRepo(), 2)
	require.NoError(s.T(), err)
	toUpdate := seeded[1]

	updateData := map[string]string{
		"id":      toUpdate.ID,
		"title":   "cats cats cats",
		"author":  "testing author",
		"content": "dogs dogs dogs",
	}
	resp := s.doRequest(ctx, "PUT", "/posts/"+toUpdate.ID, updateData)
	resp.Body.Close()
	require.Equal(s.T(), http.StatusNoContent, resp.StatusCode)

	stored, err := s.mongoRepo().Get(ctx, toUpdate.ID)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), "cats cats cats", stored.Title)
	assert.Equal(s.T(), posts.Author{FirstName: "testing", LastName: "author"}, stored.Author)
	assert.Equal(s.T(), "dogs dogs dogs", stored.Content)
	assert.True(s.T(), toUpdate.Created.Equal(stored.Created))

	updateData["id"] = seeded[0].ID
	mismatch := s.doRequest(ctx, "PUT", "/posts/"+toUpdate.ID, updateData)
	mismatch.Body.Close()
	assert.Equal(s.T(), http.StatusBadRequest, mismatch.StatusCode)

	missingID := primitive.NewObjectID().Hex()
	updateData["id"] = missingID
	missing := s.doRequest(ctx, "PUT", "/posts/"+missingID, updateData)
	missing.Body.Close()
	assert.Equal(s.T(), http.StatusNotFound, missing.StatusCode)
}

func (s *IntegrationTestSuite) TestDeletePost() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	seeded, err := seed.Seed(ctx, s.mongoRepo(), 4)
	require.NoError(s.T(), err)
	toDelete := seeded[2]

	resp := s.doRequest(ctx, "DELETE", "/posts/"+toDelete.ID, nil)
	resp.Body.Close()
	require.Equal(s.T(), http.StatusNoContent, resp.StatusCode)

	_, err = s.mongoRepo().Get(ctx, toDelete.ID)
	assert.ErrorIs(s.T(), err, posts.ErrPostNotFound)

	again := s.doRequest(ctx, "DELETE", "/posts/"+toDelete.ID, nil)
	again.Body.Close()
	assert.Equal(s.T(), http.StatusNotFound, again.StatusCode)

	assert.Len(s.T(), s.getAllPosts(ctx), 3)
}

func (s *IntegrationTestSuite) TestHealth() {
	require.NoError(s.T(), s.serverReady())
}

func (s *IntegrationTestSuite) TestPsqlDocumentShape() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	repo := posts.NewPsqlRepo(s.pgPool)
	require.NoError(s.T(), repo.Drop(ctx))

	seeded, err := seed.Seed(ctx, repo, 5)
	require.NoError(s.T(), err)

	var rowsCount int
	require.NoError(s.T(), s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM posts`).Scan(&rowsCount))
	assert.Equal(s.T(), 5, rowsCount)

	var title, firstName string
	var publishDate time.Time
	require.NoError(s.T(), s.DB.QueryRowContext(ctx,
		`SELECT doc->>'Title', doc->'author'->>'firstName', publish_date FROM posts WHERE id = $1`,
		seeded[0].ID,
	).Scan(&title, &firstName, &publishDate))
	assert.Equal(s.T(), seeded[0].Title, title)
	assert.Equal(s.T(), seeded[0].Author.FirstName, firstName)
	assert.True(s.T(), seeded[0].Created.Equal(publishDate), fmt.Sprintf("%v != %v", seeded[0].Created, publishDate))

	require.NoError(s.T(), repo.Drop(ctx))
}
