package posts

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/2beens/blogposts/internal/telemetry/metrics"
	"github.com/2beens/blogposts/internal/telemetry/tracing"
	"github.com/2beens/blogposts/pkg"
)

const maxRequestBodyBytes = 1 << 20

type Handler struct {
	repo    Repo
	metrics *metrics.Manager
}

func NewHandler(repo Repo, metricsManager *metrics.Manager) *Handler {
	return &Handler{
		repo:    repo,
		metrics: metricsManager,
	}
}

// SetupRoutes registers the posts routes. Write routes (POST, PUT, DELETE)
// are additionally wrapped in writeMiddlewares, in the given order.
func (handler *Handler) SetupRoutes(router *mux.Router, writeMiddlewares ...mux.MiddlewareFunc) {
	write := func(h http.HandlerFunc) http.Handler {
		var wrapped http.Handler = h
		for i := len(writeMiddlewares) - 1; i >= 0; i-- {
			wrapped = writeMiddlewares[i](wrapped)
		}
		return wrapped
	}

	router.HandleFunc("/posts", handler.handleAll).Methods("GET", "OPTIONS").Name("all-posts")
	router.Handle("/posts", write(handler.handleNewPost)).Methods("POST").Name("new-post")
	router.HandleFunc("/posts/{id}", handler.handleGet).Methods("GET", "OPTIONS").Name("get-post")
	router.Handle("/posts/{id}", write(handler.handleUpdatePost)).Methods("PUT").Name("update-post")
	router.Handle("/posts/{id}", write(handler.handleDeletePost)).Methods("DELETE").Name("delete-post")
}

func (handler *Handler) handleAll(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.posts.all")
	defer span.End()

	allPosts, err := handler.repo.All(ctx)
	if err != nil {
		log.Errorf("get all posts: %s", err)
		span.SetStatus(codes.Error, "repo-all")
		span.RecordError(err)
		http.Error(w, "get all posts failed", http.StatusInternalServerError)
		return
	}

	resp := make([]PostResponse, 0, len(allPosts))
	for _, p := range allPosts {
		resp = append(resp, NewPostResponse(p))
	}

	pkg.WriteJSONResponse(w, resp, http.StatusOK)
}

func (handler *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.posts.get")
	defer span.End()

	id := mux.Vars(r)["id"]
	span.SetAttributes(attribute.String("id", id))

	post, err := handler.repo.Get(ctx, id)
	if err != nil {
		handler.writeRepoError(w, err, "get post "+id)
		return
	}

	pkg.WriteJSONResponse(w, NewPostResponse(post), http.StatusOK)
}

func (handler *Handler) handleNewPost(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.posts.new")
	defer span.End()

	var newPostReq newPostRequest
	if !decodeJSONBody(w, r, &newPostReq) {
		span.SetStatus(codes.Error, "bad-request")
		return
	}

	post := newPostReq.toPost()
	if err := post.Validate(); err != nil {
		http.Error(w, "error, "+err.Error(), http.StatusBadRequest)
		return
	}

	if err := handler.repo.Add(ctx, post); err != nil {
		span.RecordError(err)
		handler.writeRepoError(w, err, "add new post")
		return
	}

	handler.metrics.CounterPostsCreated.Inc()
	log.Tracef("new post %s: [%s] added", post.ID, post.Title)

	w.Header().Set("Location", "/posts/"+post.ID)
	pkg.WriteJSONResponse(w, NewPostResponse(post), http.StatusCreated)
}

func (handler *Handler) handleUpdatePost(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.posts.update")
	defer span.End()

	id := mux.Vars(r)["id"]
	span.SetAttributes(attribute.String("id", id))

	var updatePostReq updatePostRequest
	if !decodeJSONBody(w, r, &updatePostReq) {
		span.SetStatus(codes.Error, "bad-request")
		return
	}

	if updatePostReq.ID != id {
		log.Tracef("update post: path id [%s] and body id [%s] differ", id, updatePostReq.ID)
		http.Error(w, "error, request path id and body id must match", http.StatusBadRequest)
		return
	}

	post := updatePostReq.toPost()
	if err := post.Validate(); err != nil {
		http.Error(w, "error, "+err.Error(), http.StatusBadRequest)
		return
	}

	if err := handler.repo.Replace(ctx, post); err != nil {
		span.RecordError(err)
		handler.writeRepoError(w, err, "update post "+id)
		return
	}

	log.Tracef("post %s updated", id)
	w.WriteHeader(http.StatusNoContent)
}

func (handler *Handler) handleDeletePost(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.posts.delete")
	defer span.End()

	id := mux.Vars(r)["id"]
	span.SetAttributes(attribute.String("id", id))

	if err := handler.repo.Delete(ctx, id); err != nil {
		span.RecordError(err)
		handler.writeRepoError(w, err, "delete post "+id)
		return
	}

	handler.metrics.CounterPostsDeleted.Inc()
	log.Tracef("post %s deleted", id)
	w.WriteHeader(http.StatusNoContent)
}

func (handler *Handler) writeRepoError(w http.ResponseWriter, err error, operation string) {
	switch {
	case errors.Is(err, ErrInvalidPostID):
		http.Error(w, "error, invalid post id", http.StatusBadRequest)
	case errors.Is(err, ErrPostFieldsMissing):
		http.Error(w, "error, "+err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrPostNotFound):
		http.Error(w, "error, post not found", http.StatusNotFound)
	default:
		log.Errorf("%s: %s", operation, err)
		http.Error(w, operation+" failed", http.StatusInternalServerError)
	}
}

// decodeJSONBody writes a 400 and returns false when the request is not a
// JSON request or its body cannot be decoded into dst.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != pkg.ContentType.JSON {
		http.Error(w, "invalid content type", http.StatusBadRequest)
		return false
	}
	if r.Body == nil {
		http.Error(w, "error, empty body", http.StatusBadRequest)
		return false
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		log.Debugf("decode json request body: %s", err)
		http.Error(w, "error, invalid json body", http.StatusBadRequest)
		return false
	}
	return true
}
