package httpx

import (
	"net/http"
	"strings"

	"github.com/splax/athlink/internal/service/post"
)

func (r *Router) handlePosts(w http.ResponseWriter, req *http.Request) {
	switch req.Method {
	case http.MethodGet:
		if !r.allow(w, req, "/posts:read", rateLimitUserRead, rateWindowDefault, rateLimitKeyUser) {
			return
		}
		feed, err := r.posts.List(req.Context(), queryInt(req, "page", 1), queryInt(req, "limit", 10))
		if err != nil {
			r.writeServiceError(w, req, err)
			return
		}
		writeJSON(w, http.StatusOK, feed)
	case http.MethodPost:
		if !r.allow(w, req, "/posts:create", rateLimitPost, rateWindowDefault, rateLimitKeyUser) {
			return
		}
		var payload post.CreateInput
		if !decodeJSON(w, req, &payload) {
			return
		}
		p, err := r.posts.Create(req.Context(), mustUser(req), payload)
		if err != nil {
			r.writeServiceError(w, req, err)
			return
		}
		writeJSON(w, http.StatusCreated, p)
	default:
		r.methodNotAllowed(w)
	}
}

// handlePostSubroutes serves /posts/user/{id}, /posts/{id},
// /posts/{id}/like and /posts/{id}/comment.
func (r *Router) handlePostSubroutes(w http.ResponseWriter, req *http.Request) {
	trimmed := strings.Trim(strings.TrimPrefix(req.URL.Path, "/posts/"), "/")
	parts := strings.Split(trimmed, "/")
	if trimmed == "" || len(parts) > 2 {
		r.notFound(w)
		return
	}
	userID := mustUser(req)

	if parts[0] == "user" && len(parts) == 2 {
		if req.Method != http.MethodGet {
			r.methodNotAllowed(w)
			return
		}
		if !r.allow(w, req, "/posts:read", rateLimitUserRead, rateWindowDefault, rateLimitKeyUser) {
			return
		}
		feed, err := r.posts.ListByUser(req.Context(), parts[1], queryInt(req, "page", 1), queryInt(req, "limit", 10))
		if err != nil {
			r.writeServiceError(w, req, err)
			return
		}
		writeJSON(w, http.StatusOK, feed)
		return
	}

	postID := parts[0]
	if len(parts) == 1 {
		if req.Method != http.MethodDelete {
			r.methodNotAllowed(w)
			return
		}
		if !r.allow(w, req, "/posts:write", rateLimitUserWrite, rateWindowDefault, rateLimitKeyUser) {
			return
		}
		if err := r.posts.Delete(req.Context(), postID, userID); err != nil {
			r.writeServiceError(w, req, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "Post deleted successfully"})
		return
	}

	switch parts[1] {
	case "like":
		if !r.allow(w, req, "/posts:like", rateLimitLike, rateWindowDefault, rateLimitKeyUser) {
			return
		}
		var (
			res post.LikeResult
			err error
		)
		switch req.Method {
		case http.MethodPost:
			res, err = r.posts.Like(req.Context(), postID, userID)
		case http.MethodDelete:
			res, err = r.posts.Unlike(req.Context(), postID, userID)
		default:
			r.methodNotAllowed(w)
			return
		}
		if err != nil {
			r.writeServiceError(w, req, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	case "comment":
		if req.Method != http.MethodPost {
			r.methodNotAllowed(w)
			return
		}
		if !r.allow(w, req, "/posts:comment", rateLimitComment, rateWindowDefault, rateLimitKeyUser) {
			return
		}
		var payload struct {
			Content string `json:"content"`
		}
		if !decodeJSON(w, req, &payload) {
			return
		}
		c, err := r.posts.Comment(req.Context(), postID, userID, payload.Content)
		if err != nil {
			r.writeServiceError(w, req, err)
			return
		}
		writeJSON(w, http.StatusCreated, c)
	default:
		r.notFound(w)
	}
}
