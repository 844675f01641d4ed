package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/likefeed/backend/internal/http/dto"
	"github.com/likefeed/backend/internal/models"
	"github.com/likefeed/backend/internal/services"
)

type ContentService interface {
	WritePost(ctx context.Context, req services.WritePostRequest) (*models.Post, error)
	WriteComment(ctx context.Context, req services.WriteCommentRequest) (*models.Comment, error)
	ListPosts(ctx context.Context, limit, offset int) ([]models.Post, error)
	ListComments(ctx context.Context, postID *int64, limit, offset int) ([]models.Comment, error)
	List(ctx context.Context, limit int) (*models.ContentListing, error)
}

type ContentHandler struct {
	content ContentService
	log     *zap.Logger
}

func NewContentHandler(content ContentService, log *zap.Logger) *ContentHandler {
	return &ContentHandler{content: content, log: log}
}

// CreatePost
// POST /posts
func (h *ContentHandler) CreatePost(c *fiber.Ctx) error {
	var req dto.CreatePostRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c)
	}

	post, err := h.content.WritePost(c.UserContext(), services.WritePostRequest{
		AuthorAddress: req.AuthorAddress,
		Body:          req.Body,
		Hash:          req.Hash,
	})
	if err != nil {
		return respondError(c, h.log, err)
	}
	return ok(c, fiber.StatusCreated, post)
}

// CreateComment
// POST /comments
func (h *ContentHandler) CreateComment(c *fiber.Ctx) error {
	var req dto.CreateCommentRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c)
	}

	comment, err := h.content.WriteComment(c.UserContext(), services.WriteCommentRequest{
		AuthorAddress: req.AuthorAddress,
		PostID:        req.PostID,
		Body:          req.Body,
		Hash:          req.Hash,
	})
	if err != nil {
		return respondError(c, h.log, err)
	}
	return ok(c, fiber.StatusCreated, comment)
}

// ListPosts
// GET /posts?limit=&offset=
func (h *ContentHandler) ListPosts(c *fiber.Ctx) error {
	limit, offset := pageParams(c)
	posts, err := h.content.ListPosts(c.UserContext(), limit, offset)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return ok(c, fiber.StatusOK, dto.PostsResponse{Posts: posts, Limit: limit, Offset: offset})
}

// ListComments
// GET /comments?post_id=&limit=&offset=
func (h *ContentHandler) ListComments(c *fiber.Ctx) error {
	limit, offset := pageParams(c)

	var postID *int64
	if c.Query("post_id") != "" {
		id := int64(c.QueryInt("post_id", 0))
		if id <= 0 {
			return badBody(c)
		}
		postID = &id
	}

	comments, err := h.content.ListComments(c.UserContext(), postID, limit, offset)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return ok(c, fiber.StatusOK, dto.CommentsResponse{Comments: comments, Limit: limit, Offset: offset})
}

// ListContent returns recent posts and comments together.
// GET /content?limit=
func (h *ContentHandler) ListContent(c *fiber.Ctx) error {
	listing, err := h.content.List(c.UserContext(), c.QueryInt("limit", 0))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return ok(c, fiber.StatusOK, listing)
}

func pageParams(c *fiber.Ctx) (limit, offset int) {
	limit = c.QueryInt("limit", 50)
	if limit <= 0 {
		limit = 50
	}
	if limit > services.MaxListLimit {
		limit = services.MaxListLimit
	}
	offset = c.QueryInt("offset", 0)
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
