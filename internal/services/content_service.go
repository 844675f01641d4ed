package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/likefeed/backend/internal/apperr"
	"github.com/likefeed/backend/internal/contentparser"
	"github.com/likefeed/backend/internal/events"
	"github.com/likefeed/backend/internal/models"
	"github.com/likefeed/backend/internal/repositories"
)

const (
	MaxBodyRunes = 10000
	MaxHashLen   = 256
	// MaxListLimit caps the diagnostic dumps.
	MaxListLimit = 500
)

// ContentService is the content store facade: posts, comments and their like
// counters. Counters are only ever changed by the reward ledger.
type ContentService struct {
	content   ContentStore
	audit     AuditLogger
	publisher events.Publisher
	log       *zap.Logger
}

func NewContentService(
	content ContentStore,
	audit AuditLogger,
	publisher events.Publisher,
	log *zap.Logger,
) *ContentService {
	return &ContentService{
		content:   content,
		audit:     audit,
		publisher: publisher,
		log:       log,
	}
}

type WritePostRequest struct {
	AuthorAddress string `json:"author_address"`
	Body          string `json:"body"`
	Hash          string `json:"hash,omitempty"`
}

type WriteCommentRequest struct {
	AuthorAddress string `json:"author_address"`
	Body          string `json:"body"`
	PostID        int64  `json:"post_id"`
	Hash          string `json:"hash,omitempty"`
}

func (s *ContentService) WritePost(ctx context.Context, req WritePostRequest) (*models.Post, error) {
	author, body, hash, err := s.prepare(req.AuthorAddress, req.Body, req.Hash)
	if err != nil {
		return nil, err
	}
	p := &models.Post{AuthorAddress: author, Body: body, ContentHash: hash}
	if err := s.content.CreatePost(ctx, p); err != nil {
		return nil, fmt.Errorf("create post: %w", err)
	}
	s.created(ctx, models.ContentRef{Type: models.ContentPost, ID: p.ID}, author)
	return p, nil
}

// WriteComment attaches a comment to an existing post; a missing post yields
// ContentNotFound and nothing is written.
func (s *ContentService) WriteComment(ctx context.Context, req WriteCommentRequest) (*models.Comment, error) {
	if req.PostID <= 0 {
		return nil, apperr.New(apperr.KindInvalidArgument, "post_id must be a positive integer")
	}
	author, body, hash, err := s.prepare(req.AuthorAddress, req.Body, req.Hash)
	if err != nil {
		return nil, err
	}
	c := &models.Comment{PostID: req.PostID, AuthorAddress: author, Body: body, ContentHash: hash}
	if err := s.content.CreateComment(ctx, c); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, apperr.New(apperr.KindContentNotFound, "post %d does not exist", req.PostID)
		}
		return nil, fmt.Errorf("create comment: %w", err)
	}
	s.created(ctx, models.ContentRef{Type: models.ContentComment, ID: c.ID}, author)
	return c, nil
}

// Resolve loads the item a like refers to.
func (s *ContentService) Resolve(ctx context.Context, ref models.ContentRef) (*models.Content, error) {
	c, err := s.content.Get(ctx, ref)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, apperr.New(apperr.KindContentNotFound, "%s %d does not exist", ref.Type, ref.ID)
		}
		return nil, fmt.Errorf("load content: %w", err)
	}
	return c, nil
}

func (s *ContentService) ListPosts(ctx context.Context, limit, offset int) ([]models.Post, error) {
	return s.content.ListPosts(ctx, clampLimit(limit), max(offset, 0))
}

func (s *ContentService) ListComments(ctx context.Context, postID *int64, limit, offset int) ([]models.Comment, error) {
	return s.content.ListComments(ctx, postID, clampLimit(limit), max(offset, 0))
}

// List returns every post and comment up to limit each.
func (s *ContentService) List(ctx context.Context, limit int) (*models.ContentListing, error) {
	posts, err := s.ListPosts(ctx, limit, 0)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	comments, err := s.ListComments(ctx, nil, limit, 0)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	return &models.ContentListing{Posts: posts, Comments: comments}, nil
}

// prepare validates the shared fields of posts and comments and computes the
// content hash unless the caller supplied one.
func (s *ContentService) prepare(authorAddress, body, hash string) (author, cleanBody, contentHash string, err error) {
	author, err = normalizeAddress("author_address", authorAddress)
	if err != nil {
		return "", "", "", err
	}
	cleanBody = strings.TrimSpace(body)
	if cleanBody == "" {
		return "", "", "", apperr.New(apperr.KindInvalidArgument, "body must not be empty")
	}
	if utf8.RuneCountInString(cleanBody) > MaxBodyRunes {
		return "", "", "", apperr.New(apperr.KindInvalidArgument, "body exceeds %d characters", MaxBodyRunes)
	}
	contentHash = strings.TrimSpace(hash)
	if len(contentHash) > MaxHashLen {
		return "", "", "", apperr.New(apperr.KindInvalidArgument, "hash exceeds %d bytes", MaxHashLen)
	}
	if contentHash == "" {
		parsed, err := contentparser.Parse(cleanBody)
		if err != nil {
			return "", "", "", apperr.Wrap(apperr.KindInvalidArgument, err, "body could not be parsed")
		}
		contentHash = parsed.Hash
	}
	return author, cleanBody, contentHash, nil
}

func (s *ContentService) created(ctx context.Context, ref models.ContentRef, author string) {
	_ = s.audit.Log(ctx, models.AuditLog{
		Actor:      author,
		ActorType:  "agent",
		Action:     string(ref.Type) + "_created",
		EntityType: string(ref.Type),
		EntityID:   strconv.FormatInt(ref.ID, 10),
	})
	_ = s.publisher.Publish(ctx, events.StreamRewards, events.Event{
		Type: events.EventContentCreated,
		Payload: map[string]any{
			"content_type":   ref.Type,
			"content_id":     ref.ID,
			"author_address": author,
		},
	})
	s.log.Info("content created", zap.Stringer("ref", ref), zap.String("author", author))
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	return min(limit, MaxListLimit)
}
