package dto

import "github.com/likefeed/backend/internal/models"

type ErrorResponse struct {
	Error          string `json:"error"`
	Kind           string `json:"kind,omitempty"`
	RequestID      string `json:"request_id,omitempty"`
	OutcomeUnknown bool   `json:"outcome_unknown,omitempty"`
}

type SuccessResponse struct {
	OK   bool `json:"ok"`
	Data any  `json:"data,omitempty"`
}

type PostsResponse struct {
	Posts  []models.Post `json:"posts"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

type CommentsResponse struct {
	Comments []models.Comment `json:"comments"`
	Limit    int              `json:"limit"`
	Offset   int              `json:"offset"`
}
