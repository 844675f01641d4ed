package gateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"

	"github.com/likefeed/backend/internal/apperr"
	"github.com/likefeed/backend/internal/models"
	"github.com/likefeed/backend/internal/services"
)

// Envelope is the function-call request body.
type Envelope struct {
	Function  string          `json:"function"`
	Arguments json.RawMessage `json:"arguments"`
}

// aliases maps older function names onto the canonical ones.
var aliases = map[string]string{
	"create_post":    OpWritePost,
	"create_comment": OpWriteComment,
	"like":           OpIncrementLike,
	"transfer":       OpTransferToken,
}

// Decode validates the envelope shape and returns the typed operation.
// Unknown names fail with UnrecognizedOperation, malformed arguments with
// InvalidArgument.
func Decode(env Envelope) (Operation, error) {
	name := strings.ToLower(strings.TrimSpace(env.Function))
	if canonical, ok := aliases[name]; ok {
		name = canonical
	}
	if name == "" {
		return nil, apperr.New(apperr.KindInvalidArgument, "function is required")
	}

	switch name {
	case OpWritePost:
		var a struct {
			AuthorAddress  string `json:"author_address"`
			AgentPublicKey string `json:"agent_public_key"`
			Body           string `json:"body"`
			Content        string `json:"content"`
			Hash           string `json:"hash"`
		}
		if err := decodeArgs(env.Arguments, &a); err != nil {
			return nil, err
		}
		return WritePost{Request: services.WritePostRequest{
			AuthorAddress: firstNonEmpty(a.AuthorAddress, a.AgentPublicKey),
			Body:          firstNonEmpty(a.Body, a.Content),
			Hash:          a.Hash,
		}}, nil

	case OpWriteComment:
		var a struct {
			AuthorAddress  string `json:"author_address"`
			AgentPublicKey string `json:"agent_public_key"`
			Body           string `json:"body"`
			Content        string `json:"content"`
			PostID         int64  `json:"post_id"`
			Hash           string `json:"hash"`
		}
		if err := decodeArgs(env.Arguments, &a); err != nil {
			return nil, err
		}
		return WriteComment{Request: services.WriteCommentRequest{
			AuthorAddress: firstNonEmpty(a.AuthorAddress, a.AgentPublicKey),
			Body:          firstNonEmpty(a.Body, a.Content),
			PostID:        a.PostID,
			Hash:          a.Hash,
		}}, nil

	case OpIncrementLike:
		var a struct {
			ContentType    string        `json:"content_type"`
			ContentID      int64         `json:"content_id"`
			ActorAddress   string        `json:"actor_address"`
			FromWallet     string        `json:"from_wallet"`
			Amount         models.Amount `json:"amount"`
			IdempotencyKey string        `json:"idempotency_key"`
		}
		if err := decodeArgs(env.Arguments, &a); err != nil {
			return nil, err
		}
		return IncrementLike{Request: services.LikeRequest{
			ContentType:    models.ContentType(strings.ToLower(strings.TrimSpace(a.ContentType))),
			ContentID:      a.ContentID,
			ActorAddress:   firstNonEmpty(a.ActorAddress, a.FromWallet),
			Amount:         string(a.Amount),
			IdempotencyKey: a.IdempotencyKey,
		}}, nil

	case OpRegisterWallet:
		var a struct {
			Address    string `json:"address"`
			SigningKey string `json:"signing_key"`
		}
		if err := decodeArgs(env.Arguments, &a); err != nil {
			return nil, err
		}
		key, err := services.ParseSigningKey(a.SigningKey)
		if err != nil {
			return nil, err
		}
		return RegisterWallet{Address: a.Address, SigningKey: key}, nil

	case OpListContent:
		var a struct {
			Limit int `json:"limit"`
		}
		if err := decodeArgs(env.Arguments, &a); err != nil {
			return nil, err
		}
		return ListContent{Limit: a.Limit}, nil

	case OpTransferToken:
		var a struct {
			ToAddress string        `json:"to_address"`
			Recipient string        `json:"recipient"`
			Amount    models.Amount `json:"amount"`
		}
		if err := decodeArgs(env.Arguments, &a); err != nil {
			return nil, err
		}
		return TransferToken{Request: services.TransferRequest{
			ToAddress: firstNonEmpty(a.ToAddress, a.Recipient),
			Amount:    string(a.Amount),
		}}, nil
	}

	return nil, apperr.New(apperr.KindUnrecognizedOperation, "function %q not recognized", env.Function)
}

// decodeArgs unmarshals raw into dst. Missing arguments decode as an empty
// object.
func decodeArgs(raw json.RawMessage, dst any) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	if raw[0] != '{' {
		return apperr.New(apperr.KindInvalidArgument, "arguments must be an object")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return apperr.Wrap(apperr.KindInvalidArgument, err, "arguments are malformed: %s", describeJSONError(err))
	}
	return nil
}

// describeJSONError names the offending field without echoing its value.
func describeJSONError(err error) string {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return typeErr.Field + " has the wrong type"
	}
	return "invalid JSON"
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
