// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package server

import (
	"errors"
	"math"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/tejzpr/kioku/internal/emotion"
	"github.com/tejzpr/kioku/internal/memory"
)

// validate checks request DTOs. Field names in errors are the JSON names.
var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	_ = validate.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	_ = validate.RegisterValidation("emotion", func(fl validator.FieldLevel) bool {
		_, ok := emotion.Parse(fl.Field().String())
		return ok
	})
}

// validateStruct runs the validator and converts the first failure into a
// validation error
func validateStruct(op string, v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return memory.NewValidationError(op, "invalid request")
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "notblank", "required":
		return memory.NewValidationError(op, "%s is required", fe.Field())
	case "max":
		return memory.NewValidationError(op, "%s exceeds maximum of %s", fe.Field(), fe.Param())
	case "min":
		return memory.NewValidationError(op, "%s is below minimum of %s", fe.Field(), fe.Param())
	case "emotion":
		return memory.NewValidationError(op, "unknown emotion: %v", fe.Value())
	default:
		return memory.NewValidationError(op, "%s failed %s validation", fe.Field(), fe.Tag())
	}
}

type contextTurnDTO struct {
	Role    string `json:"role" validate:"max=32"`
	Content string `json:"content" validate:"max=10000"`
}

type saveRequest struct {
	UserMessage   string           `json:"user_message" validate:"notblank,max=10000"`
	AIMessage     string           `json:"ai_message" validate:"notblank,max=10000"`
	UserID        string           `json:"user_id" validate:"max=255"`
	SessionID     string           `json:"session_id" validate:"max=255"`
	AppName       string           `json:"app_name" validate:"max=255"`
	ContextWindow []contextTurnDTO `json:"context_window" validate:"max=50,dive"`
}

func (r saveRequest) toTurn() memory.Turn {
	t := memory.Turn{
		UserMessage: r.UserMessage,
		AIResponse:  r.AIMessage,
		UserID:      r.UserID,
		SessionID:   r.SessionID,
		AppName:     r.AppName,
	}
	for _, c := range r.ContextWindow {
		t.Context = append(t.Context, memory.ContextTurn{Role: c.Role, Content: c.Content})
	}
	return t
}

type searchRequest struct {
	Query         string   `json:"query" validate:"notblank,max=1000"`
	TopK          *int     `json:"top_k" validate:"omitempty,min=1,max=100"`
	UserID        string   `json:"user_id" validate:"max=255"`
	EmotionFilter []string `json:"emotion_filter" validate:"max=38,dive,emotion"`
	DateFrom      string   `json:"date_from"`
	DateTo        string   `json:"date_to"`
}

func (r searchRequest) toQuery() (memory.SearchQuery, error) {
	q := memory.SearchQuery{Query: r.Query, TopK: memory.DefaultTopK}
	if r.TopK != nil {
		q.TopK = *r.TopK
	}
	f, err := buildFilter("search", r.UserID, r.EmotionFilter, r.DateFrom, r.DateTo)
	if err != nil {
		return q, err
	}
	q.Filter = f
	return q, nil
}

type batchSearchRequest struct {
	Queries []string `json:"queries"`
	TopK    *int     `json:"top_k"`
	UserID  string   `json:"user_id" validate:"max=255"`
}

// buildFilter parses emotion names and ISO-8601 dates into a filter
func buildFilter(op, userID string, emotions []string, from, to string) (memory.Filter, error) {
	f := memory.Filter{UserID: strings.TrimSpace(userID)}

	tags, unknown := emotion.ParseAll(emotions)
	if len(unknown) > 0 {
		return f, memory.NewValidationError(op, "unknown emotion: %s", strings.Join(unknown, ", "))
	}
	f.Emotions = tags

	var err error
	if f.DateFrom, err = memory.ParseDate(op, "date_from", from); err != nil {
		return f, err
	}
	if f.DateTo, err = memory.ParseDate(op, "date_to", to); err != nil {
		return f, err
	}
	return f, nil
}

type memoryDTO struct {
	ID           string    `json:"id"`
	Summary      string    `json:"summary"`
	Emotions     []string  `json:"emotions"`
	OriginalUser string    `json:"original_user"`
	OriginalAI   string    `json:"original_ai"`
	UserID       string    `json:"user_id,omitempty"`
	SessionID    string    `json:"session_id,omitempty"`
	AppName      string    `json:"app_name,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

func toMemoryDTO(r *memory.Record) memoryDTO {
	return memoryDTO{
		ID:           r.ID.String(),
		Summary:      r.Summary,
		Emotions:     emotion.Strings(r.Emotions),
		OriginalUser: r.OriginalUser,
		OriginalAI:   r.OriginalAI,
		UserID:       r.UserID,
		SessionID:    r.SessionID,
		AppName:      r.AppName,
		CreatedAt:    r.CreatedAt,
	}
}

type resultMetadata struct {
	UserID       string    `json:"user_id,omitempty"`
	SessionID    string    `json:"session_id,omitempty"`
	AppName      string    `json:"app_name,omitempty"`
	OriginalUser string    `json:"original_user"`
	OriginalAI   string    `json:"original_ai"`
	CreatedAt    time.Time `json:"created_at"`
}

type resultDTO struct {
	ID       string         `json:"id"`
	Score    float64        `json:"score"`
	Summary  string         `json:"summary"`
	Emotions []string       `json:"emotions"`
	Metadata resultMetadata `json:"metadata"`
}

func toResultDTOs(results []memory.SearchResult) []resultDTO {
	out := make([]resultDTO, 0, len(results))
	for _, r := range results {
		rec := r.Record
		out = append(out, resultDTO{
			ID:       rec.ID.String(),
			Score:    math.Round(r.Score*1e4) / 1e4,
			Summary:  rec.Summary,
			Emotions: emotion.Strings(rec.Emotions),
			Metadata: resultMetadata{
				UserID:       rec.UserID,
				SessionID:    rec.SessionID,
				AppName:      rec.AppName,
				OriginalUser: rec.OriginalUser,
				OriginalAI:   rec.OriginalAI,
				CreatedAt:    rec.CreatedAt,
			},
		})
	}
	return out
}

// millis reports d in milliseconds with two decimals
func millis(d time.Duration) float64 {
	return math.Round(float64(d.Microseconds())/10) / 100
}
