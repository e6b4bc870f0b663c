package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"goalpact/internal/core"
)

const (
	maxBodyBytes = 64 << 10
	defaultLimit = 50
	maxLimit     = 200
)

var errBadRequest = errors.New("bad request")

// decodeJSON reads one JSON object into dst, rejecting unknown fields and trailing data.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	ct := r.Header.Get("Content-Type")
	if ct != "" && !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		return fmt.Errorf("%w: content type must be application/json", errBadRequest)
	}

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return fmt.Errorf("%w: body too large", errBadRequest)
		case errors.Is(err, io.EOF):
			return fmt.Errorf("%w: empty body", errBadRequest)
		}
		return fmt.Errorf("%w: malformed JSON: %v", errBadRequest, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: body must hold a single JSON object", errBadRequest)
	}
	return nil
}

type createGoalRequest struct {
	Title         string      `json:"title"`
	Frequency     string      `json:"frequency"`
	DueDate       string      `json:"due_date"`
	PenaltyPoints json.Number `json:"penalty_points"`
}

// toNewGoal parses the due date and weight. Remaining checks belong to
// core.NewGoal.Validate. The weight may arrive as a number or a numeric string.
func (req createGoalRequest) toNewGoal() (core.NewGoal, error) {
	due, err := core.ParseDate(req.DueDate)
	if err != nil {
		return core.NewGoal{}, fmt.Errorf("%w: %w", core.ErrValidation, err)
	}
	points, err := core.ParsePoints(req.PenaltyPoints.String())
	if err != nil {
		return core.NewGoal{}, fmt.Errorf("%w: %w", core.ErrValidation, err)
	}
	return core.NewGoal{
		Title:         sanitizeInput(req.Title),
		Frequency:     sanitizeInput(req.Frequency),
		DueDate:       due,
		PenaltyPoints: points,
	}, nil
}

type createGroupRequest struct {
	Name string `json:"name"`
}

type joinGroupRequest struct {
	GroupID string `json:"group_id"`
}

type profileRequest struct {
	Username string `json:"username"`
}

// parseLimit reads ?limit=, clamped to [1, maxLimit].
func parseLimit(r *http.Request) int {
	v := strings.TrimSpace(r.URL.Query().Get("limit"))
	if v == "" {
		return defaultLimit
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return defaultLimit
	}
	if n > maxLimit {
		return maxLimit
	}
	return n
}

// sanitizeInput trims whitespace and strips control characters other than tab and newlines.
func sanitizeInput(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, strings.TrimSpace(s))
}
