package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"goalpact/internal/core"
)

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		contentType string
		wantErr     bool
	}{
		{"valid", `{"name":"Crew"}`, "application/json", false},
		{"charset", `{"name":"Crew"}`, "application/json; charset=utf-8", false},
		{"no content type", `{"name":"Crew"}`, "", false},
		{"form encoded", `name=Crew`, "application/x-www-form-urlencoded", true},
		{"unknown field", `{"name":"Crew","admin":true}`, "application/json", true},
		{"empty", ``, "application/json", true},
		{"trailing object", `{"name":"a"}{"name":"b"}`, "application/json", true},
		{"too large", `{"name":"` + strings.Repeat("x", maxBodyBytes) + `"}`, "application/json", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			if tt.contentType != "" {
				r.Header.Set("Content-Type", tt.contentType)
			}
			var dst createGroupRequest
			err := decodeJSON(httptest.NewRecorder(), r, &dst)
			if (err != nil) != tt.wantErr {
				t.Fatalf("decodeJSON() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, errBadRequest) {
				t.Errorf("error %v should wrap errBadRequest", err)
			}
			if !tt.wantErr && dst.Name != "Crew" {
				t.Errorf("Name = %q", dst.Name)
			}
		})
	}
}

func TestCreateGoalRequest_ToNewGoal(t *testing.T) {
	in, err := createGoalRequest{Title: "  Run\x00 ", Frequency: "weekly", DueDate: "2024-06-10", PenaltyPoints: "5"}.toNewGoal()
	if err != nil {
		t.Fatalf("toNewGoal() error = %v", err)
	}
	if in.Title != "Run" {
		t.Errorf("Title = %q, want Run", in.Title)
	}
	if !in.DueDate.Equal(core.NewDate(2024, 6, 10)) {
		t.Errorf("DueDate = %v", in.DueDate)
	}
	if in.PenaltyPoints != 5 {
		t.Errorf("PenaltyPoints = %d, want 5", in.PenaltyPoints)
	}

	_, err = createGoalRequest{Title: "Run", Frequency: "weekly", DueDate: "10/06/2024", PenaltyPoints: "5"}.toNewGoal()
	if !errors.Is(err, core.ErrValidation) || !errors.Is(err, core.ErrInvalidDate) {
		t.Errorf("bad date error = %v", err)
	}

	for _, points := range []json.Number{"", "0", "1.5", "-2", "1e3"} {
		_, err = createGoalRequest{Title: "Run", Frequency: "weekly", DueDate: "2024-06-10", PenaltyPoints: points}.toNewGoal()
		if !errors.Is(err, core.ErrValidation) || !errors.Is(err, core.ErrInvalidPoints) {
			t.Errorf("points %q error = %v", points, err)
		}
	}
}

func TestDecodeCreateGoal_PointsAsString(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/api/goals",
		strings.NewReader(`{"title":"Run","frequency":"daily","due_date":"2024-06-10","penalty_points":"7"}`))
	r.Header.Set("Content-Type", "application/json")

	var req createGoalRequest
	if err := decodeJSON(httptest.NewRecorder(), r, &req); err != nil {
		t.Fatalf("decodeJSON() error = %v", err)
	}
	in, err := req.toNewGoal()
	if err != nil {
		t.Fatalf("toNewGoal() error = %v", err)
	}
	if in.PenaltyPoints != 7 {
		t.Errorf("PenaltyPoints = %d, want 7", in.PenaltyPoints)
	}
}

func TestParseLimit(t *testing.T) {
	tests := []struct {
		query string
		want  int
	}{
		{"", defaultLimit},
		{"limit=10", 10},
		{"limit=0", defaultLimit},
		{"limit=-3", defaultLimit},
		{"limit=abc", defaultLimit},
		{"limit=100000", maxLimit},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/?"+tt.query, nil)
		if got := parseLimit(r); got != tt.want {
			t.Errorf("parseLimit(%q) = %d, want %d", tt.query, got, tt.want)
		}
	}
}

func TestSanitizeInput(t *testing.T) {
	if got := sanitizeInput("  a\tb\x07c\n "); got != "a\tbc" {
		t.Errorf("sanitizeInput() = %q", got)
	}
}
