package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"goalpact/internal/auth"
	"goalpact/internal/core"
	applog "goalpact/internal/log"
	"goalpact/internal/services"
)

func currentUser(r *http.Request) (auth.User, error) {
	u, ok := auth.UserFromContext(r.Context())
	if !ok {
		return auth.User{}, auth.ErrUnauthenticated
	}
	return u, nil
}

// respondDashboard reconciles the user and writes the fresh report. Per-goal
// penalty failures become warnings as long as the goals could be read back.
func (s *Server) respondDashboard(w http.ResponseWriter, r *http.Request, status int, userID string) {
	view, err := s.dashboard(r, userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Status(status).Body(view).Write(w)
}

// dashboard fails only when the user's goals could not be read back.
func (s *Server) dashboard(r *http.Request, userID string) (dashboardView, error) {
	ctx := r.Context()
	report, err := s.controller.Reconcile(ctx, userID)
	var warnings []string
	if err != nil {
		if report.Goals == nil {
			return dashboardView{}, err
		}
		applog.FromContext(ctx).WarnContext(ctx, "Reconciliation incomplete",
			applog.FieldUserID, userID, applog.FieldError, err)
		for _, e := range unwrapJoined(err) {
			_, msg := StatusFor(e)
			warnings = append(warnings, msg)
		}
	}
	return newDashboardView(report, warnings), nil
}

func unwrapJoined(err error) []error {
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		return j.Unwrap()
	}
	return []error{err}
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	u, err := currentUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.respondDashboard(w, r, http.StatusOK, u.ID)
}

func (s *Server) handleCreateGoal(w http.ResponseWriter, r *http.Request) {
	u, err := currentUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req createGoalRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	in, err := req.toNewGoal()
	if err != nil {
		writeError(w, r, err)
		return
	}
	g, err := s.controller.CreateGoal(r.Context(), u.ID, in)
	if err != nil {
		writeError(w, r, err)
		return
	}

	view, err := s.dashboard(r, u.ID)
	if err != nil {
		// The goal is committed. An error status here would invite a retry
		// that creates it twice.
		applog.FromContext(r.Context()).WarnContext(r.Context(), "Dashboard unavailable after goal creation",
			applog.FieldUserID, u.ID, applog.FieldGoalID, g.ID, applog.FieldError, err)
		_, msg := StatusFor(err)
		today := s.controller.Today()
		view = dashboardView{
			UserID:   u.ID,
			Today:    today.String(),
			Goals:    []goalView{newGoalView(g, services.Classify(g, today))},
			Warnings: []string{msg},
		}
	}
	NewJSONResponse().Status(http.StatusCreated).Body(view).Write(w)
}

func (s *Server) handleCompleteGoal(w http.ResponseWriter, r *http.Request) {
	u, err := currentUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.controller.CompleteGoal(r.Context(), u.ID, chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	s.respondDashboard(w, r, http.StatusOK, u.ID)
}

func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	u, err := currentUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req createGroupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	g, err := s.groups.CreateGroup(r.Context(), u.ID, sanitizeInput(req.Name))
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Body(newGroupView(g)).Write(w)
}

func (s *Server) handleJoinGroup(w http.ResponseWriter, r *http.Request) {
	u, err := currentUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req joinGroupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	m, err := s.groups.JoinGroup(r.Context(), u.ID, req.GroupID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(newMembershipView(m)).Write(w)
}

func (s *Server) handleGroupDetail(w http.ResponseWriter, r *http.Request) {
	u, err := currentUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	d, err := s.groups.Detail(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	// only members may see the roster
	member := false
	for _, m := range d.Members {
		if m.UserID == u.ID {
			member = true
			break
		}
	}
	if !member {
		writeError(w, r, core.ErrNotFound)
		return
	}
	NewJSONResponse().Body(newGroupDetailView(d)).Write(w)
}

func (s *Server) handleCredits(w http.ResponseWriter, r *http.Request) {
	u, err := currentUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	credits, err := s.controller.Credits(r.Context(), u.ID, parseLimit(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(newCreditViews(credits)).Write(w)
}

func (s *Server) handleUpsertProfile(w http.ResponseWriter, r *http.Request) {
	u, err := currentUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req profileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := s.groups.UpsertProfile(r.Context(), u.ID, sanitizeInput(req.Username))
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(profileView{ID: p.ID, Username: p.Username}).Write(w)
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	u, err := currentUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ns, err := s.groups.Notifications(r.Context(), u.ID, parseLimit(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(newNotificationViews(ns)).Write(w)
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	auth.SignOut(w, s.secureCookies)
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

