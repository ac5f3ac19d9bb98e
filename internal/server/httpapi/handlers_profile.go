package httpapi

import (
	"fmt"
	"net/http"

	"github.com/dmitrijs2005/subkeeper/internal/common"
	"github.com/dmitrijs2005/subkeeper/internal/server/services"
)

type updateProfileRequest struct {
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	p, err := s.svc.Identity.GetProfile(r.Context(), callerFrom(r.Context()).UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProfile(p.User, p.Account))
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req updateProfileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	caller := callerFrom(r.Context())
	u, err := s.svc.Identity.UpdateProfile(r.Context(), caller.UserID, req.Name, req.Avatar)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProfile(u, nil))
}

func (s *Server) handleAvatarUpload(w http.ResponseWriter, r *http.Request) {
	key, url, err := s.svc.Avatars.UploadURL(r.Context(), callerFrom(r.Context()).UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"key": key, "url": url})
}

func (s *Server) handleAvatarDownload(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		writeError(w, fmt.Errorf("%w: key is required", common.ErrValidation))
		return
	}
	url, err := s.svc.Avatars.DownloadURL(r.Context(), callerFrom(r.Context()).UserID, key)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

func (s *Server) handleUserSubscriptions(w http.ResponseWriter, r *http.Request) {
	views, err := s.svc.Catalog.UserSubscriptions(r.Context(), callerFrom(r.Context()).UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]*userSubscriptionResponse, 0, len(views))
	for _, v := range views {
		us := toUserSubscription(&v.UserSubscription)
		us.Active = v.Active
		us.Features = toFeatures(v.Features)
		out = append(out, us)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handlePlans(w http.ResponseWriter, r *http.Request) {
	plans, err := s.svc.Catalog.Plans(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]planResponse, 0, len(plans))
	for _, p := range plans {
		out = append(out, toPlan(p))
	}
	writeJSON(w, http.StatusOK, out)
}

type evaluateRequest struct {
	Voice           string `json:"voice"`
	Style           string `json:"style"`
	DurationMinutes int    `json:"durationMinutes"`
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	d, err := s.svc.Entitlements.Evaluate(r.Context(), callerFrom(r.Context()).UserID, services.EntitlementRequest{
		Voice:           req.Voice,
		Style:           req.Style,
		DurationMinutes: req.DurationMinutes,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"allowed": d.Allowed, "reason": d.Reason})
}

type companionRequest struct {
	Name            string `json:"name"`
	Subject         string `json:"subject"`
	HelpWith        string `json:"helpWith"`
	Voice           string `json:"voice"`
	Style           string `json:"style"`
	DurationMinutes int    `json:"durationMinutes"`
}

func (s *Server) handleCreateCompanion(w http.ResponseWriter, r *http.Request) {
	var req companionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	c, err := s.svc.Companions.Create(r.Context(), callerFrom(r.Context()).UserID, services.NewCompanion{
		Name:            req.Name,
		Subject:         req.Subject,
		HelpWith:        req.HelpWith,
		Voice:           req.Voice,
		Style:           req.Style,
		DurationMinutes: req.DurationMinutes,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCompanion(*c))
}

func (s *Server) handleListCompanions(w http.ResponseWriter, r *http.Request) {
	list, err := s.svc.Companions.List(r.Context(), callerFrom(r.Context()).UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]companionResponse, 0, len(list))
	for _, c := range list {
		out = append(out, toCompanion(c))
	}
	writeJSON(w, http.StatusOK, out)
}
