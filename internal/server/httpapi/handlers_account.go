package httpapi

import (
	"net/http"

	"github.com/dmitrijs2005/subkeeper/internal/server/services"
)

type changeRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewEmail        string `json:"newEmail"`
	NewPassword     string `json:"newPassword"`
}

type verifyRequest struct {
	CurrentPassword string `json:"currentPassword"`
	Otp             string `json:"otp"`
}

// Credential changes always apply to the account the session was opened with.

func (s *Server) handleRequestChange(w http.ResponseWriter, r *http.Request) {
	var req changeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	res, err := s.svc.Otp.RequestChange(r.Context(), services.ChangeRequest{
		AccountID:       callerFrom(r.Context()).AccountID,
		CurrentPassword: req.CurrentPassword,
		NewEmail:        req.NewEmail,
		NewPassword:     req.NewPassword,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, toChallenge(res))
}

func (s *Server) handleVerifyChange(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	res, err := s.svc.Otp.Verify(r.Context(), callerFrom(r.Context()).AccountID, req.Otp, req.CurrentPassword)
	if err != nil {
		writeError(w, err)
		return
	}
	status := http.StatusOK
	if res.Status == services.ChallengeExpiredResent {
		status = http.StatusAccepted
	}
	writeJSON(w, status, toChallenge(res))
}

func (s *Server) handleResendChange(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.Otp.Resend(r.Context(), callerFrom(r.Context()).AccountID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, toChallenge(res))
}
