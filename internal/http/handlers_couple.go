package http

import (
	"net/http"

	"prorata/internal/core"
	"prorata/internal/services"
)

type memberResponse struct {
	UserID      int64  `json:"userId"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
	IncomeCents *int64 `json:"incomeCents"`
	Percentage  *int64 `json:"percentage"`
}

type coupleResponse struct {
	ID      int64            `json:"id"`
	Mode    core.SplitMode   `json:"mode"`
	Members []memberResponse `json:"members"`
}

func (s *Server) coupleResponse(r *http.Request, couple *core.Couple) (coupleResponse, error) {
	pair, err := s.couples.Members(r.Context(), couple)
	if err != nil {
		return coupleResponse{}, err
	}

	resp := coupleResponse{ID: couple.ID, Mode: couple.Mode}
	for _, m := range []*core.Member{pair.A, pair.B} {
		if m == nil {
			continue
		}
		resp.Members = append(resp.Members, memberResponse{
			UserID:      m.UserID,
			DisplayName: m.DisplayName,
			Email:       m.Email,
			IncomeCents: m.IncomeCents,
			Percentage:  m.Percentage,
		})
	}
	return resp, nil
}

func (s *Server) handleCreateCouple(w http.ResponseWriter, r *http.Request, user *core.User) {
	couple, err := s.couples.Create(r.Context(), user.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	resp, err := s.coupleResponse(r, couple)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleGetCouple(w http.ResponseWriter, r *http.Request, user *core.User, couple *core.Couple) {
	resp, err := s.coupleResponse(r, couple)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleInvite(w http.ResponseWriter, r *http.Request, user *core.User, couple *core.Couple) {
	var req struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	invite, err := s.couples.Invite(r.Context(), couple, req.Email)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	// The token is returned to the inviter; any registered account can
	// redeem it, the email is informational only.
	writeJSON(w, http.StatusCreated, struct {
		Token        string `json:"token"`
		InvitedEmail string `json:"invitedEmail"`
	}{Token: invite.Token, InvitedEmail: invite.InvitedEmail})
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request, user *core.User) {
	var req struct {
		Token string `json:"token"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	couple, err := s.couples.Join(r.Context(), user.ID, req.Token)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	resp, err := s.coupleResponse(r, couple)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request, user *core.User, couple *core.Couple) {
	var req struct {
		Mode    string `json:"mode"`
		Members []struct {
			UserID      int64  `json:"userId"`
			IncomeCents *int64 `json:"incomeCents"`
			Percentage  *int64 `json:"percentage"`
		} `json:"members"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	mode, err := core.ParseSplitMode(req.Mode)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	settings := make([]services.MemberSetting, 0, len(req.Members))
	for _, m := range req.Members {
		settings = append(settings, services.MemberSetting{
			UserID:      m.UserID,
			IncomeCents: m.IncomeCents,
			Percentage:  m.Percentage,
		})
	}

	if err := s.couples.UpdateSettings(r.Context(), couple, mode, settings); err != nil {
		writeServiceError(w, r, err)
		return
	}

	couple.Mode = mode
	resp, err := s.coupleResponse(r, couple)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
