package admin

import (
	"net/http"

	"github.com/julienschmidt/httprouter"

	"github.com/wirelane/drawbridge/internal/xerrors"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token  string `json:"token"`
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}

	user, err := s.store.Authenticate(req.Username, req.Password)
	if err != nil {
		writeErr(w, err)
		return
	}

	token, err := s.auth.Issue(user.ID, user.Username, user.Role)
	if err != nil {
		writeErr(w, xerrors.NewStorageError(err))
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{Token: token, UserID: user.ID, Role: user.Role})
}
