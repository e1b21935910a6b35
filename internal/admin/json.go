package admin

import (
	"encoding/json"
	"net/http"

	"github.com/wirelane/drawbridge/internal/xerrors"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeErr(w http.ResponseWriter, err error) {
	if ge, ok := xerrors.IsGatewayError(err); ok {
		ge.WriteJSON(w)
		return
	}
	xerrors.NewStorageError(err).WriteJSON(w)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	defer r.Body.Close()
	if err := dec.Decode(v); err != nil {
		return xerrors.NewConfigInvalid("malformed JSON body: " + err.Error())
	}
	return nil
}
