package api

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.vocdoni.io/dvote/log"

	"github.com/biovote/protocol/types"
	"github.com/biovote/protocol/util"
)

// httpWriteJSON helper function allows to write a JSON response.
func httpWriteJSON(w http.ResponseWriter, data any) {
	jdata, err := json.Marshal(data)
	if err != nil {
		ErrMarshalingServerJSONFailed.WithErr(err).Write(w)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(jdata); err != nil {
		log.Warnw("failed to write http response", "error", err.Error())
	}
	if _, err := w.Write([]byte("\n")); err != nil {
		log.Warnw("failed to write on response", "error", err.Error())
	}
}

// httpWriteOK helper function allows to write an OK response.
func httpWriteOK(w http.ResponseWriter) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("\n")); err != nil {
		log.Warnw("failed to write on response", "error", err.Error())
	}
}

// urlVoteEventID extracts and decodes the vote event ID path parameter.
func urlVoteEventID(r *http.Request) (types.HexBytes, error) {
	raw := chi.URLParam(r, VoteEventURLParam)
	decoded, err := hex.DecodeString(util.TrimHex(raw))
	if err != nil || len(decoded) == 0 {
		return nil, fmt.Errorf("%q is not a valid vote event id", raw)
	}
	return decoded, nil
}
