package api

import (
	"encoding/json"
	"errors"
	"math/big"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.vocdoni.io/dvote/log"

	"github.com/biovote/protocol/ledger"
	"github.com/biovote/protocol/types"
)

// newVote records a submission bundle on the ledger
// POST /votes
func (a *API) newVote(w http.ResponseWriter, r *http.Request) {
	bundle := &types.SubmissionBundle{}
	if err := json.NewDecoder(r.Body).Decode(bundle); err != nil {
		ErrMalformedBody.Withf("could not decode request body: %v", err).Write(w)
		return
	}
	if err := a.store.SubmitVote(bundle); err != nil {
		switch {
		case errors.Is(err, ledger.ErrEventNotFound):
			ErrVoteEventNotFound.Write(w)
		case errors.Is(err, ledger.ErrNullifierSpent):
			ErrNullifierSpent.Write(w)
		case errors.Is(err, ledger.ErrOutsideWindow):
			ErrVoteWindowClosed.Write(w)
		case errors.Is(err, ledger.ErrEventFinalized):
			ErrVoteEventFinalized.Write(w)
		default:
			ErrInvalidSubmission.WithErr(err).Write(w)
		}
		return
	}
	log.Infow("vote recorded",
		"voteEventId", bundle.VoteEventID.String(),
		"nullifier", bundle.Nullifier.String())
	httpWriteOK(w)
}

// nullifierStatus reports whether a nullifier has been spent
// GET /vote-events/{voteEventId}/nullifiers/{nullifier}
func (a *API) nullifierStatus(w http.ResponseWriter, r *http.Request) {
	voteEventID, err := urlVoteEventID(r)
	if err != nil {
		ErrMalformedVoteEventID.WithErr(err).Write(w)
		return
	}
	raw := chi.URLParam(r, NullifierURLParam)
	nullifier, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		ErrMalformedNullifier.Withf("%q", raw).Write(w)
		return
	}
	if _, err := a.store.VoteEvent(voteEventID); err != nil {
		if errors.Is(err, ledger.ErrEventNotFound) {
			ErrVoteEventNotFound.Write(w)
			return
		}
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	httpWriteJSON(w, &NullifierStatus{
		Nullifier: (*types.BigInt)(nullifier),
		Spent:     a.store.HasNullifier(voteEventID, (*types.BigInt)(nullifier)),
	})
}
