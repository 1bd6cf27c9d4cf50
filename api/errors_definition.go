//nolint:lll
package api

import (
	"fmt"
	"net/http"
)

// The custom Error type satisfies the error interface.
// Error() returns a human-readable description of the error.
//
// Error codes in the 40001-49999 range are the client's fault,
// and they return HTTP Status 400 or 404, whatever is most appropriate.
//
// Error codes 50001-59999 are the server's fault
// and they return HTTP Status 500 or 503.
//
// NEVER change any of the current error codes, only append new errors after the current last 4XXX or 5XXX.
// If you notice there's a gap, DON'T fill it in, that code was used in the past and shouldn't be reused.
var (
	ErrResourceNotFound     = Error{Code: 40001, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("resource not found")}
	ErrMalformedBody        = Error{Code: 40002, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("malformed JSON body")}
	ErrMalformedVoteEventID = Error{Code: 40003, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("malformed vote event ID")}
	ErrVoteEventNotFound    = Error{Code: 40004, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("vote event not found")}
	ErrVoteEventExists      = Error{Code: 40005, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("vote event already exists")}
	ErrCensusNotFound       = Error{Code: 40006, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("census not found")}
	ErrCensusExists         = Error{Code: 40007, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("census already exists")}
	ErrInvalidSubmission    = Error{Code: 40008, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid vote submission")}
	ErrNullifierSpent       = Error{Code: 40009, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("nullifier already spent")}
	ErrVoteWindowClosed     = Error{Code: 40010, HTTPstatus: http.StatusForbidden, Err: fmt.Errorf("submission outside the ballot window")}
	ErrVoteEventFinalized   = Error{Code: 40011, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("vote event already finalized")}
	ErrVoteEventNotClosed   = Error{Code: 40012, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("vote event is not finalized")}
	ErrQuorumNotReached     = Error{Code: 40013, HTTPstatus: http.StatusPreconditionFailed, Err: fmt.Errorf("decryption quorum not reached")}
	ErrDuplicateTrustee     = Error{Code: 40014, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("trustee already submitted shares")}
	ErrMalformedNullifier   = Error{Code: 40015, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("malformed nullifier")}

	ErrMarshalingServerJSONFailed = Error{Code: 50001, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("marshaling (server-side) JSON failed")}
	ErrGenericInternalServerError = Error{Code: 50002, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("internal server error")}
)
