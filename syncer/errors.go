package syncer

import (
	"strconv"

	"github.com/Iwinswap/iwinswap-registry-sync/protocols/registry"
)

// FetchError reports that the pool snapshot could not be fetched or decoded.
// It is the only error that aborts a run.
type FetchError struct {
	Err error
}

func (e *FetchError) Error() string {
	return "fetch pool snapshot: " + e.Err.Error()
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// SubmissionError reports a mutation that could not be encoded, signed or
// handed to the ledger. It is local to that mutation.
type SubmissionError struct {
	Op    string // "encode", "sign" or "submit"
	Kind  registry.MutationKind
	Nonce uint64 // only meaningful for Op "submit"
	Err   error
}

func (e *SubmissionError) Error() string {
	msg := e.Op + " " + e.Kind.String()
	if e.Op == "submit" {
		msg += " (nonce " + strconv.FormatUint(e.Nonce, 10) + ")"
	}
	return msg + ": " + e.Err.Error()
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}
