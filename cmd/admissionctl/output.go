package main

import (
	"io"

	jsoniter "github.com/json-iterator/go"

	"github.com/AntonStoeckl/library-admission-go/admission"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	exitOK        = 0
	exitFailure   = 1
	exitRejection = 2
)

type errorOutput struct {
	Error     string `json:"error"`
	Reason    string `json:"reason"`
	Retryable bool   `json:"retryable"`
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	_, err = w.Write(append(data, '\n'))

	return err
}

// writeError prints err as JSON and returns the process exit code for it.
func writeError(w io.Writer, err error) int {
	_ = writeJSON(w, errorOutput{
		Error:     err.Error(),
		Reason:    admission.RejectionReason(err),
		Retryable: admission.IsRetryable(err),
	})

	if admission.IsBusinessRejection(err) {
		return exitRejection
	}

	return exitFailure
}
