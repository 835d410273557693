package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/Smart-Charging/scn-node/relay"
	"github.com/Smart-Charging/scn-node/scpi"
)

// writeJSON writes v as a JSON body with the given transport status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeOK writes a success envelope, marshaling data into the response's
// data field when non-nil.
func writeOK(w http.ResponseWriter, data any) {
	response := scpi.Response{
		StatusCode: scpi.StatusSuccess,
		Timestamp:  scpi.Timestamp(),
	}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			writeError(w, err)
			return
		}
		response.Data = raw
	}
	writeJSON(w, http.StatusOK, response)
}

// writeError maps an error to its transport status and protocol envelope.
// Untyped errors are reported as generic server failures.
func writeError(w http.ResponseWriter, err error) {
	scpiErr := scpi.AsError(err)
	writeJSON(w, scpiErr.HTTPStatus, scpi.Response{
		StatusCode:    scpiErr.Status,
		StatusMessage: scpiErr.Message,
		Timestamp:     scpi.Timestamp(),
	})
}

// writeResult writes a relay result: the forwarded response's status, the
// headers the relay selected, and the protocol body.
func writeResult(w http.ResponseWriter, result *relay.Result) {
	for key, value := range result.Headers {
		w.Header().Set(key, value)
	}
	writeJSON(w, result.HTTPStatus, result.Body)
}

// requiredHeaders are checked in order so a request missing several reports
// the same one every time.
var requiredHeaders = []string{
	"Authorization",
	"X-Request-ID",
	"X-Correlation-ID",
	"SCPI-from-country-code",
	"SCPI-from-party-id",
	"SCPI-to-country-code",
	"SCPI-to-party-id",
}

// envelopeHeaders parses the SCPI routing header block off an incoming
// module request.
func envelopeHeaders(r *http.Request) (scpi.Headers, error) {
	for _, name := range requiredHeaders {
		if r.Header.Get(name) == "" {
			return scpi.Headers{}, scpi.ErrInvalidParams("Missing required header: %s", name)
		}
	}

	return scpi.Headers{
		Authorization: r.Header.Get("Authorization"),
		Signature:     r.Header.Get("SCN-Signature"),
		RequestID:     r.Header.Get("X-Request-ID"),
		CorrelationID: r.Header.Get("X-Correlation-ID"),
		Sender: scpi.BasicRole{
			ID:      r.Header.Get("SCPI-from-party-id"),
			Country: r.Header.Get("SCPI-from-country-code"),
		},
		Receiver: scpi.BasicRole{
			ID:      r.Header.Get("SCPI-to-party-id"),
			Country: r.Header.Get("SCPI-to-country-code"),
		},
	}, nil
}

// readBody consumes the request body, rejecting payloads that are not valid
// JSON. An empty body yields nil.
func readBody(r *http.Request) (json.RawMessage, error) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, scpi.ErrInvalidParams("Could not read request body: %v", err)
	}
	if len(raw) == 0 {
		return nil, nil
	}
	if !json.Valid(raw) {
		return nil, scpi.ErrInvalidParams("Request body is not valid JSON")
	}
	return raw, nil
}
