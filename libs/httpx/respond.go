package httpx

import (
	"encoding/json"
	"net/http"
)

// ErrorObject is the wire shape of a single error in the response envelope.
type ErrorObject struct {
	Status int    `json:"status"`
	Code   string `json:"code"`
	Detail string `json:"detail"`
}

type envelopeMeta struct {
	RequestID string `json:"request_id,omitempty"`
}

// envelope is the {data, errors, meta} convention shared by every endpoint.
// errors is null on success; data is null on failure.
type envelope struct {
	Data   any           `json:"data"`
	Errors []ErrorObject `json:"errors"`
	Meta   envelopeMeta  `json:"meta"`
}

func WriteData(w http.ResponseWriter, r *http.Request, status int, data any) {
	write(w, r, status, envelope{Data: data})
}

// WriteRawData emits pre-encoded JSON as the data member. Used for idempotent
// replays, where the stored payload must be returned as-is.
func WriteRawData(w http.ResponseWriter, r *http.Request, status int, data []byte) {
	write(w, r, status, envelope{Data: json.RawMessage(data)})
}

func WriteError(w http.ResponseWriter, r *http.Request, status int, code, detail string) {
	write(w, r, status, envelope{
		Errors: []ErrorObject{{Status: status, Code: code, Detail: detail}},
	})
}

// WriteErrorWithData emits an error envelope that still carries a data
// member, for failures where the caller needs current state to reconcile
// (e.g. a version conflict reporting the stored version).
func WriteErrorWithData(w http.ResponseWriter, r *http.Request, status int, code, detail string, data any) {
	write(w, r, status, envelope{
		Data:   data,
		Errors: []ErrorObject{{Status: status, Code: code, Detail: detail}},
	})
}

func write(w http.ResponseWriter, r *http.Request, status int, env envelope) {
	env.Meta.RequestID = RequestIDFromContext(r.Context())
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}
