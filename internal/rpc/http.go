package rpc

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/blocknode-org/blocknode/internal/block"
)

// writeCBORResponse replies to the request with the given response and HTTP code.
func writeCBORResponse(w http.ResponseWriter, response any, statusCode int) {
	w.Header().Set(headerContentType, applicationCBOR)
	w.WriteHeader(statusCode)
	if err := block.Cbor.Encoder(w).Encode(response); err != nil {
		log.Warning("failed to write CBOR response: %v", err)
	}
}

// writeCBORError replies to the request with the specified error message and HTTP code.
// It does not otherwise end the request; the caller should ensure no further
// writes are done to w.
func writeCBORError(w http.ResponseWriter, e error, code int) {
	w.Header().Set(headerContentType, applicationCBOR)
	w.WriteHeader(code)
	if err := block.Cbor.Encoder(w).Encode(ErrorResponse{Err: fmt.Sprintf("%v", e)}); err != nil {
		log.Warning("failed to write CBOR error response: %v", err)
	}
}

func writeJSONResponse(w http.ResponseWriter, response any) {
	w.Header().Set(headerContentType, applicationJson)
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(response); err != nil {
		log.Warning("failed to write JSON response: %v", err)
	}
}

type ErrorResponse struct {
	_   struct{} `cbor:",toarray"`
	Err string
}
