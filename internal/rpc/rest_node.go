package rpc

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/blocknode-org/blocknode/internal/block"
	"github.com/blocknode-org/blocknode/internal/mediator"
	"github.com/blocknode-org/blocknode/internal/mt"
	"github.com/blocknode-org/blocknode/internal/notifier"
	"github.com/blocknode-org/blocknode/internal/persistence"
	"github.com/gorilla/mux"
)

const (
	pathItems      = "/items"
	pathBlock      = "/blocks/{blockNumber}"
	pathBlockProof = "/blocks/{blockNumber}/proof/{leafHash}"
	pathSubscribe  = "/subscribe"
	pathResponses  = "/responses"
	pathStatus     = "/status"
)

type (
	BlockNode interface {
		PublishItems(ctx context.Context, items []*block.BlockItem) error
		GetBlock(blockNumber uint64) (*block.Block, error)
		GetInclusionProof(blockNumber uint64, leafHash []byte) ([]*mt.PathItem, error)
		SubscribeLive() (*mediator.Subscription, func(), error)
		SubscribeResponses() (*notifier.Subscription, func(), error)
		Status() *StatusResponse
	}

	StatusResponse struct {
		Running               bool   `json:"running"`
		StopReason            string `json:"stop_reason,omitempty"`
		LastAcknowledgedBlock int64  `json:"last_acknowledged_block"`
		LatestAckedHash       string `json:"latest_acked_hash,omitempty"` // hex encoded
		LiveSubscribers       int    `json:"live_subscribers"`
		ProducerSubscribers   int    `json:"producer_subscribers"`
	}
)

func NodeEndpoints(node BlockNode) RegistrarFunc {
	return func(r *mux.Router) {
		// publish block items
		r.HandleFunc(pathItems, publishItems(node)).Methods(http.MethodPost, http.MethodOptions)

		// stored block and inclusion proof of its item
		r.HandleFunc(pathBlock, getBlock(node)).Methods(http.MethodGet, http.MethodOptions)
		r.HandleFunc(pathBlockProof, getInclusionProof(node)).Methods(http.MethodGet, http.MethodOptions)

		// CBOR sequence streams
		r.HandleFunc(pathSubscribe, subscribeLive(node)).Methods(http.MethodGet)
		r.HandleFunc(pathResponses, subscribeResponses(node)).Methods(http.MethodGet)

		r.HandleFunc(pathStatus, getStatus(node)).Methods(http.MethodGet, http.MethodOptions)
	}
}

func publishItems(node BlockNode) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeCBORError(w, fmt.Errorf("reading request body failed: %w", err), http.StatusBadRequest)
			return
		}
		var items []*block.BlockItem
		if err := block.Cbor.Unmarshal(body, &items); err != nil {
			writeCBORError(w, fmt.Errorf("unable to decode request body as block items: %w", err), http.StatusBadRequest)
			return
		}
		if len(items) == 0 {
			writeCBORError(w, errors.New("no block items"), http.StatusBadRequest)
			return
		}
		// a client going away must not cut the batch off halfway through the subscribers
		if err := node.PublishItems(context.WithoutCancel(r.Context()), items); err != nil {
			code := http.StatusInternalServerError
			if errors.Is(err, mediator.ErrStopped) {
				code = http.StatusServiceUnavailable
			}
			writeCBORError(w, err, code)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}
}

func getBlock(node BlockNode) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, ok := blockNumberVar(w, r)
		if !ok {
			return
		}
		b, err := node.GetBlock(n)
		if err != nil {
			writeBlockError(w, err)
			return
		}
		writeCBORResponse(w, b, http.StatusOK)
	}
}

func getInclusionProof(node BlockNode) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, ok := blockNumberVar(w, r)
		if !ok {
			return
		}
		leafHash, err := hex.DecodeString(mux.Vars(r)["leafHash"])
		if err != nil {
			writeCBORError(w, fmt.Errorf("invalid leaf hash: %w", err), http.StatusBadRequest)
			return
		}
		proof, err := node.GetInclusionProof(n, leafHash)
		if err != nil {
			writeBlockError(w, err)
			return
		}
		writeCBORResponse(w, proof, http.StatusOK)
	}
}

func subscribeLive(node BlockNode) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub, cancel, err := node.SubscribeLive()
		if err != nil {
			writeCBORError(w, err, http.StatusServiceUnavailable)
			return
		}
		defer cancel()
		streamEvents(w, r, sub.C(), sub.Done(), func(ev *mediator.Event) any {
			if ev.EndOfStream != nil {
				return ev.EndOfStream
			}
			return ev.Items
		})
	}
}

func subscribeResponses(node BlockNode) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub, cancel, err := node.SubscribeResponses()
		if err != nil {
			writeCBORError(w, err, http.StatusServiceUnavailable)
			return
		}
		defer cancel()
		streamEvents(w, r, sub.C(), sub.Done(), func(resp *block.PublishResponse) any { return resp })
	}
}

/*
streamEvents writes every event as a CBOR data item and flushes it. Returns when
the client goes away or the subscription ends.
*/
func streamEvents[T any](w http.ResponseWriter, r *http.Request, events <-chan T, done <-chan struct{}, msg func(T) any) {
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		log.Debug("streaming response without lifting write deadline: %v", err)
	}
	w.Header().Set(headerContentType, applicationCBOR)
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		log.Warning("flushing stream headers: %v", err)
		return
	}
	enc := block.Cbor.Encoder(w)
	for {
		select {
		case <-r.Context().Done():
			return
		case <-done:
			return
		case ev := <-events:
			if err := enc.Encode(msg(ev)); err != nil {
				log.Debug("stream client gone: %v", err)
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

func getStatus(node BlockNode) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSONResponse(w, node.Status())
	}
}

func blockNumberVar(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	s := mux.Vars(r)["blockNumber"]
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		writeCBORError(w, fmt.Errorf("invalid block number: %s", s), http.StatusBadRequest)
		return 0, false
	}
	return n, true
}

func writeBlockError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, persistence.ErrBlockNotFound), errors.Is(err, mt.ErrLeafNotFound):
		writeCBORError(w, err, http.StatusNotFound)
	default:
		writeCBORError(w, err, http.StatusInternalServerError)
	}
}
