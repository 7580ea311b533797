package block

import "fmt"

// ResponseCode is the status code of the end of stream response sent to producers.
type ResponseCode uint8

const (
	StreamItemsUnknown ResponseCode = iota
	StreamItemsSuccess
	StreamItemsTimeout
	StreamItemsOutOfOrder
	StreamItemsBadStateProof
	StreamItemsInternalError
)

func (c ResponseCode) String() string {
	switch c {
	case StreamItemsUnknown:
		return "STREAM_ITEMS_UNKNOWN"
	case StreamItemsSuccess:
		return "STREAM_ITEMS_SUCCESS"
	case StreamItemsTimeout:
		return "STREAM_ITEMS_TIMEOUT"
	case StreamItemsOutOfOrder:
		return "STREAM_ITEMS_OUT_OF_ORDER"
	case StreamItemsBadStateProof:
		return "STREAM_ITEMS_BAD_STATE_PROOF"
	case StreamItemsInternalError:
		return "STREAM_ITEMS_INTERNAL_ERROR"
	default:
		return fmt.Sprintf("ResponseCode(%d)", uint8(c))
	}
}

type (
	// PublishResponse is sent to the producers, exactly one of the fields is set.
	PublishResponse struct {
		_           struct{} `cbor:",toarray"`
		Ack         *Acknowledgement
		EndOfStream *EndOfStream
	}

	Acknowledgement struct {
		_                  struct{} `cbor:",toarray"`
		BlockNumber        uint64
		BlockRootHash      []byte
		BlockAlreadyExists bool
	}

	// EndOfStream tells the producer to stop, BlockNumber is the last
	// acknowledged block or -1 when none has been acknowledged.
	EndOfStream struct {
		_           struct{} `cbor:",toarray"`
		Status      ResponseCode
		BlockNumber int64
	}
)

func (r *PublishResponse) String() string {
	switch {
	case r.Ack != nil:
		return fmt.Sprintf("ack block %d %X", r.Ack.BlockNumber, r.Ack.BlockRootHash)
	case r.EndOfStream != nil:
		return fmt.Sprintf("end of stream %s, last block %d", r.EndOfStream.Status, r.EndOfStream.BlockNumber)
	default:
		return "empty response"
	}
}

// PersistenceStatus is the outcome of writing a block to the store.
type PersistenceStatus uint8

const (
	PersistenceSuccess PersistenceStatus = iota
	PersistenceFailure
	PersistenceRevoked
)

func (s PersistenceStatus) String() string {
	switch s {
	case PersistenceSuccess:
		return "SUCCESS"
	case PersistenceFailure:
		return "FAILURE"
	case PersistenceRevoked:
		return "REVOKED"
	default:
		return fmt.Sprintf("PersistenceStatus(%d)", uint8(s))
	}
}

type PersistenceResult struct {
	BlockNumber uint64
	Status      PersistenceStatus
}
