package block

import (
	"errors"
	"fmt"
)

// ItemKind is the tag of the block item variant.
type ItemKind uint8

const (
	KindUnset ItemKind = iota
	KindBlockHeader
	KindEventHeader
	KindRoundHeader
	KindEventTransaction
	KindTransactionResult
	KindTransactionOutput
	KindStateChanges
	KindFilteredItemHash
	KindBlockProof
	KindRecordFile
)

var ErrWrongKind = errors.New("unexpected block item kind")

var kindNames = map[ItemKind]string{
	KindUnset:             "UNSET",
	KindBlockHeader:       "BLOCK_HEADER",
	KindEventHeader:       "EVENT_HEADER",
	KindRoundHeader:       "ROUND_HEADER",
	KindEventTransaction:  "EVENT_TRANSACTION",
	KindTransactionResult: "TRANSACTION_RESULT",
	KindTransactionOutput: "TRANSACTION_OUTPUT",
	KindStateChanges:      "STATE_CHANGES",
	KindFilteredItemHash:  "FILTERED_ITEM_HASH",
	KindBlockProof:        "BLOCK_PROOF",
	KindRecordFile:        "RECORD_FILE",
}

func (k ItemKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("ItemKind(%d)", uint8(k))
}

type (
	// BlockItem is a block item whose payload has not been parsed. Only header
	// and proof payloads are interpreted by the node.
	BlockItem struct {
		_    struct{} `cbor:",toarray"`
		Kind ItemKind
		Data []byte
	}

	BlockHeader struct {
		_                 struct{} `cbor:",toarray"`
		Number            uint64
		PreviousBlockHash []byte
		Timestamp         uint64 // unix milliseconds
		SoftwareVersion   string
	}

	BlockProof struct {
		_                         struct{} `cbor:",toarray"`
		Block                     uint64
		PreviousBlockRootHash     []byte
		StartOfBlockStateRootHash []byte
		BlockSignature            []byte
	}
)

func NewHeaderItem(h *BlockHeader) (*BlockItem, error) {
	data, err := Cbor.Marshal(h)
	if err != nil {
		return nil, fmt.Errorf("encoding block header: %w", err)
	}
	return &BlockItem{Kind: KindBlockHeader, Data: data}, nil
}

func NewProofItem(p *BlockProof) (*BlockItem, error) {
	data, err := Cbor.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encoding block proof: %w", err)
	}
	return &BlockItem{Kind: KindBlockProof, Data: data}, nil
}

func (i *BlockItem) IsHeader() bool {
	return i != nil && i.Kind == KindBlockHeader
}

func (i *BlockItem) IsProof() bool {
	return i != nil && i.Kind == KindBlockProof
}

// Header parses the payload of a block header item.
func (i *BlockItem) Header() (*BlockHeader, error) {
	if !i.IsHeader() {
		return nil, fmt.Errorf("%w: expected %s", ErrWrongKind, KindBlockHeader)
	}
	h := &BlockHeader{}
	if err := Cbor.Unmarshal(i.Data, h); err != nil {
		return nil, fmt.Errorf("decoding block header: %w", err)
	}
	return h, nil
}

// Proof parses the payload of a block proof item.
func (i *BlockItem) Proof() (*BlockProof, error) {
	if !i.IsProof() {
		return nil, fmt.Errorf("%w: expected %s", ErrWrongKind, KindBlockProof)
	}
	p := &BlockProof{}
	if err := Cbor.Unmarshal(i.Data, p); err != nil {
		return nil, fmt.Errorf("decoding block proof: %w", err)
	}
	return p, nil
}
