package block

import (
	"errors"
	"fmt"
)

var (
	ErrBlockIsNil       = errors.New("block is nil")
	ErrMissingHeader    = errors.New("first item of the block is not a block header")
	ErrMissingProof     = errors.New("last item of the block is not a block proof")
	ErrNumberMismatch   = errors.New("block proof and header numbers differ")
	ErrUnexpectedHeader = errors.New("block header in the middle of the block")
)

// Block is the complete list of items from the header to the proof.
type Block struct {
	_     struct{} `cbor:",toarray"`
	Items []*BlockItem
}

func (b *Block) Header() (*BlockHeader, error) {
	if b == nil || len(b.Items) == 0 {
		return nil, ErrMissingHeader
	}
	if !b.Items[0].IsHeader() {
		return nil, ErrMissingHeader
	}
	return b.Items[0].Header()
}

func (b *Block) Proof() (*BlockProof, error) {
	if b == nil || len(b.Items) == 0 {
		return nil, ErrMissingProof
	}
	last := b.Items[len(b.Items)-1]
	if !last.IsProof() {
		return nil, ErrMissingProof
	}
	return last.Proof()
}

// Number returns the block number from the header.
func (b *Block) Number() (uint64, error) {
	h, err := b.Header()
	if err != nil {
		return 0, err
	}
	return h.Number, nil
}

// IsValid checks the framing of the block, not the hashes.
func (b *Block) IsValid() error {
	if b == nil {
		return ErrBlockIsNil
	}
	h, err := b.Header()
	if err != nil {
		return err
	}
	p, err := b.Proof()
	if err != nil {
		return err
	}
	if h.Number != p.Block {
		return fmt.Errorf("%w: header %d, proof %d", ErrNumberMismatch, h.Number, p.Block)
	}
	for i, item := range b.Items[1:] {
		if item.IsHeader() {
			return fmt.Errorf("%w: item %d", ErrUnexpectedHeader, i+1)
		}
	}
	return nil
}
