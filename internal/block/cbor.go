package block

import (
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

type cborHandler struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

// Cbor encodes values deterministically, the encoding of a block item is the
// input of its leaf hash.
var Cbor = newCborHandler()

func newCborHandler() cborHandler {
	enc, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Errorf("creating cbor encoder: %w", err))
	}
	dec, err := cbor.DecOptions{MaxArrayElements: 1 << 24}.DecMode()
	if err != nil {
		panic(fmt.Errorf("creating cbor decoder: %w", err))
	}
	return cborHandler{enc: enc, dec: dec}
}

func (c cborHandler) Marshal(v any) ([]byte, error) {
	return c.enc.Marshal(v)
}

func (c cborHandler) Unmarshal(data []byte, v any) error {
	return c.dec.Unmarshal(data, v)
}

func (c cborHandler) Encoder(w io.Writer) *cbor.Encoder {
	return c.enc.NewEncoder(w)
}

func (c cborHandler) Decoder(r io.Reader) *cbor.Decoder {
	return c.dec.NewDecoder(r)
}
