package verification

// SignatureVerifier checks the signature of the block hash.
type SignatureVerifier interface {
	VerifySignature(hash, signature []byte) bool
}

// DummySignatureVerifier accepts every signature.
type DummySignatureVerifier struct{}

func (DummySignatureVerifier) VerifySignature(_, _ []byte) bool {
	return true
}
