package jwt

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"math/big"
)

// algHash maps signing algorithms to their hash functions. EdDSA hashes
// internally and is handled separately.
var algHash = map[string]crypto.Hash{
	AlgRS256: crypto.SHA256,
	AlgRS384: crypto.SHA384,
	AlgRS512: crypto.SHA512,
	AlgPS256: crypto.SHA256,
	AlgPS384: crypto.SHA384,
	AlgPS512: crypto.SHA512,
	AlgES256: crypto.SHA256,
	AlgES384: crypto.SHA384,
	AlgES512: crypto.SHA512,
}

// verifySignature checks the signature over signingInput for the given
// algorithm and public key.
func verifySignature(alg string, key crypto.PublicKey, signingInput, signature []byte) error {
	switch alg {
	case AlgRS256, AlgRS384, AlgRS512:
		return verifyRSA(key, signingInput, signature, algHash[alg])
	case AlgPS256, AlgPS384, AlgPS512:
		return verifyRSAPSS(key, signingInput, signature, algHash[alg])
	case AlgES256, AlgES384, AlgES512:
		return verifyECDSA(key, signingInput, signature, algHash[alg])
	case AlgEdDSA:
		return verifyEdDSA(key, signingInput, signature)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, alg)
	}
}

func verifyRSA(key crypto.PublicKey, input, sig []byte, hash crypto.Hash) error {
	rsaKey, ok := key.(*rsa.PublicKey)
	if !ok {
		return fmt.Errorf("%w: expected RSA public key, got %T", ErrInvalidSignature, key)
	}
	digest := hashInput(input, hash)
	if err := rsa.VerifyPKCS1v15(rsaKey, hash, digest, sig); err != nil {
		return ErrInvalidSignature
	}
	return nil
}

func verifyRSAPSS(key crypto.PublicKey, input, sig []byte, hash crypto.Hash) error {
	rsaKey, ok := key.(*rsa.PublicKey)
	if !ok {
		return fmt.Errorf("%w: expected RSA public key, got %T", ErrInvalidSignature, key)
	}
	digest := hashInput(input, hash)
	opts := &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash, Hash: hash}
	if err := rsa.VerifyPSS(rsaKey, hash, digest, sig, opts); err != nil {
		return ErrInvalidSignature
	}
	return nil
}

// verifyECDSA checks an ECDSA signature in the JOSE raw r||s encoding.
func verifyECDSA(key crypto.PublicKey, input, sig []byte, hash crypto.Hash) error {
	ecKey, ok := key.(*ecdsa.PublicKey)
	if !ok {
		return fmt.Errorf("%w: expected ECDSA public key, got %T", ErrInvalidSignature, key)
	}
	keySize := (ecKey.Curve.Params().BitSize + 7) / 8
	if len(sig) != 2*keySize {
		return ErrInvalidSignature
	}
	r := new(big.Int).SetBytes(sig[:keySize])
	s := new(big.Int).SetBytes(sig[keySize:])
	digest := hashInput(input, hash)
	if !ecdsa.Verify(ecKey, digest, r, s) {
		return ErrInvalidSignature
	}
	return nil
}

func verifyEdDSA(key crypto.PublicKey, input, sig []byte) error {
	edKey, ok := key.(ed25519.PublicKey)
	if !ok {
		return fmt.Errorf("%w: expected Ed25519 public key, got %T", ErrInvalidSignature, key)
	}
	if !ed25519.Verify(edKey, input, sig) {
		return ErrInvalidSignature
	}
	return nil
}

// signInput produces a signature over signingInput with the given private key.
func signInput(alg string, key crypto.PrivateKey, signingInput []byte) ([]byte, error) {
	switch alg {
	case AlgRS256, AlgRS384, AlgRS512:
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("algorithm %s requires an RSA private key, got %T", alg, key)
		}
		hash := algHash[alg]
		return rsa.SignPKCS1v15(rand.Reader, rsaKey, hash, hashInput(signingInput, hash))
	case AlgPS256, AlgPS384, AlgPS512:
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("algorithm %s requires an RSA private key, got %T", alg, key)
		}
		hash := algHash[alg]
		opts := &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash, Hash: hash}
		return rsa.SignPSS(rand.Reader, rsaKey, hash, hashInput(signingInput, hash), opts)
	case AlgES256, AlgES384, AlgES512:
		ecKey, ok := key.(*ecdsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("algorithm %s requires an ECDSA private key, got %T", alg, key)
		}
		hash := algHash[alg]
		r, s, err := ecdsa.Sign(rand.Reader, ecKey, hashInput(signingInput, hash))
		if err != nil {
			return nil, err
		}
		keySize := (ecKey.Curve.Params().BitSize + 7) / 8
		sig := make([]byte, 2*keySize)
		r.FillBytes(sig[:keySize])
		s.FillBytes(sig[keySize:])
		return sig, nil
	case AlgEdDSA:
		edKey, ok := key.(ed25519.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("algorithm %s requires an Ed25519 private key, got %T", alg, key)
		}
		return ed25519.Sign(edKey, signingInput), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, alg)
	}
}

func hashInput(input []byte, hash crypto.Hash) []byte {
	h := hash.New()
	h.Write(input)
	return h.Sum(nil)
}
