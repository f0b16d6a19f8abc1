package vault

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sort"

	"github.com/louib/keepass-merge/internal/crypto"
)

// FactorKind identifies the variant of a credential factor
type FactorKind int

const (
	KindPassword FactorKind = iota
	KindKeyfile
	KindChallengeResponse
)

func (k FactorKind) String() string {
	switch k {
	case KindPassword:
		return "password"
	case KindKeyfile:
		return "keyfile"
	case KindChallengeResponse:
		return "challenge-response"
	default:
		return fmt.Sprintf("FactorKind(%d)", int(k))
	}
}

// Factor is one input to a database key. The set of variants is closed:
// Password, Keyfile and ChallengeResponse.
type Factor interface {
	Kind() FactorKind
	contribution(ctx context.Context, challenge []byte) ([]byte, error)
	destroy()
}

// Password is a typed secret
type Password struct {
	Secret []byte
}

func (Password) Kind() FactorKind { return KindPassword }

func (p Password) contribution(context.Context, []byte) ([]byte, error) {
	h := sha256.Sum256(p.Secret)
	return h[:], nil
}

func (p Password) destroy() { crypto.ClearBytes(p.Secret) }

// Keyfile is the raw content of a key file
type Keyfile struct {
	Data []byte
}

func (Keyfile) Kind() FactorKind { return KindKeyfile }

func (k Keyfile) contribution(context.Context, []byte) ([]byte, error) {
	h := sha256.Sum256(k.Data)
	return h[:], nil
}

func (k Keyfile) destroy() { crypto.ClearBytes(k.Data) }

// Responder answers a challenge on a hardware slot. Implementations block
// until the device has been touched.
type Responder interface {
	ChallengeResponse(ctx context.Context, slot string, challenge []byte) ([]byte, error)
}

// ChallengeResponse binds a key to a hardware device and slot. The challenge
// is the database salt, so the response differs per database.
type ChallengeResponse struct {
	Serial *uint32
	Slot   string
	Device Responder
}

func (ChallengeResponse) Kind() FactorKind { return KindChallengeResponse }

func (c ChallengeResponse) contribution(ctx context.Context, challenge []byte) ([]byte, error) {
	if c.Device == nil {
		return nil, fmt.Errorf("challenge-response slot %s: no device", c.Slot)
	}
	resp, err := c.Device.ChallengeResponse(ctx, c.Slot, challenge)
	if err != nil {
		return nil, fmt.Errorf("challenge-response slot %s: %w", c.Slot, err)
	}
	defer crypto.ClearBytes(resp)
	h := sha256.Sum256(resp)
	return h[:], nil
}

func (ChallengeResponse) destroy() {}

// Key is a set of credential factors, at most one per kind
type Key struct {
	factors []Factor
}

// NewKey builds a key from factors
func NewKey(factors ...Factor) (*Key, error) {
	k := &Key{}
	for _, f := range factors {
		if err := k.Add(f); err != nil {
			return nil, err
		}
	}
	return k, nil
}

// Add adds a factor, rejecting a second factor of the same kind
func (k *Key) Add(f Factor) error {
	if k.Has(f.Kind()) {
		return fmt.Errorf("%w: %s", ErrDuplicateFactor, f.Kind())
	}
	k.factors = append(k.factors, f)
	sort.SliceStable(k.factors, func(i, j int) bool {
		return k.factors[i].Kind() < k.factors[j].Kind()
	})
	return nil
}

// Has reports whether the key holds a factor of the given kind
func (k *Key) Has(kind FactorKind) bool {
	for _, f := range k.factors {
		if f.Kind() == kind {
			return true
		}
	}
	return false
}

// Len returns the number of factors
func (k *Key) Len() int {
	if k == nil {
		return 0
	}
	return len(k.factors)
}

// Kinds lists the factor kinds in composition order
func (k *Key) Kinds() []FactorKind {
	kinds := make([]FactorKind, 0, len(k.factors))
	for _, f := range k.factors {
		kinds = append(kinds, f.Kind())
	}
	return kinds
}

// Destroy zeroes the secret material held by the key
func (k *Key) Destroy() {
	if k == nil {
		return
	}
	for _, f := range k.factors {
		f.destroy()
	}
}

// composite hashes the per-factor contributions in kind order, each prefixed
// with its kind so that equal bytes from different factors differ
func (k *Key) composite(ctx context.Context, challenge []byte) ([]byte, error) {
	if k.Len() == 0 {
		return nil, ErrEmptyKey
	}

	h := sha256.New()
	for _, f := range k.factors {
		part, err := f.contribution(ctx, challenge)
		if err != nil {
			return nil, err
		}
		h.Write([]byte{byte(f.Kind())})
		h.Write(part)
		crypto.ClearBytes(part)
	}
	return h.Sum(nil), nil
}
