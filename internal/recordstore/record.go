package recordstore

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/corknet/cork-node/pkg/identity"
	"github.com/corknet/cork-node/pkg/reference"
)

// Record is one immutable, author-signed node in a revision chain.
//
// Original is the reference of the chain's first record; Previous is the
// record this one supersedes. Both are zero on a chain root: a record cannot
// contain its own content hash, so roots carry empty refs and resolvers
// substitute the root's own reference. New fields must be additive; old
// readers ignore what they do not know.
type Record struct {
	Ref       reference.Reference // content address, computed on store/fetch
	Kind      string
	Original  reference.Reference
	Previous  reference.Reference
	Body      json.RawMessage
	Author    identity.PublicKey
	CreatedAt int64 // unix milliseconds
	Signature identity.Signature
}

type wireRecord struct {
	Kind      string          `json:"kind"`
	Original  string          `json:"original,omitempty"`
	Previous  string          `json:"previous,omitempty"`
	Body      json.RawMessage `json:"body"`
	Author    string          `json:"author"`
	CreatedAt int64           `json:"created_at"`
	Signature string          `json:"signature,omitempty"`
}

// New builds and signs a record.
func New(kind string, original, previous reference.Reference, body json.RawMessage, signer identity.Signer, now time.Time) (*Record, error) {
	rec := &Record{
		Kind:      kind,
		Original:  original,
		Previous:  previous,
		Body:      body,
		Author:    signer.PublicKey(),
		CreatedAt: now.UnixMilli(),
	}

	payload, err := rec.signingBytes()
	if err != nil {
		return nil, err
	}

	sig, err := signer.Sign(payload)
	if err != nil {
		return nil, fmt.Errorf("sign record: %w", err)
	}
	rec.Signature = sig

	encoded, err := rec.Encode()
	if err != nil {
		return nil, err
	}
	rec.Ref = reference.Compute(encoded)
	return rec, nil
}

func (r *Record) wire(includeSignature bool) wireRecord {
	w := wireRecord{
		Kind:      r.Kind,
		Body:      r.Body,
		Author:    identity.EncodePublicKey(r.Author),
		CreatedAt: r.CreatedAt,
	}
	if !r.Original.IsZero() {
		w.Original = reference.Hex(r.Original)
	}
	if !r.Previous.IsZero() {
		w.Previous = reference.Hex(r.Previous)
	}
	if includeSignature {
		w.Signature = identity.EncodeSignature(r.Signature)
	}
	return w
}

func (r *Record) signingBytes() ([]byte, error) {
	data, err := json.Marshal(r.wire(false))
	if err != nil {
		return nil, fmt.Errorf("encode record for signing: %w", err)
	}
	return data, nil
}

// Encode returns the canonical wire form of the record.
func (r *Record) Encode() ([]byte, error) {
	data, err := json.Marshal(r.wire(true))
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return data, nil
}

// Decode parses a record from its wire form. The reference is recomputed from
// the exact bytes given.
func Decode(data []byte) (*Record, error) {
	var w wireRecord
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}

	rec := &Record{
		Ref:       reference.Compute(data),
		Kind:      w.Kind,
		Body:      w.Body,
		CreatedAt: w.CreatedAt,
	}

	if w.Original != "" {
		orig, err := reference.FromHex(w.Original)
		if err != nil {
			return nil, fmt.Errorf("decode original ref: %w", err)
		}
		rec.Original = orig
	}
	if w.Previous != "" {
		prev, err := reference.FromHex(w.Previous)
		if err != nil {
			return nil, fmt.Errorf("decode previous ref: %w", err)
		}
		rec.Previous = prev
	}

	author, err := identity.DecodePublicKey(w.Author)
	if err != nil {
		return nil, fmt.Errorf("decode author: %w", err)
	}
	rec.Author = author

	if w.Signature != "" {
		sig, err := identity.DecodeSignature(w.Signature)
		if err != nil {
			return nil, fmt.Errorf("decode signature: %w", err)
		}
		rec.Signature = sig
	}

	return rec, nil
}

// IsRoot reports whether this record starts a chain.
func (r *Record) IsRoot() bool {
	return r.Original.IsZero()
}

// ChainRoot returns the reference identifying the record's chain: Original
// for non-root records, the record's own reference for roots.
func (r *Record) ChainRoot() reference.Reference {
	if r.IsRoot() {
		return r.Ref
	}
	return r.Original
}

// Verify checks that the signature is valid for the record's author.
func (r *Record) Verify() error {
	payload, err := r.signingBytes()
	if err != nil {
		return err
	}
	if !identity.Verify(r.Author, payload, r.Signature) {
		return ErrBadSignature
	}
	return nil
}

// Validate performs structural checks before storage.
func (r *Record) Validate() error {
	if r.Kind == "" {
		return fmt.Errorf("%w: empty kind", ErrInvalidRecord)
	}
	if r.CreatedAt <= 0 {
		return fmt.Errorf("%w: missing created_at", ErrInvalidRecord)
	}
	if len(r.Author.Bytes) == 0 {
		return fmt.Errorf("%w: missing author", ErrInvalidRecord)
	}
	if r.Original.IsZero() != r.Previous.IsZero() {
		return fmt.Errorf("%w: original and previous must both be set or both empty", ErrInvalidRecord)
	}
	return r.Verify()
}
