// Copyright 2024 The Armored Witness Bootloader authors. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package testonly provides firmware transparency fixtures for tests: note
// signing keys and an in-memory RFC 6962 log issuing signed checkpoints and
// inclusion proofs.
package testonly

import (
	"crypto/rand"
	"testing"

	"github.com/transparency-dev/formats/log"
	"github.com/transparency-dev/merkle/rfc6962"
	"golang.org/x/mod/sumdb/note"
)

// Key represents a note signing key pair.
type Key struct {
	Signer   note.Signer
	Verifier note.Verifier
	// VerifierKey is the encoded verifier key.
	VerifierKey string
}

// NewKey generates a note signing key pair.
func NewKey(t testing.TB, name string) *Key {
	t.Helper()

	skey, vkey, err := note.GenerateKey(rand.Reader, name)

	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}

	s, err := note.NewSigner(skey)

	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}

	v, err := note.NewVerifier(vkey)

	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}

	return &Key{
		Signer:      s,
		Verifier:    v,
		VerifierKey: vkey,
	}
}

// Sign returns text signed in note format, text must end with a newline.
func (k *Key) Sign(t testing.TB, text []byte) []byte {
	t.Helper()

	msg, err := note.Sign(&note.Note{Text: string(text)}, k.Signer)

	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	return msg
}

// SignAll returns text signed in note format by every key.
func SignAll(t testing.TB, text []byte, keys ...*Key) []byte {
	t.Helper()

	signers := make([]note.Signer, 0, len(keys))

	for _, k := range keys {
		signers = append(signers, k.Signer)
	}

	msg, err := note.Sign(&note.Note{Text: string(text)}, signers...)

	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	return msg
}

// Log represents an in-memory firmware transparency log.
type Log struct {
	Origin string
	Key    *Key

	leaves [][]byte
}

// NewLog returns an empty log with a freshly generated signing key.
func NewLog(t testing.TB, origin string) *Log {
	return &Log{
		Origin: origin,
		Key:    NewKey(t, origin),
	}
}

// Append adds a leaf to the log and returns its index.
func (l *Log) Append(leaf []byte) uint64 {
	l.leaves = append(l.leaves, rfc6962.DefaultHasher.HashLeaf(leaf))
	return uint64(len(l.leaves) - 1)
}

// Size returns the number of leaves in the log.
func (l *Log) Size() uint64 {
	return uint64(len(l.leaves))
}

// Checkpoint returns the signed checkpoint for the current log size.
func (l *Log) Checkpoint(t testing.TB) []byte {
	t.Helper()

	cp := log.Checkpoint{
		Origin: l.Origin,
		Size:   l.Size(),
		Hash:   root(l.leaves),
	}

	return l.Key.Sign(t, cp.Marshal())
}

// InclusionProof returns the proof of inclusion of the leaf at index in the
// current log.
func (l *Log) InclusionProof(index uint64) [][]byte {
	return path(int(index), l.leaves)
}

// root returns the RFC 6962 Merkle tree hash of a list of leaf hashes.
func root(leaves [][]byte) []byte {
	switch len(leaves) {
	case 0:
		return rfc6962.DefaultHasher.EmptyRoot()
	case 1:
		return leaves[0]
	}

	k := split(len(leaves))

	return rfc6962.DefaultHasher.HashChildren(root(leaves[:k]), root(leaves[k:]))
}

// path returns the RFC 6962 audit path for leaf m.
func path(m int, leaves [][]byte) [][]byte {
	if len(leaves) <= 1 {
		return nil
	}

	k := split(len(leaves))

	if m < k {
		return append(path(m, leaves[:k]), root(leaves[k:]))
	}

	return append(path(m-k, leaves[k:]), root(leaves[:k]))
}

// split returns the largest power of two smaller than n.
func split(n int) int {
	k := 1

	for k<<1 < n {
		k <<= 1
	}

	return k
}
