package wire

import (
	"bytes"
	"fmt"
	"slices"
	"sync"

	"databinding/core/reconcile"
)

// OpKind distinguishes the operations of a batch.
type OpKind uint8

const (
	OpClear OpKind = iota + 1
	OpSet
)

// Op is one Clear or Set operation.
type Op[T any] struct {
	Kind  OpKind `json:"op" cbor:"1,keyasint"`
	Start int    `json:"start" cbor:"2,keyasint"`
	// Length is set for OpClear.
	Length int `json:"length,omitempty" cbor:"3,keyasint,omitempty"`
	// Entries is set for OpSet.
	Entries []reconcile.Entry[T] `json:"entries,omitempty" cbor:"4,keyasint,omitempty"`
}

// Batch is the set of operations closed by one commit.
type Batch[T any] struct {
	UpdateID uint64  `json:"update_id" cbor:"1,keyasint"`
	Ops      []Op[T] `json:"ops" cbor:"2,keyasint"`
}

// Ack is the client confirmation of an applied update.
type Ack struct {
	UpdateID uint64 `json:"update_id" cbor:"1,keyasint"`
}

// Failure is the payload of a MsgError frame.
type Failure struct {
	Status  int    `json:"status" cbor:"1,keyasint"`
	Message string `json:"error" cbor:"2,keyasint"`
}

// Buffer is a reconcile.Sink collecting committed batches until the transport
// drains them.
type Buffer[T any] struct {
	mu      sync.Mutex
	ops     []Op[T]
	batches []Batch[T]
}

// NewBuffer creates an empty buffer.
func NewBuffer[T any]() *Buffer[T] {
	return &Buffer[T]{}
}

// Clear implements reconcile.Sink.
func (b *Buffer[T]) Clear(start, length int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ops = append(b.ops, Op[T]{Kind: OpClear, Start: start, Length: length})
}

// Set implements reconcile.Sink.
func (b *Buffer[T]) Set(start int, entries []reconcile.Entry[T]) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ops = append(b.ops, Op[T]{Kind: OpSet, Start: start, Entries: slices.Clone(entries)})
}

// Commit implements reconcile.Sink.
func (b *Buffer[T]) Commit(updateID uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.batches = append(b.batches, Batch[T]{UpdateID: updateID, Ops: b.ops})
	b.ops = nil
}

// Drain returns the committed batches and forgets them.
func (b *Buffer[T]) Drain() []Batch[T] {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.batches
	b.batches = nil
	return out
}

// Len returns the number of committed batches waiting to be drained.
func (b *Buffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.batches)
}

// EncodeBatches writes one MsgBatch frame per batch, followed by a MsgCount
// frame when count is not nil.
func EncodeBatches[T any](batches []Batch[T], count *reconcile.CountChange) ([]byte, error) {
	var buf bytes.Buffer
	for _, b := range batches {
		frame, err := EncodeFrame(MsgBatch, b)
		if err != nil {
			return nil, fmt.Errorf("batch %d: %w", b.UpdateID, err)
		}
		buf.Write(frame)
	}
	if count != nil {
		frame, err := EncodeFrame(MsgCount, count)
		if err != nil {
			return nil, err
		}
		buf.Write(frame)
	}
	return buf.Bytes(), nil
}

// DecodeBatch decodes the payload of a MsgBatch frame.
func DecodeBatch[T any](payload []byte) (Batch[T], error) {
	var b Batch[T]
	err := Unmarshal(payload, &b)
	return b, err
}
