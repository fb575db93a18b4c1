package system

import (
	"bytes"
	"sync"
)

// Stream identifies a captured output stream.
type Stream int

const (
	Stdout Stream = iota
	Stderr
	Stdall
)

func (s Stream) String() string {
	switch s {
	case Stdout:
		return "stdout"
	case Stderr:
		return "stderr"
	case Stdall:
		return "stdall"
	default:
		return "unknown"
	}
}

// Chunk is one piece of output together with its position in the store.
type Chunk struct {
	Stream   Stream
	Data     []byte
	Index    int
	AllIndex int
}

// Store accumulates output chunks per stream plus a combined record that
// keeps the arrival order across stdout and stderr.
type Store struct {
	mu     sync.Mutex
	chunks [3][][]byte
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{}
}

// Push appends data to the stream and to the combined record.
func (s *Store) Push(stream Stream, data []byte) Chunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := Chunk{
		Stream:   stream,
		Data:     data,
		Index:    len(s.chunks[stream]),
		AllIndex: len(s.chunks[Stdall]),
	}
	s.chunks[stream] = append(s.chunks[stream], data)
	if stream != Stdall {
		s.chunks[Stdall] = append(s.chunks[Stdall], data)
	}
	return c
}

// Chunks returns a snapshot of the chunk list for the stream.
func (s *Store) Chunks(stream Stream) [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.chunks[stream]))
	copy(out, s.chunks[stream])
	return out
}

// Len reports how many chunks the stream holds.
func (s *Store) Len(stream Stream) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.chunks[stream])
}

// Bytes concatenates every chunk of the stream.
func (s *Store) Bytes(stream Stream) []byte {
	return bytes.Join(s.Chunks(stream), nil)
}

func (s *Store) lastByte(stream Stream) (byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.chunks[stream]
	for i := len(list) - 1; i >= 0; i-- {
		if n := len(list[i]); n > 0 {
			return list[i][n-1], true
		}
	}
	return 0, false
}
