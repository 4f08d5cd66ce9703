// Copyright © 2024 The ELPS authors

package snapshot

import (
	"sort"

	"github.com/cockroachdb/errors"
)

// ErrUnmapped is returned when a read touches an address that no segment
// covers.
var ErrUnmapped = errors.New("cannot access memory")

type segment struct {
	addr uint64
	data []byte
}

func (s *segment) end() uint64 {
	return s.addr + uint64(len(s.data))
}

// memory is a sparse address space made of non-overlapping segments sorted
// by address.
type memory struct {
	segments []*segment
}

func (m *memory) add(addr uint64, data []byte) error {
	seg := &segment{addr: addr, data: data}
	i := sort.Search(len(m.segments), func(i int) bool {
		return m.segments[i].addr >= addr
	})
	if i > 0 && m.segments[i-1].end() > addr {
		return errors.Newf("segment at %#x overlaps segment at %#x", addr, m.segments[i-1].addr)
	}
	if i < len(m.segments) && seg.end() > m.segments[i].addr {
		return errors.Newf("segment at %#x overlaps segment at %#x", addr, m.segments[i].addr)
	}
	m.segments = append(m.segments, nil)
	copy(m.segments[i+1:], m.segments[i:])
	m.segments[i] = seg
	return nil
}

// read returns n bytes at addr. The result aliases the segment and must not
// be modified.
func (m *memory) read(addr uint64, n int) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	i := sort.Search(len(m.segments), func(i int) bool {
		return m.segments[i].end() > addr
	})
	if i == len(m.segments) || m.segments[i].addr > addr {
		return nil, errors.Wrapf(ErrUnmapped, "at address %#x", addr)
	}
	seg := m.segments[i]
	off := addr - seg.addr
	if off+uint64(n) > uint64(len(seg.data)) {
		return nil, errors.Wrapf(ErrUnmapped, "at address %#x", seg.end())
	}
	return seg.data[off : off+uint64(n)], nil
}
