package hnsw

import (
	"bufio"
	"encoding/binary"
	"io"

	vecerrors "github.com/Aman-CERP/amanmcp/internal/errors"
	"github.com/Aman-CERP/amanmcp/internal/metric"
)

var snapshotMagic = [4]byte{'H', 'N', 'S', 'W'}

const snapshotVersion = 1

// Snapshot serialises the graph's neighbour lists, entry point, and the
// caller-supplied clock value to w in the framed layout of spec.md §4.D.
// The layout favours sequential writes over compactness: it is read back
// with a linear walk, not randomly addressed.
func (g *Graph) Snapshot(w io.Writer, clock uint64) error {
	bw := bufio.NewWriter(w)

	if _, err := bw.Write(snapshotMagic[:]); err != nil {
		return vecerrors.Wrap(vecerrors.IoError, err)
	}
	if err := writeUint32(bw, snapshotVersion); err != nil {
		return err
	}
	if err := writeUint64(bw, clock); err != nil {
		return err
	}

	entry, hasEntry := g.EntryPoint()
	if err := writeBool(bw, hasEntry); err != nil {
		return err
	}
	if err := writeUint32(bw, entry); err != nil {
		return err
	}

	g.mu.RLock()
	nodes := make([]*node, len(g.nodes))
	copy(nodes, g.nodes)
	g.mu.RUnlock()

	var count uint32
	for _, n := range nodes {
		if n != nil {
			count++
		}
	}
	if err := writeUint32(bw, count); err != nil {
		return err
	}

	for _, n := range nodes {
		if n == nil {
			continue
		}
		if err := writeUint32(bw, n.id); err != nil {
			return err
		}
		if err := writeUint32(bw, uint32(n.topLayer)); err != nil {
			return err
		}
		if err := writeBool(bw, n.tombstoned.Load()); err != nil {
			return err
		}
		for layer := 0; layer <= n.topLayer; layer++ {
			g.layerLocks[layer].RLock()
			neighbors := append([]uint32(nil), n.neighbors[layer]...)
			g.layerLocks[layer].RUnlock()

			if err := writeUint32(bw, uint32(len(neighbors))); err != nil {
				return err
			}
			for _, nb := range neighbors {
				if err := writeUint32(bw, nb); err != nil {
					return err
				}
			}
		}
	}

	return bw.Flush()
}

// Restore loads a graph previously written by Snapshot, returning the
// graph and the clock value it was captured at. The caller is expected to
// replay the WAL tail from that clock afterward.
func Restore(r io.Reader, codec metric.Codec, store RecordSource, params Params) (*Graph, uint64, error) {
	br := bufio.NewReader(r)

	var magic [4]byte
	if _, err := io.ReadFull(br, magic[:]); err != nil {
		return nil, 0, vecerrors.Wrap(vecerrors.Corruption, err)
	}
	if magic != snapshotMagic {
		return nil, 0, vecerrors.New(vecerrors.Corruption, "snapshot magic mismatch", nil)
	}

	version, err := readUint32(br)
	if err != nil {
		return nil, 0, vecerrors.Wrap(vecerrors.Corruption, err)
	}
	if version != snapshotVersion {
		return nil, 0, vecerrors.New(vecerrors.Corruption, "unsupported snapshot version", nil)
	}

	clock, err := readUint64(br)
	if err != nil {
		return nil, 0, vecerrors.Wrap(vecerrors.Corruption, err)
	}

	hasEntry, err := readBool(br)
	if err != nil {
		return nil, 0, vecerrors.Wrap(vecerrors.Corruption, err)
	}
	entry, err := readUint32(br)
	if err != nil {
		return nil, 0, vecerrors.Wrap(vecerrors.Corruption, err)
	}

	count, err := readUint32(br)
	if err != nil {
		return nil, 0, vecerrors.Wrap(vecerrors.Corruption, err)
	}

	g := New(codec, store, params)
	g.hasEntry = hasEntry
	g.entryPoint = entry

	var live int
	for i := uint32(0); i < count; i++ {
		id, err := readUint32(br)
		if err != nil {
			return nil, 0, vecerrors.Wrap(vecerrors.Corruption, err)
		}
		topLayer, err := readUint32(br)
		if err != nil {
			return nil, 0, vecerrors.Wrap(vecerrors.Corruption, err)
		}
		tombstoned, err := readBool(br)
		if err != nil {
			return nil, 0, vecerrors.Wrap(vecerrors.Corruption, err)
		}

		n := &node{id: id, topLayer: int(topLayer), neighbors: make([][]uint32, topLayer+1)}
		n.tombstoned.Store(tombstoned)
		if !tombstoned {
			live++
		}

		for layer := uint32(0); layer <= topLayer; layer++ {
			nCount, err := readUint32(br)
			if err != nil {
				return nil, 0, vecerrors.Wrap(vecerrors.Corruption, err)
			}
			neighbors := make([]uint32, nCount)
			for j := range neighbors {
				nb, err := readUint32(br)
				if err != nil {
					return nil, 0, vecerrors.Wrap(vecerrors.Corruption, err)
				}
				neighbors[j] = nb
			}
			n.neighbors[layer] = neighbors
		}

		g.placeNode(n)
	}
	g.live = live

	return g, clock, nil
}

func writeUint32(w io.Writer, v uint32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	_, err := w.Write(buf[:])
	if err != nil {
		return vecerrors.Wrap(vecerrors.IoError, err)
	}
	return nil
}

func writeUint64(w io.Writer, v uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	_, err := w.Write(buf[:])
	if err != nil {
		return vecerrors.Wrap(vecerrors.IoError, err)
	}
	return nil
}

func writeBool(w io.Writer, v bool) error {
	b := byte(0)
	if v {
		b = 1
	}
	_, err := w.Write([]byte{b})
	if err != nil {
		return vecerrors.Wrap(vecerrors.IoError, err)
	}
	return nil
}

func readUint32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

func readUint64(r io.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(buf[:]), nil
}

func readBool(r io.Reader) (bool, error) {
	var buf [1]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return false, err
	}
	return buf[0] == 1, nil
}
