package octomap

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/golang/snappy"
)

// TreeType names the kind of tree stored in a tree file.
type TreeType string

const (
	// TreeTypeWorkspace is occupancy plus ROI flags.
	TreeTypeWorkspace TreeType = "RoiOcTree"
	// TreeTypeOccupancy is plain occupancy, used for ground-truth object files.
	TreeTypeOccupancy TreeType = "OcTree"
	// TreeTypeIndexed is an object-indexed tree.
	TreeTypeIndexed TreeType = "CountingOcTree"
)

var fileMagic = [4]byte{'R', 'V', 'P', 'T'}

const (
	fileVersion   = 1
	maxBodyLength = 1 << 30

	flagKnown = 1 << 0
	flagROI   = 1 << 1
)

type treeHeader struct {
	Type       TreeType
	Resolution float64
	Origin     Key
}

func writeTree(w io.Writer, h treeHeader, body []byte) error {
	var buf bytes.Buffer
	buf.Write(fileMagic[:])
	buf.WriteByte(fileVersion)
	if len(h.Type) > math.MaxUint8 {
		return fmt.Errorf("tree type name too long: %q", h.Type)
	}
	buf.WriteByte(byte(len(h.Type)))
	buf.WriteString(string(h.Type))
	//nolint:errcheck
	binary.Write(&buf, binary.LittleEndian, h.Resolution)
	//nolint:errcheck
	binary.Write(&buf, binary.LittleEndian, [3]int32{h.Origin.X, h.Origin.Y, h.Origin.Z})

	compressed := snappy.Encode(nil, body)
	//nolint:errcheck
	binary.Write(&buf, binary.LittleEndian, uint32(len(compressed)))
	buf.Write(compressed)

	_, err := w.Write(buf.Bytes())
	return err
}

func readTree(r io.Reader) (treeHeader, []byte, error) {
	var h treeHeader
	in := bufio.NewReader(r)

	var magic [4]byte
	if _, err := io.ReadFull(in, magic[:]); err != nil {
		return h, nil, fmt.Errorf("%w: read magic: %v", ErrDeserializationFailed, err)
	}
	if magic != fileMagic {
		return h, nil, fmt.Errorf("%w: bad magic %q", ErrDeserializationFailed, magic[:])
	}
	version, err := in.ReadByte()
	if err != nil {
		return h, nil, fmt.Errorf("%w: read version: %v", ErrDeserializationFailed, err)
	}
	if version != fileVersion {
		return h, nil, fmt.Errorf("%w: unsupported version %d", ErrDeserializationFailed, version)
	}
	typeLen, err := in.ReadByte()
	if err != nil {
		return h, nil, fmt.Errorf("%w: read type: %v", ErrDeserializationFailed, err)
	}
	typeName := make([]byte, typeLen)
	if _, err := io.ReadFull(in, typeName); err != nil {
		return h, nil, fmt.Errorf("%w: read type: %v", ErrDeserializationFailed, err)
	}
	h.Type = TreeType(typeName)

	if err := binary.Read(in, binary.LittleEndian, &h.Resolution); err != nil {
		return h, nil, fmt.Errorf("%w: read resolution: %v", ErrDeserializationFailed, err)
	}
	if !(h.Resolution > 0) || math.IsInf(h.Resolution, 0) {
		return h, nil, fmt.Errorf("%w: invalid resolution %v", ErrDeserializationFailed, h.Resolution)
	}
	var origin [3]int32
	if err := binary.Read(in, binary.LittleEndian, &origin); err != nil {
		return h, nil, fmt.Errorf("%w: read origin: %v", ErrDeserializationFailed, err)
	}
	h.Origin = Key{X: origin[0], Y: origin[1], Z: origin[2]}

	var bodyLen uint32
	if err := binary.Read(in, binary.LittleEndian, &bodyLen); err != nil {
		return h, nil, fmt.Errorf("%w: read body length: %v", ErrDeserializationFailed, err)
	}
	if bodyLen > maxBodyLength {
		return h, nil, fmt.Errorf("%w: body length %d too large", ErrDeserializationFailed, bodyLen)
	}
	compressed := make([]byte, bodyLen)
	if _, err := io.ReadFull(in, compressed); err != nil {
		return h, nil, fmt.Errorf("%w: read body: %v", ErrDeserializationFailed, err)
	}
	body, err := snappy.Decode(nil, compressed)
	if err != nil {
		return h, nil, fmt.Errorf("%w: decompress body: %v", ErrDeserializationFailed, err)
	}
	return h, body, nil
}

func expectType(h treeHeader, want TreeType) error {
	if h.Type != want {
		return fmt.Errorf("%w: got %q, want %q", ErrWrongTreeType, h.Type, want)
	}
	return nil
}

func appendKey(buf []byte, k Key) []byte {
	buf = binary.AppendVarint(buf, int64(k.X))
	buf = binary.AppendVarint(buf, int64(k.Y))
	return binary.AppendVarint(buf, int64(k.Z))
}

type bodyReader struct {
	*bytes.Reader
}

func (r bodyReader) key() (Key, error) {
	var c [3]int32
	for i := range c {
		v, err := binary.ReadVarint(r)
		if err != nil {
			return Key{}, err
		}
		if v < math.MinInt32 || v > math.MaxInt32 {
			return Key{}, fmt.Errorf("key component %d out of range", v)
		}
		c[i] = int32(v)
	}
	return Key{X: c[0], Y: c[1], Z: c[2]}, nil
}

func (r bodyReader) count() (int, error) {
	n, err := binary.ReadUvarint(r)
	if err != nil {
		return 0, err
	}
	// Every record needs at least three bytes of key.
	if n > uint64(r.Len())/3+1 {
		return 0, fmt.Errorf("record count %d exceeds body size", n)
	}
	return int(n), nil
}

func (r bodyReader) float32() (float32, error) {
	var bits uint32
	if err := binary.Read(r, binary.LittleEndian, &bits); err != nil {
		return 0, err
	}
	return math.Float32frombits(bits), nil
}

func corrupt(err error) error {
	return fmt.Errorf("%w: %v", ErrDeserializationFailed, err)
}

func encodeOccupancy(t *OccupancyTree) []byte {
	keys := make([]Key, 0, t.Len())
	for k := range t.cells {
		keys = append(keys, k)
	}
	SortKeys(keys)

	body := binary.AppendUvarint(nil, uint64(len(keys)))
	for _, k := range keys {
		body = appendKey(body, k)
		body = binary.LittleEndian.AppendUint32(body, math.Float32bits(t.cells[k]))
	}
	return body
}

// WriteOccupancyTree writes t as an OcTree file whose local frame origin is origin.
func WriteOccupancyTree(w io.Writer, t *OccupancyTree, origin Key) error {
	h := treeHeader{Type: TreeTypeOccupancy, Resolution: t.Resolution(), Origin: origin}
	return writeTree(w, h, encodeOccupancy(t))
}

// ReadOccupancyTree reads an OcTree file and returns the tree and its origin key.
func ReadOccupancyTree(r io.Reader) (*OccupancyTree, Key, error) {
	h, body, err := readTree(r)
	if err != nil {
		return nil, Key{}, err
	}
	if err := expectType(h, TreeTypeOccupancy); err != nil {
		return nil, Key{}, err
	}
	br := bodyReader{bytes.NewReader(body)}
	n, err := br.count()
	if err != nil {
		return nil, Key{}, corrupt(err)
	}
	t := NewOccupancyTree(h.Resolution)
	for i := 0; i < n; i++ {
		k, err := br.key()
		if err != nil {
			return nil, Key{}, corrupt(err)
		}
		lo, err := br.float32()
		if err != nil {
			return nil, Key{}, corrupt(err)
		}
		t.SetLogOdds(k, lo)
	}
	return t, h.Origin, nil
}

// WriteIndexedTree writes t as a CountingOcTree file.
func WriteIndexedTree(w io.Writer, t *IndexedTree) error {
	keys := make([]Key, 0, t.Len())
	for k := range t.index {
		keys = append(keys, k)
	}
	SortKeys(keys)

	body := binary.AppendUvarint(nil, uint64(len(keys)))
	for _, k := range keys {
		body = appendKey(body, k)
		body = binary.AppendUvarint(body, uint64(t.index[k]))
	}
	return writeTree(w, treeHeader{Type: TreeTypeIndexed, Resolution: t.Resolution()}, body)
}

// ReadIndexedTree reads a CountingOcTree file.
func ReadIndexedTree(r io.Reader) (*IndexedTree, error) {
	h, body, err := readTree(r)
	if err != nil {
		return nil, err
	}
	if err := expectType(h, TreeTypeIndexed); err != nil {
		return nil, err
	}
	br := bodyReader{bytes.NewReader(body)}
	n, err := br.count()
	if err != nil {
		return nil, corrupt(err)
	}
	t := NewIndexedTree(h.Resolution)
	for i := 0; i < n; i++ {
		k, err := br.key()
		if err != nil {
			return nil, corrupt(err)
		}
		idx, err := binary.ReadUvarint(br)
		if err != nil {
			return nil, corrupt(err)
		}
		if idx == 0 || idx > math.MaxUint32 {
			return nil, corrupt(fmt.Errorf("object index %d out of range", idx))
		}
		if _, err := t.Insert(k, uint32(idx)); err != nil {
			return nil, corrupt(err)
		}
	}
	return t, nil
}

// Save writes the workspace occupancy and ROI evidence as a RoiOcTree file.
func (w *Workspace) Save(out io.Writer) error {
	w.mu.RLock()
	keys := make([]Key, 0, w.tree.Len()+w.roi.Cardinality())
	for k := range w.tree.cells {
		keys = append(keys, k)
	}
	w.roi.Each(func(k Key) bool {
		if _, known := w.tree.cells[k]; !known {
			keys = append(keys, k)
		}
		return false
	})
	SortKeys(keys)

	body := binary.AppendUvarint(nil, uint64(len(keys)))
	for _, k := range keys {
		var flags byte
		lo, known := w.tree.cells[k]
		if known {
			flags |= flagKnown
		}
		if w.roi.Contains(k) {
			flags |= flagROI
		}
		body = appendKey(body, k)
		body = append(body, flags)
		if known {
			body = binary.LittleEndian.AppendUint32(body, math.Float32bits(lo))
		}
	}
	h := treeHeader{Type: TreeTypeWorkspace, Resolution: w.tree.Resolution()}
	w.mu.RUnlock()

	return writeTree(out, h, body)
}

// Load replaces the workspace content with a RoiOcTree stream. On error the
// workspace is left untouched.
func (w *Workspace) Load(in io.Reader) error {
	h, body, err := readTree(in)
	if err != nil {
		return err
	}
	if err := expectType(h, TreeTypeWorkspace); err != nil {
		return err
	}
	res := w.Resolution()
	if math.Abs(h.Resolution-res) > 1e-9 {
		return fmt.Errorf("%w: file %v, workspace %v", ErrResolutionMismatch, h.Resolution, res)
	}

	br := bodyReader{bytes.NewReader(body)}
	n, err := br.count()
	if err != nil {
		return corrupt(err)
	}
	tree := NewOccupancyTree(res)
	roi := NewKeySet()
	for i := 0; i < n; i++ {
		k, err := br.key()
		if err != nil {
			return corrupt(err)
		}
		flags, err := br.ReadByte()
		if err != nil {
			return corrupt(err)
		}
		if flags&flagKnown != 0 {
			lo, err := br.float32()
			if err != nil {
				return corrupt(err)
			}
			tree.SetLogOdds(k, lo)
		}
		if flags&flagROI != 0 {
			roi.Add(k)
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.tree = tree
	w.roi = roi
	w.updates++
	w.scanSinceMove = false
	return nil
}
