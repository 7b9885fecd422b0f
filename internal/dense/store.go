package dense

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/dshills/ragroute/pkg/types"
	"github.com/google/uuid"
)

// Artifact file names inside the storage directory
const (
	IndexFile   = "dense.index"
	MappingFile = "dense.mapping.json"
	LockFile    = "dense.lock"
)

const (
	formatVersion uint32 = 1
	headerSize           = 4 + 4 + 16 + 4 + 4
)

var magic = [4]byte{'R', 'R', 'D', 'X'}

// ErrIndexAbsent covers missing, corrupt and mismatched artifacts
var ErrIndexAbsent = errors.New("dense index absent")

// Mapping pairs each index row with its chunk
type Mapping struct {
	BuildID   string               `json:"build_id"`
	Dimension int                  `json:"dimension"`
	Rows      []types.VectorRecord `json:"rows"`
}

// Artifacts is a loaded index together with its mapping
type Artifacts struct {
	BuildID uuid.UUID
	Index   *FlatIndex
	Mapping Mapping
}

// writeArtifacts persists idx and mapping to dir. Both files are written to
// temporary names and synced, then renamed into place as the last step.
func writeArtifacts(dir string, buildID uuid.UUID, idx *FlatIndex, chunkIDs []int64) error {
	if idx.Len() != len(chunkIDs) {
		return fmt.Errorf("row count mismatch: index has %d, mapping has %d", idx.Len(), len(chunkIDs))
	}

	mapping := Mapping{
		BuildID:   buildID.String(),
		Dimension: idx.Dim(),
		Rows:      make([]types.VectorRecord, len(chunkIDs)),
	}
	for i, id := range chunkIDs {
		mapping.Rows[i] = types.VectorRecord{RowPosition: i, ChunkID: id}
	}

	indexTmp, err := writeTemp(dir, IndexFile, func(w io.Writer) error {
		return encodeIndex(w, buildID, idx)
	})
	if err != nil {
		return fmt.Errorf("write index: %w", err)
	}

	mappingTmp, err := writeTemp(dir, MappingFile, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		return enc.Encode(mapping)
	})
	if err != nil {
		_ = os.Remove(indexTmp)
		return fmt.Errorf("write mapping: %w", err)
	}

	// A reader that sees one new file and one old file finds different
	// build ids and treats the pair as absent.
	if err := os.Rename(mappingTmp, filepath.Join(dir, MappingFile)); err != nil {
		_ = os.Remove(indexTmp)
		_ = os.Remove(mappingTmp)
		return fmt.Errorf("install mapping: %w", err)
	}
	if err := os.Rename(indexTmp, filepath.Join(dir, IndexFile)); err != nil {
		_ = os.Remove(indexTmp)
		return fmt.Errorf("install index: %w", err)
	}

	return syncDir(dir)
}

// writeTemp writes a synced temporary file next to name and returns its path
func writeTemp(dir, name string, fill func(io.Writer) error) (string, error) {
	f, err := os.CreateTemp(dir, name+".tmp-*")
	if err != nil {
		return "", err
	}
	path := f.Name()

	bw := bufio.NewWriter(f)
	if err := fill(bw); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", err
	}
	if err := bw.Flush(); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", err
	}
	return path, nil
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer func() { _ = d.Close() }()
	// Some platforms cannot fsync a directory; the renames are done either way.
	_ = d.Sync()
	return nil
}

func encodeIndex(w io.Writer, buildID uuid.UUID, idx *FlatIndex) error {
	var hdr [headerSize]byte
	copy(hdr[0:4], magic[:])
	binary.LittleEndian.PutUint32(hdr[4:8], formatVersion)
	copy(hdr[8:24], buildID[:])
	binary.LittleEndian.PutUint32(hdr[24:28], uint32(idx.Dim()))
	binary.LittleEndian.PutUint32(hdr[28:32], uint32(idx.Len()))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, idx.vectors)
}

// readArtifacts loads and cross-checks the artifact pair in dir.
// Any problem is reported as ErrIndexAbsent.
func readArtifacts(dir string) (*Artifacts, error) {
	raw, err := os.ReadFile(filepath.Join(dir, IndexFile))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIndexAbsent, err)
	}
	buildID, idx, err := decodeIndex(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIndexAbsent, err)
	}

	mb, err := os.ReadFile(filepath.Join(dir, MappingFile))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIndexAbsent, err)
	}
	var mapping Mapping
	if err := json.Unmarshal(mb, &mapping); err != nil {
		return nil, fmt.Errorf("%w: corrupt mapping: %v", ErrIndexAbsent, err)
	}

	if mapping.BuildID != buildID.String() {
		return nil, fmt.Errorf("%w: build id mismatch (index %s, mapping %s)", ErrIndexAbsent, buildID, mapping.BuildID)
	}
	if len(mapping.Rows) != idx.Len() {
		return nil, fmt.Errorf("%w: cardinality mismatch (index %d, mapping %d)", ErrIndexAbsent, idx.Len(), len(mapping.Rows))
	}
	for i, r := range mapping.Rows {
		if r.RowPosition != i {
			return nil, fmt.Errorf("%w: mapping row %d has position %d", ErrIndexAbsent, i, r.RowPosition)
		}
	}

	return &Artifacts{BuildID: buildID, Index: idx, Mapping: mapping}, nil
}

func decodeIndex(raw []byte) (uuid.UUID, *FlatIndex, error) {
	if len(raw) < headerSize {
		return uuid.Nil, nil, errors.New("index file truncated")
	}
	if !bytes.Equal(raw[0:4], magic[:]) {
		return uuid.Nil, nil, errors.New("bad magic")
	}
	if v := binary.LittleEndian.Uint32(raw[4:8]); v != formatVersion {
		return uuid.Nil, nil, fmt.Errorf("unsupported format version %d", v)
	}
	buildID, err := uuid.FromBytes(raw[8:24])
	if err != nil {
		return uuid.Nil, nil, err
	}
	dim := int(binary.LittleEndian.Uint32(raw[24:28]))
	count := int(binary.LittleEndian.Uint32(raw[28:32]))
	if dim <= 0 {
		return uuid.Nil, nil, fmt.Errorf("invalid dimension %d", dim)
	}

	body := raw[headerSize:]
	if want := count * dim * 4; len(body) != want {
		return uuid.Nil, nil, fmt.Errorf("size mismatch: got %d bytes want %d", len(body), want)
	}

	idx := NewFlatIndex(dim)
	idx.vectors = make([]float32, count*dim)
	for i := range idx.vectors {
		idx.vectors[i] = math.Float32frombits(binary.LittleEndian.Uint32(body[i*4:]))
	}
	return buildID, idx, nil
}
