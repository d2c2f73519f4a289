package index

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/ppiankov/veritas/internal/model"
)

const (
	VectorsFile  = "vectors.bin"
	MetadataFile = "metadata.json"

	vectorsMagic   = "VRTX"
	vectorsVersion = uint32(1)
)

type metadataFile struct {
	BuildID   string          `json:"build_id"`
	Embedder  string          `json:"embedder"`
	Dimension int             `json:"dimension"`
	Count     int             `json:"count"`
	Segments  []model.Segment `json:"segments"`
}

// Save writes vectors.bin and metadata.json into dir
func (f *FlatIndex) Save(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	if err := writeAtomic(filepath.Join(dir, VectorsFile), f.writeVectors); err != nil {
		return fmt.Errorf("write vectors: %w", err)
	}
	meta := metadataFile{
		BuildID:   f.buildID.String(),
		Embedder:  f.embedder,
		Dimension: f.dim,
		Count:     len(f.segments),
		Segments:  f.segments,
	}
	err := writeAtomic(filepath.Join(dir, MetadataFile), func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		return enc.Encode(meta)
	})
	if err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	return nil
}

func (f *FlatIndex) writeVectors(w io.Writer) error {
	header := make([]byte, 0, 4+4+16+4+4)
	header = append(header, vectorsMagic...)
	header = binary.LittleEndian.AppendUint32(header, vectorsVersion)
	header = append(header, f.buildID[:]...)
	header = binary.LittleEndian.AppendUint32(header, uint32(len(f.vectors)))
	header = binary.LittleEndian.AppendUint32(header, uint32(f.dim))
	if _, err := w.Write(header); err != nil {
		return err
	}
	buf := make([]byte, 4*f.dim)
	for _, v := range f.vectors {
		for i, x := range v {
			binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(x))
		}
		if _, err := w.Write(buf); err != nil {
			return err
		}
	}
	return nil
}

func writeAtomic(path string, write func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	bw := bufio.NewWriter(tmp)
	if err := write(bw); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Load reads an index pair written by Save. Both files must be present and must
// agree on build id and count; anything else is model.ErrIntegrity.
func Load(dir string) (*FlatIndex, error) {
	vecPath := filepath.Join(dir, VectorsFile)
	metaPath := filepath.Join(dir, MetadataFile)

	_, vecErr := os.Stat(vecPath)
	_, metaErr := os.Stat(metaPath)
	switch {
	case errors.Is(vecErr, fs.ErrNotExist) && errors.Is(metaErr, fs.ErrNotExist):
		return nil, fmt.Errorf("%w: no index in %s", model.ErrInputMissing, dir)
	case errors.Is(vecErr, fs.ErrNotExist):
		return nil, fmt.Errorf("%w: %s present without %s", model.ErrIntegrity, MetadataFile, VectorsFile)
	case errors.Is(metaErr, fs.ErrNotExist):
		return nil, fmt.Errorf("%w: %s present without %s", model.ErrIntegrity, VectorsFile, MetadataFile)
	}

	raw, err := os.ReadFile(metaPath)
	if err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}
	var meta metadataFile
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("%w: decode metadata: %v", model.ErrIntegrity, err)
	}
	if meta.Count != len(meta.Segments) {
		return nil, fmt.Errorf("%w: metadata declares %d segments but holds %d", model.ErrIntegrity, meta.Count, len(meta.Segments))
	}

	idx, err := readVectors(vecPath)
	if err != nil {
		return nil, err
	}

	if idx.buildID.String() != meta.BuildID {
		return nil, fmt.Errorf("%w: vectors build %s does not match metadata build %s", model.ErrIntegrity, idx.buildID, meta.BuildID)
	}
	if len(idx.vectors) != len(meta.Segments) {
		return nil, fmt.Errorf("%w: %d vectors but %d metadata records", model.ErrIntegrity, len(idx.vectors), len(meta.Segments))
	}
	if idx.dim != meta.Dimension {
		return nil, fmt.Errorf("%w: vector dimension %d does not match metadata dimension %d", model.ErrIntegrity, idx.dim, meta.Dimension)
	}

	idx.embedder = meta.Embedder
	idx.segments = meta.Segments
	return idx, nil
}

func readVectors(path string) (*FlatIndex, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open vectors: %w", err)
	}
	defer func() { _ = f.Close() }()
	r := bufio.NewReader(f)

	header := make([]byte, 4+4+16+4+4)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("%w: vectors header: %v", model.ErrIntegrity, err)
	}
	if string(header[:4]) != vectorsMagic {
		return nil, fmt.Errorf("%w: %s is not a vectors file", model.ErrIntegrity, path)
	}
	if v := binary.LittleEndian.Uint32(header[4:8]); v != vectorsVersion {
		return nil, fmt.Errorf("%w: unsupported vectors version %d", model.ErrIntegrity, v)
	}
	buildID, err := uuid.FromBytes(header[8:24])
	if err != nil {
		return nil, fmt.Errorf("%w: vectors build id: %v", model.ErrIntegrity, err)
	}
	count := binary.LittleEndian.Uint32(header[24:28])
	dim := binary.LittleEndian.Uint32(header[28:32])

	// the header is checked against the file size before anything is allocated
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat vectors: %w", err)
	}
	payload := uint64(info.Size()) - uint64(len(header))
	if (dim == 0 && count > 0) || payload%4 != 0 || payload/4 != uint64(count)*uint64(dim) {
		return nil, fmt.Errorf("%w: header declares %d vectors of dimension %d but the file holds %d payload bytes",
			model.ErrIntegrity, count, dim, payload)
	}
	return decodeVectors(r, buildID, int(count), int(dim))
}

func decodeVectors(r *bufio.Reader, buildID uuid.UUID, count, dim int) (*FlatIndex, error) {
	vectors := make([][]float32, count)
	buf := make([]byte, 4*dim)
	for i := range vectors {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("%w: vector %d of %d: %v", model.ErrIntegrity, i, count, err)
		}
		v := make([]float32, dim)
		for j := range v {
			v[j] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*j:]))
		}
		vectors[i] = v
	}
	if _, err := r.ReadByte(); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing data after %d vectors", model.ErrIntegrity, count)
	}

	return &FlatIndex{buildID: buildID, dim: dim, vectors: vectors}, nil
}
