package weights

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"time"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/crypto/blake2b"
)

// Bundle 文件布局：单个 CBOR map（核心确定性编码），
// 张量按名字排序，payload 按 pickCodec 选出的编码压缩。
const (
	// Magic identifies a weights bundle file.
	Magic = "VPWB"
	// Version is the only envelope version this build reads and writes.
	Version = 1
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("weights: cbor enc mode: %v", err))
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("weights: cbor dec mode: %v", err))
	}
}

type fileEnvelope struct {
	Magic     string         `cbor:"magic"`
	Version   int            `cbor:"version"`
	Agent     string         `cbor:"agent"`
	CreatedAt time.Time      `cbor:"created_at"`
	Tensors   []tensorRecord `cbor:"tensors"`
}

type tensorRecord struct {
	Name    string `cbor:"name"`
	Shape   []int  `cbor:"shape"`
	Codec   uint8  `cbor:"codec"`
	RawSize int    `cbor:"raw_size"`
	Digest  []byte `cbor:"digest"` // BLAKE2b-256 of the raw little-endian bytes
	Payload []byte `cbor:"payload"`
}

// Tensor 一个命名参数块，Data 为行优先展开的 float32。
type Tensor struct {
	Name  string
	Shape []int
	Data  []float32
}

// Bundle holds a named tensor set for exactly one agent.
type Bundle struct {
	Agent     string
	CreatedAt time.Time

	tensors map[string]*Tensor
}

// NewBundle 空 bundle；张量经 Add 逐个放入。
func NewBundle(agent string) *Bundle {
	return &Bundle{
		Agent:     agent,
		CreatedAt: time.Now().UTC().Truncate(time.Second),
		tensors:   make(map[string]*Tensor),
	}
}

// Add registers one tensor. The shape must be non-empty with positive
// dims, and its element count must equal len(data). Data is kept by
// reference, not copied.
func (b *Bundle) Add(name string, shape []int, data []float32) error {
	if name == "" {
		return fmt.Errorf("empty tensor name")
	}
	if _, exists := b.tensors[name]; exists {
		return fmt.Errorf("tensor %q already added", name)
	}
	n, err := elemCount(shape)
	if err != nil {
		return fmt.Errorf("tensor %q: %w", name, err)
	}
	if len(data) != n {
		return fmt.Errorf("tensor %q: shape %v holds %d elements, data has %d", name, shape, n, len(data))
	}
	b.tensors[name] = &Tensor{Name: name, Shape: shape, Data: data}
	return nil
}

// Tensor looks up one tensor by name.
func (b *Bundle) Tensor(name string) (*Tensor, bool) {
	t, ok := b.tensors[name]
	return t, ok
}

// Names 返回全部张量名，已排序，供确定性遍历与日志。
func (b *Bundle) Names() []string {
	names := make([]string, 0, len(b.tensors))
	for name := range b.tensors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of tensors in the bundle.
func (b *Bundle) Len() int { return len(b.tensors) }

// Write serializes the bundle. Each tensor is digested before
// compression so Read can verify the payload byte-for-byte.
func (b *Bundle) Write(w io.Writer) error {
	env := fileEnvelope{
		Magic:     Magic,
		Version:   Version,
		Agent:     b.Agent,
		CreatedAt: b.CreatedAt,
		Tensors:   make([]tensorRecord, 0, len(b.tensors)),
	}
	for _, name := range b.Names() {
		t := b.tensors[name]
		raw := f32ToBytes(t.Data)
		digest := blake2b.Sum256(raw)
		codec, payload := pickCodec(raw)
		env.Tensors = append(env.Tensors, tensorRecord{
			Name:    t.Name,
			Shape:   t.Shape,
			Codec:   uint8(codec),
			RawSize: len(raw),
			Digest:  digest[:],
			Payload: payload,
		})
	}
	return encMode.NewEncoder(w).Encode(env)
}

// WriteFile writes the bundle to path, truncating any existing file.
func (b *Bundle) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := b.Write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Read parses and verifies a bundle. Magic, version, shape arithmetic
// and per-tensor digests are all checked here; callers can treat a
// returned Bundle as internally consistent.
func Read(r io.Reader) (*Bundle, error) {
	var env fileEnvelope
	if err := decMode.NewDecoder(r).Decode(&env); err != nil {
		return nil, formatErrorf("decode envelope: %v", err)
	}
	if env.Magic != Magic {
		return nil, formatErrorf("bad magic %q, want %q", env.Magic, Magic)
	}
	if env.Version != Version {
		return nil, formatErrorf("unsupported version %d", env.Version)
	}
	b := &Bundle{
		Agent:     env.Agent,
		CreatedAt: env.CreatedAt,
		tensors:   make(map[string]*Tensor, len(env.Tensors)),
	}
	for _, rec := range env.Tensors {
		if rec.RawSize < 0 || rec.RawSize%4 != 0 {
			return nil, formatErrorf("tensor %q: raw size %d is not a whole number of float32s", rec.Name, rec.RawSize)
		}
		raw, err := decode(Codec(rec.Codec), rec.Payload, rec.RawSize)
		if err != nil {
			return nil, formatErrorf("tensor %q: %v", rec.Name, err)
		}
		digest := blake2b.Sum256(raw)
		if !bytes.Equal(digest[:], rec.Digest) {
			return nil, formatErrorf("tensor %q: digest mismatch", rec.Name)
		}
		n, err := elemCount(rec.Shape)
		if err != nil {
			return nil, formatErrorf("tensor %q: %v", rec.Name, err)
		}
		if n*4 != rec.RawSize {
			return nil, formatErrorf("tensor %q: shape %v holds %d elements, payload has %d", rec.Name, rec.Shape, n, rec.RawSize/4)
		}
		if _, exists := b.tensors[rec.Name]; exists {
			return nil, formatErrorf("duplicate tensor %q", rec.Name)
		}
		b.tensors[rec.Name] = &Tensor{Name: rec.Name, Shape: rec.Shape, Data: bytesToF32(raw)}
	}
	return b, nil
}

// Open reads a bundle from disk.
func Open(path string) (*Bundle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f)
}

func elemCount(shape []int) (int, error) {
	if len(shape) == 0 {
		return 0, fmt.Errorf("empty shape")
	}
	n := 1
	for _, d := range shape {
		if d <= 0 {
			return 0, fmt.Errorf("invalid shape %v", shape)
		}
		n *= d
	}
	return n, nil
}

// 线上字节序固定小端，与导出脚本约定一致
func f32ToBytes(data []float32) []byte {
	raw := make([]byte, 4*len(data))
	for i, v := range data {
		binary.LittleEndian.PutUint32(raw[4*i:], math.Float32bits(v))
	}
	return raw
}

func bytesToF32(raw []byte) []float32 {
	data := make([]float32, len(raw)/4)
	for i := range data {
		data[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
	}
	return data
}
