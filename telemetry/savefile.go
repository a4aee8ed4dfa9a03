package telemetry

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/pthm-cable/forge/components"
	"github.com/pthm-cable/forge/world"
)

// SaveMagic opens every save file.
const SaveMagic = "FRGE"

// SaveVersion is incremented whenever the layout changes. Loaders refuse
// newer versions.
const SaveVersion uint16 = 1

var (
	ErrBadMagic           = errors.New("not a forge save file")
	ErrUnsupportedVersion = errors.New("unsupported save file version")
	ErrTruncated          = errors.New("save file truncated")
	ErrCorruptSave        = errors.New("save file corrupt")
)

const (
	maxRecords  = 1 << 24
	maxBlobSize = 1 << 24
)

// SaveHeader is the fixed preamble.
type SaveHeader struct {
	Version    uint16
	Timestamp  time.Time
	RNGState   []byte
	AgentCount uint32
	FoodCount  uint32
	SimTime    float64
	Frame      uint64
}

// AgentRecord is one living agent.
type AgentRecord struct {
	ID         uint64
	Species    components.Species
	Pos        components.Position
	Vel        components.Velocity
	Heading    float32
	Energy     float32
	MaxEnergy  float32
	Health     float32
	MaxHealth  float32
	Age        float32
	Generation uint32
	Parents    [2]uint64
	Clade      int32
	Kills      int32
	Sterile    bool
	Hybrid     bool
	Traits     components.Traits
	Genome     []byte // neural.EncodeGenome blob; empty for brainless agents
	BrainState []float32
}

// FoodRecord is one food patch.
type FoodRecord struct {
	X, Y, Z  float32
	Kind     world.FoodKind
	Residual float32
	Capacity float32
}

// CorpseRecord is one decaying corpse.
type CorpseRecord struct {
	X, Y, Z float32
	Corpse  components.Corpse
}

// WorldRecord holds world-level state.
type WorldRecord struct {
	TerrainSeed int64
	DayPhase    float64
	NextID      uint64
}

// SaveFile is the complete decoded contents of a save.
type SaveFile struct {
	Header  SaveHeader
	Agents  []AgentRecord
	Food    []FoodRecord
	Corpses []CorpseRecord
	World   WorldRecord
}

type headerFixed struct {
	Magic      [4]byte
	Version    uint16
	Timestamp  int64
	AgentCount uint32
	FoodCount  uint32
	SimTime    float64
	Frame      uint64
}

type agentFixed struct {
	ID         uint64
	Species    components.Species
	Pos        components.Position
	Vel        components.Velocity
	Heading    float32
	Energy     float32
	MaxEnergy  float32
	Health     float32
	MaxHealth  float32
	Age        float32
	Generation uint32
	Parents    [2]uint64
	Clade      int32
	Kills      int32
	Sterile    bool
	Hybrid     bool
	Traits     components.Traits
}

var le = binary.LittleEndian

type saveWriter struct {
	w   *bufio.Writer
	err error
}

func (s *saveWriter) put(v any) {
	if s.err == nil {
		s.err = binary.Write(s.w, le, v)
	}
}

func (s *saveWriter) blob(b []byte) {
	s.put(uint32(len(b)))
	if s.err == nil {
		_, s.err = s.w.Write(b)
	}
}

// WriteSave encodes f. Header counts are taken from the record slices.
func WriteSave(w io.Writer, f *SaveFile) error {
	sw := &saveWriter{w: bufio.NewWriter(w)}

	h := headerFixed{
		Version:    SaveVersion,
		Timestamp:  f.Header.Timestamp.UnixNano(),
		AgentCount: uint32(len(f.Agents)),
		FoodCount:  uint32(len(f.Food)),
		SimTime:    f.Header.SimTime,
		Frame:      f.Header.Frame,
	}
	copy(h.Magic[:], SaveMagic)
	sw.put(h)
	sw.blob(f.Header.RNGState)

	for i := range f.Agents {
		a := &f.Agents[i]
		sw.put(agentFixed{
			ID: a.ID, Species: a.Species, Pos: a.Pos, Vel: a.Vel, Heading: a.Heading,
			Energy: a.Energy, MaxEnergy: a.MaxEnergy, Health: a.Health, MaxHealth: a.MaxHealth,
			Age: a.Age, Generation: a.Generation, Parents: a.Parents, Clade: a.Clade,
			Kills: a.Kills, Sterile: a.Sterile, Hybrid: a.Hybrid, Traits: a.Traits,
		})
		sw.blob(a.Genome)
		sw.put(uint32(len(a.BrainState)))
		sw.put(a.BrainState)
	}
	for i := range f.Food {
		sw.put(f.Food[i])
	}
	sw.put(uint32(len(f.Corpses)))
	for i := range f.Corpses {
		sw.put(f.Corpses[i])
	}
	sw.put(f.World)

	if sw.err != nil {
		return fmt.Errorf("writing save: %w", sw.err)
	}
	if err := sw.w.Flush(); err != nil {
		return fmt.Errorf("writing save: %w", err)
	}
	return nil
}

type saveReader struct {
	r   io.Reader
	err error
}

func (s *saveReader) get(v any) {
	if s.err != nil {
		return
	}
	if err := binary.Read(s.r, le, v); err != nil {
		s.err = truncated(err)
	}
}

func (s *saveReader) length(limit uint32, what string) int {
	var n uint32
	s.get(&n)
	if s.err == nil && n > limit {
		s.err = fmt.Errorf("%w: %s length %d", ErrCorruptSave, what, n)
	}
	if s.err != nil {
		return 0
	}
	return int(n)
}

func (s *saveReader) blob(what string) []byte {
	n := s.length(maxBlobSize, what)
	if s.err != nil || n == 0 {
		return nil
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(s.r, b); err != nil {
		s.err = truncated(err)
		return nil
	}
	return b
}

func truncated(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrTruncated
	}
	return err
}

// ReadSave decodes a save written by WriteSave.
func ReadSave(r io.Reader) (*SaveFile, error) {
	sr := &saveReader{r: bufio.NewReader(r)}

	var h headerFixed
	sr.get(&h)
	if sr.err != nil {
		return nil, fmt.Errorf("reading header: %w", sr.err)
	}
	if string(h.Magic[:]) != SaveMagic {
		return nil, ErrBadMagic
	}
	if h.Version == 0 || h.Version > SaveVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, h.Version)
	}
	if h.AgentCount > maxRecords || h.FoodCount > maxRecords {
		return nil, fmt.Errorf("%w: %d agents, %d food", ErrCorruptSave, h.AgentCount, h.FoodCount)
	}

	f := &SaveFile{Header: SaveHeader{
		Version:    h.Version,
		Timestamp:  time.Unix(0, h.Timestamp),
		AgentCount: h.AgentCount,
		FoodCount:  h.FoodCount,
		SimTime:    h.SimTime,
		Frame:      h.Frame,
	}}
	f.Header.RNGState = sr.blob("rng state")

	f.Agents = make([]AgentRecord, 0, h.AgentCount)
	for i := uint32(0); i < h.AgentCount && sr.err == nil; i++ {
		var a agentFixed
		sr.get(&a)
		rec := AgentRecord{
			ID: a.ID, Species: a.Species, Pos: a.Pos, Vel: a.Vel, Heading: a.Heading,
			Energy: a.Energy, MaxEnergy: a.MaxEnergy, Health: a.Health, MaxHealth: a.MaxHealth,
			Age: a.Age, Generation: a.Generation, Parents: a.Parents, Clade: a.Clade,
			Kills: a.Kills, Sterile: a.Sterile, Hybrid: a.Hybrid, Traits: a.Traits,
		}
		rec.Genome = sr.blob("genome")
		if n := sr.length(maxBlobSize/4, "brain state"); n > 0 {
			rec.BrainState = make([]float32, n)
			sr.get(rec.BrainState)
		}
		if sr.err == nil && rec.Species >= components.NumSpecies {
			sr.err = fmt.Errorf("%w: agent %d has species %d", ErrCorruptSave, rec.ID, rec.Species)
		}
		f.Agents = append(f.Agents, rec)
	}

	f.Food = make([]FoodRecord, h.FoodCount)
	if h.FoodCount > 0 {
		sr.get(f.Food)
	}
	if n := sr.length(maxRecords, "corpses"); n > 0 {
		f.Corpses = make([]CorpseRecord, n)
		sr.get(f.Corpses)
	}
	sr.get(&f.World)

	if sr.err != nil {
		return nil, fmt.Errorf("reading save: %w", sr.err)
	}
	return f, nil
}

// SaveToFile writes f to path through a temporary file so a crash never
// leaves a half-written save behind.
func SaveToFile(path string, f *SaveFile) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating save dir: %w", err)
		}
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".forge-save-*")
	if err != nil {
		return fmt.Errorf("creating save: %w", err)
	}
	if err := WriteSave(tmp, f); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("closing save: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("renaming save: %w", err)
	}
	return nil
}

// LoadFromFile reads the save at path.
func LoadFromFile(path string) (*SaveFile, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening save: %w", err)
	}
	defer fh.Close()
	return ReadSave(fh)
}
