package trace

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// TraceHeaderVersion is the current header format version.
const TraceHeaderVersion = 1

// TraceHeader captures run metadata written next to the CSV data.
type TraceHeader struct {
	Version   int    `yaml:"trace_version"`
	RunID     string `yaml:"run_id"`
	CreatedAt string `yaml:"created_at,omitempty"`
	Level     string `yaml:"level"`

	Game      string `yaml:"game"`
	NumEnvs   int    `yaml:"num_envs"`
	Workers   int    `yaml:"workers"`
	Seed      int32  `yaml:"seed"`
	MaxFrames uint32 `yaml:"max_frames"`
	Grayscale bool   `yaml:"grayscale"`
	Stride    int    `yaml:"downsample_stride"`

	Rounds      int64          `yaml:"rounds"`
	ActionSpace []int          `yaml:"action_space,flow"`
	Summary     *HeaderSummary `yaml:"summary,omitempty"`
}

// HeaderSummary is the subset of TraceSummary written into the header.
type HeaderSummary struct {
	Episodes         int     `yaml:"episodes"`
	LifeLosses       int     `yaml:"life_losses"`
	Faults           int     `yaml:"faults"`
	MeanEpisodeScore float64 `yaml:"mean_episode_score"`
	MaxEpisodeScore  int     `yaml:"max_episode_score"`
}

// NewRunID returns a fresh random run identifier.
func NewRunID() string {
	return uuid.NewString()
}

// NewHeaderSummary converts a TraceSummary for the header.
func NewHeaderSummary(s *TraceSummary) *HeaderSummary {
	if s == nil {
		return nil
	}
	return &HeaderSummary{
		Episodes:         s.Episodes,
		LifeLosses:       s.LifeLosses,
		Faults:           s.Faults,
		MeanEpisodeScore: s.MeanEpisodeScore,
		MaxEpisodeScore:  s.MaxEpisodeScore,
	}
}

// CSV column headers for round records.
var roundColumns = []string{
	"round", "kind", "slot", "action", "reward",
	"terminal", "truncated", "life_lost", "lives", "error",
}

// CSV column headers for episode records.
var episodeColumns = []string{
	"round", "slot", "score", "frames", "truncated",
}

// ExportTrace writes the header (YAML) and data (CSV) to separate files.
// The data file holds round records at TraceLevelRounds and episode records
// otherwise. An empty RunID in the header is filled with a fresh uuid.
func ExportTrace(header *TraceHeader, st *SimulationTrace, headerPath, dataPath string) error {
	if header.RunID == "" {
		header.RunID = NewRunID()
	}
	if _, err := uuid.Parse(header.RunID); err != nil {
		return fmt.Errorf("invalid run id %q: %w", header.RunID, err)
	}
	if header.Version == 0 {
		header.Version = TraceHeaderVersion
	}

	headerData, err := yaml.Marshal(header)
	if err != nil {
		return fmt.Errorf("marshaling trace header: %w", err)
	}
	if err := os.WriteFile(headerPath, headerData, 0644); err != nil {
		return fmt.Errorf("writing trace header: %w", err)
	}

	file, err := os.Create(dataPath)
	if err != nil {
		return fmt.Errorf("creating trace data file: %w", err)
	}
	defer func() { _ = file.Close() }()

	writer := csv.NewWriter(file)
	if st.RecordsRounds() {
		err = writeRounds(writer, st.Rounds)
	} else {
		var episodes []EpisodeRecord
		if st != nil {
			episodes = st.Episodes
		}
		err = writeEpisodes(writer, episodes)
	}
	if err != nil {
		return err
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flushing trace data: %w", err)
	}
	return nil
}

func writeRounds(w *csv.Writer, records []RoundRecord) error {
	if err := w.Write(roundColumns); err != nil {
		return fmt.Errorf("writing CSV header: %w", err)
	}
	for i, r := range records {
		row := []string{
			strconv.FormatInt(r.Round, 10),
			r.Kind,
			strconv.Itoa(r.Slot),
			strconv.Itoa(r.Action),
			strconv.Itoa(r.Reward),
			strconv.FormatBool(r.Terminal),
			strconv.FormatBool(r.Truncated),
			strconv.FormatBool(r.LifeLost),
			strconv.Itoa(r.Lives),
			r.Error,
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("writing CSV row %d: %w", i, err)
		}
	}
	return nil
}

func writeEpisodes(w *csv.Writer, records []EpisodeRecord) error {
	if err := w.Write(episodeColumns); err != nil {
		return fmt.Errorf("writing CSV header: %w", err)
	}
	for i, e := range records {
		row := []string{
			strconv.FormatInt(e.Round, 10),
			strconv.Itoa(e.Slot),
			strconv.Itoa(e.Score),
			strconv.Itoa(e.Frames),
			strconv.FormatBool(e.Truncated),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("writing CSV row %d: %w", i, err)
		}
	}
	return nil
}

// LoadTraceHeader reads a header written by ExportTrace. Unknown fields are
// rejected.
func LoadTraceHeader(path string) (*TraceHeader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening trace header: %w", err)
	}
	defer func() { _ = f.Close() }()
	var h TraceHeader
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&h); err != nil {
		return nil, fmt.Errorf("parsing trace header: %w", err)
	}
	return &h, nil
}
