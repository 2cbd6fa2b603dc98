package trace

// TraceLevel controls the verbosity of round tracing.
type TraceLevel string

const (
	// TraceLevelNone disables tracing (zero overhead).
	TraceLevelNone TraceLevel = "none"
	// TraceLevelEpisodes captures finished episodes only.
	TraceLevelEpisodes TraceLevel = "episodes"
	// TraceLevelRounds captures every slot of every round plus finished episodes.
	TraceLevelRounds TraceLevel = "rounds"
)

// validTraceLevels maps accepted trace level strings.
var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone:     true,
	TraceLevelEpisodes: true,
	TraceLevelRounds:   true,
	"":                 true, // empty defaults to none
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// TraceConfig controls trace collection behavior.
type TraceConfig struct {
	Level TraceLevel
}

// SimulationTrace collects round and episode records during a batch run.
// Not safe for concurrent use; the engine records from the collecting
// goroutine only.
type SimulationTrace struct {
	Config   TraceConfig
	Rounds   []RoundRecord
	Episodes []EpisodeRecord
}

// NewSimulationTrace creates a SimulationTrace ready for recording.
func NewSimulationTrace(config TraceConfig) *SimulationTrace {
	return &SimulationTrace{
		Config:   config,
		Rounds:   make([]RoundRecord, 0),
		Episodes: make([]EpisodeRecord, 0),
	}
}

// RecordsRounds reports whether per-slot round records are kept.
func (st *SimulationTrace) RecordsRounds() bool {
	return st != nil && st.Config.Level == TraceLevelRounds
}

// RecordsEpisodes reports whether episode records are kept.
func (st *SimulationTrace) RecordsEpisodes() bool {
	return st != nil && (st.Config.Level == TraceLevelRounds || st.Config.Level == TraceLevelEpisodes)
}

// RecordRound appends a round record when the level keeps them.
func (st *SimulationTrace) RecordRound(record RoundRecord) {
	if !st.RecordsRounds() {
		return
	}
	st.Rounds = append(st.Rounds, record)
}

// RecordEpisode appends an episode record when the level keeps them.
func (st *SimulationTrace) RecordEpisode(record EpisodeRecord) {
	if !st.RecordsEpisodes() {
		return
	}
	st.Episodes = append(st.Episodes, record)
}
