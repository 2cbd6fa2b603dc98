// Package sim provides the vectorized lock-step stepping engine.
//
// # Reading Guide
//
// Start with these files to understand the engine:
//   - environment.go: the Environment contract and the kind registry
//   - slot.go / lifecycle.go: one environment plus its episode lifecycle
//     (auto-reset, warmup no-ops, fire sequence), guarded by the slot lock
//   - vecenv.go: the Reset/Step facade, dispatch to the worker pool and the
//     order-preserving collection of reports
//
// # Architecture
//
// The sim package defines the Environment interface; implementations live in
// sub-packages:
//   - sim/arcade/: synthetic deterministic games (breakout, pong, freeway)
//   - sim/trace/: per-round trace recording and CSV/YAML export
//
// Sub-packages register their environment kinds via init() functions that
// call RegisterEnvironment. Production code imports sim/arcade for its side
// effect; tests may pass VecEnvConfig.Factory instead.
//
// # Rounds
//
// A round submits exactly one unit of work per slot to the WorkerPool and
// blocks until exactly one StepReport per slot has arrived. Reports are placed
// by slot index, so output order never depends on completion order. Rounds
// never overlap. A slot fault rides on its own report and does not stop the
// other slots from being collected.
package sim
