// Package pipeline runs the staged sync: normalize, detect conflicts,
// deduplicate, group, split, materialize and execute.
//
// Stages run one after another on a single goroutine. Each stage reads
// its input from the store, recreates its own table and fills it, so a
// failed run leaves every completed stage inspectable. Only the execute
// stage talks to the network.
//
// A stage failure stops the run and is returned as a *WorkflowError
// naming the stage. Conflicting asset ids are not a failure; they are
// recorded in conflict_set and duplicate_records and the run continues
// without them.
package pipeline
