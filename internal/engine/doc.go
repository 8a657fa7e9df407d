// Package engine orchestrates run lifecycle for the service shell: it
// persists a submitted run, executes the external process through the
// dispatch runtime, and records the outcome with the status transitions
// pending → running → completed/failed/killed.
package engine
