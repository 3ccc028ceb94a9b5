// Package segments compiles and evaluates audience segment expressions.
//
// Segments are authored by platform admins (a trusted author class, unlike
// payout formulas) in CEL, e.g.
//
//	visitor.country == "DE" && click.device == "mobile"
//
// and are matched against click facts when routing smart links.
package segments

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

// Segment is a named audience defined by a CEL expression over click facts.
type Segment struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Expression string `json:"expression"`
	Active     bool   `json:"active"`
}

// Engine holds the CEL environment and the compiled program per segment.
// Safe for concurrent Matches calls; compilation takes the write lock.
type Engine struct {
	env      *cel.Env
	programs map[string]cel.Program
	mu       sync.RWMutex
}

// NewEngine creates a segment engine. The environment declares the fact
// objects smart-link routing supplies: visitor, click and conversion, all
// as dynamic maps.
func NewEngine() (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("visitor", cel.DynType),
		cel.Variable("click", cel.DynType),
		cel.Variable("conversion", cel.DynType),
	)
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}
	return &Engine{env: env, programs: make(map[string]cel.Program)}, nil
}

// Compile validates and compiles a segment's expression, replacing any
// previously compiled program for the same segment ID. A cost limit guards
// against runaway expressions.
func (e *Engine) Compile(seg Segment) error {
	ast, issues := e.env.Compile(seg.Expression)
	if issues != nil && issues.Err() != nil {
		return fmt.Errorf("compile segment %s: %w", seg.ID, issues.Err())
	}

	prog, err := e.env.Program(ast, cel.CostLimit(1_000_000))
	if err != nil {
		return fmt.Errorf("program for segment %s: %w", seg.ID, err)
	}

	e.mu.Lock()
	e.programs[seg.ID] = prog
	e.mu.Unlock()
	return nil
}

// CompileAll compiles every active segment, failing on the first invalid
// expression so a broken segment never silently drops out of routing.
func (e *Engine) CompileAll(segs []Segment) error {
	for _, seg := range segs {
		if !seg.Active {
			continue
		}
		if err := e.Compile(seg); err != nil {
			return err
		}
	}
	return nil
}

// Remove drops a segment's compiled program.
func (e *Engine) Remove(segmentID string) {
	e.mu.Lock()
	delete(e.programs, segmentID)
	e.mu.Unlock()
}

// Matches evaluates a compiled segment against the given facts. A
// non-boolean expression result counts as no match.
func (e *Engine) Matches(segmentID string, facts map[string]any) (bool, error) {
	e.mu.RLock()
	prog, exists := e.programs[segmentID]
	e.mu.RUnlock()
	if !exists {
		return false, fmt.Errorf("segment %s is not compiled", segmentID)
	}

	out, _, err := prog.Eval(facts)
	if err != nil {
		return false, fmt.Errorf("evaluate segment %s: %w", segmentID, err)
	}

	matched, ok := out.Value().(bool)
	return ok && matched, nil
}
