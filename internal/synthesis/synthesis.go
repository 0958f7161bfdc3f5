// Package synthesis produces the final answer for an execution. It is the
// one stage that never fails: when the oracle is unavailable or the run
// ended incomplete, it degrades to a locally composed answer and records
// exactly what was missing.
package synthesis

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"cogito/internal/adaptive"
	"cogito/internal/contract"
	"cogito/internal/converge"
	"cogito/internal/logging"
	"cogito/internal/plan"
	"cogito/internal/validate"
)

// Snapshot is everything synthesis may draw on. The run identity fields
// (correlation id, start time, counters) are always present; the artifact
// fields may be missing, and the stage works with whatever survived the run.
type Snapshot struct {
	Objective     string
	CorrelationID string
	StartedAt     time.Time
	Passes        int
	Refinements   int
	Converged     bool
	Plan          *plan.Plan
	Outputs       map[string]string
	Assessment    *converge.Assessment
	Reports       []*validate.Report
	Profile       *adaptive.TaskProfile
	TTLRemaining  int
}

// FinalAnswer is the execution's terminal artifact.
type FinalAnswer struct {
	AnswerText   string         `json:"answer_text"`
	Confidence   float64        `json:"confidence"`
	UsedStepIDs  []string       `json:"used_step_ids,omitempty"`
	Notes        []string       `json:"notes,omitempty"`
	Degraded     bool           `json:"degraded"`
	TTLExhausted bool           `json:"ttl_exhausted"`
	Metadata     map[string]any `json:"metadata"`
}

// Stage runs synthesis.
type Stage struct {
	invoker *contract.Invoker
}

func NewStage(invoker *contract.Invoker) *Stage {
	return &Stage{invoker: invoker}
}

// Synthesize composes the final answer. It never returns an error: any
// failure on the oracle path falls back to a degraded local composition, and
// the metadata records missing snapshot fields and budget exhaustion either
// way.
func (s *Stage) Synthesize(ctx context.Context, snap Snapshot) *FinalAnswer {
	log := logging.Get(logging.CategorySynthesis)
	missing := missingFields(snap)

	answer := s.oracleSynthesis(ctx, snap)
	if answer == nil {
		log.Warnw("oracle synthesis unavailable, composing degraded answer",
			"missing", missing)
		answer = degradedAnswer(snap)
	}

	answer.TTLExhausted = snap.TTLRemaining == 0
	answer.Metadata = map[string]any{
		"missing_fields": missing,
		"correlation_id": snap.CorrelationID,
		"passes":         snap.Passes,
		"refinements":    snap.Refinements,
		"converged":      snap.Converged,
	}
	if !snap.StartedAt.IsZero() {
		answer.Metadata["started_at"] = snap.StartedAt
	}
	if snap.Profile != nil {
		answer.Metadata["profile_version"] = snap.Profile.Version
	}
	if len(missing) > 0 {
		answer.Degraded = true
	}

	log.Infow("synthesis complete",
		"degraded", answer.Degraded,
		"confidence", answer.Confidence)
	return answer
}

func (s *Stage) oracleSynthesis(ctx context.Context, snap Snapshot) *FinalAnswer {
	if s.invoker == nil || len(snap.Outputs) == 0 {
		return nil
	}
	var decoded struct {
		AnswerText  string   `json:"answer_text"`
		Confidence  float64  `json:"confidence"`
		UsedStepIDs []string `json:"used_step_ids"`
		Notes       []string `json:"notes"`
	}
	err := s.invoker.InvokeInto(ctx, contract.IDSynthesize, map[string]any{
		"objective":  snap.Objective,
		"outputs":    snap.Outputs,
		"assessment": snap.Assessment,
		"issues":     openIssues(snap.Reports),
	}, &decoded)
	if err != nil {
		logging.Get(logging.CategorySynthesis).Warnw("synthesis contract failed", "error", err)
		return nil
	}
	return &FinalAnswer{
		AnswerText:  decoded.AnswerText,
		Confidence:  decoded.Confidence,
		UsedStepIDs: decoded.UsedStepIDs,
		Notes:       decoded.Notes,
	}
}

// degradedAnswer stitches whatever step outputs exist into a readable
// answer, in plan order when the plan survived.
func degradedAnswer(snap Snapshot) *FinalAnswer {
	var parts []string
	var used []string

	ids := make([]string, 0, len(snap.Outputs))
	for id := range snap.Outputs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	if snap.Plan != nil {
		ordered := ids[:0:0]
		for _, st := range snap.Plan.Steps {
			if _, ok := snap.Outputs[st.ID]; ok {
				ordered = append(ordered, st.ID)
			}
		}
		if len(ordered) > 0 {
			ids = ordered
		}
	}
	for _, id := range ids {
		parts = append(parts, snap.Outputs[id])
		used = append(used, id)
	}

	text := strings.TrimSpace(strings.Join(parts, "\n\n"))
	if text == "" {
		text = fmt.Sprintf("Synthesis was degraded: no usable step outputs were produced for: %s", snap.Objective)
	} else {
		text = "Synthesis was degraded: the oracle synthesis step did not run, so this answer is assembled directly from the raw step outputs.\n\n" + text
	}
	return &FinalAnswer{
		AnswerText:  text,
		Confidence:  0.2,
		UsedStepIDs: used,
		Notes:       []string{"composed without oracle synthesis"},
		Degraded:    true,
	}
}

// missingFields lists absent snapshot fields in canonical order.
func missingFields(snap Snapshot) []string {
	missing := []string{}
	if snap.Plan == nil {
		missing = append(missing, "plan_state")
	}
	if len(snap.Outputs) == 0 {
		missing = append(missing, "outputs")
	}
	if snap.Assessment == nil {
		missing = append(missing, "convergence_assessment")
	}
	if len(snap.Reports) == 0 {
		missing = append(missing, "validation_report")
	}
	if snap.Profile == nil {
		missing = append(missing, "task_profile")
	}
	return missing
}

// openIssues flattens the unresolved findings for the synthesis prompt.
func openIssues(reports []*validate.Report) []string {
	var out []string
	for _, r := range reports {
		if r == nil {
			continue
		}
		for _, is := range r.Issues {
			if is.Severity == validate.SeverityInfo {
				continue
			}
			out = append(out, fmt.Sprintf("[%s] %s: %s", is.Severity, is.Target, is.Message))
		}
	}
	return out
}
