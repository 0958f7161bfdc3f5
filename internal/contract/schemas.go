package contract

import "github.com/google/jsonschema-go/jsonschema"

func num(v float64) *float64 { return &v }

func stepSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"id":               {Type: "string"},
			"description":      {Type: "string"},
			"dependencies":     {Type: "array", Items: &jsonschema.Schema{Type: "string"}},
			"provides":         {Type: "array", Items: &jsonschema.Schema{Type: "string"}},
			"tools":            {Type: "array", Items: &jsonschema.Schema{Type: "string"}},
			"incoming_context": {Type: "string"},
			"handoff_to_next":  {Type: "string"},
		},
		Required: []string{"description"},
	}
}

func planSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"summary": {Type: "string"},
			"steps":   {Type: "array", Items: stepSchema()},
		},
		Required: []string{"steps"},
	}
}

func builtinContracts() []*Contract {
	return []*Contract{
		{
			ID:       IDInferProfile,
			System:   "You are a task analyst. You classify tasks before any work begins.",
			Required: []string{"objective"},
			Template: `Analyze this task and profile the reasoning effort it needs.

Task: {{objective}}

Rate reasoning_depth 1-5 (1=lookup, 5=multi-stage synthesis). Rate information_sufficiency 0.0-1.0 for how much of the needed information is already in the task statement.

Respond with JSON:
{"reasoning_depth": 3, "information_sufficiency": 0.7, "expected_tool_usage": "moderate", "output_breadth": "focused", "confidence_requirement": 0.9, "rationale": "..."}

JSON only:`,
			Output: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"reasoning_depth":         {Type: "integer", Minimum: num(1), Maximum: num(5)},
					"information_sufficiency": {Type: "number", Minimum: num(0), Maximum: num(1)},
					"expected_tool_usage":     {Type: "string"},
					"output_breadth":          {Type: "string"},
					"confidence_requirement":  {Type: "number", Minimum: num(0), Maximum: num(1)},
					"rationale":               {Type: "string"},
				},
				Required: []string{"reasoning_depth", "information_sufficiency", "rationale"},
			},
		},
		{
			ID:       IDGeneratePlan,
			System:   "You are a planner. You produce declarative step lists, never prose procedures.",
			Required: []string{"objective", "tools"},
			Template: `Break this objective into an ordered list of declarative steps.

Objective: {{objective}}

Available tools: {{tools}}

Task profile: {{profile}}

Rules:
- Each step declares WHAT must hold when it is done, not HOW to do it.
- Use dependencies to reference earlier step ids. No forward references.
- provides lists the artifacts a step makes available to later steps.
- Only name tools from the available list.

Respond with JSON:
{"summary": "...", "steps": [{"id": "step-1", "description": "...", "dependencies": [], "provides": [], "tools": [], "incoming_context": "...", "handoff_to_next": "..."}]}

JSON only:`,
			Output: planSchema(),
		},
		{
			ID:       IDCreateSubplan,
			System:   "You are a planner. You produce declarative step lists, never prose procedures.",
			Required: []string{"objective", "parent_step", "tools"},
			Template: `A step in a larger plan is too coarse to execute directly. Expand it into a focused subplan.

Parent step: {{parent_step}}

Overall objective: {{objective}}

Context available to this step: {{incoming_context}}

Available tools: {{tools}}

Rules:
- Steps are declarative outcomes, not instructions.
- The subplan must deliver everything the parent step provides.
- Only name tools from the available list.

Respond with JSON:
{"summary": "...", "steps": [{"id": "step-1", "description": "...", "dependencies": [], "provides": [], "tools": []}]}

JSON only:`,
			Output: planSchema(),
		},
		{
			ID:       IDRefinePlan,
			System:   "You are a plan surgeon. You change only what the findings demand.",
			Required: []string{"objective", "plan", "findings"},
			Template: `The current plan has problems. Propose the smallest set of edits that fixes them.

Objective: {{objective}}

Current plan: {{plan}}

Findings: {{findings}}

Convergence reason codes: {{reason_codes}}

Blocked step ids: {{blocked}}

Executed step ids (immutable, never target these): {{executed}}

Each action is one of ADD, MODIFY, REMOVE, REPLACE. ADD carries a full step and insert_after; MODIFY carries only the changed fields; REPLACE carries a full replacement step.

Respond with JSON:
{"summary": "...", "actions": [{"action": "MODIFY", "target_id": "step-2", "step": {"description": "..."}, "reason": "..."}]}

JSON only:`,
			Output: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"summary": {Type: "string"},
					"actions": {
						Type: "array",
						Items: &jsonschema.Schema{
							Type: "object",
							Properties: map[string]*jsonschema.Schema{
								"action":       {Type: "string"},
								"target_id":    {Type: "string"},
								"step":         stepSchema(),
								"insert_after": {Type: "string"},
								"reason":       {Type: "string"},
							},
							Required: []string{"action"},
						},
					},
				},
				Required: []string{"actions"},
			},
		},
		{
			ID:       IDSemanticValidate,
			System:   "You are a skeptical reviewer. You judge whether work actually satisfies its step.",
			Required: []string{"step", "output"},
			Template: `Judge whether this output satisfies its step.

Step: {{step}}

Output: {{output}}

Available tools: {{tools}}

Look for: unmet requirements, fabricated results, references to tools or artifacts that do not exist, contradictions with the step's dependencies.

Severity is one of INFO, WARN, BLOCKED.

Respond with JSON:
{"issues": [{"kind": "unmet_requirement", "severity": "BLOCKED", "target": "step-2", "message": "...", "suggestion": "..."}], "overall_severity": "BLOCKED"}

JSON only:`,
			Output: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"overall_severity": {Type: "string"},
					"issues": {
						Type: "array",
						Items: &jsonschema.Schema{
							Type: "object",
							Properties: map[string]*jsonschema.Schema{
								"kind":       {Type: "string"},
								"severity":   {Type: "string"},
								"target":     {Type: "string"},
								"message":    {Type: "string"},
								"suggestion": {Type: "string"},
							},
							Required: []string{"kind", "severity", "message"},
						},
					},
				},
				Required: []string{"issues"},
			},
		},
		{
			ID:       IDAssessConvergence,
			System:   "You are a completion auditor. You decide whether work is genuinely done.",
			Required: []string{"objective", "plan", "outputs"},
			Template: `Decide whether this execution has converged on its objective.

Objective: {{objective}}

Plan state: {{plan}}

Step outputs: {{outputs}}

Validation findings: {{findings}}

Custom criteria: {{criteria}}

Score each dimension 0.0-1.0: completeness (every requirement addressed), consistency (no contradictions between outputs), coherence (the outputs fit together as one well-grounded answer).

Respond with JSON:
{"converged": false, "scores": {"completeness": 0.8, "consistency": 0.95, "coherence": 0.9}, "reason_codes": ["incomplete_coverage"], "detected_issues": ["..."], "explanation": "..."}

JSON only:`,
			Output: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"converged":       {Type: "boolean"},
					"scores":          {Type: "object"},
					"reason_codes":    {Type: "array", Items: &jsonschema.Schema{Type: "string"}},
					"detected_issues": {Type: "array", Items: &jsonschema.Schema{Type: "string"}},
					"explanation":     {Type: "string"},
				},
				Required: []string{"converged", "scores"},
			},
		},
		{
			ID:       IDSynthesize,
			System:   "You are a synthesizer. You compose a final answer strictly from the work done.",
			Required: []string{"objective", "outputs"},
			Template: `Compose the final answer for this task from the completed work.

Objective: {{objective}}

Step outputs: {{outputs}}

Convergence assessment: {{assessment}}

Unresolved issues: {{issues}}

Ground every claim in the step outputs. If work was incomplete, say what is missing instead of inventing it.

Respond with JSON:
{"answer_text": "...", "confidence": 0.85, "used_step_ids": ["step-1"], "notes": []}

JSON only:`,
			Output: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"answer_text":   {Type: "string"},
					"confidence":    {Type: "number", Minimum: num(0), Maximum: num(1)},
					"used_step_ids": {Type: "array", Items: &jsonschema.Schema{Type: "string"}},
					"notes":         {Type: "array", Items: &jsonschema.Schema{Type: "string"}},
				},
				Required: []string{"answer_text"},
			},
		},
		{
			// Repair output is re-validated against the original contract's
			// schema, so this contract carries none of its own.
			ID:       IDRepairJSON,
			Required: []string{"malformed", "schema"},
			Template: `The following output was supposed to be JSON matching a schema, but it is malformed or non-conforming.

Schema: {{schema}}

Malformed output: {{malformed}}

Produce a corrected version. Preserve the original content and intent; fix only structure. Do not add commentary.

JSON only:`,
		},
	}
}
