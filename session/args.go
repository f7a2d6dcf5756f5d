package session

// baseArgs are shared by every invocation: machine-readable events and no
// refusal outside a git repository.
var baseArgs = []string{"exec", "--json", "--skip-git-repo-check"}

// modelArgs renders the model and reasoning-effort selections. Empty values
// are left to the agent's own defaults.
func modelArgs(model, effort string) []string {
	var args []string
	if model != "" {
		args = append(args, "--model", model)
	}
	if effort != "" {
		args = append(args, "-c", "model_reasoning_effort="+effort)
	}
	return args
}

// NewThreadArgs builds the argument vector for a turn without a session.
func NewThreadArgs(model, effort string, extra []string, prompt string) []string {
	args := append([]string{}, baseArgs...)
	args = append(args, modelArgs(model, effort)...)
	args = append(args, extra...)
	return append(args, prompt)
}

// ResumeArgs builds the argument vector that continues sessionID.
func ResumeArgs(model, effort string, extra []string, sessionID, prompt string) []string {
	args := append([]string{}, baseArgs...)
	args = append(args, modelArgs(model, effort)...)
	args = append(args, extra...)
	return append(args, "resume", sessionID, prompt)
}

// BuildArgs picks ResumeArgs when sessionID is set, NewThreadArgs otherwise.
func BuildArgs(key Key, extra []string, sessionID, prompt string) []string {
	if sessionID != "" {
		return ResumeArgs(key.Model, key.Effort, extra, sessionID, prompt)
	}
	return NewThreadArgs(key.Model, key.Effort, extra, prompt)
}
