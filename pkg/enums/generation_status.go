package enums

// GenerationStatus is the state of a single document generation attempt.
//
//	REQUESTED -> AUTHORIZED -> ASSEMBLING -> SUCCEEDED
//	                                      \-> FAILED
//
// REQUESTED may also move straight to FAILED when authorization is refused.
type GenerationStatus string

const (
	GenerationRequested  GenerationStatus = "REQUESTED"
	GenerationAuthorized GenerationStatus = "AUTHORIZED"
	GenerationAssembling GenerationStatus = "ASSEMBLING"
	GenerationSucceeded  GenerationStatus = "SUCCEEDED"
	GenerationFailed     GenerationStatus = "FAILED"
)

var generationTransitions = map[GenerationStatus][]GenerationStatus{
	GenerationRequested:  {GenerationAuthorized, GenerationFailed},
	GenerationAuthorized: {GenerationAssembling, GenerationFailed},
	GenerationAssembling: {GenerationSucceeded, GenerationFailed},
}

// String implements fmt.Stringer.
func (s GenerationStatus) String() string {
	return string(s)
}

// IsTerminal reports whether the attempt has finished.
func (s GenerationStatus) IsTerminal() bool {
	return s == GenerationSucceeded || s == GenerationFailed
}

// CanTransitionTo reports whether next is a legal successor of s.
func (s GenerationStatus) CanTransitionTo(next GenerationStatus) bool {
	for _, candidate := range generationTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}
