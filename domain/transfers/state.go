package transfers

type State string

const (
	Observed   State = "observed"
	Validated  State = "validated"
	Submitting State = "submitting"
	Submitted  State = "submitted"
	Confirmed  State = "confirmed"
	Failed     State = "failed"
)

func (s State) String() string {
	return string(s)
}

// Terminal reports whether no further transitions are possible from s.
func (s State) Terminal() bool {
	return s == Confirmed || s == Failed
}

var allowedTransitions = map[State][]State{
	Observed:   {Validated, Failed},
	Validated:  {Submitting, Failed},
	Submitting: {Submitted, Validated, Failed},
	Submitted:  {Confirmed, Failed},
}

/*
	CanTransition reports whether from -> to is a legal lifecycle step.
	The only backward edge is Submitting -> Validated, used when a submission
	failed transiently and will be retried.
*/
func CanTransition(from, to State) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
