package capture

import (
	"fmt"

	"github.com/dreschagin/securecam/internal/domain/apperror"
)

// State is the sequencer state. Step index and elapsed seconds are kept alongside.
type State string

const (
	StateIdle               State = "idle"
	StateAwaitingPermission State = "awaiting_permission"
	StatePermissionDenied   State = "permission_denied"
	StateLoadCompleted      State = "load_completed"
	StateReady              State = "ready"
	StateCapturing          State = "capturing"
	StateRecording          State = "recording"
	StateStepComplete       State = "step_complete"
	StateAllStepsComplete   State = "all_steps_complete"
	StateUploading          State = "uploading"
	StateDone               State = "done"
)

// transitions перечисляет все допустимые переходы.
//
// step_complete -> ready/all_steps_complete проходит через запись артефакта в MediaStore:
// запись best-effort, ее ошибка логируется и не останавливает переход.
// done -> uploading возможен только для повторной загрузки упавших элементов.
var transitions = map[State][]State{
	StateIdle:               {StateAwaitingPermission, StateLoadCompleted},
	StateAwaitingPermission: {StateReady, StatePermissionDenied},
	StatePermissionDenied:   {StateAwaitingPermission},
	StateLoadCompleted:      {},
	StateReady:              {StateCapturing, StateRecording},
	StateCapturing:          {StateStepComplete, StateReady},
	StateRecording:          {StateRecording, StateStepComplete, StateReady},
	StateStepComplete:       {StateReady, StateAllStepsComplete},
	StateAllStepsComplete:   {StateUploading},
	StateUploading:          {StateDone},
	StateDone:               {StateUploading},
}

func canTransition(from, to State) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

func checkTransition(from, to State) error {
	if !canTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", apperror.ErrInvalidState, from, to)
	}
	return nil
}

// Terminal reports whether no user action can move the state forward.
func (s State) Terminal() bool {
	return s == StateLoadCompleted
}
