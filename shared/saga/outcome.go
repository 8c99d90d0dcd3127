package saga

import (
	"github.com/draftea/travel-booking/shared/models"
)

// Outcome is the result of a participant's local decision: either the id of
// what was acquired or the reason it was refused.
type Outcome struct {
	ID     models.ID
	Reason string
}

// Success returns a successful outcome holding id
func Success(id models.ID) Outcome {
	return Outcome{ID: id}
}

// Failure returns a refused outcome
func Failure(reason string) Outcome {
	return Outcome{Reason: reason}
}

// Succeeded reports whether the local operation acquired something
func (o Outcome) Succeeded() bool {
	return o.Reason == "" && !o.ID.IsZero()
}
