package model

import "time"

type Task struct {
	ID          string    `json:"id"`
	CreatedAt   time.Time `json:"createdAt"`
	Title       string    `json:"title"`
	Description *string   `json:"description,omitempty"`
	Completed   bool      `json:"completed"`
}

// NewTask is the input of a create call.
type NewTask struct {
	Title       string  `json:"title"`
	Description *string `json:"description,omitempty"`
}

// TaskPatch changes only the fields that are not Unchanged.
type TaskPatch struct {
	Title       Field[string] `json:"title,omitzero"`
	Description Field[string] `json:"description,omitzero"`
	Completed   Field[bool]   `json:"completed,omitzero"`
}

// Empty reports whether the patch touches nothing.
func (p TaskPatch) Empty() bool {
	return p.Title.IsUnchanged() && p.Description.IsUnchanged() && p.Completed.IsUnchanged()
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}
