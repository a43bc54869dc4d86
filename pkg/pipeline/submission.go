package pipeline

import (
	"bytes"

	"github.com/ajitpratap0/formsync/pkg/connector/core"
	"github.com/ajitpratap0/formsync/pkg/errors"
	"github.com/ajitpratap0/formsync/pkg/json"
	"github.com/google/uuid"
)

// Submission is one form post routed to one provider
type Submission struct {
	// ID identifies the run in logs, spans and results; generated when empty
	ID       string                `json:"id,omitempty"`
	Provider string                `json:"provider"`
	Email    string                `json:"email"`
	Name     string                `json:"name,omitempty"`
	Phone    string                `json:"phone,omitempty"`
	ListID   string                `json:"target_list_id"`
	Fields   map[string]core.Value `json:"fields,omitempty"`
	Mapping  core.FieldMapping     `json:"mapping,omitempty"`
	Tags     []string              `json:"tags,omitempty"`
}

// UnmarshalJSON accepts the mapping either as an object or as the
// serialized string a form stores it as.
func (s *Submission) UnmarshalJSON(data []byte) error {
	type plain Submission
	var wire struct {
		plain
		Mapping json.RawMessage `json:"mapping"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	raw := bytes.TrimSpace(wire.Mapping)
	if len(raw) > 0 && raw[0] == '"' {
		var serialized string
		if err := json.Unmarshal(raw, &serialized); err != nil {
			return err
		}
		raw = []byte(serialized)
	}
	mapping, err := core.ParseFieldMapping(raw)
	if err != nil {
		return err
	}

	*s = Submission(wire.plain)
	s.Mapping = mapping
	return nil
}

// ParseSubmission decodes a submission document
func ParseSubmission(data []byte) (Submission, error) {
	var sub Submission
	if err := json.Unmarshal(data, &sub); err != nil {
		return Submission{}, errors.Wrap(err, errors.KindValidation, "invalid submission document")
	}
	return sub, nil
}

func (s *Submission) ensureID() {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
}
