package access

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/afero"
)

// LoadRequirements reads a JSON table shaped like Requirements, e.g.
// {"get": {"/characters/{character_id}/mail/": ["esi-mail.read_mail.v1"]}}.
// Method keys are lower-cased.
func LoadRequirements(fs afero.Fs, path string) (Requirements, error) {
	b, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("read requirements: %w", err)
	}
	var raw Requirements
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("parse requirements %s: %w", path, err)
	}
	return Requirements{}.Merge(raw), nil
}
