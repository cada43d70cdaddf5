package lint

import (
	"encoding/json"
	"fmt"
	"os"
)

// NotebookRule requires notebooks to be valid JSON with a cells array whose
// entries all declare a cell_type.
type NotebookRule struct{}

func (r *NotebookRule) Name() string { return "notebook-json" }

func (r *NotebookRule) AppliesTo(filePath string) bool { return IsNotebook(filePath) }

func (r *NotebookRule) Check(filePath string) ([]Issue, error) {
	// #nosec G304 -- filePath comes from the lint walk.
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	fail := func(msg, explanation string) []Issue {
		return []Issue{{FilePath: filePath, Severity: SeverityError, Rule: r.Name(), Message: msg, Explanation: explanation}}
	}

	var nb struct {
		Cells []map[string]json.RawMessage `json:"cells"`
	}
	if err := json.Unmarshal(data, &nb); err != nil {
		//nolint:nilerr // reported as an issue
		return fail("Notebook is not valid JSON", err.Error()), nil
	}
	if nb.Cells == nil {
		return fail("Notebook has no cells array", "The generator renders notebooks from their cells array."), nil
	}
	for i, cell := range nb.Cells {
		var kind string
		if raw, ok := cell["cell_type"]; !ok || json.Unmarshal(raw, &kind) != nil || kind == "" {
			return fail(fmt.Sprintf("Cell %d has no cell_type", i), ""), nil
		}
	}
	return nil, nil
}
