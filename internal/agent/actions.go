package agent

import (
	"context"

	"github.com/stapply-ai/evals/internal/actions"
	"github.com/stapply-ai/evals/internal/resolve"
)

// UploadFileParams is the parameter object for the upload_file tool.
type UploadFileParams struct {
	FilePath  string   `json:"file_path"`
	Selector  string   `json:"selector"`
	Fallbacks []string `json:"fallback_selectors,omitempty"`
}

// SelectComboboxParams is the parameter object for select_combobox_option.
type SelectComboboxParams struct {
	Value     string   `json:"value"`
	Selector  string   `json:"selector"`
	Fallbacks []string `json:"fallback_selectors,omitempty"`
}

const uploadFileSchema = `{
	"type": "object",
	"properties": {
		"file_path": {
			"type": "string",
			"description": "Local path of the file to upload"
		},
		"selector": {
			"type": "string",
			"description": "CSS selector for the file input field"
		},
		"fallback_selectors": {
			"type": "array",
			"items": {"type": "string"},
			"description": "Ordered fallback selectors tried when the primary selector fails"
		}
	},
	"required": ["file_path", "selector"],
	"additionalProperties": false
}`

const selectComboboxSchema = `{
	"type": "object",
	"properties": {
		"value": {
			"type": "string",
			"description": "The option value to type and select"
		},
		"selector": {
			"type": "string",
			"description": "CSS selector for the combobox input element"
		},
		"fallback_selectors": {
			"type": "array",
			"items": {"type": "string"},
			"description": "Ordered fallback selectors tried when the primary selector fails"
		}
	},
	"required": ["value", "selector"],
	"additionalProperties": false
}`

// RegisterActions exposes the executor's actions as tools.
func RegisterActions(reg *Registry, exec *actions.Executor) error {
	if err := reg.Register(&Tool{
		Name:        "upload_file",
		Description: "Upload a file to a file input field. Use this when a form asks for a document such as a resume.",
		InputSchema: uploadFileSchema,
		Handler: func(ctx context.Context, params []byte) actions.Outcome {
			var p UploadFileParams
			if err := jsonAPI.Unmarshal(params, &p); err != nil {
				return actions.Failure("upload_file: %v", err)
			}
			hint := resolve.Hint{Selector: p.Selector, Fallbacks: p.Fallbacks}
			return exec.UploadFile(ctx, p.FilePath, hint)
		},
	}); err != nil {
		return err
	}

	return reg.Register(&Tool{
		Name:        "select_combobox_option",
		Description: "Type into an autocomplete/combobox input and select the matching option from its dropdown.",
		InputSchema: selectComboboxSchema,
		Handler: func(ctx context.Context, params []byte) actions.Outcome {
			var p SelectComboboxParams
			if err := jsonAPI.Unmarshal(params, &p); err != nil {
				return actions.Failure("select_combobox_option: %v", err)
			}
			hint := resolve.Hint{Selector: p.Selector, Fallbacks: p.Fallbacks}
			return exec.SelectCombobox(ctx, p.Value, hint)
		},
	})
}
