// File: cmd/run_test.go
package cmd

import (
	"testing"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stapply-ai/evals/internal/agent"
	"github.com/stapply-ai/evals/internal/results"
)

func decodeUploadParams(t *testing.T, raw []byte) agent.UploadFileParams {
	t.Helper()
	var p agent.UploadFileParams
	require.NoError(t, jsoniter.Unmarshal(raw, &p))
	return p
}

func TestScriptForFileUpload(t *testing.T) {
	steps, err := scriptFor(results.EvalFileUpload, "./resume.pdf")
	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.Equal(t, "upload_file", steps[0].Tool)

	p := decodeUploadParams(t, steps[0].Params)
	assert.Equal(t, "./resume.pdf", p.FilePath)
	assert.Equal(t, `input[type="file"]`, p.Selector)
}

func TestScriptForAuthApply(t *testing.T) {
	steps, err := scriptFor(results.EvalAuthApply, "/tmp/cv.pdf")
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, "upload_file", steps[0].Tool)
	assert.Equal(t, "select_combobox_option", steps[1].Tool)

	var combo agent.SelectComboboxParams
	require.NoError(t, jsoniter.Unmarshal(steps[1].Params, &combo))
	assert.NotEmpty(t, combo.Value)
	assert.NotEmpty(t, combo.Selector)
}

func TestScriptForUnknownEval(t *testing.T) {
	_, err := scriptFor(results.EvalName("made_up"), "x")
	assert.Error(t, err)
}

func TestParseOptionalEval(t *testing.T) {
	eval, err := parseOptionalEval(nil)
	require.NoError(t, err)
	assert.Equal(t, results.EvalName(""), eval)

	eval, err = parseOptionalEval([]string{"file-upload"})
	require.NoError(t, err)
	assert.Equal(t, results.EvalFileUpload, eval)

	_, err = parseOptionalEval([]string{"bogus"})
	assert.Error(t, err)
}
