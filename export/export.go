// Package export exposes upload results to subsequent steps through envman.
package export

import (
	"fmt"
	"strconv"

	"github.com/bitrise-io/go-utils/v2/command"
)

// Output keys set by ExportUploadResult.
const (
	UploadURLKey      = "TUS_UPLOADED_URL"
	UploadOffsetKey   = "TUS_UPLOADED_OFFSET"
	UploadCompleteKey = "TUS_UPLOAD_COMPLETE"
)

// Result describes the state of an upload session when it ended.
type Result struct {
	URL string
	// Offset is the last offset confirmed by the server.
	Offset int64
	Size   int64
}

// Complete reports whether every byte was confirmed.
func (r Result) Complete() bool {
	return r.Offset == r.Size
}

// Exporter ...
type Exporter struct {
	cmdFactory command.Factory
}

// NewExporter ...
func NewExporter(cmdFactory command.Factory) Exporter {
	return Exporter{
		cmdFactory: cmdFactory,
	}
}

// ExportOutput is used for exposing values for other steps.
// Regular env vars are isolated between steps, so instead of calling `os.Setenv()`, use this to explicitly expose
// a value for subsequent steps.
func (e Exporter) ExportOutput(key, value string) error {
	cmd := e.cmdFactory.Create("envman", []string{"add", "--key", key, "--value", value}, nil)
	return runExport(cmd)
}

// ExportOutputNoExpand works like ExportOutput but does not expand environment variables in the value.
// Upload URLs are beyond the control of the step, so they are exported with this.
func (e Exporter) ExportOutputNoExpand(key, value string) error {
	cmd := e.cmdFactory.Create("envman", []string{"add", "--key", key, "--value", value, "--no-expand"}, nil)
	return runExport(cmd)
}

// ExportUploadResult exports the upload URL, the confirmed offset and whether the upload is complete.
func (e Exporter) ExportUploadResult(result Result) error {
	if err := e.ExportOutputNoExpand(UploadURLKey, result.URL); err != nil {
		return err
	}
	if err := e.ExportOutput(UploadOffsetKey, strconv.FormatInt(result.Offset, 10)); err != nil {
		return err
	}
	return e.ExportOutput(UploadCompleteKey, strconv.FormatBool(result.Complete()))
}

func runExport(cmd command.Command) error {
	out, err := cmd.RunAndReturnTrimmedCombinedOutput()
	if err != nil {
		return fmt.Errorf("exporting output with envman failed: %s, output: %s", err, out)
	}
	return nil
}
