// Package result writes and reads the per-stage test result records that CI
// dashboards collect. The format is a minimal JUnit test suite holding exactly
// one test case; it is reproduced byte for byte.
package result

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Stage names a step of the ABI workflow that reports a result.
type Stage string

const (
	StageDump  Stage = "abi_dump"
	StageCheck Stage = "abi_check"
)

// Messages written for tool-reported failures. Dashboards match on them.
const (
	MsgDumpFailed  = "Abi dump failed, consult the dumper output."
	MsgCheckFailed = "Abi check failed, consult the checker output."
)

// Messages written when a stage stops on a missing prerequisite.
const (
	MsgDumpAborted  = "Abi dump aborted, a prerequisite is missing."
	MsgCheckAborted = "Abi check aborted, a prerequisite is missing."
)

// Outcome is either Ok (Failure is nil) or Error.
type Outcome struct {
	Failure *Failure
}

// Failure is the Error outcome of a stage.
type Failure struct {
	Message string
	Detail  string
}

// Ok is the passing outcome.
var Ok = Outcome{}

// Error returns a failing outcome with the given message and optional detail.
func Error(message, detail string) Outcome {
	return Outcome{Failure: &Failure{Message: message, Detail: detail}}
}

// IsOk reports whether o is the passing outcome.
func (o Outcome) IsOk() bool { return o.Failure == nil }

// FailedMessage returns the message for a tool-reported failure of stage.
func FailedMessage(stage Stage) string {
	if stage == StageCheck {
		return MsgCheckFailed
	}
	return MsgDumpFailed
}

// AbortedMessage returns the message for a stage stopped by a hard error.
func AbortedMessage(stage Stage) string {
	if stage == StageCheck {
		return MsgCheckAborted
	}
	return MsgDumpAborted
}

// Record is the result of one stage.
type Record struct {
	Name    Stage
	Outcome Outcome
}

// Dir returns the directory that holds result records under buildRoot.
func Dir(buildRoot string) string {
	return filepath.Join(buildRoot, "test", "result")
}

// Path returns the record file of stage under buildRoot.
func Path(buildRoot string, stage Stage) string {
	return filepath.Join(Dir(buildRoot), "test_"+string(stage)+".xml")
}

// Marshal renders r in the record format.
func (r Record) Marshal() []byte {
	name := escape(string(r.Name))
	var b bytes.Buffer
	fmt.Fprintf(&b, "<testsuite name=\"%s\">\n", name)
	if f := r.Outcome.Failure; f == nil {
		fmt.Fprintf(&b, " <testcase classname=\"%s\" name=\"%s\"/>\n", name, name)
	} else {
		fmt.Fprintf(&b, "    <testcase classname=\"%s\" name=\"%s\">\n", name, name)
		fmt.Fprintf(&b, "        <error message=\"%s\" type=\"Error\">%s</error>\n", escape(f.Message), escape(f.Detail))
		b.WriteString("    </testcase>\n")
	}
	b.WriteString("</testsuite>\n")
	return b.Bytes()
}

func escape(s string) string {
	var b strings.Builder
	xml.EscapeText(&b, []byte(s))
	return b.String()
}

// Writer writes result records below a build root.
type Writer struct {
	BuildRoot string
}

// NewWriter returns a Writer for buildRoot.
func NewWriter(buildRoot string) *Writer {
	return &Writer{BuildRoot: buildRoot}
}

// Write stores the record of stage, creating the result directory if needed.
func (w *Writer) Write(stage Stage, outcome Outcome) (string, error) {
	if err := os.MkdirAll(Dir(w.BuildRoot), 0o755); err != nil {
		return "", err
	}
	path := Path(w.BuildRoot, stage)
	data := Record{Name: stage, Outcome: outcome}.Marshal()
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// WriteOk stores a passing record of stage.
func (w *Writer) WriteOk(stage Stage) (string, error) {
	return w.Write(stage, Ok)
}

// WriteError stores a failing record of stage.
func (w *Writer) WriteError(stage Stage, message, detail string) (string, error) {
	return w.Write(stage, Error(message, detail))
}

// Remove deletes the record of stage if present.
func (w *Writer) Remove(stage Stage) error {
	err := os.Remove(Path(w.BuildRoot, stage))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

type xmlSuite struct {
	XMLName  xml.Name `xml:"testsuite"`
	Name     string   `xml:"name,attr"`
	TestCase []struct {
		ClassName string `xml:"classname,attr"`
		Name      string `xml:"name,attr"`
		Error     *struct {
			Message string `xml:"message,attr"`
			Type    string `xml:"type,attr"`
			Detail  string `xml:",chardata"`
		} `xml:"error"`
	} `xml:"testcase"`
}

// Parse decodes a record. It fails unless data holds exactly one test case
// named after its suite.
func Parse(data []byte) (Record, error) {
	var s xmlSuite
	if err := xml.Unmarshal(data, &s); err != nil {
		return Record{}, fmt.Errorf("failed to parse result record: %w", err)
	}
	if len(s.TestCase) != 1 {
		return Record{}, fmt.Errorf("result record %q has %d test cases, want 1", s.Name, len(s.TestCase))
	}
	tc := s.TestCase[0]
	if tc.Name != s.Name || tc.ClassName != s.Name {
		return Record{}, fmt.Errorf("result record %q: mismatched test case %q/%q", s.Name, tc.ClassName, tc.Name)
	}
	r := Record{Name: Stage(s.Name)}
	if tc.Error != nil {
		r.Outcome = Error(tc.Error.Message, tc.Error.Detail)
	}
	return r, nil
}

// Read loads the record of stage under buildRoot.
func Read(buildRoot string, stage Stage) (Record, error) {
	data, err := os.ReadFile(Path(buildRoot, stage))
	if err != nil {
		return Record{}, err
	}
	return Parse(data)
}
