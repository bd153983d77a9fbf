package result

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestMarshalOk(t *testing.T) {
	got := string(Record{Name: StageDump, Outcome: Ok}.Marshal())
	want := "<testsuite name=\"abi_dump\">\n" +
		" <testcase classname=\"abi_dump\" name=\"abi_dump\"/>\n" +
		"</testsuite>\n"
	if got != want {
		t.Errorf("Marshal() =\n%s\nwant\n%s", got, want)
	}
}

func TestMarshalError(t *testing.T) {
	got := string(Record{Name: StageCheck, Outcome: Error(MsgCheckFailed, "")}.Marshal())
	want := "<testsuite name=\"abi_check\">\n" +
		"    <testcase classname=\"abi_check\" name=\"abi_check\">\n" +
		"        <error message=\"Abi check failed, consult the checker output.\" type=\"Error\"></error>\n" +
		"    </testcase>\n" +
		"</testsuite>\n"
	if got != want {
		t.Errorf("Marshal() =\n%s\nwant\n%s", got, want)
	}
}

func TestWriteCreatesDir(t *testing.T) {
	root := filepath.Join(t.TempDir(), "build")
	w := NewWriter(root)
	path, err := w.WriteOk(StageDump)
	if err != nil {
		t.Fatalf("WriteOk() error = %v", err)
	}
	if want := filepath.Join(root, "test", "result", "test_abi_dump.xml"); path != want {
		t.Errorf("path = %q, want %q", path, want)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read record: %v", err)
	}
	if bytes.Contains(data, []byte("<error")) {
		t.Errorf("ok record contains an error element:\n%s", data)
	}
}

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		stage   Stage
		outcome Outcome
	}{
		{"dump ok", StageDump, Ok},
		{"check ok", StageCheck, Ok},
		{"dump failed", StageDump, Error(MsgDumpFailed, "")},
		{"check failed", StageCheck, Error(MsgCheckFailed, "")},
		{"aborted with detail", StageCheck, Error(MsgCheckAborted, "reference abi dump file not found: <root>/\"a&b\"\nline 2")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewWriter(t.TempDir())
			path, err := w.Write(tt.stage, tt.outcome)
			if err != nil {
				t.Fatalf("Write() error = %v", err)
			}
			written, _ := os.ReadFile(path)

			rec, err := Read(w.BuildRoot, tt.stage)
			if err != nil {
				t.Fatalf("Read() error = %v", err)
			}
			if rec.Name != tt.stage {
				t.Errorf("Name = %q, want %q", rec.Name, tt.stage)
			}
			if rec.Outcome.IsOk() != tt.outcome.IsOk() {
				t.Fatalf("IsOk = %v, want %v", rec.Outcome.IsOk(), tt.outcome.IsOk())
			}
			if !tt.outcome.IsOk() && *rec.Outcome.Failure != *tt.outcome.Failure {
				t.Errorf("Failure = %+v, want %+v", *rec.Outcome.Failure, *tt.outcome.Failure)
			}
			if again := rec.Marshal(); !bytes.Equal(again, written) {
				t.Errorf("re-rendered record differs:\n%s\nwant\n%s", again, written)
			}
		})
	}
}

func TestParseRejectsForeignSuites(t *testing.T) {
	tests := map[string]string{
		"two cases":  `<testsuite name="a"><testcase classname="a" name="a"/><testcase classname="a" name="a"/></testsuite>`,
		"no cases":   `<testsuite name="a"></testsuite>`,
		"mismatched": `<testsuite name="a"><testcase classname="a" name="b"/></testsuite>`,
		"not xml":    `garbage`,
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(data)); err == nil {
				t.Error("Parse() expected error")
			}
		})
	}
}

func TestRemove(t *testing.T) {
	w := NewWriter(t.TempDir())
	if err := w.Remove(StageCheck); err != nil {
		t.Fatalf("Remove() of absent record error = %v", err)
	}
	path, _ := w.WriteError(StageCheck, MsgCheckFailed, "")
	if err := w.Remove(StageCheck); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("record still present: %v", err)
	}
}

func TestMessages(t *testing.T) {
	if FailedMessage(StageDump) != MsgDumpFailed || FailedMessage(StageCheck) != MsgCheckFailed {
		t.Error("FailedMessage mismatch")
	}
	if !strings.Contains(AbortedMessage(StageDump), "dump") || !strings.Contains(AbortedMessage(StageCheck), "check") {
		t.Error("AbortedMessage mismatch")
	}
}
