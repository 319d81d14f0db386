package etl_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"textingest/internal/etl"
)

func linesOf(text string) etl.LineSource {
	return etl.NewLineReader("test.csv", io.NopCloser(strings.NewReader(text)))
}

func repoSchema(t *testing.T) *etl.Schema {
	return mustParse(t, peopleJSON)
}

func TestRunScenarios(t *testing.T) {
	tests := []struct {
		name                             string
		input                            string
		read, decoded, failed, delivered int
	}{
		{"decoded and stored", "34,Lisbon\n", 1, 1, 0, 1},
		{"type mismatch", "thirtyfour,Lisbon\n", 1, 0, 1, 0},
		{"mixed", "34,Lisbon\nx,Porto\n\n51,Faro", 4, 2, 2, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &recordingRepo{}
			engine := &etl.Engine{Dispatcher: &etl.Dispatcher{Sinks: &etl.Sinks{Repository: repo}}}

			summary, err := engine.Run(context.Background(), repoSchema(t), linesOf(tt.input))
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if summary.LinesRead != tt.read || summary.Decoded != tt.decoded ||
				summary.DecodeFailed != tt.failed || summary.Delivered[etl.SinkRepository] != tt.delivered {
				t.Errorf("summary = %+v", summary)
			}
			if len(repo.docs) != tt.delivered {
				t.Errorf("repository received %d documents", len(repo.docs))
			}
			if _, ok := summary.Delivered[etl.SinkQueue]; ok {
				t.Error("queue should not appear for a repository-only schema")
			}
		})
	}
}

func TestRunRecordsFailureDetails(t *testing.T) {
	engine := &etl.Engine{Dispatcher: &etl.Dispatcher{Sinks: &etl.Sinks{Repository: &recordingRepo{}}}}
	summary, err := engine.Run(context.Background(), repoSchema(t), linesOf("34,Lisbon\nx\n"))
	if err != nil {
		t.Fatal(err)
	}
	if len(summary.Failures) != 1 {
		t.Fatalf("failures = %+v", summary.Failures)
	}
	f := summary.Failures[0]
	if f.Line != 2 || f.Stage != "decode" || strings.Join(f.Fields, ",") != "age,city" {
		t.Errorf("unexpected failure: %+v", f)
	}
	if summary.Status() != etl.StatusPartial {
		t.Errorf("status = %s", summary.Status())
	}
}

func TestRunPreservesOrderWithSmallBuffer(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 200; i++ {
		b.WriteString("1,c\n")
	}
	repo := &recordingRepo{}
	engine := &etl.Engine{Dispatcher: &etl.Dispatcher{Sinks: &etl.Sinks{Repository: repo}}, Buffer: 1}

	summary, err := engine.Run(context.Background(), repoSchema(t), linesOf(b.String()))
	if err != nil {
		t.Fatal(err)
	}
	if summary.Status() != etl.StatusSuccess || summary.Delivered[etl.SinkRepository] != 200 {
		t.Fatalf("summary = %+v", summary)
	}
	for i, line := range repo.lines {
		if line != i+1 {
			t.Fatalf("delivery %d came from line %d", i, line)
		}
	}
}

func TestRunCapsFailureDetails(t *testing.T) {
	engine := &etl.Engine{Dispatcher: &etl.Dispatcher{Sinks: &etl.Sinks{Repository: &recordingRepo{}}}, MaxFailures: 2}
	summary, err := engine.Run(context.Background(), repoSchema(t), linesOf("a\nb\nc\nd\n"))
	if err != nil {
		t.Fatal(err)
	}
	if summary.DecodeFailed != 4 || len(summary.Failures) != 2 || summary.OmittedFailures != 2 {
		t.Errorf("decodeFailed=%d failures=%d omitted=%d", summary.DecodeFailed, len(summary.Failures), summary.OmittedFailures)
	}
}

type failingReader struct {
	data string
	done bool
}

func (r *failingReader) Read(p []byte) (int, error) {
	if r.done {
		return 0, errors.New("disk on fire")
	}
	r.done = true
	return copy(p, r.data), nil
}

func TestRunFatalReadError(t *testing.T) {
	repo := &recordingRepo{}
	engine := &etl.Engine{Dispatcher: &etl.Dispatcher{Sinks: &etl.Sinks{Repository: repo}}}
	src := etl.NewLineReader("broken.csv", io.NopCloser(&failingReader{data: "34,Lisbon\n35,Porto\n"}))

	summary, err := engine.Run(context.Background(), repoSchema(t), src)
	var fe *etl.FatalIOError
	if !errors.As(err, &fe) {
		t.Fatalf("expected *etl.FatalIOError, got %v", err)
	}
	if fe.Line != 2 {
		t.Errorf("expected failure after line 2, got %d", fe.Line)
	}
	if summary == nil || summary.LinesRead != 2 || len(repo.docs) != 2 {
		t.Errorf("lines read before the failure should still be delivered: %+v", summary)
	}
}

func TestPreview(t *testing.T) {
	repo := &recordingRepo{}
	engine := &etl.Engine{Dispatcher: &etl.Dispatcher{Sinks: &etl.Sinks{Repository: repo}}}

	records, err := engine.Preview(context.Background(), repoSchema(t), linesOf("1,a\n2,b\n3,c\n"), 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 || records[1].Line != 2 {
		t.Errorf("records = %+v", records)
	}
	if len(repo.docs) != 0 {
		t.Error("preview must not dispatch")
	}
}
