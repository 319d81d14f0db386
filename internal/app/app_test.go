package app

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"textingest/internal/etl"
)

const fixedSchema = `name: people
version: 2
file_type: fixed
destination: repository
storage_name: people
fields:
  - name: name
    position: 1
    size: 5
    field_type: string
  - name: age
    position: 6
    size: 3
    field_type: integer
`

func setupEnv(t *testing.T) (dir, repoPath string) {
	t.Helper()
	dir = t.TempDir()
	repoPath = filepath.Join(dir, "repo.db")
	t.Setenv("HISTORY_DB", filepath.Join(dir, "history.db"))
	t.Setenv("REPOSITORY_DRIVER", "sqlite")
	t.Setenv("REPOSITORY_DSN", repoPath)
	t.Setenv("LOG_LEVEL", "error")
	return dir, repoPath
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	st := &cliState{}
	defer st.close()
	cmd := newRootCmd(st)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := withExitCode(cmd.Execute())
	return out.String(), err
}

func write(t *testing.T, path, content string) string {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func exitCodeOf(err error) int {
	var ec interface{ ExitCode() int }
	if errors.As(err, &ec) {
		return ec.ExitCode()
	}
	return 0
}

func TestRunCommandDeliversToSQLiteRepository(t *testing.T) {
	dir, repoPath := setupEnv(t)
	schemaPath := write(t, filepath.Join(dir, "people.yaml"), fixedSchema)
	dataPath := write(t, filepath.Join(dir, "people.txt"), "Ann   30\nBob    x\nCid   41\n")

	out, err := execute(t, "run", schemaPath, dataPath, "--json")
	if err != nil {
		t.Fatalf("run: %v\n%s", err, out)
	}
	var summary etl.RunSummary
	if err := json.Unmarshal([]byte(out), &summary); err != nil {
		t.Fatalf("summary is not JSON: %v\n%s", err, out)
	}
	if summary.LinesRead != 3 || summary.Decoded != 2 || summary.Delivered[etl.SinkRepository] != 2 {
		t.Errorf("unexpected summary: %+v", summary)
	}

	db, err := sql.Open("sqlite", repoPath)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM people`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("expected 2 stored documents, got %d", n)
	}

	out, err = execute(t, "history", "--json")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if !strings.Contains(out, `"status": "partial"`) {
		t.Errorf("history missing run: %s", out)
	}
}

func TestRunCommandExitCodes(t *testing.T) {
	dir, _ := setupEnv(t)
	good := write(t, filepath.Join(dir, "people.yaml"), fixedSchema)
	bad := write(t, filepath.Join(dir, "bad.json"), `{"name":"x","file_type":"csv","destination":"queue","storage_name":"q","fields":[{"name":"a","position":1,"size":1,"field_type":"string"}]}`)
	data := write(t, filepath.Join(dir, "data.txt"), "Ann   30\n")

	_, err := execute(t, "run", bad, data)
	if code := exitCodeOf(err); code != ExitSchemaError {
		t.Errorf("schema error: exit %d (%v)", code, err)
	}

	_, err = execute(t, "run", good, filepath.Join(dir, "missing.txt"))
	if code := exitCodeOf(err); code != ExitFatalIO {
		t.Errorf("missing data: exit %d (%v)", code, err)
	}

	_, err = execute(t, "run", good)
	if code := exitCodeOf(err); code != ExitFailure {
		t.Errorf("bad args: exit %d (%v)", code, err)
	}
}

func TestValidateAndPreviewCommands(t *testing.T) {
	dir, _ := setupEnv(t)
	schemaPath := write(t, filepath.Join(dir, "people.yaml"), fixedSchema)
	dataPath := write(t, filepath.Join(dir, "people.txt"), "Ann   30\nBob   31\nCid   41\n")

	out, err := execute(t, "validate", schemaPath)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !strings.Contains(out, "schema people (version 2)") || !strings.Contains(out, "age") {
		t.Errorf("unexpected validate output:\n%s", out)
	}

	out, err = execute(t, "preview", schemaPath, dataPath, "--limit", "2")
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	var rows []struct {
		Line   int            `json:"line"`
		Record map[string]any `json:"record"`
	}
	if err := json.Unmarshal([]byte(out), &rows); err != nil {
		t.Fatalf("preview output is not JSON: %v\n%s", err, out)
	}
	if len(rows) != 2 || rows[1].Line != 2 || rows[1].Record["age"] != float64(31) {
		t.Errorf("unexpected preview rows: %+v", rows)
	}
}

func TestWithExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&etl.SchemaError{Kind: etl.ErrMalformed}, ExitSchemaError},
		{fmt.Errorf("load: %w", &etl.SchemaError{Kind: etl.ErrEmptyFields}), ExitSchemaError},
		{&etl.FatalIOError{Source: "x", Err: os.ErrNotExist}, ExitFatalIO},
		{errors.New("boom"), ExitFailure},
	}
	for _, tt := range tests {
		if got := exitCodeOf(withExitCode(tt.err)); got != tt.want {
			t.Errorf("%v: got %d, want %d", tt.err, got, tt.want)
		}
	}
	if withExitCode(nil) != nil {
		t.Error("nil error should stay nil")
	}
}

func TestPrintSummary(t *testing.T) {
	schema := &etl.Schema{Name: "people", Destination: etl.DestinationBoth}
	s := etl.NewRunSummary(schema, "people.csv")
	s.LinesRead, s.Decoded, s.DecodeFailed = 2, 1, 1
	s.Delivered[etl.SinkQueue] = 1
	s.DeliveryFailed[etl.SinkRepository] = 1
	s.Failures = []etl.Failure{{Line: 2, Stage: "decode", Fields: []string{"age"}, Message: "type mismatch"}}

	var buf bytes.Buffer
	printSummary(&buf, s)
	out := buf.String()
	for _, want := range []string{"status:        partial", "queue:", "repository:", "line 2 decode [age]: type mismatch"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
