package sqlite

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/seamlezz/livebridge/codec"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		name  string
		query string
		texts []string
		kinds []kind
	}{
		{
			name:  "three statements",
			query: "CREATE TABLE x (a); SELECT * FROM x; DELETE FROM x",
			texts: []string{"CREATE TABLE x (a)", "SELECT * FROM x", "DELETE FROM x"},
			kinds: []kind{kindExec, kindRows, kindExec},
		},
		{
			name:  "semicolons in quotes",
			query: `SELECT 'a;b'; SELECT "c;d" FROM [e;f]`,
			texts: []string{`SELECT 'a;b'`, `SELECT "c;d" FROM [e;f]`},
			kinds: []kind{kindRows, kindRows},
		},
		{
			name:  "escaped quote",
			query: "SELECT 'it''s; fine'",
			texts: []string{"SELECT 'it''s; fine'"},
			kinds: []kind{kindRows},
		},
		{
			name:  "comments",
			query: "SELECT 1; -- trailing; comment\nSELECT 2 /* x; y */",
			texts: []string{"SELECT 1", "SELECT 2"},
			kinds: []kind{kindRows, kindRows},
		},
		{
			name:  "empty statements",
			query: ";; SELECT 1 ;;",
			texts: []string{"SELECT 1"},
			kinds: []kind{kindRows},
		},
		{
			name:  "trigger body",
			query: "CREATE TRIGGER t AFTER INSERT ON x BEGIN UPDATE x SET a = 1; DELETE FROM y; END; SELECT 1",
			texts: []string{"CREATE TRIGGER t AFTER INSERT ON x BEGIN UPDATE x SET a = 1; DELETE FROM y; END", "SELECT 1"},
			kinds: []kind{kindExec, kindRows},
		},
		{
			name:  "temp trigger body",
			query: "create temp trigger t before delete on x begin select 1; end",
			texts: []string{"create temp trigger t before delete on x begin select 1; end"},
			kinds: []kind{kindExec},
		},
		{
			name:  "transaction control",
			query: "BEGIN TRANSACTION; COMMIT TRANSACTION; CANCEL TRANSACTION; ROLLBACK; ROLLBACK TO SAVEPOINT s; END",
			texts: []string{"BEGIN TRANSACTION", "COMMIT TRANSACTION", "CANCEL TRANSACTION", "ROLLBACK", "ROLLBACK TO SAVEPOINT s", "END"},
			kinds: []kind{kindBegin, kindCommit, kindCancel, kindCancel, kindExec, kindCommit},
		},
		{
			name:  "live and kill",
			query: "LIVE SELECT * FROM person; KILL 'abc'",
			texts: []string{"LIVE SELECT * FROM person", "KILL 'abc'"},
			kinds: []kind{kindLive, kindKill},
		},
		{
			name:  "row statements",
			query: "INSERT INTO t VALUES (1) RETURNING id; WITH c AS (SELECT 1) SELECT * FROM c; PRAGMA table_info(t); VALUES (1)",
			texts: []string{"INSERT INTO t VALUES (1) RETURNING id", "WITH c AS (SELECT 1) SELECT * FROM c", "PRAGMA table_info(t)", "VALUES (1)"},
			kinds: []kind{kindRows, kindRows, kindRows, kindRows},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stmts, err := split(tt.query)
			if err != nil {
				t.Fatalf("split() error: %v", err)
			}
			var texts []string
			var kinds []kind
			for _, st := range stmts {
				texts = append(texts, st.text)
				kinds = append(kinds, st.kind)
			}
			if !reflect.DeepEqual(texts, tt.texts) {
				t.Errorf("texts = %q, want %q", texts, tt.texts)
			}
			if !reflect.DeepEqual(kinds, tt.kinds) {
				t.Errorf("kinds = %v, want %v", kinds, tt.kinds)
			}
		})
	}
}

func TestSplit_Params(t *testing.T) {
	stmts, err := split("SELECT $a, $b, $a, '$c' FROM t WHERE x = $b; SELECT $d")
	if err != nil {
		t.Fatal(err)
	}
	if len(stmts) != 2 {
		t.Fatalf("got %d statements, want 2", len(stmts))
	}
	if want := []string{"a", "b"}; !reflect.DeepEqual(stmts[0].params, want) {
		t.Errorf("params = %v, want %v", stmts[0].params, want)
	}
	if want := []string{"d"}; !reflect.DeepEqual(stmts[1].params, want) {
		t.Errorf("params = %v, want %v", stmts[1].params, want)
	}
}

func TestSplit_Errors(t *testing.T) {
	tests := []struct {
		query string
		want  error
	}{
		{"SELECT 'abc", ErrUnterminatedQuote},
		{`SELECT "abc`, ErrUnterminatedQuote},
		{"SELECT [abc", ErrUnterminatedQuote},
		{"SELECT 1 /* open", ErrUnterminatedComment},
	}
	for _, tt := range tests {
		if _, err := split(tt.query); !errors.Is(err, tt.want) {
			t.Errorf("split(%q) error = %v, want %v", tt.query, err, tt.want)
		}
	}
}

func TestInline(t *testing.T) {
	got, err := inline(`id = $id AND name = '$id' AND "$id" = $other`, func(name string) (string, error) {
		return "<" + name + ">", nil
	})
	if err != nil {
		t.Fatal(err)
	}
	want := `id = <id> AND name = '$id' AND "$id" = <other>`
	if got != want {
		t.Errorf("inline() = %q, want %q", got, want)
	}

	boom := errors.New("boom")
	if _, err := inline("a = $x", func(string) (string, error) { return "", boom }); !errors.Is(err, boom) {
		t.Errorf("expected callback error, got %v", err)
	}
}

func TestLiteral(t *testing.T) {
	tests := []struct {
		in   codec.Value
		want string
	}{
		{nil, "NULL"},
		{codec.Null{}, "NULL"},
		{codec.Bool(true), "1"},
		{codec.Bool(false), "0"},
		{codec.Int(-5), "-5"},
		{codec.Float(1.5), "1.5"},
		{codec.String("it's"), "'it''s'"},
		{codec.Array{codec.Int(1), codec.String("a")}, `'[1,"a"]'`},
		{codec.Object{"k": codec.Bool(true)}, `'{"k":true}'`},
	}
	for _, tt := range tests {
		got, err := literal(tt.in)
		if err != nil {
			t.Errorf("literal(%#v) error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("literal(%#v) = %q, want %q", tt.in, got, tt.want)
		}
	}

	if _, err := literal(codec.Uint(1 << 63)); !errors.Is(err, ErrUnsignedRange) {
		t.Errorf("expected ErrUnsignedRange, got %v", err)
	}
}

func TestBindArgs(t *testing.T) {
	vars := codec.Object{"a": codec.Int(1), "big": codec.Uint(1 << 63)}

	args, err := bindArgs([]string{"a", "missing"}, vars)
	if err != nil {
		t.Fatal(err)
	}
	if len(args) != 2 {
		t.Fatalf("got %d args, want 2", len(args))
	}

	if _, err := bindArgs([]string{"big"}, vars); !errors.Is(err, ErrUnsignedRange) {
		t.Errorf("expected ErrUnsignedRange, got %v", err)
	}
}

func TestDecodeSnapshot(t *testing.T) {
	got, err := decodeSnapshot(`{"a":1,"b":1.5,"c":"x","d":null,"e":[2]}`)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]any{"a": int64(1), "b": 1.5, "c": "x", "d": nil, "e": []any{int64(2)}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("decodeSnapshot() = %#v, want %#v", got, want)
	}

	if _, err := decodeSnapshot("{"); err == nil {
		t.Error("expected error for truncated JSON")
	}
}

func TestParseLive(t *testing.T) {
	q, err := parseLive("LIVE SELECT * FROM person WHERE id = $id", codec.Object{"id": codec.String("person:demo")})
	if err != nil {
		t.Fatal(err)
	}
	if q.table != "person" || q.cols != nil || q.cond != "id = 'person:demo'" {
		t.Errorf("parseLive() = %+v", q)
	}

	q, err = parseLive(`live select name, "age" from person`, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(q.cols, []string{"name", "age"}) || q.cond != "1" {
		t.Errorf("parseLive() = %+v", q)
	}

	for _, bad := range []string{
		"LIVE SELECT FROM person",
		"LIVE SELECT * FROM person WHERE",
		"LIVE SELECT a + b FROM person",
	} {
		if _, err := parseLive(bad, nil); err == nil {
			t.Errorf("parseLive(%q) expected error", bad)
		}
	}

	if _, err := parseLive("LIVE SELECT * FROM t WHERE n = $n", codec.Object{"n": codec.Uint(1 << 63)}); !errors.Is(err, ErrUnsignedRange) {
		t.Errorf("expected ErrUnsignedRange, got %v", err)
	}
}

func TestTriggerSQL(t *testing.T) {
	id := "0b6b6c4e-1f39-4c43-9d5e-8f1e2d3c4b5a"
	stmts := triggerSQL(id, &liveQuery{table: "person", cols: []string{"id", "name"}, cond: "id = 'x'"})
	if len(stmts) != 3 {
		t.Fatalf("got %d triggers, want 3", len(stmts))
	}

	checks := []string{
		`CREATE TEMP TRIGGER "livebridge_0b6b6c4e1f394c439d5e8f1e2d3c4b5a_create" AFTER INSERT ON "person"`,
		`CREATE TEMP TRIGGER "livebridge_0b6b6c4e1f394c439d5e8f1e2d3c4b5a_update" AFTER UPDATE ON "person"`,
		`CREATE TEMP TRIGGER "livebridge_0b6b6c4e1f394c439d5e8f1e2d3c4b5a_delete" BEFORE DELETE ON "person"`,
	}
	for i, prefix := range checks {
		if !strings.HasPrefix(stmts[i], prefix) {
			t.Errorf("trigger %d = %q, want prefix %q", i, stmts[i], prefix)
		}
	}
	if !strings.Contains(stmts[0], `json_object('id', NEW."id", 'name', NEW."name")`) {
		t.Errorf("create trigger snapshot: %s", stmts[0])
	}
	if !strings.Contains(stmts[2], `rowid = OLD.rowid AND (id = 'x')`) {
		t.Errorf("delete trigger condition: %s", stmts[2])
	}
	if !strings.HasSuffix(stmts[1], "END") {
		t.Errorf("trigger should end with END: %s", stmts[1])
	}
}
