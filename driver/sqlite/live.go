package sqlite

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/seamlezz/livebridge/codec"
	"github.com/seamlezz/livebridge/driver"
)

const notifyFunc = "livebridge_notify"

var (
	liveRe  = regexp.MustCompile(`(?is)^LIVE\s+SELECT\s+(.+?)\s+FROM\s+([A-Za-z_][A-Za-z0-9_]*)(?:\s+WHERE\s+(.+))?$`)
	killRe  = regexp.MustCompile(`(?is)^KILL\s+(?:'([^']*)'|"([^"]*)"|\$([A-Za-z][A-Za-z0-9_]*))$`)
	identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// routes maps live ids to their feeds. The notify function is installed on
// every connection of the registered driver, so it is process-wide; live
// ids are uuids and never collide across databases.
var routes = &router{feeds: make(map[string]*feed)}

type router struct {
	feeds map[string]*feed
	mu    sync.RWMutex
}

func (r *router) add(id string, f *feed) {
	r.mu.Lock()
	r.feeds[id] = f
	r.mu.Unlock()
}

func (r *router) get(id string) *feed {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.feeds[id]
}

func (r *router) remove(ids ...string) {
	r.mu.Lock()
	for _, id := range ids {
		delete(r.feeds, id)
	}
	r.mu.Unlock()
}

// notify is the livebridge_notify SQL function called by live triggers.
// It never fails the statement that fired the trigger.
func notify(id, action, data string) int64 {
	f := routes.get(id)
	if f == nil {
		return 0
	}
	a, ok := driver.ParseAction(action)
	if !ok {
		Logger().Warn("unknown live action", zap.String("query_id", id), zap.String("action", action))
		return 0
	}
	v, err := decodeSnapshot(data)
	if err != nil {
		Logger().Warn("decode live snapshot", zap.String("query_id", id), zap.Error(err))
		return 0
	}
	f.push(driver.Notification{QueryID: id, Action: a, Result: v})
	return 0
}

type liveQuery struct {
	table string
	cond  string
	cols  []string
}

// parseLive reads LIVE SELECT <* | cols> FROM <table> [WHERE <cond>] and
// inlines the parameters of the condition as literals.
func parseLive(text string, vars codec.Object) (*liveQuery, error) {
	m := liveRe.FindStringSubmatch(text)
	if m == nil {
		return nil, fmt.Errorf("invalid LIVE statement: expected LIVE SELECT <fields> FROM <table> [WHERE <condition>]")
	}

	q := &liveQuery{table: m[2], cond: "1"}

	if fields := strings.TrimSpace(m[1]); fields != "*" {
		for _, field := range strings.Split(fields, ",") {
			field = strings.Trim(strings.TrimSpace(field), `"`)
			if !identRe.MatchString(field) {
				return nil, fmt.Errorf("invalid LIVE field %q", field)
			}
			q.cols = append(q.cols, field)
		}
	}

	if cond := strings.TrimSpace(m[3]); cond != "" {
		inlined, err := inline(cond, func(name string) (string, error) {
			lit, err := literal(vars[name])
			if err != nil {
				return "", fmt.Errorf("parameter $%s: %w", name, err)
			}
			return lit, nil
		})
		if err != nil {
			return nil, err
		}
		q.cond = inlined
	}

	return q, nil
}

func (db *DB) columns(ctx context.Context, table string) ([]string, error) {
	var cols []string
	if err := db.db.SelectContext(ctx, &cols, "SELECT name FROM pragma_table_info(?)", table); err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("no such table: %s", table)
	}
	return cols, nil
}

// validate prepares the trigger's projection and condition against the
// table so a bad LIVE statement fails here instead of inside later writes.
func (db *DB) validate(ctx context.Context, q *liveQuery) error {
	cols := make([]string, len(q.cols))
	for i, c := range q.cols {
		cols[i] = quoteIdent(c)
	}
	rows, err := db.db.QueryContext(ctx, fmt.Sprintf("SELECT %s FROM %s WHERE (%s) LIMIT 0",
		strings.Join(cols, ", "), quoteIdent(q.table), q.cond))
	if err != nil {
		return err
	}
	return rows.Close()
}

func triggerName(id, event string) string {
	return "livebridge_" + strings.ReplaceAll(id, "-", "") + "_" + event
}

// triggerSQL builds the three temp triggers of a live query. The condition
// is checked against the stored row by rowid; deletes fire before the row
// is gone so the check still sees it.
func triggerSQL(id string, q *liveQuery) []string {
	snapshot := func(row string) string {
		parts := make([]string, 0, 2*len(q.cols))
		for _, c := range q.cols {
			parts = append(parts, quoteLiteral(c), row+"."+quoteIdent(c))
		}
		return "json_object(" + strings.Join(parts, ", ") + ")"
	}

	trigger := func(action driver.Action, timing, event, row string) string {
		return fmt.Sprintf(
			"CREATE TEMP TRIGGER %s %s %s ON %s WHEN EXISTS (SELECT 1 FROM %s WHERE rowid = %s.rowid AND (%s)) "+
				"BEGIN SELECT %s(%s, %s, %s); END",
			quoteIdent(triggerName(id, action.String())), timing, event, quoteIdent(q.table),
			quoteIdent(q.table), row, q.cond,
			notifyFunc, quoteLiteral(id), quoteLiteral(action.String()), snapshot(row),
		)
	}

	return []string{
		trigger(driver.ActionCreate, "AFTER", "INSERT", "NEW"),
		trigger(driver.ActionUpdate, "AFTER", "UPDATE", "NEW"),
		trigger(driver.ActionDelete, "BEFORE", "DELETE", "OLD"),
	}
}

func dropSQL(id string) []string {
	actions := []driver.Action{driver.ActionCreate, driver.ActionUpdate, driver.ActionDelete}
	out := make([]string, len(actions))
	for i, a := range actions {
		out[i] = "DROP TRIGGER IF EXISTS temp." + quoteIdent(triggerName(id, a.String()))
	}
	return out
}

// live starts a live query and attaches its id to f.
func (db *DB) live(ctx context.Context, f *feed, st statement, vars codec.Object) (string, error) {
	q, err := parseLive(st.text, vars)
	if err != nil {
		return "", err
	}
	if q.cols == nil {
		if q.cols, err = db.columns(ctx, q.table); err != nil {
			return "", err
		}
	}
	if err := db.validate(ctx, q); err != nil {
		return "", err
	}

	id := uuid.NewString()
	f.add(id)
	routes.add(id, f)

	for _, stmt := range triggerSQL(id, q) {
		if _, err := db.db.ExecContext(ctx, stmt); err != nil {
			routes.remove(id)
			f.remove(id)
			db.drop(id)
			return "", err
		}
	}

	Logger().Debug("live query started", zap.String("query_id", id), zap.String("table", q.table))
	return id, nil
}

// kill stops the live query named by a KILL statement.
func (db *DB) kill(ctx context.Context, st statement, vars codec.Object) error {
	m := killRe.FindStringSubmatch(st.text)
	if m == nil {
		return fmt.Errorf("invalid KILL statement: expected KILL '<id>' or KILL $param")
	}

	id := m[1] + m[2]
	if name := m[3]; name != "" {
		s, ok := vars[name].(codec.String)
		if !ok {
			return fmt.Errorf("KILL parameter $%s is not a string", name)
		}
		id = string(s)
	}

	f := routes.get(id)
	if f == nil || f.db != db {
		return fmt.Errorf("Can not execute KILL statement using id '%s'", id)
	}

	for _, stmt := range dropSQL(id) {
		if _, err := db.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	routes.remove(id)
	f.kill(id)

	Logger().Debug("live query killed", zap.String("query_id", id))
	return nil
}

// drop removes the triggers of id, logging failures.
func (db *DB) drop(id string) {
	for _, stmt := range dropSQL(id) {
		if _, err := db.db.ExecContext(context.Background(), stmt); err != nil {
			Logger().Warn("drop live trigger", zap.String("query_id", id), zap.Error(err))
		}
	}
}
