// Package postgres implements query and exec against PostgreSQL.
// Statements take positional parameters only; values are never
// interpolated into SQL text.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/url"

	_ "github.com/lib/pq" // PostgreSQL driver registration

	"github.com/opsgate/opsgate/internal/profile"
	"github.com/opsgate/opsgate/internal/tool"
)

// MaxRows bounds how many rows a query returns.
const MaxRows = 500

// Handler runs SQL against PostgreSQL databases.
type Handler struct {
	profiles *profile.Store
}

// New creates the postgres handler.
func New(profiles *profile.Store) *Handler {
	return &Handler{profiles: profiles}
}

func (h *Handler) Name() string        { return "mcp_postgres" }
func (h *Handler) Description() string { return "Query and execute SQL against PostgreSQL" }

func (h *Handler) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"statement": {"type": "string"},
			"params": {"type": "array"},
			"profile": {"type": "string"},
			"dsn": {"type": "string"},
			"host": {"type": "string"},
			"port": {"type": "integer"},
			"user": {"type": "string"},
			"password": {"type": "string"},
			"dbname": {"type": "string"},
			"sslmode": {"type": "string"}
		},
		"required": ["statement"],
		"additionalProperties": true
	}`)
}

// Example implements tool.Exampler.
func (h *Handler) Example() map[string]any {
	return map[string]any{
		"profile":   "reporting",
		"statement": "SELECT id, name FROM customers WHERE region = $1",
		"params":    []any{"emea"},
	}
}

func (h *Handler) Execute(ctx context.Context, call tool.ResolvedCall) (any, error) {
	args := tool.Args(call.Args)

	if name, err := args.String("profile"); err != nil {
		return nil, err
	} else if name != "" {
		if h.profiles == nil {
			return nil, tool.NotFound("profile_unknown", "no profile store is configured")
		}
		p, err := h.profiles.Export(name)
		if err != nil {
			return nil, err
		}
		args = tool.Args(tool.FillMissing(args, p.Data))
	}

	statement, err := args.RequiredString("statement")
	if err != nil {
		return nil, err
	}
	params, err := paramsArg(args)
	if err != nil {
		return nil, err
	}
	dsn, err := resolveDSN(args)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, tool.InvalidArgs("dsn_invalid", "opening database: %s", err.Error())
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	switch call.Action {
	case "", "query":
		return h.query(ctx, db, statement, params)
	case "exec":
		return h.exec(ctx, db, statement, params)
	default:
		return nil, tool.InvalidArgs("action_unknown", "postgres supports query and exec, not %q", call.Action)
	}
}

func (h *Handler) query(ctx context.Context, db *sql.DB, statement string, params []any) (any, error) {
	rows, err := db.QueryContext(ctx, statement, params...)
	if err != nil {
		return nil, upstream(ctx, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, tool.Upstream("pg_query", false, "reading columns: %s", err.Error())
	}

	var out []map[string]any
	truncated := false
	for rows.Next() {
		if len(out) == MaxRows {
			truncated = true
			break
		}
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, tool.Upstream("pg_query", false, "scanning row: %s", err.Error())
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, upstream(ctx, err)
	}
	if out == nil {
		out = []map[string]any{}
	}
	return map[string]any{
		"columns":   columns,
		"rows":      out,
		"row_count": len(out),
		"truncated": truncated,
	}, nil
}

func (h *Handler) exec(ctx context.Context, db *sql.DB, statement string, params []any) (any, error) {
	result, err := db.ExecContext(ctx, statement, params...)
	if err != nil {
		return nil, upstream(ctx, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		affected = -1
	}
	return map[string]any{"rows_affected": affected}, nil
}

func upstream(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return tool.Timeout("deadline_exceeded", "statement did not finish in time")
	}
	return tool.Upstream("pg_statement", false, "executing statement: %s", err.Error())
}

func paramsArg(args tool.Args) ([]any, error) {
	raw, ok := args["params"]
	if !ok || raw == nil {
		return nil, nil
	}
	params, ok := raw.([]any)
	if !ok {
		return nil, tool.InvalidArgs("arg_type", "argument \"params\" must be an array")
	}
	return params, nil
}

// resolveDSN uses an explicit dsn when present, otherwise builds one
// from the discrete connection fields.
func resolveDSN(args tool.Args) (string, error) {
	dsn, err := args.String("dsn")
	if err != nil {
		return "", err
	}
	if dsn != "" {
		return dsn, nil
	}

	host, err := args.String("host")
	if err != nil {
		return "", err
	}
	if host == "" {
		return "", tool.InvalidArgs("arg_missing", "either dsn or host is required")
	}
	port, err := args.Int("port", 5432)
	if err != nil {
		return "", err
	}
	user, err := args.String("user")
	if err != nil {
		return "", err
	}
	password, err := args.String("password")
	if err != nil {
		return "", err
	}
	dbname, err := args.String("dbname")
	if err != nil {
		return "", err
	}
	sslmode, err := args.String("sslmode")
	if err != nil {
		return "", err
	}
	if sslmode == "" {
		sslmode = "require"
	}

	u := url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", host, port),
		Path:   "/" + dbname,
	}
	if user != "" {
		if password != "" {
			u.User = url.UserPassword(user, password)
		} else {
			u.User = url.User(user)
		}
	}
	q := url.Values{}
	q.Set("sslmode", sslmode)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
