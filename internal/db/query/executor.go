package query

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rebelice/kioskquery/internal/models"
)

// Executor runs compiled queries against a Postgres pool. It satisfies the
// engine's Executor interface.
type Executor struct {
	pool *pgxpool.Pool
}

// NewExecutor wraps a pgx pool
func NewExecutor(pool *pgxpool.Pool) *Executor {
	return &Executor{pool: pool}
}

// Execute runs a parameterized query and collects the result rows. Values
// bind positionally to the $n placeholders in sql.
func (e *Executor) Execute(ctx context.Context, sql string, args []interface{}) (models.QueryResult, error) {
	start := time.Now()

	rows, err := e.pool.Query(ctx, sql, args...)
	if err != nil {
		return models.QueryResult{}, err
	}
	defer rows.Close()

	fieldDescs := rows.FieldDescriptions()
	columns := make([]string, len(fieldDescs))
	for i, fd := range fieldDescs {
		columns[i] = string(fd.Name)
	}

	var result [][]string
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return models.QueryResult{}, err
		}

		row := make([]string, len(values))
		for i, v := range values {
			if v == nil {
				row[i] = "NULL"
			} else {
				row[i] = convertValueToString(v)
			}
		}
		result = append(result, row)
	}

	if err := rows.Err(); err != nil {
		return models.QueryResult{}, err
	}

	return models.QueryResult{
		Columns:  columns,
		Rows:     result,
		Count:    int64(len(result)),
		Duration: time.Since(start),
	}, nil
}

// convertValueToString converts a database value to string, handling JSONB
// properly
func convertValueToString(val interface{}) string {
	switch v := val.(type) {
	case map[string]interface{}, []interface{}:
		jsonBytes, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(jsonBytes)
	case []byte:
		// might be raw JSON bytes
		return string(v)
	default:
		return fmt.Sprintf("%v", val)
	}
}
