package sqlstore

import (
	"context"

	"ytharvest/internal/logging"
)

// Row is one result row keyed by column name.
type Row map[string]any

// Execute runs query as given and returns its rows in order. It never fails:
// any error is logged, counted, and reported as an empty result. Byte slices
// are returned as strings.
func (s *Store) Execute(ctx context.Context, query string) []Row {
	log := logging.FromContext(ctx).WithField("sql.driver", s.driver)

	rows, err := s.execute(ctx, query)
	if err != nil {
		log.WithError(err).WithField("sql.query", query).Error("query failed")
		s.metrics.ObserveQueryFailure()
		return []Row{}
	}
	return rows
}

func (s *Store) execute(ctx context.Context, query string) ([]Row, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	rows, err := conn.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	out := []Row{}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(Row, len(cols))
		for i, col := range cols {
			if b, ok := vals[i].([]byte); ok {
				row[col] = string(b)
				continue
			}
			row[col] = vals[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
