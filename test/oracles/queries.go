package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Oracle struct {
	Name string
	SQL  string
}

// All returns invariant checks; each query must return no rows.
func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_unique_case_number",
			SQL: `SELECT case_number, COUNT(*) FROM dispute_cases
                  GROUP BY case_number HAVING COUNT(*) > 1`,
		},
		{
			Name: "O2_orphan_children",
			SQL: `SELECT 'task' AS kind, t.id FROM dispute_tasks t
                  LEFT JOIN dispute_cases c ON c.id = t.case_id WHERE c.id IS NULL
                  UNION ALL
                  SELECT 'note', n.id FROM dispute_notes n
                  LEFT JOIN dispute_cases c ON c.id = n.case_id WHERE c.id IS NULL
                  UNION ALL
                  SELECT 'evidence', e.id FROM dispute_evidence e
                  LEFT JOIN dispute_cases c ON c.id = e.case_id WHERE c.id IS NULL`,
		},
		{
			Name: "O3_case_number_format",
			SQL: `SELECT id, case_number FROM dispute_cases
                  WHERE case_number = ''
                     OR case_number <> btrim(case_number)
                     OR (case_number LIKE 'SD-%' AND case_number !~ '^SD-[0-9A-F]{8}$' AND case_number !~ '^SD-P[0-9]{7}$')`,
		},
		{
			Name: "O4_vocabulary",
			SQL: `SELECT id, status, category, severity FROM dispute_cases
                  WHERE status NOT IN ('draft','open','under_review','awaiting_customer','resolved','closed')
                     OR category NOT IN ('billing','service_quality','damage','refund','compliance','other')
                     OR severity NOT IN ('low','medium','high','critical')`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and sample row text) or empty name if all pass.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		has := rows.Next()
		if has {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
	}
	return "", "", nil
}
