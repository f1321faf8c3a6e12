package leads

import (
	"context"
	"fmt"
)

// Import inserts the whole batch in one transaction: either every lead is stored or none is
func (s *dbStorage) Import(ctx context.Context, ins []Input) ([]*Lead, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("leads: import: begin: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareNamedContext(ctx, leadsInsert)
	if err != nil {
		return nil, fmt.Errorf("leads: import: prepare: %w", err)
	}
	defer stmt.Close()

	res := make([]*Lead, 0, len(ins))
	for i, in := range ins {
		l := &Lead{}
		if err := stmt.QueryRowxContext(ctx, in).StructScan(l); err != nil {
			return nil, fmt.Errorf("leads: import: row %d: %w", i, err)
		}
		res = append(res, l)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("leads: import: commit: %w", err)
	}
	committed = true

	s.log.debug(ctx, "imported %d leads", len(res))
	return res, nil
}
