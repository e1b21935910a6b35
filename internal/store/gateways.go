package store

import (
	"database/sql"
	"regexp"

	"github.com/wirelane/drawbridge/internal/model"
	"github.com/wirelane/drawbridge/internal/xerrors"
)

// gatewayRow carries the insertion-sequence alongside the public fields so
// callers can break priority ties in the order rows were created.
type gatewayRow struct {
	model.Gateway
	Seq int64
}

func scanGateway(row interface{ Scan(dest ...any) error }) (gatewayRow, error) {
	var g gatewayRow
	if err := row.Scan(&g.ID, &g.GwNodeID, &g.Pattern, &g.Target, &g.Priority, &g.Seq); err != nil {
		return gatewayRow{}, err
	}
	return g, nil
}

// ListGateways returns the rules for one node ordered by priority ascending,
// insertion order breaking ties.
func (s *Store) ListGateways(gwNodeID string) ([]model.Gateway, error) {
	rows, err := s.db.Query(`SELECT id, gwnode_id, pattern, target, priority, seq FROM gateways WHERE gwnode_id = ? ORDER BY priority ASC, seq ASC`, gwNodeID)
	if err != nil {
		return nil, xerrors.NewStorageError(err)
	}
	defer rows.Close()

	var out []model.Gateway
	for rows.Next() {
		g, err := scanGateway(rows)
		if err != nil {
			return nil, xerrors.NewStorageError(err)
		}
		out = append(out, g.Gateway)
	}
	return out, nil
}

// ListAllGatewaysOrdered returns every rule across every node, ordered by
// priority then insertion sequence — the order the Rule Index builder
// consumes directly.
func (s *Store) ListAllGatewaysOrdered() ([]model.Gateway, error) {
	rows, err := s.db.Query(`SELECT id, gwnode_id, pattern, target, priority, seq FROM gateways ORDER BY priority ASC, seq ASC`)
	if err != nil {
		return nil, xerrors.NewStorageError(err)
	}
	defer rows.Close()

	var out []model.Gateway
	for rows.Next() {
		g, err := scanGateway(rows)
		if err != nil {
			return nil, xerrors.NewStorageError(err)
		}
		out = append(out, g.Gateway)
	}
	return out, nil
}

func (s *Store) GetGateway(id string) (*model.Gateway, error) {
	row := s.db.QueryRow(`SELECT id, gwnode_id, pattern, target, priority, seq FROM gateways WHERE id = ?`, id)
	g, err := scanGateway(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, xerrors.NewStorageError(err)
	}
	return &g.Gateway, nil
}

// PutGateway inserts or updates a rule. A pattern that fails to compile is
// rejected here, before it ever reaches the store — the Rule Index only
// has to cope with patterns that change meaning between compile and use,
// not with syntactically invalid ones.
func (s *Store) PutGateway(g model.Gateway) (model.Gateway, error) {
	if _, err := regexp.Compile(g.Pattern); err != nil {
		return model.Gateway{}, xerrors.NewConfigInvalid("invalid pattern: " + err.Error())
	}

	if g.ID == "" {
		g.ID = model.NewID()
	}

	existing, err := s.GetGateway(g.ID)
	if err != nil {
		return model.Gateway{}, err
	}
	if existing == nil {
		seq := s.nextSeq()
		_, err = s.db.Exec(`INSERT INTO gateways (id, gwnode_id, pattern, target, priority, seq) VALUES (?, ?, ?, ?, ?, ?)`,
			g.ID, g.GwNodeID, g.Pattern, g.Target, g.Priority, seq)
	} else {
		_, err = s.db.Exec(`UPDATE gateways SET gwnode_id = ?, pattern = ?, target = ?, priority = ? WHERE id = ?`,
			g.GwNodeID, g.Pattern, g.Target, g.Priority, g.ID)
	}
	if err != nil {
		return model.Gateway{}, xerrors.NewStorageError(err)
	}
	return g, nil
}

func (s *Store) DeleteGateway(id string) error {
	if _, err := s.db.Exec(`DELETE FROM gateways WHERE id = ?`, id); err != nil {
		return xerrors.NewStorageError(err)
	}
	return nil
}
