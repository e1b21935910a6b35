package store

import (
	"database/sql"

	"github.com/wirelane/drawbridge/internal/model"
	"github.com/wirelane/drawbridge/internal/xerrors"
)

func scanNode(row interface{ Scan(dest ...any) error }) (model.GatewayNode, error) {
	var n model.GatewayNode
	if err := row.Scan(&n.ID, &n.ProxyID, &n.Title, &n.AltTarget, &n.Priority); err != nil {
		return model.GatewayNode{}, err
	}
	return n, nil
}

func (s *Store) ListGatewayNodes(proxyID string) ([]model.GatewayNode, error) {
	rows, err := s.db.Query(`SELECT id, proxy_id, title, alt_target, priority FROM gateway_nodes WHERE proxy_id = ? ORDER BY priority DESC`, proxyID)
	if err != nil {
		return nil, xerrors.NewStorageError(err)
	}
	defer rows.Close()

	var out []model.GatewayNode
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, xerrors.NewStorageError(err)
		}
		out = append(out, n)
	}
	return out, nil
}

func (s *Store) ListAllGatewayNodes() ([]model.GatewayNode, error) {
	rows, err := s.db.Query(`SELECT id, proxy_id, title, alt_target, priority FROM gateway_nodes ORDER BY id`)
	if err != nil {
		return nil, xerrors.NewStorageError(err)
	}
	defer rows.Close()

	var out []model.GatewayNode
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, xerrors.NewStorageError(err)
		}
		out = append(out, n)
	}
	return out, nil
}

func (s *Store) GetGatewayNode(id string) (*model.GatewayNode, error) {
	row := s.db.QueryRow(`SELECT id, proxy_id, title, alt_target, priority FROM gateway_nodes WHERE id = ?`, id)
	n, err := scanNode(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, xerrors.NewStorageError(err)
	}
	return &n, nil
}

// PutGatewayNode inserts or updates a GatewayNode. When alt_target changes on
// an existing node, every Proxy whose high_speed_gwid points at it has its
// resolved high_speed_addr refreshed in the same call.
func (s *Store) PutGatewayNode(n model.GatewayNode) (model.GatewayNode, error) {
	if n.ID == "" {
		n.ID = model.NewID()
	}

	existing, err := s.GetGatewayNode(n.ID)
	if err != nil {
		return model.GatewayNode{}, err
	}
	if existing == nil {
		_, err = s.db.Exec(`INSERT INTO gateway_nodes (id, proxy_id, title, alt_target, priority) VALUES (?, ?, ?, ?, ?)`,
			n.ID, n.ProxyID, n.Title, n.AltTarget, n.Priority)
	} else {
		_, err = s.db.Exec(`UPDATE gateway_nodes SET proxy_id = ?, title = ?, alt_target = ?, priority = ? WHERE id = ?`,
			n.ProxyID, n.Title, n.AltTarget, n.Priority, n.ID)
	}
	if err != nil {
		return model.GatewayNode{}, xerrors.NewStorageError(err)
	}

	if existing == nil || existing.AltTarget != n.AltTarget {
		if err := s.recomputeHighSpeedAddrsFor(n.ID, n.AltTarget); err != nil {
			return model.GatewayNode{}, err
		}
	}
	return n, nil
}

// DeleteGatewayNode removes a GatewayNode and cascades to its Gateways.
func (s *Store) DeleteGatewayNode(id string) error {
	if _, err := s.db.Exec(`DELETE FROM gateways WHERE gwnode_id = ?`, id); err != nil {
		return xerrors.NewStorageError(err)
	}
	if _, err := s.db.Exec(`DELETE FROM gateway_nodes WHERE id = ?`, id); err != nil {
		return xerrors.NewStorageError(err)
	}
	return nil
}
