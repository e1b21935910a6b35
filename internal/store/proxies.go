package store

import (
	"database/sql"

	"github.com/wirelane/drawbridge/internal/model"
	"github.com/wirelane/drawbridge/internal/xerrors"
)

func scanProxy(row interface {
	Scan(dest ...any) error
}) (model.Proxy, error) {
	var p model.Proxy
	var highSpeed int
	var addr, gwid sql.NullString
	if err := row.Scan(&p.ID, &p.Title, &p.AddrListen, &highSpeed, &addr, &gwid); err != nil {
		return model.Proxy{}, err
	}
	p.HighSpeed = highSpeed != 0
	p.HighSpeedAddr = addr.String
	p.HighSpeedGwID = gwid.String
	return p, nil
}

func (s *Store) ListProxies() ([]model.Proxy, error) {
	rows, err := s.db.Query(`SELECT id, title, addr_listen, high_speed, high_speed_addr, high_speed_gwid FROM proxies ORDER BY id`)
	if err != nil {
		return nil, xerrors.NewStorageError(err)
	}
	defer rows.Close()

	var out []model.Proxy
	for rows.Next() {
		p, err := scanProxy(rows)
		if err != nil {
			return nil, xerrors.NewStorageError(err)
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *Store) GetProxy(id string) (*model.Proxy, error) {
	row := s.db.QueryRow(`SELECT id, title, addr_listen, high_speed, high_speed_addr, high_speed_gwid FROM proxies WHERE id = ?`, id)
	p, err := scanProxy(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, xerrors.NewStorageError(err)
	}
	return &p, nil
}

// PutProxy inserts or updates a Proxy. If HighSpeedGwID is set, HighSpeedAddr
// is resolved from that GatewayNode's AltTarget right now (the admin-write-time
// policy) rather than left for snapshot build to figure out.
func (s *Store) PutProxy(p model.Proxy) (model.Proxy, error) {
	if p.ID == "" {
		p.ID = model.NewID()
	}
	if p.HighSpeedGwID != "" {
		node, err := s.GetGatewayNode(p.HighSpeedGwID)
		if err != nil {
			return model.Proxy{}, err
		}
		if node == nil {
			return model.Proxy{}, xerrors.NewConfigInvalid("high_speed_gwid references unknown gateway node")
		}
		p.HighSpeedAddr = node.AltTarget
	}

	existing, err := s.GetProxy(p.ID)
	if err != nil {
		return model.Proxy{}, err
	}
	highSpeed := 0
	if p.HighSpeed {
		highSpeed = 1
	}
	if existing == nil {
		_, err = s.db.Exec(`INSERT INTO proxies (id, title, addr_listen, high_speed, high_speed_addr, high_speed_gwid) VALUES (?, ?, ?, ?, ?, ?)`,
			p.ID, p.Title, p.AddrListen, highSpeed, p.HighSpeedAddr, p.HighSpeedGwID)
	} else {
		_, err = s.db.Exec(`UPDATE proxies SET title = ?, addr_listen = ?, high_speed = ?, high_speed_addr = ?, high_speed_gwid = ? WHERE id = ?`,
			p.Title, p.AddrListen, highSpeed, p.HighSpeedAddr, p.HighSpeedGwID, p.ID)
	}
	if err != nil {
		return model.Proxy{}, xerrors.NewStorageError(err)
	}
	return p, nil
}

// DeleteProxy removes a Proxy, cascades to its ProxyDomains, and detaches
// (but does not delete) its GatewayNodes.
func (s *Store) DeleteProxy(id string) error {
	if _, err := s.db.Exec(`DELETE FROM proxy_domains WHERE proxy_id = ?`, id); err != nil {
		return xerrors.NewStorageError(err)
	}
	if _, err := s.db.Exec(`UPDATE gateway_nodes SET proxy_id = ? WHERE proxy_id = ?`, "", id); err != nil {
		return xerrors.NewStorageError(err)
	}
	if _, err := s.db.Exec(`DELETE FROM proxies WHERE id = ?`, id); err != nil {
		return xerrors.NewStorageError(err)
	}
	return nil
}

// recomputeHighSpeedAddrsFor re-resolves high_speed_addr on every Proxy whose
// high_speed_gwid points at nodeID, used when that node's alt_target changes.
func (s *Store) recomputeHighSpeedAddrsFor(nodeID, newTarget string) error {
	rows, err := s.db.Query(`SELECT id FROM proxies WHERE high_speed_gwid = ?`, nodeID)
	if err != nil {
		return xerrors.NewStorageError(err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return xerrors.NewStorageError(err)
		}
		ids = append(ids, id)
	}
	rows.Close()

	for _, id := range ids {
		if _, err := s.db.Exec(`UPDATE proxies SET high_speed_addr = ? WHERE id = ?`, newTarget, id); err != nil {
			return xerrors.NewStorageError(err)
		}
	}
	return nil
}
