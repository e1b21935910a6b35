package store

import (
	"database/sql"

	"github.com/wirelane/drawbridge/internal/model"
	"github.com/wirelane/drawbridge/internal/xerrors"
)

func (s *Store) ListDomains(proxyID string) ([]model.ProxyDomain, error) {
	rows, err := s.db.Query(`SELECT id, proxy_id, gwnode_id, tls, tls_pem, tls_key, sni FROM proxy_domains WHERE proxy_id = ?`, proxyID)
	if err != nil {
		return nil, xerrors.NewStorageError(err)
	}
	defer rows.Close()

	var out []model.ProxyDomain
	for rows.Next() {
		d, err := scanDomain(rows)
		if err != nil {
			return nil, xerrors.NewStorageError(err)
		}
		out = append(out, d)
	}
	return out, nil
}

func (s *Store) ListAllDomains() ([]model.ProxyDomain, error) {
	rows, err := s.db.Query(`SELECT id, proxy_id, gwnode_id, tls, tls_pem, tls_key, sni FROM proxy_domains ORDER BY id`)
	if err != nil {
		return nil, xerrors.NewStorageError(err)
	}
	defer rows.Close()

	var out []model.ProxyDomain
	for rows.Next() {
		d, err := scanDomain(rows)
		if err != nil {
			return nil, xerrors.NewStorageError(err)
		}
		out = append(out, d)
	}
	return out, nil
}

func scanDomain(row interface{ Scan(dest ...any) error }) (model.ProxyDomain, error) {
	var d model.ProxyDomain
	var tls int
	var gwnode, pem, key sql.NullString
	if err := row.Scan(&d.ID, &d.ProxyID, &gwnode, &tls, &pem, &key, &d.SNI); err != nil {
		return model.ProxyDomain{}, err
	}
	d.GwNodeID = gwnode.String
	d.TLS = tls != 0
	d.TLSPem = pem.String
	d.TLSKey = key.String
	return d, nil
}

// PutDomain inserts or updates a ProxyDomain. Rejects a write that would
// create a second domain with the same sni on the same proxy.
func (s *Store) PutDomain(d model.ProxyDomain) (model.ProxyDomain, error) {
	if d.ID == "" {
		d.ID = model.NewID()
	}
	if d.SNI == "" {
		return model.ProxyDomain{}, xerrors.NewConfigInvalid("proxy_domain.sni must not be empty")
	}

	var dupe string
	err := s.db.QueryRow(`SELECT id FROM proxy_domains WHERE proxy_id = ? AND sni = ? AND id != ?`, d.ProxyID, d.SNI, d.ID).Scan(&dupe)
	if err == nil {
		return model.ProxyDomain{}, xerrors.NewConfigInvalid("duplicate sni on proxy: " + d.SNI)
	}
	if err != nil && err != sql.ErrNoRows {
		return model.ProxyDomain{}, xerrors.NewStorageError(err)
	}

	var existingID string
	err = s.db.QueryRow(`SELECT id FROM proxy_domains WHERE id = ?`, d.ID).Scan(&existingID)
	tlsVal := 0
	if d.TLS {
		tlsVal = 1
	}
	if err == sql.ErrNoRows {
		_, err = s.db.Exec(`INSERT INTO proxy_domains (id, proxy_id, gwnode_id, tls, tls_pem, tls_key, sni) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			d.ID, d.ProxyID, d.GwNodeID, tlsVal, d.TLSPem, d.TLSKey, d.SNI)
	} else if err == nil {
		_, err = s.db.Exec(`UPDATE proxy_domains SET proxy_id = ?, gwnode_id = ?, tls = ?, tls_pem = ?, tls_key = ?, sni = ? WHERE id = ?`,
			d.ProxyID, d.GwNodeID, tlsVal, d.TLSPem, d.TLSKey, d.SNI, d.ID)
	}
	if err != nil {
		return model.ProxyDomain{}, xerrors.NewStorageError(err)
	}
	return d, nil
}

func (s *Store) DeleteDomain(id string) error {
	if _, err := s.db.Exec(`DELETE FROM proxy_domains WHERE id = ?`, id); err != nil {
		return xerrors.NewStorageError(err)
	}
	return nil
}
