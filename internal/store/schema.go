package store

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	username TEXT NOT NULL,
	password_hash TEXT NOT NULL,
	role TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS proxies (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	addr_listen TEXT NOT NULL,
	high_speed INTEGER NOT NULL,
	high_speed_addr TEXT,
	high_speed_gwid TEXT
);

CREATE TABLE IF NOT EXISTS proxy_domains (
	id TEXT PRIMARY KEY,
	proxy_id TEXT NOT NULL,
	gwnode_id TEXT,
	tls INTEGER NOT NULL,
	tls_pem TEXT,
	tls_key TEXT,
	sni TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS gateway_nodes (
	id TEXT PRIMARY KEY,
	proxy_id TEXT NOT NULL,
	title TEXT NOT NULL,
	alt_target TEXT NOT NULL,
	priority INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS gateways (
	id TEXT PRIMARY KEY,
	gwnode_id TEXT NOT NULL,
	pattern TEXT NOT NULL,
	target TEXT NOT NULL,
	priority INTEGER NOT NULL,
	seq INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS settings (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`
