package store

import (
	"crypto/rand"
	"database/sql"
	"encoding/base64"

	"golang.org/x/crypto/bcrypt"

	"github.com/wirelane/drawbridge/internal/model"
	"github.com/wirelane/drawbridge/internal/xerrors"
)

// CreateUser inserts a new administrator with the given plaintext password,
// storing only its bcrypt hash.
func (s *Store) CreateUser(username, password, role string) (model.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return model.User{}, xerrors.NewStorageError(err)
	}
	u := model.User{ID: model.NewID(), Username: username, Role: role}
	if _, err := s.db.Exec(`INSERT INTO users (id, username, password_hash, role) VALUES (?, ?, ?, ?)`,
		u.ID, u.Username, string(hash), u.Role); err != nil {
		return model.User{}, xerrors.NewStorageError(err)
	}
	return u, nil
}

// Authenticate looks up username and verifies password against its stored
// hash, returning the user on success.
func (s *Store) Authenticate(username, password string) (model.User, error) {
	var u model.User
	var hash string
	err := s.db.QueryRow(`SELECT id, username, password_hash, role FROM users WHERE username = ?`, username).
		Scan(&u.ID, &u.Username, &hash, &u.Role)
	if err == sql.ErrNoRows {
		return model.User{}, xerrors.New(xerrors.ClientError, 401, "invalid credentials")
	}
	if err != nil {
		return model.User{}, xerrors.NewStorageError(err)
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return model.User{}, xerrors.New(xerrors.ClientError, 401, "invalid credentials")
	}
	return u, nil
}

// ResetAdmin deletes any existing "admin" user and creates a fresh one with
// a randomly generated password, which is returned once so the CLI can
// print it to the operator.
func (s *Store) ResetAdmin() (model.User, string, error) {
	if _, err := s.db.Exec(`DELETE FROM users WHERE username = ?`, "admin"); err != nil {
		return model.User{}, "", xerrors.NewStorageError(err)
	}
	password, err := randomPassword()
	if err != nil {
		return model.User{}, "", xerrors.NewStorageError(err)
	}
	u, err := s.CreateUser("admin", password, "admin")
	if err != nil {
		return model.User{}, "", err
	}
	return u, password, nil
}

func randomPassword() (string, error) {
	buf := make([]byte, 18)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
