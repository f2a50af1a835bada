package services

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"

	"github.com/pandeptwidyaop/modbackup/internal/database"
	"github.com/pandeptwidyaop/modbackup/internal/fetch"
	"github.com/pandeptwidyaop/modbackup/internal/fsutil"
	"github.com/pandeptwidyaop/modbackup/internal/models"
	"github.com/pandeptwidyaop/modbackup/internal/validation"
)

var (
	ErrRemoteNotFound        = errors.New("remote not found")
	ErrRemoteExists          = errors.New("remote already exists")
	ErrEncryptionKeyRequired = errors.New("security.encryption_key is required to store remote passwords")
	ErrInvalidRemote         = errors.New("invalid remote")
)

// RemoteService stores named connection parameters for archive retrieval.
type RemoteService struct {
	db     *database.DB
	crypto *CryptoService
}

// NewRemoteService creates a RemoteService. crypto may be nil, in which case
// remotes with a password cannot be saved.
func NewRemoteService(db *database.DB, crypto *CryptoService) *RemoteService {
	return &RemoteService{db: db, crypto: crypto}
}

func (s *RemoteService) Create(req *models.CreateRemoteRequest) (*models.Remote, error) {
	req.Protocol = strings.ToLower(strings.TrimSpace(req.Protocol))
	if !fsutil.ValidName(req.Name) {
		return nil, fmt.Errorf("%w: name %q", ErrInvalidRemote, req.Name)
	}
	if req.Protocol == "" {
		return nil, fmt.Errorf("%w: protocol is required", ErrInvalidRemote)
	}
	if req.Host != "" {
		if err := validation.ValidateHost(req.Host); err != nil {
			return nil, fmt.Errorf("%w: host %q: %v", ErrInvalidRemote, req.Host, err)
		}
	}
	if req.Port < 0 || req.Port > 65535 {
		return nil, fmt.Errorf("%w: port %d", ErrInvalidRemote, req.Port)
	}

	var passwordEnc string
	if req.Password != "" {
		if s.crypto == nil {
			return nil, ErrEncryptionKeyRequired
		}
		enc, err := s.crypto.Encrypt(req.Password)
		if err != nil {
			return nil, err
		}
		passwordEnc = enc
	}

	_, err := s.db.Exec(`
		INSERT INTO remotes (name, protocol, host, port, username, password_enc, region, endpoint, credentials_file)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, req.Name, req.Protocol, req.Host, req.Port, req.Username, passwordEnc, req.Region, req.Endpoint, req.CredentialsFile)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return nil, ErrRemoteExists
		}
		return nil, err
	}

	return s.Get(req.Name)
}

// Get returns a remote with its password decrypted.
func (s *RemoteService) Get(name string) (*models.Remote, error) {
	var r models.Remote
	var host, username, passwordEnc, region, endpoint, credentialsFile sql.NullString

	err := s.db.QueryRow(`
		SELECT name, protocol, host, port, username, password_enc, region, endpoint, credentials_file, created_at
		FROM remotes WHERE name = ?
	`, name).Scan(&r.Name, &r.Protocol, &host, &r.Port, &username, &passwordEnc, &region, &endpoint, &credentialsFile, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrRemoteNotFound
	}
	if err != nil {
		return nil, err
	}

	r.Host = host.String
	r.Username = username.String
	r.Region = region.String
	r.Endpoint = endpoint.String
	r.CredentialsFile = credentialsFile.String

	if passwordEnc.String != "" {
		if s.crypto == nil {
			return nil, ErrEncryptionKeyRequired
		}
		password, err := s.crypto.Decrypt(passwordEnc.String)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt password for remote %s: %w", name, err)
		}
		r.Password = password
	}

	return &r, nil
}

// List returns every remote without passwords.
func (s *RemoteService) List() ([]models.Remote, error) {
	rows, err := s.db.Query(`
		SELECT name, protocol, host, port, username, region, endpoint, credentials_file, created_at
		FROM remotes ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	remotes := make([]models.Remote, 0)
	for rows.Next() {
		var r models.Remote
		var host, username, region, endpoint, credentialsFile sql.NullString
		if err := rows.Scan(&r.Name, &r.Protocol, &host, &r.Port, &username, &region, &endpoint, &credentialsFile, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.Host = host.String
		r.Username = username.String
		r.Region = region.String
		r.Endpoint = endpoint.String
		r.CredentialsFile = credentialsFile.String
		remotes = append(remotes, r)
	}
	return remotes, rows.Err()
}

func (s *RemoteService) Delete(name string) error {
	res, err := s.db.Exec("DELETE FROM remotes WHERE name = ?", name)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrRemoteNotFound
	}
	return nil
}

// ToServerParams converts a saved remote into fetch parameters.
func ToServerParams(r *models.Remote) fetch.ServerParams {
	return fetch.ServerParams{
		Protocol:        r.Protocol,
		Host:            r.Host,
		Port:            r.Port,
		Username:        r.Username,
		Password:        r.Password,
		Region:          r.Region,
		Endpoint:        r.Endpoint,
		CredentialsFile: r.CredentialsFile,
	}
}
