package models

import "time"

// Remote is a saved set of connection parameters for fetching archives.
type Remote struct {
	CreatedAt time.Time `json:"created_at"`
	Name      string    `json:"name"`
	Protocol  string    `json:"protocol"`
	Host      string    `json:"host"`
	Port      int       `json:"port"`
	Username  string    `json:"username"`
	Password  string    `json:"-"`
	Region    string    `json:"region,omitempty"`
	Endpoint  string    `json:"endpoint,omitempty"`

	// CredentialsFile is a service account key path for gs remotes.
	CredentialsFile string `json:"credentials_file,omitempty"`
}

// CreateRemoteRequest contains the data for saving a remote.
type CreateRemoteRequest struct {
	Name     string `json:"name" binding:"required"`
	Protocol string `json:"protocol" binding:"required"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	Region   string `json:"region"`
	Endpoint string `json:"endpoint"`

	CredentialsFile string `json:"credentials_file"`
}
