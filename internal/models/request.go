package models

// BackupRequest starts a backup run.
type BackupRequest struct {
	Modules     []string `json:"modules" binding:"required"`
	Destination string   `json:"destination"`
	Format      string   `json:"format"`
	Workers     int      `json:"workers"`
}

// RestoreRequest starts a restore run. The archive is either a local path or
// a file on a saved remote (Remote) or ad hoc server (Protocol, Server...).
type RestoreRequest struct {
	Archive    string   `json:"archive"`
	Remote     string   `json:"remote"`
	RemoteFile string   `json:"remote_file"`
	Module     string   `json:"module"`
	Profiles   []string `json:"profiles"`
	Partial    bool     `json:"partial"`
	// Conflict is overwrite or skip; empty means skip.
	Conflict string `json:"conflict"`

	Protocol string `json:"protocol"`
	Server   string `json:"server"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
}
