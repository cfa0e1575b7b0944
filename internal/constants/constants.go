package constants

import "time"

const (
	DefaultTimeout = 30 * time.Second
	CommitTimeout  = 30 * time.Second

	DefaultCacheTTL = 5 * time.Minute

	MaxRoleNameLength    = 255
	MaxDescriptionLength = 1000

	DefaultExportFileName = "roles"
	ExportFileExtension   = ".json"

	RoleExportCacheKey  = "roles-export"
	RealmExportCacheKey = "realm-export"
)
