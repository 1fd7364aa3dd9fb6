package config

const (
	// EnvPrefix scopes every environment variable the service reads.
	EnvPrefix = "STONEBRIDGE"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvDBDSN  = "STONEBRIDGE_DB_DSN"
	EnvDBHost = "STONEBRIDGE_DB_HOST"
	EnvDBUser = "STONEBRIDGE_DB_USER"
	EnvDBName = "STONEBRIDGE_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
