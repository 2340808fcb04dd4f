package config

// EnvPrefix is the envconfig prefix shared by every EDGEUP_* variable.
const EnvPrefix = "edgeup"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	DBDriverSQLite   = "sqlite"
	DBDriverPostgres = "postgres"
)

const (
	EnvDBDSN    = "EDGEUP_DB_DSN"
	EnvDBDriver = "EDGEUP_DB_DRIVER"
)
