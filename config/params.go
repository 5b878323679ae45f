package config

import "time"

// KeelParams holds the §6 tunables that RegisterKeelParams installs into the
// default Param registry, making them settable via a config file and
// listable through the admin CLI. The redo budget, the commit period and the
// backup base epoch are not among them. Callers typically pass the zero values of
// the struct fields they intend to wire into dbm.Config/checkpoint.Config/
// storage.Options so flags, config file, and the running values all refer to
// the same backing variables.
type KeelParams struct {
	DBThreadCount        int
	MaxLockPerProcedure  int
	LockPoolSize         uint
	CommitModCount       int
	ResaveCount          int
	BackupPeriod         time.Duration
	FullBackupPeriod     time.Duration
	MaxSessionProcedure  int
	MaxBatchProceduer    int
	ProcedureTimeout     time.Duration
	ProcedureDeadlockTimeout time.Duration
	DeadlockCheckInterval   time.Duration

	WriteBufferSize int
	MaxOpenFiles    int
	CacheSize       int
	FileSize        int
	UseSnappy       bool
	ReuseLogs       bool
}

// RegisterKeelParams registers p's fields as Params with their current
// values as defaults. p must outlive the registry (its fields are bound by
// pointer).
func RegisterKeelParams(p *KeelParams) {
	IntParam(&p.DBThreadCount, "dbThreadCount", p.DBThreadCount, Default)
	IntParam(&p.MaxLockPerProcedure, "maxLockPerProcedure", p.MaxLockPerProcedure, Default)
	UintParam(&p.LockPoolSize, "lockPoolSize", p.LockPoolSize, Default)
	IntParam(&p.CommitModCount, "commitModCount", p.CommitModCount, Default)
	IntParam(&p.ResaveCount, "resaveCount", p.ResaveCount, Default)
	DurationParam(&p.BackupPeriod, "backupPeriod", p.BackupPeriod, Default)
	DurationParam(&p.FullBackupPeriod, "fullBackupPeriod", p.FullBackupPeriod, Default)
	IntParam(&p.MaxSessionProcedure, "maxSessionProcedure", p.MaxSessionProcedure, Default)
	IntParam(&p.MaxBatchProceduer, "maxBatchProceduer", p.MaxBatchProceduer, Default)
	DurationParam(&p.ProcedureTimeout, "procedureTimeout", p.ProcedureTimeout, Default)
	DurationParam(&p.ProcedureDeadlockTimeout, "procedureDeadlockTimeout", p.ProcedureDeadlockTimeout, Default)
	DurationParam(&p.DeadlockCheckInterval, "deadlockCheckInterval", p.DeadlockCheckInterval, Default)

	IntParam(&p.WriteBufferSize, "writeBufferSize", p.WriteBufferSize, Default)
	IntParam(&p.MaxOpenFiles, "maxOpenFiles", p.MaxOpenFiles, Default)
	IntParam(&p.CacheSize, "cacheSize", p.CacheSize, Default)
	IntParam(&p.FileSize, "fileSize", p.FileSize, Default)
	BoolParam(&p.UseSnappy, "useSnappy", p.UseSnappy, Default)
	BoolParam(&p.ReuseLogs, "reuseLogs", p.ReuseLogs, Default)
}

// Defaults returns a KeelParams populated with the reference defaults named
// in §6 plus conservative defaults for the storage engine Options fields.
func Defaults() *KeelParams {
	return &KeelParams{
		DBThreadCount:            8,
		MaxLockPerProcedure:      8,
		LockPoolSize:             1024,
		CommitModCount:           1000,
		ResaveCount:              100,
		BackupPeriod:             time.Hour,
		FullBackupPeriod:         24 * time.Hour,
		MaxSessionProcedure:      256,
		MaxBatchProceduer:        32,
		ProcedureTimeout:         5 * time.Second,
		ProcedureDeadlockTimeout: 15 * time.Second,
		DeadlockCheckInterval:    time.Second,

		WriteBufferSize: 4 << 20,
		MaxOpenFiles:    1000,
		CacheSize:       64 << 20,
		FileSize:        64 << 20,
		UseSnappy:       true,
		ReuseLogs:       true,
	}
}
