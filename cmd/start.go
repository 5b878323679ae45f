package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/shoaldb/keel/checkpoint"
	"github.com/shoaldb/keel/config"
	"github.com/shoaldb/keel/dbm"
	"github.com/shoaldb/keel/storage"
	"github.com/shoaldb/keel/storage/badger"
	"github.com/shoaldb/keel/storage/bbolt"
	"github.com/shoaldb/keel/storage/pebble"
)

var (
	startCmd = &cobra.Command{
		Use:   "start",
		Short: "Start the keel engine process",
		RunE:  startRun,
	}

	engineName = "pebble"
	dataDir    = "keeldata"
	backupDir  = "keelbackup"

	params = config.Defaults()
)

func init() {
	initServerFlags(startCmd.Flags())
	keelCmd.AddCommand(startCmd)
	config.RegisterKeelParams(params)
}

func initServerFlags(fs *pflag.FlagSet) {
	fs.StringVar(&engineName, "engine", engineName, "storage engine: pebble, badger, or bbolt")
	cfgVars["engine"] = fs.Lookup("engine")

	fs.StringVar(&dataDir, "data", dataDir, "`directory` containing the primary database")
	cfgVars["data"] = fs.Lookup("data")

	fs.StringVar(&backupDir, "backup", backupDir, "`directory` containing hot-backup snapshots")
	cfgVars["backup"] = fs.Lookup("backup")
}

func openEngine(name, dir string) (storage.Engine, error) {
	opts := storage.Options{
		WriteBufferBytes:   params.WriteBufferSize,
		CacheBytes:         params.CacheSize,
		FileSizeBytes:      params.FileSize,
		MaxOpenFiles:       params.MaxOpenFiles,
		CompressionEnabled: params.UseSnappy,
		ReuseLogs:          params.ReuseLogs,
	}
	switch name {
	case "pebble":
		return pebble.Open(dir, opts)
	case "badger":
		return badger.Open(dir, opts)
	case "bbolt":
		return bbolt.Open(dir, opts)
	default:
		return nil, fmt.Errorf("keel: unknown engine %q (want pebble, badger, or bbolt)", name)
	}
}

// newManager constructs a dbm.Manager wired to the configured storage engine
// and a bbolt backup destination (§4.F's default backup engine choice).
func newManager() (*dbm.Manager, error) {
	eng, err := openEngine(engineName, dataDir)
	if err != nil {
		return nil, fmt.Errorf("keel: %s", err)
	}

	backupEngine, err := bbolt.Open(backupDir, storage.Options{})
	if err != nil {
		return nil, fmt.Errorf("keel: backup engine: %s", err)
	}

	m := dbm.Startup(dbm.Config{
		WorkerCount:              params.DBThreadCount,
		LockPoolSize:             int(params.LockPoolSize),
		MaxSessionProcedure:      params.MaxSessionProcedure,
		MaxBatchProceduer:        params.MaxBatchProceduer,
		ProcedureTimeout:         params.ProcedureTimeout,
		ProcedureDeadlockTimeout: params.ProcedureDeadlockTimeout,
		DeadlockCheckInterval:    params.DeadlockCheckInterval,
		CheckpointInterval:       time.Second,
	}, eng, checkpoint.Config{
		ResaveCount:      params.ResaveCount,
		BackupPeriod:     params.BackupPeriod,
		FullBackupPeriod: params.FullBackupPeriod,
		BackupPath:       backupDir,
		BackupEngine:     backupEngine,
	})
	return m, nil
}

func startRun(cmd *cobra.Command, args []string) error {
	m, err := newManager()
	if err != nil {
		return err
	}
	m.StartCommitThread()

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt)

	log.Info("keel: waiting for ^C to shutdown")
	<-ch
	go func() {
		<-ch
		os.Exit(0)
	}()

	log.Info("keel: shutting down")
	m.Shutdown()
	return nil
}
