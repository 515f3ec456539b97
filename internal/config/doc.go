// Package config provides loading and environment overlay for sluice's
// process configuration. It exposes a Default() baseline and a Load/FromEnv
// pair that merge a file and the environment over it.
//
// Example:
//
//	cfg := config.Default()
//	// Optionally load from file, merged over the defaults above.
//	if fileCfg, err := config.Load("/etc/sluice.yaml"); err == nil {
//	    cfg = fileCfg
//	}
//	config.FromEnv(&cfg)
//	// JournalDir namespaces non-default queue names under DataDir so one
//	// DataDir can eventually host more than one named queue.
//	q, _ := queue.Open(cfg.JournalDir(), queue.Options{
//	    MaxInlineBytes: uint64(cfg.Queue.MaxInlineBytes),
//	})
//	defer q.Close()
package config
