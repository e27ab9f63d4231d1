// Package process provides subprocess lifecycle management for the local
// Intiface engine.
//
// When intiface.engine.managed is set, ButtRest runs intiface-engine itself
// instead of expecting an external control server.
//
// Features:
//   - Start/stop subprocess with graceful shutdown (SIGTERM, then SIGKILL)
//   - Restart on unexpected exit with exponential backoff
//   - Backoff reset after a stable run
//   - Health monitoring via a TCP check of the websocket port
//   - Log capture from subprocess stdout/stderr
//
// Example usage:
//
//	engine := process.NewEngine(cfg.Intiface.Engine)
//	engine.SetLogger(logger)
//	if err := engine.Start(ctx); err != nil {
//	    return err
//	}
//	defer engine.Stop()
//
//	if err := process.WaitForPort(ctx, process.EngineAddr(cfg.Intiface.Engine), 250*time.Millisecond); err != nil {
//	    return err
//	}
package process
