// Package loader mounts features on the HTTP router.
//
// A feature reports its name and whether it is enabled, and registers its
// routes in Load. The Manager loads enabled features in registration order
// and logs the skipped ones:
//
//	mgr := loader.NewManager(log)
//	mgr.Register(grid.NewFeature(cfg.Grid, svc, cfg.Server.Encoding))
//	if err := mgr.LoadAll(app); err != nil {
//	    return err
//	}
package loader
