// Package cnwactivation is the client side of license activation: it
// activates a license key against the licensing server, caches the signed
// activation token, and keeps re-validating it offline and against the
// server.
//
// Install with:
//
//	go get github.com/CloudNativeWorks/cnw-activation-sdk/cnwactivation
//
// Every decision is expressed as a Status. The success family (OK, EXPIRED,
// SUSPENDED, GRACE_PERIOD_OVER, TRIAL_EXPIRED) means the activation token
// verified; anything else is a failure with a specific cause.
//
// # Quick Start
//
//	store, _ := persistence.NewFileProvider("/var/lib/myapp/license")
//	m, err := cnwactivation.NewManager(productID, store,
//	    cnwactivation.WithTransport(cnwactivation.NewHTTPClient("https://api.example.com/v3")),
//	)
//	_ = m.SetPublicKeyFile("/etc/myapp/license.pub")
//	m.SetLicenseCallback(func(s cnwactivation.Status) { log.Printf("sync: %s", s) })
//
//	status, err := m.IsLicenseGenuine(ctx)
//	if status == cnwactivation.StatusFail {
//	    _ = m.SetLicenseKey(ctx, key)
//	    status, err = m.ActivateLicense(ctx)
//	}
//
// # Offline behaviour
//
// IsLicenseGenuine never blocks on the network. It verifies the cached
// token, detects clock rollback, and honours the server's grace period:
// while background syncs keep failing the license stays usable until the
// grace period expires, after which it reports GRACE_PERIOD_OVER.
package cnwactivation
