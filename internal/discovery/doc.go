// Package discovery advertises the carlinkd status server over mDNS and finds
// it again from `carlinkd monitor`.
//
// The server registers a "_carlink._tcp" service whose TXT records carry
// app=carlinkd and the daemon version. The scanner ignores entries without
// the app record, so other software squatting on the service type is skipped.
//
// # Usage Example
//
//	adv, err := discovery.Advertise("carlinkd", 8470, map[string]string{"version": version.Version})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer adv.Shutdown()
//
//	inst, err := discovery.NewScanner().WaitForInstance(ctx)
//	fmt.Println(inst.Addr())
//
// # Network Requirements
//
// - Requires multicast support on the network interface
// - Firewall must allow mDNS (UDP port 5353)
package discovery
