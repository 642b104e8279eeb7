// Package gfapi is a client for GlusterFS-style volumes.
//
// A Client holds one native volume context. Every operation either takes a
// path, resolved against the client's own working directory, or works on a
// File or Directory opened through the client:
//
//	client, err := gfapi.Connect("gv0", "server1", 24007)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	f, err := client.Create("/hello.txt", os.O_WRONLY|os.O_TRUNC, 0644)
//	if err != nil {
//	    return err
//	}
//	if _, err := f.Write([]byte("hello")); err != nil {
//	    f.Close()
//	    return err
//	}
//	return f.Close()
//
// Every failing call returns a *GlusterError. Handles are released exactly
// once: File.Close and Directory.Close release explicitly, a Directory
// releases itself when iteration reaches its end, and handles that become
// unreachable without being closed are released by a cleanup and reported
// in the log.
//
// Native calls issued by one client all pass through a single dispatch
// point, which applies the optional throttle and call serialization and
// reports to the configured metrics.
package gfapi
