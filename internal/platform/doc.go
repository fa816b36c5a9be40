// Package platform resolves, once at startup, what the running platform is and
// whether it can update itself. Release feeds key their artifacts by Target.
package platform
