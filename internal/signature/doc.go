// Package signature signs and verifies update payloads with SSH keys.
//
// Signatures use the OpenSSH "SSHSIG" armored format with a SHA-512 message
// digest, so payloads signed by the packager can also be checked with
// `ssh-keygen -Y verify -n appshell-update`.
package signature
