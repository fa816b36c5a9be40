//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"fmt"
	"os"
	"os/user"

	"google.golang.org/grpc/metadata"

	"github.com/oshokin/appshell/internal/api/grpc/commands"
)

// Actor identifies who issued a command.
type Actor struct {
	// Hostname is the machine name of the caller.
	Hostname string
	// Username is the OS user of the caller.
	Username string
}

// DetectActor gathers host and user information for audit trail.
func DetectActor() (*Actor, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return nil, fmt.Errorf("hostname: %w", err)
	}

	currentUser, err := user.Current()
	if err != nil {
		return nil, fmt.Errorf("current user: %w", err)
	}

	return &Actor{
		Hostname: hostname,
		Username: currentUser.Username,
	}, nil
}

// outgoing attaches the actor to the outgoing call metadata.
func (a *Actor) outgoing(ctx context.Context) context.Context {
	if a == nil {
		return ctx
	}

	return metadata.AppendToOutgoingContext(ctx,
		commands.HostnameMetadataKey, a.Hostname,
		commands.UsernameMetadataKey, a.Username)
}
