package pgserver

import (
	"fmt"
	"io"

	"github.com/jackc/pgx/v5/pgproto3"

	"github.com/yamldb/yamldb/internal/srvconfig"
)

// authenticate implements spec.md §4.7 steps 2-4: request a cleartext
// password, verify it against the configured credentials, and report
// success or SQLSTATE 28P01 on mismatch.
func authenticate(backend *pgproto3.Backend, cfg srvconfig.Config, user string) error {
	backend.Send(&pgproto3.AuthenticationCleartextPassword{})
	if err := backend.Flush(); err != nil {
		return fmt.Errorf("flushing auth request: %w", err)
	}

	msg, err := backend.Receive()
	if err != nil {
		if err == io.EOF {
			return err
		}
		return fmt.Errorf("receiving password message: %w", err)
	}
	pw, ok := msg.(*pgproto3.PasswordMessage)
	if !ok {
		return fmt.Errorf("expected PasswordMessage, got %T", msg)
	}

	if !cfg.CheckPassword(user, pw.Password) {
		backend.Send(&pgproto3.ErrorResponse{
			Severity: "FATAL",
			Code:     "28P01",
			Message:  fmt.Sprintf("password authentication failed for user %q", user),
		})
		_ = backend.Flush()
		return fmt.Errorf("authentication failed for user %q", user)
	}

	backend.Send(&pgproto3.AuthenticationOk{})
	return nil
}
