package session

import "context"

// Confirmation tracks a profile change that waits for an emailed
// confirmation link.
type Confirmation int

const (
	ConfirmationIdle Confirmation = iota
	ConfirmationAwaiting
	ConfirmationConfirmed
	ConfirmationExpired
)

func (c Confirmation) String() string {
	switch c {
	case ConfirmationAwaiting:
		return "awaiting"
	case ConfirmationConfirmed:
		return "confirmed"
	case ConfirmationExpired:
		return "expired"
	default:
		return "idle"
	}
}

func parseConfirmation(s string) Confirmation {
	switch s {
	case "awaiting", "true":
		return ConfirmationAwaiting
	case "confirmed":
		return ConfirmationConfirmed
	case "expired":
		return ConfirmationExpired
	default:
		return ConfirmationIdle
	}
}

// Confirmation returns the current confirmation state.
func (s *Store) Confirmation() Confirmation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.confirmation
}

// AwaitConfirmation records that a confirmation email has been sent.
func (s *Store) AwaitConfirmation(ctx context.Context) error {
	return s.setConfirmation(ctx, ConfirmationAwaiting)
}

// ResolveConfirmation records the outcome of following the link. It may be
// called from any state since the link can be opened by a fresh process.
func (s *Store) ResolveConfirmation(ctx context.Context, confirmed bool) error {
	if confirmed {
		return s.setConfirmation(ctx, ConfirmationConfirmed)
	}
	return s.setConfirmation(ctx, ConfirmationExpired)
}

// ClearConfirmation resets the state to idle and removes it from storage.
func (s *Store) ClearConfirmation(ctx context.Context) error {
	return s.setConfirmation(ctx, ConfirmationIdle)
}

func (s *Store) setConfirmation(ctx context.Context, c Confirmation) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var err error
	if c == ConfirmationIdle {
		err = s.storage.Delete(ctx, s.keys.Confirmation)
	} else {
		err = s.storage.Save(ctx, s.keys.Confirmation, c.String())
	}
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.confirmation = c
	s.mu.Unlock()
	return nil
}
