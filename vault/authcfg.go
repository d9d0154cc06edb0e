package vault

import (
	"context"

	"github.com/jmcleod/keysafe/auth"
	"github.com/jmcleod/keysafe/storage"
)

// EnableAuth enrolls variant and re-seals the private key under it. The
// current authenticator must approve first. Enabling the variant already
// in use enrolls it again, which is how a passphrase is changed.
func (m *Manager) EnableAuth(ctx context.Context, variant auth.Variant) error {
	if variant == auth.VariantNone {
		return m.DisableAuth(ctx)
	}
	return m.write(ctx, "auth.enable", "", false, func(j storage.Journal) error {
		v, err := m.load(j)
		if err != nil {
			return err
		}
		current, err := m.keys.Config()
		if err != nil {
			return err
		}
		oldProof, err := m.authenticate(ctx, "auth.enable")
		if err != nil {
			return err
		}
		defer oldProof.Destroy()
		// Fail on a wrong current approval before creating anything new.
		if err := m.keys.Verify(oldProof); err != nil {
			return err
		}

		next, nextProof, err := m.gate.Enroll(ctx, variant, auth.EnrollRequest{
			VaultID: v.ID,
			Silent:  m.silent,
			Options: m.enroll,
		})
		if err != nil {
			return err
		}
		defer nextProof.Destroy()

		if err := m.keys.Rewrap(oldProof, next, nextProof); err != nil {
			m.revoke(ctx, next)
			return err
		}
		m.revoke(ctx, current)
		m.Close()
		return m.recordVariant(j, v, next.Variant)
	})
}

// DisableAuth re-seals the private key without protection after the
// current authenticator approves.
func (m *Manager) DisableAuth(ctx context.Context) error {
	return m.write(ctx, "auth.disable", "", false, func(j storage.Journal) error {
		v, err := m.load(j)
		if err != nil {
			return err
		}
		current, err := m.keys.Config()
		if err != nil {
			return err
		}
		if !current.Protected() {
			return nil
		}
		proof, err := m.authenticate(ctx, "auth.disable")
		if err != nil {
			return err
		}
		defer proof.Destroy()
		if err := m.keys.Rewrap(proof, auth.NoneConfig(), nil); err != nil {
			return err
		}
		m.revoke(ctx, current)
		m.Close()
		return m.recordVariant(j, v, auth.VariantNone)
	})
}

// recordVariant updates the informational variant in the vault header. The
// key file stays authoritative, so a failure here is only logged.
func (m *Manager) recordVariant(j storage.Journal, v *storage.Vault, variant auth.Variant) error {
	v.AuthVariant = string(variant)
	if err := m.save(j, v); err != nil {
		m.logger.Warn("authenticator changed but vault header not updated", "variant", variant, "error", err)
	}
	return nil
}
