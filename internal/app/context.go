package app

import (
	"context"
	"errors"
	"fmt"

	"dawin/internal/config"
	"dawin/internal/engine"
	"dawin/internal/repo"
)

// ResolveTenantAndConfig picks the active tenant and ensures both the tenant
// row and its dispatch config exist, seeding defaults when missing. It prefers
// the override, then a single-tenant workspace. A tenant named on the command
// line but absent from the workspace is created on the fly.
func ResolveTenantAndConfig(ctx context.Context, tenantOverride, actorID string, e engine.Engine) (string, *config.Config, error) {
	tenantID := tenantOverride
	if tenantID == "" {
		t, err := e.Repo.SingleTenant(ctx)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return "", nil, fmt.Errorf("no tenant in workspace; run `dw tenant create` or pass --tenant")
			}
			return "", nil, err
		}
		tenantID = t.ID
	}
	if actorID == "" {
		actorID = "local-user"
	}

	if _, err := e.Repo.GetTenant(ctx, tenantID); err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			return "", nil, err
		}
		if _, err := e.InitTenant(ctx, tenantID, "", actorID); err != nil {
			return "", nil, fmt.Errorf("create tenant %q: %w", tenantID, err)
		}
	}
	cfg, err := e.Repo.GetTenantConfig(ctx, tenantID)
	if err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			return "", nil, err
		}
		// Tenant rows written by older tooling may lack a config row.
		seed := e.Config
		if seed == nil {
			seed = config.Default(tenantID)
		}
		seeded := *seed
		if err := e.Repo.UpsertTenantConfig(ctx, tenantID, &seeded); err != nil {
			return "", nil, fmt.Errorf("seed tenant config: %w", err)
		}
		cfg = &seeded
	}
	cfg.Tenant.ID = tenantID
	return tenantID, cfg, nil
}
