package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/execguard/syncd/internal/audit"
	"github.com/execguard/syncd/internal/config"
	"github.com/execguard/syncd/internal/domain"
	"github.com/execguard/syncd/internal/identity"
	"github.com/execguard/syncd/internal/storage"
	"github.com/execguard/syncd/internal/validation"
)

// PreflightHandler opens a sync cycle: it registers or refreshes the host,
// decides whether the cycle is a clean sync, and hands back the host's
// effective enforcement settings.
type PreflightHandler struct {
	store    storage.Storage
	identity *identity.Resolver
	emitter  *audit.Emitter
	cfg      config.SyncConfig
	logger   *slog.Logger
}

// NewPreflightHandler creates a PreflightHandler.
func NewPreflightHandler(store storage.Storage, res *identity.Resolver, emitter *audit.Emitter, cfg config.SyncConfig, logger *slog.Logger) *PreflightHandler {
	return &PreflightHandler{
		store:    store,
		identity: res,
		emitter:  emitter,
		cfg:      cfg,
		logger:   logger,
	}
}

// Handle processes POST /preflight/{host_id}.
func (h *PreflightHandler) Handle(w http.ResponseWriter, r *http.Request) {
	hostID := chi.URLParam(r, "host_id")
	if err := validation.ValidateHostID(hostID); err != nil {
		respondError(w, http.StatusBadRequest, "invalid host id")
		return
	}

	var req domain.PreflightRequest
	if err := decodeJSON(r, &req); err != nil {
		handleError(w, err)
		return
	}

	ctx := r.Context()
	user, userCreated, err := h.identity.EnsureUser(ctx, req.PrimaryUser)
	if err != nil {
		h.logger.ErrorContext(ctx, "preflight user resolution failed", "host_id", hostID, "error", err)
		handleError(w, err)
		return
	}
	if userCreated {
		h.emitter.Emit(ctx, audit.KindUser, map[string]any{
			"key":      user.Key,
			"username": user.Username,
		})
	}

	declaredMode := domain.ParseClientMode(req.ClientMode)
	now := time.Now().UTC()

	host, err := h.store.GetHost(ctx, hostID)
	created := false
	if errors.Is(err, domain.ErrNotFound) {
		created = true
		mode := declaredMode
		if mode == domain.ModeUnknown {
			mode = domain.ParseClientMode(h.cfg.DefaultClientMode)
		}
		host = &domain.Host{
			ID:         hostID,
			ClientMode: mode,
			CreatedAt:  now,
		}
	} else if err != nil {
		h.logger.ErrorContext(ctx, "preflight host lookup failed", "host_id", hostID, "error", err)
		handleError(w, err)
		return
	}

	cleanSync := refresh(host, &req, user.Key, now)

	if created {
		err := h.store.CreateHost(ctx, host)
		if errors.Is(err, domain.ErrAlreadyExists) {
			// Lost a registration race; retry against the winner's state.
			created = false
			host, err = h.store.GetHost(ctx, hostID)
			if err != nil {
				h.logger.ErrorContext(ctx, "preflight host re-read failed", "host_id", hostID, "error", err)
				handleError(w, err)
				return
			}
			cleanSync = refresh(host, &req, user.Key, now)
			err = h.store.UpdateHost(ctx, host)
		}
		if err != nil {
			h.logger.ErrorContext(ctx, "preflight host create failed", "host_id", hostID, "error", err)
			handleError(w, err)
			return
		}
		if created {
			if err := h.seedRules(ctx, host); err != nil {
				h.logger.ErrorContext(ctx, "first-checkin rule seeding failed", "host_id", hostID, "error", err)
				handleError(w, err)
				return
			}
		}
	} else {
		if err := h.store.UpdateHost(ctx, host); err != nil {
			h.logger.ErrorContext(ctx, "preflight host update failed", "host_id", hostID, "error", err)
			handleError(w, err)
			return
		}
	}

	h.emitter.Emit(ctx, audit.KindHost, map[string]any{
		"id":            host.ID,
		"hostname":      host.Hostname,
		"primary_user":  host.PrimaryUser,
		"declared_mode": declaredMode,
		"created":       created,
	})

	resp := domain.PreflightResponse{
		ClientMode:             host.ClientMode,
		BatchSize:              h.cfg.EventBatchSize,
		CleanSync:              cleanSync,
		WhitelistRegex:         h.whitelistRegex(host),
		TransitiveWhitelisting: host.TransitiveWhitelisting,
	}
	if host.ShouldUploadLogs && h.cfg.LogUploadURL != "" {
		resp.UploadLogsURL = h.cfg.LogUploadURL + "/" + host.ID
	}
	respondJSON(w, http.StatusOK, resp)
}

// seedRules copies every in-effect host-scoped rule from the new host's
// peers, so a fresh agent for a known user starts with that user's local
// policy instead of an empty ruleset. Peers are hosts with the same primary
// user that have completed at least one full handshake.
func (h *PreflightHandler) seedRules(ctx context.Context, host *domain.Host) error {
	peerIDs, err := h.store.ListSyncedHostIDs(ctx, host.PrimaryUser)
	if err != nil {
		return err
	}
	for _, peerID := range peerIDs {
		if peerID == host.ID {
			continue
		}
		rules, err := h.store.ListInEffectRulesForHost(ctx, peerID)
		if err != nil {
			return err
		}
		for _, r := range rules {
			seeded := &domain.Rule{
				ID:         uuid.NewString(),
				TargetHash: r.TargetHash,
				HostID:     host.ID,
				RuleType:   r.RuleType,
				Policy:     r.Policy,
				CustomMsg:  r.CustomMsg,
				InEffect:   true,
				CreatedAt:  time.Now().UTC(),
			}
			if err := h.store.CreateRule(ctx, seeded); err != nil {
				return err
			}
			h.emitter.Emit(ctx, audit.KindRule, map[string]any{
				"id":          seeded.ID,
				"target_hash": seeded.TargetHash,
				"host_id":     seeded.HostID,
				"rule_type":   seeded.RuleType,
				"policy":      seeded.Policy,
				"seeded_from": peerID,
			})
		}
	}
	return nil
}

// refresh applies the declared inventory fields to a host record and decides
// whether this cycle is a clean sync, clearing the rule sync watermark if so.
func refresh(host *domain.Host, req *domain.PreflightRequest, userKey string, now time.Time) bool {
	host.SerialNum = req.SerialNum
	host.Hostname = req.Hostname
	host.PrimaryUser = userKey
	host.AgentVersion = req.AgentVersion
	host.OSVersion = req.OSVersion
	host.OSBuild = req.OSBuild
	host.LastPreflightAt = &now
	host.UpdatedAt = now

	cleanSync := req.RequestCleanSync || host.RuleSyncAt == nil
	if cleanSync {
		host.RuleSyncAt = nil
	}
	return cleanSync
}

func (h *PreflightHandler) whitelistRegex(host *domain.Host) string {
	if host.DirectoryWhitelist != "" {
		return host.DirectoryWhitelist
	}
	return h.cfg.DirectoryWhitelistRegex
}
