package swcache

import (
	"context"
	"fmt"
	"sync"

	"fieldsync/internal/database"
	"fieldsync/internal/events"
	"fieldsync/internal/metrics"
	"fieldsync/internal/models"

	"github.com/rs/zerolog"
)

// State of the version controller.
type State string

const (
	// StateActive: the current version serves every asset request.
	StateActive State = "active"
	// StateInstalling: a newer bundle is being cached; the active version
	// keeps serving.
	StateInstalling State = "installing"
	// StateWaiting: the new bundle is fully cached and the page has been told
	// an update is available, but cutover has not happened.
	StateWaiting State = "installed-waiting"
)

// PageMessage is sent to the running page over the transport.
type PageMessage struct {
	Type    string `json:"type"`
	Version string `json:"version"`
}

const (
	MessageUpdateAvailable = "update-available"
	MessageActivated       = "activated"
)

// Transport delivers controller messages to the page. Implementations range
// from a real socket to an in-memory channel in tests.
type Transport interface {
	Notify(msg PageMessage) error
}

// AssetStore is the slice of the local store the controller needs.
type AssetStore interface {
	PutAsset(ctx context.Context, asset *database.Asset) error
	GetAsset(ctx context.Context, version, path string) (*database.Asset, error)
	CountAssets(ctx context.Context, version string) (int, error)
	DeleteVersionsExcept(ctx context.Context, active string) (int64, error)
	AssetVersions(ctx context.Context) ([]string, error)
}

// Controller owns the single active cache version and drives the
// installing -> installed-waiting -> active -> superseded lifecycle. At no
// point are assets of two versions served to one page load: reads always go
// through the single active tag, and activation deletes every other version
// in one cleanup pass.
type Controller struct {
	store        AssetStore
	transport    Transport
	bus          *events.EventBus
	manifestPath string
	logger       zerolog.Logger

	mu     sync.Mutex
	state  State
	active string
	staged string
}

// NewController restores the active version from the manifest file.
func NewController(store AssetStore, transport Transport, bus *events.EventBus, manifestPath string, logger *zerolog.Logger) (*Controller, error) {
	active, err := ReadManifest(manifestPath)
	if err != nil {
		return nil, err
	}
	return &Controller{
		store:        store,
		transport:    transport,
		bus:          bus,
		manifestPath: manifestPath,
		logger:       logger.With().Str("component", "cache-controller").Logger(),
		state:        StateActive,
		active:       active,
	}, nil
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ActiveVersion returns the tag currently serving requests ("" before the
// first activation).
func (c *Controller) ActiveVersion() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Install caches a new bundle under version. The previously active version
// keeps serving throughout. If any asset fails to cache the controller stays
// in installing with the partial bundle unreferenced, and the error wraps
// models.ErrVersionActivation: fail safe, never partially activate.
func (c *Controller) Install(ctx context.Context, version string, assets []database.Asset) error {
	c.mu.Lock()
	newer, err := Newer(version, c.active)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	if !newer {
		c.mu.Unlock()
		return fmt.Errorf("version %s is not newer than active %s", version, c.active)
	}
	c.state = StateInstalling
	c.staged = version
	c.mu.Unlock()

	c.logger.Info().Str("version", version).Int("assets", len(assets)).Msg("Installing cache version")

	for i := range assets {
		assets[i].Version = version
		if err := c.store.PutAsset(ctx, &assets[i]); err != nil {
			c.logger.Error().Err(err).Str("version", version).Str("path", assets[i].Path).Msg("Asset caching failed, staying on previous version")
			return fmt.Errorf("cache asset %s: %v: %w", assets[i].Path, err, models.ErrVersionActivation)
		}
	}

	// Verify the bundle is complete before signalling the page.
	n, err := c.store.CountAssets(ctx, version)
	if err != nil {
		return fmt.Errorf("verify bundle %s: %v: %w", version, err, models.ErrVersionActivation)
	}
	if n < len(assets) {
		return fmt.Errorf("bundle %s incomplete (%d/%d assets): %w", version, n, len(assets), models.ErrVersionActivation)
	}

	c.mu.Lock()
	c.state = StateWaiting
	c.mu.Unlock()

	c.notify(PageMessage{Type: MessageUpdateAvailable, Version: version})
	if c.bus != nil {
		_ = c.bus.PublishJSON(events.EventVersionWaiting, events.VersionEventPayload{Version: version})
	}
	c.logger.Info().Str("version", version).Msg("Cache version installed, waiting for activation")
	return nil
}

// Activate performs the cutover: the staged version becomes active, the
// manifest is persisted, and every asset of every other version is deleted in
// a single cleanup pass. Triggered automatically or by explicit user
// acknowledgment of the waiting signal.
func (c *Controller) Activate(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateWaiting {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("cannot activate from state %s", state)
	}
	previous := c.active
	version := c.staged
	c.mu.Unlock()

	if err := WriteManifest(c.manifestPath, version); err != nil {
		return fmt.Errorf("persist manifest: %v: %w", err, models.ErrVersionActivation)
	}

	c.mu.Lock()
	c.active = version
	c.staged = ""
	c.state = StateActive
	c.mu.Unlock()

	// One atomic pass supersedes everything else; after this no stale entry
	// can be served.
	deleted, err := c.store.DeleteVersionsExcept(ctx, version)
	if err != nil {
		c.logger.Error().Err(err).Str("version", version).Msg("Superseded cleanup failed")
		return err
	}

	metrics.IncActivation()
	c.notify(PageMessage{Type: MessageActivated, Version: version})
	if c.bus != nil {
		_ = c.bus.PublishJSON(events.EventVersionActivated, events.VersionEventPayload{Version: version, Previous: previous})
	}
	c.logger.Info().
		Str("version", version).
		Str("previous", previous).
		Int64("assets_deleted", deleted).
		Msg("Cache version activated")
	return nil
}

// Serve returns an asset of the active version, or nil when the path is not
// cached. Requests are satisfied from exactly one version.
func (c *Controller) Serve(ctx context.Context, path string) (*database.Asset, error) {
	c.mu.Lock()
	active := c.active
	c.mu.Unlock()

	if active == "" {
		return nil, nil
	}
	return c.store.GetAsset(ctx, active, path)
}

func (c *Controller) notify(msg PageMessage) {
	if c.transport == nil {
		return
	}
	if err := c.transport.Notify(msg); err != nil {
		c.logger.Warn().Err(err).Str("type", msg.Type).Msg("Page notification failed")
	}
}
