package bootstrap

import (
	"log"

	"github.com/Souzaab/crm-multi-acesso-sub000/internal/auth"
	"github.com/Souzaab/crm-multi-acesso-sub000/internal/config"
	"github.com/Souzaab/crm-multi-acesso-sub000/internal/handlers"
	"github.com/Souzaab/crm-multi-acesso-sub000/internal/models"
	"github.com/Souzaab/crm-multi-acesso-sub000/internal/provider"
	"github.com/Souzaab/crm-multi-acesso-sub000/internal/provider/googlecal"
	"github.com/Souzaab/crm-multi-acesso-sub000/internal/provider/ms365"
	"github.com/Souzaab/crm-multi-acesso-sub000/internal/provider/sheets"
)

// initializeProviderAdapters builds one shared outbound client and the
// per-provider adapters for every configured provider.
func initializeProviderAdapters(cfg *config.Config) (
	map[models.Provider]provider.CalendarAdapter,
	*sheets.Adapter,
	error,
) {
	client, err := provider.NewClient(cfg.ProviderTimeout)
	if err != nil {
		return nil, nil, err
	}

	adapters := make(map[models.Provider]provider.CalendarAdapter, 2)
	if cfg.MS365.Enabled() {
		adapters[models.ProviderMS365] = ms365.New(client)
	}
	if cfg.GoogleCalendar.Enabled() {
		adapters[models.ProviderGoogleCalendar] = googlecal.New(client)
	}

	var sheetsAdapter *sheets.Adapter
	if cfg.GoogleSheets.Enabled() {
		sheetsAdapter = sheets.New(client)
	}

	return adapters, sheetsAdapter, nil
}

// logProviderStatus reports which providers carry an OAuth app
// registration at startup.
func logProviderStatus(registry *auth.Registry) {
	providers := []models.Provider{
		models.ProviderMS365,
		models.ProviderGoogleCalendar,
		models.ProviderGoogleSheets,
	}
	for _, p := range providers {
		if registry.Enabled(p) {
			log.Printf("Provider %s: configured", p)
		} else {
			log.Printf("Provider %s: not configured, routes will reject it", p)
		}
	}
}

// handlerSet groups the HTTP handlers wired by the router.
type handlerSet struct {
	integration *handlers.IntegrationHandler
	events      *handlers.EventsHandler
	health      *handlers.HealthHandler
}

// initializeHandlers creates all HTTP handlers.
func initializeHandlers(app *Application) handlerSet {
	return handlerSet{
		integration: handlers.NewIntegrationHandler(app.OAuthService, app.MetricsRecorder),
		events:      handlers.NewEventsHandler(app.SyncService),
		health:      handlers.NewHealthHandler(app.DB),
	}
}
