package sources

import (
	"time"

	"github.com/playbookd/sourcekit/internal/assets"
	"github.com/playbookd/sourcekit/internal/clients"
	"github.com/playbookd/sourcekit/internal/config"
	"github.com/playbookd/sourcekit/internal/models"
	"github.com/playbookd/sourcekit/pkg/logger"
)

// Deps carries the shared infrastructure handed to every executor.
type Deps struct {
	Logger logger.Logger
	Assets assets.Store
	Cfg    config.UpstreamConfig
}

func (d Deps) httpClient(source models.Source) *clients.HTTPClient {
	timeout := time.Duration(d.Cfg.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return clients.NewHTTPClient(source, timeout, d.Cfg.BreakerFailures, d.Logger)
}

// NewDefaultRegistry wires every built-in executor into a registry.
func NewDefaultRegistry(deps Deps) *Registry {
	r := NewRegistry(deps.Logger)
	r.Register(NewNewRelicManager(deps))
	r.Register(NewGrafanaManager(deps))
	r.Register(NewCoralogixManager(deps))
	r.Register(NewSignozManager(deps))
	r.Register(NewClickHouseManager(deps))
	r.Register(NewSQLManager(deps))
	r.Register(NewPostHogManager(deps))
	r.Register(NewOpsGenieManager(deps))
	r.Register(NewRenderManager(deps))
	r.Register(NewBashManager(deps))
	r.Register(NewKubernetesManager(deps))
	return r
}
