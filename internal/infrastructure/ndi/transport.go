package ndi

import (
	"strings"

	"ndilive/internal/core/domain"
	"ndilive/internal/core/ports"
	"ndilive/pkg/config"

	"go.uber.org/zap"
)

// NewTransport returns the simulator when cfg asks for it and the SDK
// binding otherwise.
func NewTransport(cfg *config.Config, logger *zap.SugaredLogger) ports.Transport {
	if !cfg.NDI.Simulate {
		logger.Infow("using NDI SDK transport", "available", Available(), "version", Version())
		return NewSDK(logger)
	}

	simCfg := DefaultSimulatorConfig()
	simCfg.Synthetic = cfg.NDI.Synthetic
	for _, entry := range cfg.NDI.SimulatedSources {
		simCfg.Sources = append(simCfg.Sources, ParseSource(entry))
	}
	logger.Infow("using simulated transport", "sources", len(simCfg.Sources), "synthetic", simCfg.Synthetic)
	return NewSimulator(simCfg, logger)
}

// ParseSource reads "MACHINE (Name)@host:port". The address part is
// optional.
func ParseSource(entry string) domain.Source {
	entry = strings.TrimSpace(entry)
	if i := strings.LastIndex(entry, "@"); i >= 0 {
		return domain.Source{Name: strings.TrimSpace(entry[:i]), URL: strings.TrimSpace(entry[i+1:])}
	}
	return domain.Source{Name: entry}
}

// FindOptionsFromConfig maps the discovery section onto find options.
func FindOptionsFromConfig(cfg *config.Config) ports.FindOptions {
	return ports.FindOptions{
		ShowLocalSources: cfg.Discovery.ShowLocalSources,
		Groups:           cfg.Discovery.Groups,
		ExtraIPs:         strings.Join(cfg.Discovery.ExtraIPs, ","),
	}
}
