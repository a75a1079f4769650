package ml

import (
	"errors"
	"os"

	"github.com/rs/zerolog/log"

	"icu-risk/internal/features"
)

// ArtifactSet names the files of one tabular artifact generation.
type ArtifactSet struct {
	Model       string `yaml:"model" json:"model"`
	Scaler      string `yaml:"scaler" json:"scaler"`
	FeatureList string `yaml:"feature_list" json:"feature_list"`
}

// RegistryConfig lists every artifact location. Primary is tried before Legacy.
type RegistryConfig struct {
	Primary       ArtifactSet
	Legacy        ArtifactSet
	SequenceModel string
	Jitter        features.Jitter
	Metrics       MetricsInterface
}

// RegistryInfo reports what was loaded.
type RegistryInfo struct {
	Version           string         `json:"version"`
	TabularLoaded     bool           `json:"tabular_loaded"`
	TabularSource     string         `json:"tabular_source,omitempty"`
	ScalerLoaded      bool           `json:"scaler_loaded"`
	FeatureListLoaded bool           `json:"feature_list_loaded"`
	Features          []string       `json:"features"`
	SequenceLoaded    bool           `json:"sequence_loaded"`
	SequenceSource    string         `json:"sequence_source,omitempty"`
	SequenceChannels  []string       `json:"sequence_channels"`
	Architecture      string         `json:"architecture,omitempty"`
	Metadata          *ModelMetadata `json:"metadata,omitempty"`
}

// Registry holds the loaded predictors. It is built once at startup and never mutated,
// so it can be shared across goroutines without locking.
type Registry struct {
	tabular  *TabularModel
	sequence *SequenceModel
	info     RegistryInfo
}

// LoadRegistry loads every artifact it can find. It never fails: anything missing or
// unreadable is logged and the matching predictor runs on fallback rules.
func LoadRegistry(cfg RegistryConfig) *Registry {
	tabular, info := loadTabular(cfg)
	sequence := loadSequence(cfg)

	info.SequenceLoaded = sequence.Available()
	info.SequenceSource = sequence.Source()
	info.Architecture = sequence.Architecture()
	info.SequenceChannels = features.SequenceChannelNames[:]

	log.Info().
		Str("version", info.Version).
		Bool("tabular_loaded", info.TabularLoaded).
		Bool("scaler_loaded", info.ScalerLoaded).
		Bool("feature_list_loaded", info.FeatureListLoaded).
		Bool("sequence_loaded", info.SequenceLoaded).
		Msg("Model registry ready")

	return &Registry{tabular: tabular, sequence: sequence, info: info}
}

// NewRegistry assembles a registry from already built predictors.
func NewRegistry(tabular *TabularModel, sequence *SequenceModel) *Registry {
	if tabular == nil {
		tabular = NewTabularModel(nil, nil, "", nil)
	}
	if sequence == nil {
		sequence = NewSequenceModel(nil, nil, "", nil)
	}
	return &Registry{
		tabular:  tabular,
		sequence: sequence,
		info: RegistryInfo{
			Version:          DefaultModelVersion,
			TabularLoaded:    tabular.Available(),
			TabularSource:    tabular.Source(),
			Features:         tabular.Columns(),
			SequenceLoaded:   sequence.Available(),
			SequenceSource:   sequence.Source(),
			SequenceChannels: features.SequenceChannelNames[:],
			Architecture:     sequence.Architecture(),
		},
	}
}

func (r *Registry) Tabular() *TabularModel   { return r.tabular }
func (r *Registry) Sequence() *SequenceModel { return r.sequence }

// Info returns a copy of the load report.
func (r *Registry) Info() RegistryInfo {
	info := r.info
	info.Features = append([]string(nil), r.info.Features...)
	info.SequenceChannels = append([]string(nil), r.info.SequenceChannels...)
	return info
}

func loadTabular(cfg RegistryConfig) (*TabularModel, RegistryInfo) {
	info := RegistryInfo{Version: DefaultModelVersion}

	for _, set := range []ArtifactSet{cfg.Primary, cfg.Legacy} {
		if set.Model == "" {
			continue
		}
		clf, err := LoadTreeEnsemble(set.Model)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				log.Debug().Str("model_path", set.Model).Msg("Tabular model not found")
			} else {
				log.Warn().Err(err).Str("model_path", set.Model).Msg("Failed to load tabular model")
			}
			continue
		}

		var scaler *features.Scaler
		if set.Scaler != "" {
			if scaler, err = features.LoadScaler(set.Scaler); err != nil {
				log.Warn().Err(err).Str("scaler_path", set.Scaler).Msg("Scaler not loaded, features stay unscaled")
				scaler = nil
			}
		}

		var featureList []string
		if set.FeatureList != "" {
			if featureList, err = loadFeatureList(set.FeatureList); err != nil {
				log.Warn().Err(err).Str("feature_list_path", set.FeatureList).Msg("Feature list not loaded")
				featureList = nil
			}
		}

		if md, err := loadModelMetadata(set.Model); err == nil {
			info.Version = md.Version
			info.Metadata = md
		}

		normalizer := features.NewNormalizer(featureList, scaler)
		info.TabularLoaded = true
		info.TabularSource = set.Model
		info.ScalerLoaded = scaler != nil
		info.FeatureListLoaded = featureList != nil
		info.Features = normalizer.Columns()

		log.Info().Str("model_path", set.Model).Msg("Tabular model loaded")
		return NewTabularModel(clf, normalizer, set.Model, cfg.Metrics), info
	}

	log.Warn().
		Str("primary", cfg.Primary.Model).
		Str("legacy", cfg.Legacy.Model).
		Msg("Tabular model not found, using fallback rules")
	model := NewTabularModel(nil, nil, "", cfg.Metrics)
	info.Features = model.Columns()
	return model, info
}

func loadSequence(cfg RegistryConfig) *SequenceModel {
	if cfg.SequenceModel == "" {
		log.Warn().Msg("No sequence model configured, using fallback rules")
		return NewSequenceModel(nil, cfg.Jitter, "", cfg.Metrics)
	}

	net, err := LoadLSTMNetwork(cfg.SequenceModel)
	if err != nil {
		log.Warn().Err(err).Str("model_path", cfg.SequenceModel).Msg("Sequence model not loaded, using fallback rules")
		return NewSequenceModel(nil, cfg.Jitter, "", cfg.Metrics)
	}

	steps, channels := net.InputShape()
	if steps != features.SequenceSteps || channels != features.SequenceChannels {
		log.Warn().
			Int("steps", steps).
			Int("channels", channels).
			Str("model_path", cfg.SequenceModel).
			Msg("Sequence model input shape mismatch, using fallback rules")
		return NewSequenceModel(nil, cfg.Jitter, "", cfg.Metrics)
	}

	log.Info().Str("model_path", cfg.SequenceModel).Str("architecture", net.Architecture()).Msg("Sequence model loaded")
	return NewSequenceModel(net, cfg.Jitter, cfg.SequenceModel, cfg.Metrics)
}
