package common

import "time"

// Environment variable keys
const (
	EnvConfigFile = "CONFIG_FILE"
	EnvListenPort = "PORT"
	EnvLogLevel   = "LOG_LEVEL"
	EnvDataPath   = "DATA_PATH"

	EnvModelPath             = "MODEL_PATH"
	EnvScalerPath            = "SCALER_PATH"
	EnvFeatureListPath       = "FEATURE_LIST_PATH"
	EnvLegacyModelPath       = "LEGACY_MODEL_PATH"
	EnvLegacyScalerPath      = "LEGACY_SCALER_PATH"
	EnvLegacyFeatureListPath = "LEGACY_FEATURE_LIST_PATH"
	EnvLSTMModelPath         = "LSTM_MODEL_PATH"

	EnvTabularWeight         = "XGBOOST_WEIGHT"
	EnvSequenceWeight        = "LSTM_WEIGHT"
	EnvRiskThresholdMedium   = "RISK_THRESHOLD_MEDIUM"
	EnvRiskThresholdHigh     = "RISK_THRESHOLD_HIGH"
	EnvRiskThresholdCritical = "RISK_THRESHOLD_CRITICAL"
	EnvDecisionThreshold     = "DECISION_THRESHOLD"
	EnvThresholdFile         = "THRESHOLD_FILE"
	EnvDecisionPolicy        = "DECISION_POLICY"

	EnvNarrativeURL     = "NARRATIVE_URL"
	EnvNarrativeToken   = "NARRATIVE_TOKEN"
	EnvNarrativeTimeout = "NARRATIVE_TIMEOUT"
	EnvFeedEnabled      = "FEED_ENABLED"
	EnvRequestTimeout   = "REQUEST_TIMEOUT"
)

// Configuration defaults
const (
	DefaultListenPort = 5001
	DefaultLogLevel   = "info"
	DefaultDataPath   = "data"

	DefaultModelPath             = "models/emergency_predictor.json"
	DefaultScalerPath            = "models/scaler.json"
	DefaultFeatureListPath       = "models/feature_list.json"
	DefaultLegacyModelPath       = "../emergency_predictor.json"
	DefaultLegacyScalerPath      = "../scaler.json"
	DefaultLegacyFeatureListPath = "../feature_list.json"
	DefaultLSTMModelPath         = "models/lstm_model.json"

	DefaultNarrativeTimeout = 10 * time.Second
	DefaultRequestTimeout   = 5 * time.Second
	DefaultFeedEnabled      = true
)

// Validation constants
const (
	MinListenPort       = 1024
	MaxListenPort       = 65535
	MinNarrativeTimeout = time.Second
	MaxNarrativeTimeout = time.Minute
	MinRequestTimeout   = 100 * time.Millisecond
	MaxRequestTimeout   = time.Minute
)
