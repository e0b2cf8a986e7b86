package tts

import (
	"fmt"
	"os/exec"
	"strings"
	"unicode/utf8"

	"github.com/utero-ai/utero-tts/internal/config"
	"github.com/utero-ai/utero-tts/internal/ttypes"
)

// ValidateText trims text and checks it against the length limit, counted in
// characters. It returns the trimmed text.
func ValidateText(text string, maxLen int) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", NewTTSError(ErrorCodeInvalidInput, "Text parameter is required", ErrEmptyText)
	}

	if n := utf8.RuneCountInString(text); maxLen > 0 && n > maxLen {
		return "", NewTTSError(ErrorCodeTextTooLong,
			fmt.Sprintf("Text too long. Maximum %d characters allowed.", maxLen),
			ErrTextTooLong,
		).WithContext("length", n)
	}

	return text, nil
}

// ValidationResult contains the result of engine validation
type ValidationResult struct {
	// Engine is the validated engine type
	Engine ttypes.EngineType

	// Available indicates if the engine is available and configured
	Available bool

	// Error contains any validation error
	Error error

	// Guidance provides setup instructions if validation failed
	Guidance string

	// Details contains additional validation information
	Details map[string]string
}

// ValidateEngineSelection resolves the engine name, CLI argument first, then
// the configured value. Aliases are normalised ("google" is gtts,
// "volcengine" is doubao).
func ValidateEngineSelection(cliArg, configured string) (ttypes.EngineType, error) {
	engineType := strings.ToLower(strings.TrimSpace(cliArg))
	if engineType == "" {
		engineType = strings.ToLower(strings.TrimSpace(configured))
	}

	if engineType == "" {
		return ttypes.EngineNone, fmt.Errorf("%w\n\nPlease specify an engine:\n  utero-tts serve --engine gtts\n\nOr set a default in utero-tts.yml:\n  tts:\n    engine: gtts  # or \"yandex\", \"doubao\"", ErrNoEngineConfigured)
	}

	switch engineType {
	case "gtts", "google":
		return ttypes.EngineGoogle, nil
	case "yandex", "speechkit":
		return ttypes.EngineYandex, nil
	case "doubao", "volcengine":
		return ttypes.EngineDoubao, nil
	case "mock":
		return ttypes.EngineMock, nil
	default:
		return ttypes.EngineNone, fmt.Errorf("%w: %s\n\nSupported engines:\n  - gtts (Google Translate TTS)\n  - yandex (Yandex SpeechKit)\n  - doubao (Volcengine)", ErrInvalidEngine, engineType)
	}
}

// ValidateEngine checks that the selected engine has what it needs to run.
func ValidateEngine(engineType ttypes.EngineType, cfg config.EnginesConfig) *ValidationResult {
	result := &ValidationResult{
		Engine:  engineType,
		Details: make(map[string]string),
	}

	switch engineType {
	case ttypes.EngineGoogle:
		return validateGoogleEngine(cfg.GTTS, result)
	case ttypes.EngineYandex:
		result.Details["engine"] = "Yandex SpeechKit (gRPC)"
		result.Details["endpoint"] = cfg.Yandex.Endpoint
		if err := cfg.Yandex.Validate(); err != nil {
			result.Error = err
			result.Guidance = buildYandexGuidance()
			return result
		}
	case ttypes.EngineDoubao:
		result.Details["engine"] = "Volcengine Doubao (websocket)"
		result.Details["endpoint"] = cfg.Doubao.Endpoint
		result.Details["voice_type"] = cfg.Doubao.VoiceType
		if err := cfg.Doubao.Validate(); err != nil {
			result.Error = err
			result.Guidance = buildDoubaoGuidance()
			return result
		}
	case ttypes.EngineMock:
		result.Details["engine"] = "Mock (no audio)"
	case ttypes.EngineNone:
		result.Error = ErrNoEngineConfigured
		result.Guidance = "Please specify a TTS engine with --engine or in the config file"
		return result
	default:
		result.Error = fmt.Errorf("%w: %s", ErrInvalidEngine, engineType)
		result.Guidance = "Supported engines: gtts, yandex, doubao"
		return result
	}

	result.Available = true
	result.Details["status"] = "Ready"
	return result
}

func validateGoogleEngine(cfg config.GTTSConfig, result *ValidationResult) *ValidationResult {
	result.Details["engine"] = "Google TTS (gTTS - Free)"

	gttsPath, err := exec.LookPath(cfg.Binary)
	if err != nil {
		result.Error = fmt.Errorf("gTTS not found in PATH: %w", err)
		result.Guidance = buildGTTSInstallGuidance()
		return result
	}
	result.Details["gtts_path"] = gttsPath
	result.Details["rate_limit"] = fmt.Sprintf("%d/min", cfg.RequestsPerMinute)

	result.Available = true
	result.Details["status"] = "Ready (full validation requires network test)"
	return result
}

// QuickValidation performs a fast availability check without contacting the
// provider. Failures carry ErrorCodeEngineUnavailable.
func QuickValidation(engineType ttypes.EngineType, cfg config.EnginesConfig) error {
	var err error
	switch engineType {
	case ttypes.EngineGoogle:
		if _, lookErr := exec.LookPath(cfg.GTTS.Binary); lookErr != nil {
			err = fmt.Errorf("gTTS not found: %w", lookErr)
		}
	case ttypes.EngineYandex:
		err = cfg.Yandex.Validate()
	case ttypes.EngineDoubao:
		err = cfg.Doubao.Validate()
	case ttypes.EngineMock:
	default:
		err = ErrInvalidEngine
	}
	if err != nil {
		return NewTTSError(ErrorCodeEngineUnavailable, "engine not ready", err).
			WithContext("engine", string(engineType))
	}
	return nil
}

func buildGTTSInstallGuidance() string {
	return `gTTS (Google Text-to-Speech) is not installed. To install:

1. Install via pip:
   pip install gtts

   # Or with pipx:
   pipx install gtts

2. Verify installation:
   gtts-cli --help

No API key is required, but gTTS needs an internet connection.`
}

func buildYandexGuidance() string {
	return `Yandex SpeechKit needs an API key and a folder id.

Set them in utero-tts.yml:
  engines:
    yandex:
      api_key: "..."
      folder_id: "..."

or export YANDEX_API_KEY and YANDEX_FOLDER_ID (a .env file works too).`
}

func buildDoubaoGuidance() string {
	return `Volcengine Doubao TTS needs an app id and an access token.

Set them in utero-tts.yml:
  engines:
    doubao:
      app_id: "..."
      access_token: "..."

or export DOUBAO_APP_ID and DOUBAO_ACCESS_TOKEN.`
}
