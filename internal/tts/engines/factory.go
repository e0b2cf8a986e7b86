package engines

import (
	"fmt"

	"github.com/utero-ai/utero-tts/internal/config"
	"github.com/utero-ai/utero-tts/internal/tts/engines/mock"
	"github.com/utero-ai/utero-tts/internal/ttypes"
)

// New builds the engine named by engineType from its config section.
func New(engineType ttypes.EngineType, cfg config.EnginesConfig) (ttypes.TTSEngine, error) {
	var (
		engine ttypes.TTSEngine
		err    error
	)

	switch engineType {
	case ttypes.EngineGoogle:
		var e *GTTSEngine
		if e, err = NewGTTSEngine(cfg.GTTS, nil); err == nil {
			engine = e
		}
	case ttypes.EngineYandex:
		var e *YandexEngine
		if e, err = NewYandexEngine(cfg.Yandex); err == nil {
			engine = e
		}
	case ttypes.EngineDoubao:
		var e *DoubaoEngine
		if e, err = NewDoubaoEngine(cfg.Doubao); err == nil {
			engine = e
		}
	case ttypes.EngineMock:
		engine = mock.New()
	case ttypes.EngineNone:
		return nil, fmt.Errorf("no TTS engine configured")
	default:
		return nil, fmt.Errorf("unknown TTS engine %q", engineType)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create %s engine: %w", engineType, err)
	}
	return engine, nil
}
