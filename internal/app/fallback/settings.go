package fallback

import (
	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"
)

func decodeSettings(kind string, settings map[string]any, out any) error {
	if err := mapstructure.Decode(settings, out); err != nil {
		return errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(out); err != nil {
		return errors.Wrap(err, "failed to set defaults")
	}
	zlog.Debug().Msgf("%s provider config: %+v", kind, out)
	if err := validator.New().Struct(out); err != nil {
		zlog.Error().Msgf("%s provider validation failed: %v", kind, err)
		return errors.Wrap(err, "validation failed")
	}
	return nil
}
