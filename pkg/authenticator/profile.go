package authenticator

import (
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/studymate/backend/config"
)

type profile struct {
	ID        string `mapstructure:"id"`
	Email     string `mapstructure:"email"`
	Name      string `mapstructure:"name"`
	AvatarURL string `mapstructure:"avatar"`
}

// decodeProfile picks the configured fields out of a raw provider document.
// Provider ids may be numbers, so values are decoded weakly into strings.
func decodeProfile(raw map[string]any, cfg config.OAuth2Config) (profile, error) {
	root := raw
	if cfg.ResponseField != "" {
		for _, key := range strings.Split(cfg.ResponseField, ".") {
			child, ok := root[key].(map[string]any)
			if !ok {
				return profile{}, fmt.Errorf("missing field %s in profile", cfg.ResponseField)
			}
			root = child
		}
	}

	picked := map[string]any{
		"id":     root[cfg.IDField],
		"email":  root[cfg.EmailField],
		"name":   root[cfg.NameField],
		"avatar": root[cfg.AvatarField],
	}

	var p profile
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &p,
	})
	if err != nil {
		return profile{}, err
	}

	if err := decoder.Decode(picked); err != nil {
		return profile{}, err
	}

	if p.ID == "" {
		return profile{}, fmt.Errorf("invalid id field %s", cfg.IDField)
	}

	return p, nil
}
